package product

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/glimte/bridgekit-go/bridge"
	"github.com/glimte/bridgekit-go/contracts"
)

const (
	MsgWhoAmI        = "/product : I am Product Service"
	MsgOwnerFetched  = "Owner fetched successfully."
	MsgOwnerNotFound = "Owner not found."
	MsgOwnerError    = "An error occurred while fetching the owner."
	MsgOwnerTimeout  = "Owner lookup timed out."
	MsgNotified      = "View notification sent."
	MsgNotifyError   = "An error occurred while sending the notification."
)

// API serves the product HTTP routes
type API struct {
	svc    *Service
	logger *slog.Logger
}

func NewAPI(svc *Service, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{svc: svc, logger: logger}
}

// Routes mounts the API on r, under prefix when set
func (a *API) Routes(r chi.Router, prefix string) {
	mount := func(r chi.Router) {
		r.Get("/whoami", a.whoAmI)
		r.Get("/owner/{customerId}", a.ownerSync)
		r.Get("/owner/{customerId}/async", a.ownerAsync)
		r.Post("/notify/{customerId}", a.notify)
	}
	if prefix = strings.TrimRight(prefix, "/"); prefix != "" {
		r.Route(prefix, mount)
	} else {
		mount(r)
	}
}

// NotFound is the fallback for unmatched routes
func NotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
}

func (a *API) whoAmI(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"msg": MsgWhoAmI})
}

func (a *API) ownerSync(w http.ResponseWriter, r *http.Request) {
	owner, err := a.svc.OwnerSync(r.Context(), chi.URLParam(r, "customerId"))
	a.writeOwner(w, owner, err)
}

func (a *API) ownerAsync(w http.ResponseWriter, r *http.Request) {
	owner, err := a.svc.OwnerAsync(r.Context(), chi.URLParam(r, "customerId"))
	a.writeOwner(w, owner, err)
}

func (a *API) writeOwner(w http.ResponseWriter, owner Owner, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, contracts.SuccessResult(owner, MsgOwnerFetched))
	case errors.Is(err, ErrOwnerNotFound):
		writeJSON(w, http.StatusNotFound, contracts.ErrorResult(MsgOwnerNotFound))
	case errors.Is(err, bridge.ErrReplyTimeout):
		writeJSON(w, http.StatusGatewayTimeout, contracts.ErrorResult(MsgOwnerTimeout))
	case errors.Is(err, ErrNoRequester):
		writeJSON(w, http.StatusNotImplemented, contracts.ErrorResult(err.Error()))
	default:
		a.logger.Error("owner lookup failed", "error", err)
		writeJSON(w, http.StatusBadGateway, contracts.ErrorResult(MsgOwnerError))
	}
}

type notifyRequest struct {
	ProductID string `json:"productId"`
}

func (a *API) notify(w http.ResponseWriter, r *http.Request) {
	var in notifyRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err == nil {
		err = json.Unmarshal(body, &in)
	}
	if err != nil || in.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Bad Request",
			"message": "Validation failed",
			"details": map[string]string{"field": "productId", "message": "productId is required"},
		})
		return
	}

	if err := a.svc.Notify(r.Context(), chi.URLParam(r, "customerId"), in.ProductID); err != nil {
		a.logger.Error("notify failed", "error", err)
		writeJSON(w, http.StatusBadGateway, contracts.ErrorResult(MsgNotifyError))
		return
	}
	writeJSON(w, http.StatusAccepted, contracts.SuccessResult(nil, MsgNotified))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
