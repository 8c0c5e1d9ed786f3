package customer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/glimte/bridgekit-go/contracts"
)

const maxBodyBytes = 1 << 20

type claimsKey struct{}

// ClaimsFrom returns the claims stored by the auth middleware
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// API serves the customer HTTP routes
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
		r.Post("/signup", a.signUp)
		r.Post("/login", a.signIn)

		r.Group(func(r chi.Router) {
			r.Use(a.Authenticate)
			r.Get("/profile", a.profile)
			r.Post("/logout", a.logout)
			r.Post("/address/add", a.addAddress)
			r.Get("/address/{id}", a.getAddress)
			r.Get("/address", a.listAddresses)
		})
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

type authFailure struct {
	Message string `json:"message"`
	Expired bool   `json:"expired"`
}

// Authenticate requires a valid Bearer token that is still in the customer's token set
func (a *API) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeJSON(w, http.StatusForbidden, authFailure{Message: MsgMissingAuthToken})
			return
		}
		claims, err := a.svc.Authenticate(r.Context(), raw)
		if err != nil {
			expired := errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenRevoked)
			if !errors.Is(err, ErrUnauthorized) && !expired {
				a.logger.Error("token check failed", "error", err)
			}
			writeJSON(w, http.StatusForbidden, authFailure{Message: MsgNotAuthorized, Expired: expired})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func (a *API) whoAmI(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"msg": MsgWhoAmI})
}

func (a *API) signUp(w http.ResponseWriter, r *http.Request) {
	var in SignUpInput
	if !a.decode(w, r, &in) {
		return
	}
	session, err := a.svc.SignUp(r.Context(), in)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, contracts.SuccessResult(session, MsgSignUpSuccess))
	case errors.Is(err, ErrEmailTaken):
		writeJSON(w, http.StatusConflict, contracts.ErrorResult(MsgEmailTaken))
	default:
		a.fail(w, err, MsgSignUpError)
	}
}

func (a *API) signIn(w http.ResponseWriter, r *http.Request) {
	var in SignInInput
	if !a.decode(w, r, &in) {
		return
	}
	session, err := a.svc.SignIn(r.Context(), in)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, contracts.SuccessResult(session, MsgLoginSuccess))
	case errors.Is(err, ErrBadCredentials):
		writeJSON(w, http.StatusUnauthorized, contracts.ErrorResult(MsgLoginFailed))
	case errors.Is(err, ErrInactive):
		writeJSON(w, http.StatusForbidden, contracts.ErrorResult(MsgLoginInactive))
	default:
		a.fail(w, err, MsgLoginFailed)
	}
}

func (a *API) profile(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	profile, err := a.svc.GetProfile(r.Context(), claims.ID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, contracts.SuccessResult(profile, MsgProfileSuccess))
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, contracts.ErrorResult(MsgProfileNotFound))
	default:
		a.fail(w, err, MsgProfileError)
	}
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if err := a.svc.Logout(r.Context(), claims.ID, raw); err != nil {
		a.fail(w, err, MsgLogoutError)
		return
	}
	writeJSON(w, http.StatusOK, contracts.SuccessResult(nil, MsgLogoutSuccess))
}

func (a *API) addAddress(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	var in AddressInput
	if !a.decode(w, r, &in) {
		return
	}
	address, err := a.svc.AddAddress(r.Context(), claims.ID, in)
	if err != nil {
		a.fail(w, err, MsgAddressAddError)
		return
	}
	writeJSON(w, http.StatusCreated, contracts.SuccessResult(address, MsgAddressAdded))
}

func (a *API) getAddress(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	address, err := a.svc.GetAddress(r.Context(), claims.ID, chi.URLParam(r, "id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, contracts.SuccessResult(address, MsgAddressFetched))
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidID):
		writeJSON(w, http.StatusNotFound, contracts.ErrorResult(MsgAddressNotFound))
	default:
		a.fail(w, err, MsgAddressGetError)
	}
}

func (a *API) listAddresses(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	addresses, err := a.svc.ListAddresses(r.Context(), claims.ID)
	if err != nil {
		a.fail(w, err, MsgAddressGetError)
		return
	}
	writeJSON(w, http.StatusOK, contracts.SuccessResult(addresses, MsgAddressFetched))
}

type validationFailure struct {
	Error   string     `json:"error"`
	Message string     `json:"message"`
	Details FieldError `json:"details"`
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err == nil {
		err = json.Unmarshal(body, v)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, validationFailure{
			Error:   "Bad Request",
			Message: "Validation failed",
			Details: FieldError{Field: "body", Message: "body must be a JSON object"},
		})
		return false
	}
	return true
}

// fail maps validation errors to 400 and everything else to 500 with message
func (a *API) fail(w http.ResponseWriter, err error, message string) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, validationFailure{
			Error:   "Bad Request",
			Message: "Validation failed",
			Details: verr.First(),
		})
		return
	}
	a.logger.Error(message, "error", err)
	writeJSON(w, http.StatusInternalServerError, contracts.ErrorResult(message))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
