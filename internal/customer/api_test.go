package customer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	*fixture
	server *httptest.Server
}

func newAPIFixture(t *testing.T, prefix string) *apiFixture {
	t.Helper()
	f := newFixture(t)
	r := chi.NewRouter()
	NewAPI(f.svc, nil).Routes(r, prefix)
	r.NotFound(NotFound)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &apiFixture{fixture: f, server: server}
}

func (a *apiFixture) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

const signUpBody = `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","password":"secret1","phone":"9876543210"}`

func TestAPI(t *testing.T) {
	t.Run("whoami and fallback", func(t *testing.T) {
		a := newAPIFixture(t, "")

		status, body := a.do(t, http.MethodGet, "/whoami", "", "")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, MsgWhoAmI, body["msg"])

		status, body = a.do(t, http.MethodGet, "/nowhere", "", "")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, map[string]any{"error": "Not found"}, body)
	})

	t.Run("prefix", func(t *testing.T) {
		a := newAPIFixture(t, "/customer/")

		status, _ := a.do(t, http.MethodGet, "/customer/whoami", "", "")
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("signup login profile logout", func(t *testing.T) {
		a := newAPIFixture(t, "")

		status, body := a.do(t, http.MethodPost, "/signup", "", signUpBody)
		require.Equal(t, http.StatusCreated, status)
		assert.Equal(t, "success", body["type"])
		assert.Equal(t, MsgSignUpSuccess, body["message"])

		status, body = a.do(t, http.MethodPost, "/signup", "", signUpBody)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, MsgEmailTaken, body["message"])

		status, body = a.do(t, http.MethodPost, "/login", "", `{"username":"ada@example.com","password":"secret1"}`)
		require.Equal(t, http.StatusOK, status)
		token := body["data"].(map[string]any)["token"].(string)

		status, body = a.do(t, http.MethodGet, "/profile", token, "")
		require.Equal(t, http.StatusOK, status)
		profile := body["data"].(map[string]any)
		assert.Equal(t, "Ada", profile["firstName"])
		assert.NotContains(t, profile, "password")

		status, _ = a.do(t, http.MethodPost, "/logout", token, "")
		require.Equal(t, http.StatusOK, status)

		status, body = a.do(t, http.MethodGet, "/profile", token, "")
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, map[string]any{"message": MsgNotAuthorized, "expired": true}, body)
	})

	t.Run("bad login", func(t *testing.T) {
		a := newAPIFixture(t, "")
		a.do(t, http.MethodPost, "/signup", "", signUpBody)

		status, body := a.do(t, http.MethodPost, "/login", "", `{"username":"ada@example.com","password":"wrong12"}`)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, MsgLoginFailed, body["message"])
	})

	t.Run("validation failure", func(t *testing.T) {
		a := newAPIFixture(t, "")

		status, body := a.do(t, http.MethodPost, "/signup", "", `{"firstName":"Ada"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Bad Request", body["error"])
		assert.Equal(t, "Validation failed", body["message"])
		assert.Equal(t, map[string]any{"field": "lastName", "message": "lastName is required"}, body["details"])

		status, body = a.do(t, http.MethodPost, "/signup", "", `not json`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Validation failed", body["message"])
	})

	t.Run("auth header", func(t *testing.T) {
		a := newAPIFixture(t, "")

		status, body := a.do(t, http.MethodGet, "/profile", "", "")
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, map[string]any{"message": MsgMissingAuthToken, "expired": false}, body)

		status, body = a.do(t, http.MethodGet, "/profile", "forged", "")
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, map[string]any{"message": MsgNotAuthorized, "expired": false}, body)
	})

	t.Run("addresses", func(t *testing.T) {
		a := newAPIFixture(t, "")
		_, body := a.do(t, http.MethodPost, "/signup", "", signUpBody)
		token := body["data"].(map[string]any)["token"].(string)

		address := `{"name":"Home","mobile":"9876543210","address1":"12 Analytical St","landmark":"Engine works",` +
			`"pinCode":"560001","city":"Bengaluru","state":"KA","country":"IN","isDefault":true}`
		status, body := a.do(t, http.MethodPost, "/address/add", token, address)
		require.Equal(t, http.StatusCreated, status)
		id := body["data"].(map[string]any)["_id"].(string)

		status, body = a.do(t, http.MethodGet, "/address/"+id, token, "")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "home", body["data"].(map[string]any)["type"])

		status, body = a.do(t, http.MethodGet, "/address", token, "")
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, body["data"], 1)

		status, body = a.do(t, http.MethodGet, "/address/000000000000000000000000", token, "")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, MsgAddressNotFound, body["message"])

		status, body = a.do(t, http.MethodPost, "/address/add", token, `{"name":"Home"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "mobile", body["details"].(map[string]any)["field"])
	})
}
