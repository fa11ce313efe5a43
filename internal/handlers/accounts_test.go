package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agrirent/agrirent/internal/handlers"
	"github.com/agrirent/agrirent/internal/models"
	"github.com/agrirent/agrirent/internal/services"
	pkghttp "github.com/agrirent/agrirent/pkg/http"
	"github.com/stretchr/testify/assert"
)

func TestAccountHandler_Me(t *testing.T) {
	mock := &handlers.MockAccountService{
		GetProfileFunc: func(ctx context.Context, variant models.Variant, id string) (*services.AccountResponse, error) {
			if id != "acc-1" {
				return nil, models.ErrNotFound
			}
			return &services.AccountResponse{ID: id, Email: "asha@example.com", UserType: variant, IsActivated: true}, nil
		},
	}
	h := handlers.NewAccountHandler(mock, discardLogger())

	t.Run("authenticated", func(t *testing.T) {
		req := handlers.WithSessionContext(httptest.NewRequest("GET", "/api/providers/me", nil),
			"acc-1", "asha@example.com", models.VariantProvider)
		w := httptest.NewRecorder()
		h.Me(models.VariantProvider)(w, req)

		var resp services.AccountResponse
		handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
		assert.Equal(t, "acc-1", resp.ID)
		assert.Equal(t, models.VariantProvider, resp.UserType)
	})

	t.Run("account gone", func(t *testing.T) {
		req := handlers.WithSessionContext(httptest.NewRequest("GET", "/api/providers/me", nil),
			"acc-2", "old@example.com", models.VariantProvider)
		w := httptest.NewRecorder()
		h.Me(models.VariantProvider)(w, req)

		handlers.AssertErrorResponse(t, w, http.StatusNotFound, pkghttp.CodeNotFound)
	})

	t.Run("no session", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Me(models.VariantUser)(w, httptest.NewRequest("GET", "/api/users/me", nil))

		handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, pkghttp.CodeUnauthorized)
	})
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(ctx context.Context) error { return s.err }

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	handlers.Health(stubHealth{}, discardLogger())(w, httptest.NewRequest("GET", "/health", nil))

	var resp handlers.HealthResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "up", resp.Database)

	w = httptest.NewRecorder()
	handlers.Health(stubHealth{err: errors.New("dial tcp: refused")}, discardLogger())(w, httptest.NewRequest("GET", "/health", nil))
	handlers.AssertJSONResponse(t, w, http.StatusServiceUnavailable, &resp)
	assert.Equal(t, "down", resp.Database)
}

func TestIndex(t *testing.T) {
	w := httptest.NewRecorder()
	handlers.Index(w, httptest.NewRequest("GET", "/", nil))

	var resp handlers.IndexResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "/api/auth", resp.Endpoints["auth"])
}
