package handlers

import (
	"log/slog"
	"net/http"

	"github.com/agrirent/agrirent/internal/auth"
	"github.com/agrirent/agrirent/internal/models"
	pkghttp "github.com/agrirent/agrirent/pkg/http"
)

// AccountHandler serves session-authenticated account reads
type AccountHandler struct {
	service AccountServiceInterface
	logger  *slog.Logger
}

func NewAccountHandler(service AccountServiceInterface, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{service: service, logger: logger}
}

// Me returns a handler for GET /api/{users,providers}/me. The route must sit behind
// auth.SessionMiddleware and auth.RequireVariant(variant).
func (h *AccountHandler) Me(variant models.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.GetSessionFromContext(r)
		if claims == nil {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}

		profile, err := h.service.GetProfile(r.Context(), variant, claims.AccountID)
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}

		pkghttp.WriteJSON(w, http.StatusOK, profile)
	}
}
