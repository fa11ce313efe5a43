package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/agrirent/agrirent/internal/models"
	"github.com/agrirent/agrirent/internal/services"
	pkghttp "github.com/agrirent/agrirent/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AccountServiceInterface defines the account lifecycle operations the handlers need
type AccountServiceInterface interface {
	Signup(ctx context.Context, in services.SignupInput) (*services.SignupResult, error)
	Activate(ctx context.Context, variant models.Variant, token string) (*services.ActivationResult, error)
	Signin(ctx context.Context, variant models.Variant, email, password string) (*services.SigninResult, error)
	ForgotPassword(ctx context.Context, variant models.Variant, email string)
	VerifyResetToken(ctx context.Context, token string) (*services.ResetVerifyResult, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	VerifyPassword(ctx context.Context, variant models.Variant, email, password string) (bool, error)
	GetProfile(ctx context.Context, variant models.Variant, id string) (*services.AccountResponse, error)
}

// AuthHandler handles signup, activation, signin and password reset requests
type AuthHandler struct {
	service AccountServiceInterface
	logger  *slog.Logger
}

func NewAuthHandler(service AccountServiceInterface, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

// Request DTOs

// SignupRequest is the body of POST /api/auth/{variant}/signup. Provider fields are ignored for users.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Phone    string `json:"phone" validate:"required,len=10,numeric"`
	Address  string `json:"address" validate:"required,max=500"`

	BusinessName   string `json:"businessName" validate:"max=200"`
	BusinessType   string `json:"businessType" validate:"businesstype"`
	LicenseNumber  string `json:"licenseNumber" validate:"max=50"`
	ServiceArea    string `json:"serviceArea" validate:"max=300"`
	Experience     *int   `json:"experience" validate:"omitempty,gte=0,lte=100"`
	Certifications string `json:"certifications" validate:"max=1000"`
}

type SigninRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email    string `json:"email" validate:"required,email"`
	UserType string `json:"userType" validate:"required,variant"`
}

// ResetPasswordRequest leaves password rules to the service so token failures are reported first
type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type VerifyPasswordRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	UserType string `json:"userType" validate:"required,variant"`
}

// Response DTOs

type MessageResponse struct {
	Message string `json:"message"`
}

type VerifyPasswordResponse struct {
	Success bool `json:"success"`
	IsValid bool `json:"isValid"`
}

type ResetVerifyFailure struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ForgotPasswordAck is the only body POST /api/auth/password/forgot ever returns on a well-formed request
var ForgotPasswordAck = MessageResponse{Message: "If the email exists, a reset link has been sent."}

// Signup handles POST /api/auth/{variant}/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	variant, ok := variantParam(w, r)
	if !ok {
		return
	}

	var req SignupRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	trimSignup(&req)
	if verr := ValidateRequest(req); verr != nil {
		pkghttp.WriteValidationError(w, toFieldErrors(verr))
		return
	}

	in := services.SignupInput{
		Variant:  variant,
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
		Address:  req.Address,
	}
	if variant == models.VariantProvider {
		in.Provider = &models.ProviderProfile{
			BusinessName:   req.BusinessName,
			BusinessType:   req.BusinessType,
			LicenseNumber:  req.LicenseNumber,
			ServiceArea:    req.ServiceArea,
			Experience:     req.Experience,
			Certifications: req.Certifications,
		}
	}

	res, err := h.service.Signup(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, res)
}

// Activate handles GET /api/auth/{variant}/activate/{token}
func (h *AuthHandler) Activate(w http.ResponseWriter, r *http.Request) {
	variant, ok := variantParam(w, r)
	if !ok {
		return
	}

	res, err := h.service.Activate(r.Context(), variant, chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// Signin handles POST /api/auth/{variant}/signin
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	variant, ok := variantParam(w, r)
	if !ok {
		return
	}

	var req SigninRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if verr := ValidateRequest(req); verr != nil {
		pkghttp.WriteValidationError(w, toFieldErrors(verr))
		return
	}

	res, err := h.service.Signin(r.Context(), variant, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// ForgotPassword handles POST /api/auth/password/forgot. Every well-formed request gets
// the same status and body whether or not the account exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if verr := ValidateRequest(req); verr != nil {
		pkghttp.WriteValidationError(w, toFieldErrors(verr))
		return
	}

	variant, _ := models.ParseVariant(req.UserType)
	h.service.ForgotPassword(r.Context(), variant, req.Email)

	pkghttp.WriteJSON(w, http.StatusOK, ForgotPasswordAck)
}

// VerifyResetToken handles GET /api/auth/password/reset/verify/{token}
func (h *AuthHandler) VerifyResetToken(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.VerifyResetToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		if errors.Is(err, models.ErrInvalidOrExpired) {
			pkghttp.WriteJSON(w, http.StatusBadRequest, ResetVerifyFailure{
				Valid:   false,
				Error:   pkghttp.CodeInvalidOrExpired,
				Message: "Invalid or expired token",
			})
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, res)
}

// ResetPassword handles POST /api/auth/password/reset
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if verr := ValidateRequest(req); verr != nil {
		pkghttp.WriteValidationError(w, toFieldErrors(verr))
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password updated successfully"})
}

// VerifyPassword handles POST /api/auth/verify-password, used before profile edits
func (h *AuthHandler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	var req VerifyPasswordRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if verr := ValidateRequest(req); verr != nil {
		pkghttp.WriteValidationError(w, toFieldErrors(verr))
		return
	}

	variant, _ := models.ParseVariant(req.UserType)
	valid, err := h.service.VerifyPassword(r.Context(), variant, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, VerifyPasswordResponse{Success: true, IsValid: valid})
}

// writeServiceError maps service sentinels to HTTP responses
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		pkghttp.WriteValidationError(w, toFieldErrors(verr))
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "An account with this email already exists")
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteInvalidCredentials(w)
	case errors.Is(err, models.ErrNotActivated):
		pkghttp.WriteNotActivated(w)
	case errors.Is(err, models.ErrInvalidOrExpired):
		pkghttp.WriteInvalidOrExpired(w)
	case errors.Is(err, models.ErrDeliveryFailed):
		pkghttp.WriteDeliveryFailed(w)
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
	default:
		if !errors.Is(err, models.ErrInternalServer) {
			logger.Error("unmapped service error", slog.Any("error", err))
		}
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// variantParam reads {variant} from the route. Unknown variants get a 404.
func variantParam(w http.ResponseWriter, r *http.Request) (models.Variant, bool) {
	variant, ok := models.ParseVariant(chi.URLParam(r, "variant"))
	if !ok {
		pkghttp.WriteNotFound(w, "Unknown account type")
		return "", false
	}
	return variant, true
}

func trimSignup(req *SignupRequest) {
	for _, s := range []*string{
		&req.Name, &req.Email, &req.Phone, &req.Address,
		&req.BusinessName, &req.BusinessType, &req.LicenseNumber, &req.ServiceArea,
	} {
		*s = strings.TrimSpace(*s)
	}
}
