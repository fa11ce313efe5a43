package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agrirent/agrirent/internal/auth"
	"github.com/agrirent/agrirent/internal/models"
	"github.com/agrirent/agrirent/internal/services"
	pkghttp "github.com/agrirent/agrirent/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext adds session claims to the request context for testing authenticated endpoints
func WithSessionContext(req *http.Request, id, email string, variant models.Variant) *http.Request {
	claims := &models.TokenClaims{
		Type:      models.TokenKindSession,
		Email:     email,
		AccountID: id,
		Variant:   variant,
	}
	return req.WithContext(auth.WithSession(req.Context(), claims))
}

// WithURLParams sets chi route parameters on a request that bypasses the router
func WithURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	SignupFunc           func(ctx context.Context, in services.SignupInput) (*services.SignupResult, error)
	ActivateFunc         func(ctx context.Context, variant models.Variant, token string) (*services.ActivationResult, error)
	SigninFunc           func(ctx context.Context, variant models.Variant, email, password string) (*services.SigninResult, error)
	ForgotPasswordFunc   func(ctx context.Context, variant models.Variant, email string)
	VerifyResetTokenFunc func(ctx context.Context, token string) (*services.ResetVerifyResult, error)
	ResetPasswordFunc    func(ctx context.Context, token, newPassword string) error
	VerifyPasswordFunc   func(ctx context.Context, variant models.Variant, email, password string) (bool, error)
	GetProfileFunc       func(ctx context.Context, variant models.Variant, id string) (*services.AccountResponse, error)
}

func (m *MockAccountService) Signup(ctx context.Context, in services.SignupInput) (*services.SignupResult, error) {
	if m.SignupFunc == nil {
		return nil, models.ErrConflict
	}
	return m.SignupFunc(ctx, in)
}

func (m *MockAccountService) Activate(ctx context.Context, variant models.Variant, token string) (*services.ActivationResult, error) {
	if m.ActivateFunc == nil {
		return nil, models.ErrInvalidOrExpired
	}
	return m.ActivateFunc(ctx, variant, token)
}

func (m *MockAccountService) Signin(ctx context.Context, variant models.Variant, email, password string) (*services.SigninResult, error) {
	if m.SigninFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.SigninFunc(ctx, variant, email, password)
}

func (m *MockAccountService) ForgotPassword(ctx context.Context, variant models.Variant, email string) {
	if m.ForgotPasswordFunc != nil {
		m.ForgotPasswordFunc(ctx, variant, email)
	}
}

func (m *MockAccountService) VerifyResetToken(ctx context.Context, token string) (*services.ResetVerifyResult, error) {
	if m.VerifyResetTokenFunc == nil {
		return nil, models.ErrInvalidOrExpired
	}
	return m.VerifyResetTokenFunc(ctx, token)
}

func (m *MockAccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if m.ResetPasswordFunc == nil {
		return models.ErrInvalidOrExpired
	}
	return m.ResetPasswordFunc(ctx, token, newPassword)
}

func (m *MockAccountService) VerifyPassword(ctx context.Context, variant models.Variant, email, password string) (bool, error) {
	if m.VerifyPasswordFunc == nil {
		return false, models.ErrNotFound
	}
	return m.VerifyPasswordFunc(ctx, variant, email, password)
}

func (m *MockAccountService) GetProfile(ctx context.Context, variant models.Variant, id string) (*services.AccountResponse, error) {
	if m.GetProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetProfileFunc(ctx, variant, id)
}
