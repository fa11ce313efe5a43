package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/agrirent/agrirent/internal/auth"
	"github.com/agrirent/agrirent/internal/models"
	pkgauth "github.com/agrirent/agrirent/pkg/auth"
	pkglogger "github.com/agrirent/agrirent/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// AccountRepository defines the persistence operations of the account lifecycle
type AccountRepository interface {
	GetByEmail(ctx context.Context, variant models.Variant, email string) (*models.Account, error)
	GetByID(ctx context.Context, variant models.Variant, id string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	Activate(ctx context.Context, variant models.Variant, email, token string) (*models.Account, error)
	SetPasswordReset(ctx context.Context, variant models.Variant, email, token string, expiresAt time.Time) error
	GetByResetToken(ctx context.Context, variant models.Variant, email, token string) (*models.Account, error)
	ConsumePasswordReset(ctx context.Context, variant models.Variant, email, token, newHash string, now time.Time) error
	ClearExpiredResets(ctx context.Context, now time.Time) (int64, error)
}

const (
	DefaultSendTimeout = 10 * time.Second
	DefaultMaxInFlight = 32
)

// AccountServiceOptions carries the optional collaborators and tunables of AccountService
type AccountServiceOptions struct {
	Links       EmailLinks
	SendTimeout time.Duration
	MaxInFlight int               // concurrent background reset deliveries
	Limiter     ResetLimiter      // nil disables forgot-password throttling
	Timing      *auth.TimingDelay // nil disables response padding
	Now         func() time.Time
}

// AccountService implements signup, activation, signin and password reset for both variants
type AccountService struct {
	repo        AccountRepository
	tm          *auth.TokenManager
	hasher      *pkgauth.PasswordHasher
	mailer      Mailer
	limiter     ResetLimiter
	timing      *auth.TimingDelay
	links       EmailLinks
	sendTimeout time.Duration
	deliveries  *errgroup.Group
	now         func() time.Time
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewAccountService(
	repo AccountRepository,
	tm *auth.TokenManager,
	hasher *pkgauth.PasswordHasher,
	mailer Mailer,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	opts AccountServiceOptions,
) *AccountService {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	deliveries := &errgroup.Group{}
	deliveries.SetLimit(opts.MaxInFlight)

	return &AccountService{
		repo:        repo,
		tm:          tm,
		hasher:      hasher,
		mailer:      mailer,
		limiter:     opts.Limiter,
		timing:      opts.Timing,
		links:       opts.Links,
		sendTimeout: opts.SendTimeout,
		deliveries:  deliveries,
		now:         opts.Now,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// SignupInput is a validated signup request
type SignupInput struct {
	Variant  models.Variant
	Email    string
	Password string
	Name     string
	Phone    string
	Address  string
	Provider *models.ProviderProfile // ignored for VariantUser
}

type SignupResult struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

type ActivationResult struct {
	Message  string         `json:"message"`
	Email    string         `json:"email"`
	UserType models.Variant `json:"userType"`
	ID       string         `json:"id"`
}

// AccountResponse is the public view of an account. The password hash and tokens never appear here.
type AccountResponse struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Email          string         `json:"email"`
	Phone          string         `json:"phone"`
	Address        string         `json:"address"`
	BusinessName   string         `json:"businessName,omitempty"`
	BusinessType   string         `json:"businessType,omitempty"`
	LicenseNumber  string         `json:"licenseNumber,omitempty"`
	ServiceArea    string         `json:"serviceArea,omitempty"`
	Experience     *int           `json:"experience,omitempty"`
	Certifications string         `json:"certifications,omitempty"`
	UserType       models.Variant `json:"userType"`
	IsActivated    bool           `json:"isActivated"`
	CreatedAt      string         `json:"createdAt"`
}

type SigninResult struct {
	Token   string           `json:"token"`
	User    *AccountResponse `json:"user"`
	Message string           `json:"message"`
}

type ResetVerifyResult struct {
	Valid    bool           `json:"valid"`
	UserType models.Variant `json:"userType"`
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup registers a pending account. The record is stored only after the activation
// email was accepted by the mailer.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return nil, models.NewValidationError("email", "is required")
	}
	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError("password", err.Error())
	}

	_, err := s.repo.GetByEmail(ctx, in.Variant, email)
	if err == nil {
		s.logger.Info("signup rejected: account exists",
			slog.String("variant", in.Variant.String()),
			slog.String("email", pkglogger.SanitizedEmail(email)))
		s.audit(ctx, pkglogger.EventSignup, in.Variant, "", email, false, "already_exists")
		return nil, models.ErrConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to look up account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	token, err := s.tm.IssueActivation(email, in.Variant)
	if err != nil {
		s.logger.Error("failed to issue activation token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	account := &models.Account{
		Variant:         in.Variant,
		Email:           email,
		PasswordHash:    hash,
		Name:            strings.TrimSpace(in.Name),
		Phone:           strings.TrimSpace(in.Phone),
		Address:         strings.TrimSpace(in.Address),
		ActivationToken: &token,
		IsActive:        true,
	}
	if in.Variant == models.VariantProvider {
		profile := models.ProviderProfile{}
		if in.Provider != nil {
			profile = *in.Provider
		}
		if profile.BusinessType == "" {
			profile.BusinessType = models.DefaultBusinessType
		}
		account.Provider = &profile
	}

	subject, body, err := ActivationEmail(account, s.links.ActivationURL(in.Variant, token))
	if err != nil {
		s.logger.Error("failed to render activation email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	err = s.mailer.Send(sendCtx, email, subject, body)
	cancel()
	if err != nil {
		s.logger.Warn("activation email delivery failed",
			slog.String("variant", in.Variant.String()),
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		s.audit(ctx, pkglogger.EventSignup, in.Variant, "", email, false, "delivery_failed")
		return nil, models.ErrDeliveryFailed
	}

	created, err := s.repo.Create(ctx, account)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.audit(ctx, pkglogger.EventSignup, in.Variant, "", email, false, "already_exists")
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("account registered", slog.String("variant", in.Variant.String()), slog.String("account_id", created.ID))
	s.audit(ctx, pkglogger.EventSignup, in.Variant, created.ID, email, true, "")

	return &SignupResult{
		Message: "Registration successful! Please check your email to activate your account.",
		Email:   email,
	}, nil
}

// Activate consumes an activation token. Any failure is models.ErrInvalidOrExpired.
func (s *AccountService) Activate(ctx context.Context, variant models.Variant, token string) (*ActivationResult, error) {
	claims, err := s.tm.Verify(models.TokenKindActivation, token)
	if err != nil {
		s.audit(ctx, pkglogger.EventActivation, variant, "", "", false, "invalid_token")
		return nil, models.ErrInvalidOrExpired
	}
	if claims.Variant != "" && claims.Variant != variant {
		s.audit(ctx, pkglogger.EventActivation, variant, "", claims.Email, false, "variant_mismatch")
		return nil, models.ErrInvalidOrExpired
	}

	account, err := s.repo.Activate(ctx, variant, claims.Email, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.audit(ctx, pkglogger.EventActivation, variant, "", claims.Email, false, "token_not_current")
			return nil, models.ErrInvalidOrExpired
		}
		s.logger.Error("failed to activate account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit(ctx, pkglogger.EventActivation, variant, account.ID, account.Email, true, "")

	return &ActivationResult{
		Message:  "Account activated successfully! You can now sign in.",
		Email:    account.Email,
		UserType: account.Variant,
		ID:       account.ID,
	}, nil
}

// Signin checks credentials and returns a session token.
// Returns models.ErrNotFound, models.ErrNotActivated or models.ErrInvalidCredentials on refusal.
func (s *AccountService) Signin(ctx context.Context, variant models.Variant, email, password string) (*SigninResult, error) {
	start := time.Now()
	email = NormalizeEmail(email)

	account, err := s.repo.GetByEmail(ctx, variant, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.audit(ctx, pkglogger.EventSignin, variant, "", email, false, "not_found")
			s.timing.WaitFrom(start, false)
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to look up account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !account.IsActivated {
		s.audit(ctx, pkglogger.EventSignin, variant, account.ID, email, false, "not_activated")
		s.timing.WaitFrom(start, false)
		return nil, models.ErrNotActivated
	}

	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		if !errors.Is(err, pkgauth.ErrPasswordMismatch) {
			s.logger.Error("stored password hash unusable", slog.String("account_id", account.ID), slog.Any("error", err))
		}
		s.audit(ctx, pkglogger.EventSignin, variant, account.ID, email, false, "invalid_credentials")
		s.timing.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	token, err := s.tm.IssueSession(account)
	if err != nil {
		s.logger.Error("failed to issue session token", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit(ctx, pkglogger.EventSignin, variant, account.ID, email, true, "")

	return &SigninResult{
		Token:   token,
		User:    NewAccountResponse(account),
		Message: "Login successful",
	}, nil
}

// ForgotPassword starts a reset when the account exists and does nothing visible otherwise.
// It never reports an outcome. Delivery happens in the background.
func (s *AccountService) ForgotPassword(ctx context.Context, variant models.Variant, email string) {
	start := time.Now()
	defer s.timing.WaitFrom(start, false)

	email = NormalizeEmail(email)
	if email == "" {
		return
	}

	if s.limiter != nil {
		if err := s.limiter.CheckRequest(ctx, variant, email); err != nil {
			if errors.Is(err, ErrResetRateLimited) {
				s.audit(ctx, pkglogger.EventResetRequested, variant, "", email, false, "rate_limited")
				return
			}
			s.logger.Warn("reset limiter unavailable, continuing", slog.Any("error", err))
		}
	}

	account, err := s.repo.GetByEmail(ctx, variant, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.audit(ctx, pkglogger.EventResetRequested, variant, "", email, false, "not_found")
			return
		}
		s.logger.Error("failed to look up account", slog.Any("error", err))
		return
	}

	token, expiresAt, err := s.tm.IssueReset(email, variant)
	if err != nil {
		s.logger.Error("failed to issue reset token", slog.Any("error", err))
		return
	}

	if err := s.repo.SetPasswordReset(ctx, variant, email, token, expiresAt); err != nil {
		s.logger.Error("failed to store reset token", slog.String("account_id", account.ID), slog.Any("error", err))
		return
	}

	subject, body, err := ResetEmail(account, s.links.ResetURL(variant, token), s.tm.ResetTTL())
	if err != nil {
		s.logger.Error("failed to render reset email", slog.Any("error", err))
		return
	}

	s.audit(ctx, pkglogger.EventResetRequested, variant, account.ID, email, true, "")

	// The request context ends with the response; delivery gets its own deadline
	deliveryCtx := context.WithoutCancel(ctx)
	accountID := account.ID
	started := s.deliveries.TryGo(func() error {
		sendCtx, cancel := context.WithTimeout(deliveryCtx, s.sendTimeout)
		defer cancel()

		if err := s.mailer.Send(sendCtx, email, subject, body); err != nil {
			s.logger.Warn("reset email delivery failed", slog.String("account_id", accountID), slog.Any("error", err))
			s.audit(deliveryCtx, pkglogger.EventResetDelivered, variant, accountID, email, false, "delivery_failed")
			return nil
		}
		s.audit(deliveryCtx, pkglogger.EventResetDelivered, variant, accountID, email, true, "")
		return nil
	})
	if !started {
		s.logger.Warn("reset email dropped: too many deliveries in flight", slog.String("account_id", accountID))
	}
}

// VerifyResetToken reports whether token would currently be accepted by ResetPassword
func (s *AccountService) VerifyResetToken(ctx context.Context, token string) (*ResetVerifyResult, error) {
	claims, err := s.tm.Verify(models.TokenKindReset, token)
	if err != nil {
		return nil, models.ErrInvalidOrExpired
	}

	account, err := s.repo.GetByResetToken(ctx, claims.Variant, claims.Email, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidOrExpired
		}
		s.logger.Error("failed to look up reset token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !account.ResetValidAt(token, s.now()) {
		return nil, models.ErrInvalidOrExpired
	}

	return &ResetVerifyResult{Valid: true, UserType: account.Variant}, nil
}

// ResetPassword replaces the password and clears the reset credential atomically
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.tm.Verify(models.TokenKindReset, token)
	if err != nil {
		s.audit(ctx, pkglogger.EventPasswordReset, "", "", "", false, "invalid_token")
		return models.ErrInvalidOrExpired
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return models.NewValidationError("password", err.Error())
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	err = s.repo.ConsumePasswordReset(ctx, claims.Variant, claims.Email, token, hash, s.now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.audit(ctx, pkglogger.EventPasswordReset, claims.Variant, "", claims.Email, false, "token_not_current")
			return models.ErrInvalidOrExpired
		}
		s.logger.Error("failed to reset password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit(ctx, pkglogger.EventPasswordReset, claims.Variant, "", claims.Email, true, "")
	return nil
}

// VerifyPassword checks password against the stored hash without signing in
func (s *AccountService) VerifyPassword(ctx context.Context, variant models.Variant, email, password string) (bool, error) {
	email = NormalizeEmail(email)

	account, err := s.repo.GetByEmail(ctx, variant, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, models.ErrNotFound
		}
		s.logger.Error("failed to look up account", slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	err = s.hasher.Compare(account.PasswordHash, password)
	if err != nil && !errors.Is(err, pkgauth.ErrPasswordMismatch) {
		s.logger.Error("stored password hash unusable", slog.String("account_id", account.ID), slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	s.audit(ctx, pkglogger.EventPasswordChecked, variant, account.ID, email, err == nil, "")
	return err == nil, nil
}

// GetProfile returns the public view of the account a session belongs to
func (s *AccountService) GetProfile(ctx context.Context, variant models.Variant, id string) (*AccountResponse, error) {
	account, err := s.repo.GetByID(ctx, variant, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get account", slog.String("account_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return NewAccountResponse(account), nil
}

// ClearExpiredResets removes reset credentials whose expiry has passed
func (s *AccountService) ClearExpiredResets(ctx context.Context) (int64, error) {
	return s.repo.ClearExpiredResets(ctx, s.now())
}

// Wait blocks until every background delivery has finished
func (s *AccountService) Wait() error {
	return s.deliveries.Wait()
}

func (s *AccountService) audit(ctx context.Context, event string, variant models.Variant, accountID, email string, success bool, reason string) {
	if s.auditLogger == nil {
		return
	}
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:     event,
		Variant:       variant.String(),
		AccountID:     accountID,
		Email:         email,
		Success:       success,
		FailureReason: reason,
	})
}

func NewAccountResponse(a *models.Account) *AccountResponse {
	resp := &AccountResponse{
		ID:          a.ID,
		Name:        a.Name,
		Email:       a.Email,
		Phone:       a.Phone,
		Address:     a.Address,
		UserType:    a.Variant,
		IsActivated: a.IsActivated,
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
	if p := a.Provider; p != nil {
		resp.BusinessName = p.BusinessName
		resp.BusinessType = p.BusinessType
		resp.LicenseNumber = p.LicenseNumber
		resp.ServiceArea = p.ServiceArea
		resp.Experience = p.Experience
		resp.Certifications = p.Certifications
	}
	return resp
}
