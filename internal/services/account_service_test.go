package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agrirent/agrirent/internal/auth"
	"github.com/agrirent/agrirent/internal/models"
	pkgauth "github.com/agrirent/agrirent/pkg/auth"
	pkglogger "github.com/agrirent/agrirent/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type serviceFixture struct {
	svc    *AccountService
	repo   *MockAccountRepository
	mailer *MockMailer
	tm     *auth.TokenManager
	clock  *testClock
}

func newServiceFixture(t *testing.T, mutate func(*AccountServiceOptions)) *serviceFixture {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tm := auth.NewTokenManager(auth.TokenConfig{
		SessionSecret:    "session-secret-0123456789",
		ActivationSecret: "activation-secret-0123456789",
		ResetSecret:      "reset-secret-0123456789",
		SessionTTL:       24 * time.Hour,
		ResetTTL:         time.Hour,
		Now:              clock.Now,
	})
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	repo := NewMemoryAccountRepository()
	mailer := &MockMailer{}

	opts := AccountServiceOptions{
		Links:       EmailLinks{Frontend: "http://localhost:3000"},
		SendTimeout: time.Second,
		Now:         clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}

	svc := NewAccountService(repo, tm, pkgauth.NewPasswordHasher(bcrypt.MinCost), mailer,
		logger, pkglogger.NewAuditLogger(logger), opts)
	t.Cleanup(func() { _ = svc.Wait() })

	return &serviceFixture{svc: svc, repo: repo, mailer: mailer, tm: tm, clock: clock}
}

func userSignup(email, password string) SignupInput {
	return SignupInput{
		Variant:  models.VariantUser,
		Email:    email,
		Password: password,
		Name:     "Jane Farmer",
		Phone:    "5551234567",
		Address:  "12 Barn Lane",
	}
}

// activate signs up and activates an account, returning it as stored
func (f *serviceFixture) activate(t *testing.T, in SignupInput) *models.Account {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, in)
	require.NoError(t, err)

	stored, err := f.repo.GetByEmail(ctx, in.Variant, NormalizeEmail(in.Email))
	require.NoError(t, err)
	require.NotNil(t, stored.ActivationToken)

	_, err = f.svc.Activate(ctx, in.Variant, *stored.ActivationToken)
	require.NoError(t, err)

	stored, err = f.repo.GetByEmail(ctx, in.Variant, NormalizeEmail(in.Email))
	require.NoError(t, err)
	return stored
}

var resetLinkPattern = regexp.MustCompile(`/reset-password/([A-Za-z0-9._-]+)`)

func resetTokenFromEmail(t *testing.T, mail SentEmail) string {
	t.Helper()
	m := resetLinkPattern.FindStringSubmatch(mail.Body)
	require.NotNil(t, m, "reset link missing from email body")
	return m[1]
}

func TestSignup_CreatesPendingAccount(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Signup(ctx, userSignup("  Jane@Example.COM ", "secret1"))
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", res.Email)
	assert.NotEmpty(t, res.Message)

	stored, err := f.repo.GetByEmail(ctx, models.VariantUser, "jane@example.com")
	require.NoError(t, err)
	assert.False(t, stored.IsActivated)
	assert.True(t, stored.IsActive)
	assert.NotEqual(t, "secret1", stored.PasswordHash)
	require.NotNil(t, stored.ActivationToken)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "jane@example.com", sent[0].To)
	assert.Contains(t, sent[0].Body, "http://localhost:3000/?activate="+*stored.ActivationToken)
	assert.Contains(t, sent[0].Body, "Jane Farmer")
}

func TestSignup_DuplicateEmailConflicts(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, userSignup("dup@example.com", "secret1"))
	require.NoError(t, err)

	_, err = f.svc.Signup(ctx, userSignup("DUP@example.com", "another1"))
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Len(t, f.mailer.Sent(), 1, "no email for the rejected signup")

	provider := userSignup("dup@example.com", "secret1")
	provider.Variant = models.VariantProvider
	_, err = f.svc.Signup(ctx, provider)
	assert.NoError(t, err, "uniqueness is per variant")
}

func TestSignup_CreateRaceMapsToConflict(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.repo.CreateFunc = func(ctx context.Context, a *models.Account) (*models.Account, error) {
		return nil, models.ErrConflict
	}

	_, err := f.svc.Signup(context.Background(), userSignup("race@example.com", "secret1"))
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestSignup_DeliveryFailureStoresNothing(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.mailer.SendFunc = func(ctx context.Context, to, subject, body string) error {
		return errors.New("smtp unavailable")
	}
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, userSignup("lost@example.com", "secret1"))
	assert.ErrorIs(t, err, models.ErrDeliveryFailed)

	_, err = f.repo.GetByEmail(ctx, models.VariantUser, "lost@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSignup_DeliveryHonoursTimeout(t *testing.T) {
	f := newServiceFixture(t, func(o *AccountServiceOptions) { o.SendTimeout = 20 * time.Millisecond })
	f.mailer.SendFunc = func(ctx context.Context, to, subject, body string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := f.svc.Signup(context.Background(), userSignup("slow@example.com", "secret1"))
	assert.ErrorIs(t, err, models.ErrDeliveryFailed)
}

func TestSignup_ProviderProfile(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	in := userSignup("shop@example.com", "secret1")
	in.Variant = models.VariantProvider
	in.Provider = &models.ProviderProfile{BusinessName: "Tractor Town"}

	_, err := f.svc.Signup(ctx, in)
	require.NoError(t, err)

	stored, err := f.repo.GetByEmail(ctx, models.VariantProvider, "shop@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.Provider)
	assert.Equal(t, models.DefaultBusinessType, stored.Provider.BusinessType)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "Tractor Town")
}

func TestSignup_RejectsShortPassword(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.svc.Signup(context.Background(), userSignup("a@example.com", "12345"))
	assert.ErrorIs(t, err, models.ErrValidation)

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Fields[0].Field)
	assert.Empty(t, f.mailer.Sent())
}

func TestSignin_RequiresActivation(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, userSignup("new@example.com", "secret1"))
	require.NoError(t, err)

	_, err = f.svc.Signin(ctx, models.VariantUser, "new@example.com", "secret1")
	assert.ErrorIs(t, err, models.ErrNotActivated)

	_, err = f.svc.Signin(ctx, models.VariantUser, "new@example.com", "wrong-secret")
	assert.ErrorIs(t, err, models.ErrNotActivated, "activation is checked before the password")
}

func TestSignupActivateSignin_RoundTrip(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	stored := f.activate(t, userSignup("round@example.com", "secret1"))
	assert.True(t, stored.IsActivated)
	assert.Nil(t, stored.ActivationToken)

	res, err := f.svc.Signin(ctx, models.VariantUser, "Round@Example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "Login successful", res.Message)
	assert.Equal(t, stored.ID, res.User.ID)
	assert.Equal(t, models.VariantUser, res.User.UserType)

	claims, err := f.tm.Verify(models.TokenKindSession, res.Token)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, claims.AccountID)
	assert.Equal(t, "round@example.com", claims.Email)
	assert.Equal(t, models.VariantUser, claims.Variant)
}

func TestActivate_SingleUse(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, userSignup("once@example.com", "secret1"))
	require.NoError(t, err)
	stored, err := f.repo.GetByEmail(ctx, models.VariantUser, "once@example.com")
	require.NoError(t, err)
	token := *stored.ActivationToken

	res, err := f.svc.Activate(ctx, models.VariantUser, token)
	require.NoError(t, err)
	assert.Equal(t, "once@example.com", res.Email)
	assert.Equal(t, models.VariantUser, res.UserType)
	assert.Equal(t, stored.ID, res.ID)

	_, err = f.svc.Activate(ctx, models.VariantUser, token)
	assert.ErrorIs(t, err, models.ErrInvalidOrExpired)
}

func TestActivate_Failures(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, userSignup("fail@example.com", "secret1"))
	require.NoError(t, err)
	stored, err := f.repo.GetByEmail(ctx, models.VariantUser, "fail@example.com")
	require.NoError(t, err)

	_, err = f.svc.Activate(ctx, models.VariantUser, "not-a-token")
	assert.ErrorIs(t, err, models.ErrInvalidOrExpired)

	_, err = f.svc.Activate(ctx, models.VariantProvider, *stored.ActivationToken)
	assert.ErrorIs(t, err, models.ErrInvalidOrExpired, "token bound to another variant")

	// validly signed but superseded token
	stale, err := f.tm.IssueActivation("fail@example.com", models.VariantUser)
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, models.VariantUser, stale)
	assert.ErrorIs(t, err, models.ErrInvalidOrExpired)
}

func TestSignin_Failures(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	f.activate(t, userSignup("known@example.com", "secret1"))

	_, err := f.svc.Signin(ctx, models.VariantUser, "unknown@example.com", "secret1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.Signin(ctx, models.VariantUser, "known@example.com", "wrong1")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = f.svc.Signin(ctx, models.VariantProvider, "known@example.com", "secret1")
	assert.ErrorIs(t, err, models.ErrNotFound, "variants do not share accounts")
}

func TestForgotPassword_UnknownEmailSendsNothing(t *testing.T) {
	f := newServiceFixture(t, nil)

	f.svc.ForgotPassword(context.Background(), models.VariantUser, "ghost@example.com")
	require.NoError(t, f.svc.Wait())

	assert.Empty(t, f.mailer.Sent())
}

func TestPasswordReset_RoundTrip(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	f.activate(t, userSignup("reset@example.com", "secret1"))

	f.svc.ForgotPassword(ctx, models.VariantUser, "RESET@example.com")
	require.NoError(t, f.svc.Wait())

	sent := f.mailer.Sent()
	require.Len(t, sent, 2)
	mail := sent[1]
	assert.Equal(t, "reset@example.com", mail.To)
	assert.Contains(t, mail.Body, "http://localhost:3000/reset-password/")
	assert.Contains(t, mail.Body, "expire in 1 hour")
	token := resetTokenFromEmail(t, mail)

	verify, err := f.svc.VerifyResetToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, verify.Valid)
	assert.Equal(t, models.VariantUser, verify.UserType)

	require.NoError(t, f.svc.ResetPassword(ctx, token, "newsecret"))

	_, err = f.svc.Signin(ctx, models.VariantUser, "reset@example.com", "secret1")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	_, err = f.svc.Signin(ctx, models.VariantUser, "reset@example.com", "newsecret")
	assert.NoError(t, err)

	_, err = f.svc.VerifyResetToken(ctx, token)
	assert.ErrorIs(t, err, models.ErrInvalidOrExpired, "consumed token no longer verifies")
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "third-secret"), models.ErrInvalidOrExpired)
}

func TestPasswordReset_Expiry(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	f.activate(t, userSignup("late@example.com", "secret1"))

	f.svc.ForgotPassword(ctx, models.VariantUser, "late@example.com")
	require.NoError(t, f.svc.Wait())
	token := resetTokenFromEmail(t, f.mailer.Sent()[1])

	f.clock.Advance(61 * time.Minute)

	_, err := f.svc.VerifyResetToken(ctx, token)
	assert.ErrorIs(t, err, models.ErrInvalidOrExpired)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "newsecret"), models.ErrInvalidOrExpired)

	_, err = f.svc.Signin(ctx, models.VariantUser, "late@example.com", "secret1")
	assert.NoError(t, err, "password unchanged")
}

func TestPasswordReset_StoredExpiryIsAuthoritative(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	f.activate(t, userSignup("stored@example.com", "secret1"))

	f.svc.ForgotPassword(ctx, models.VariantUser, "stored@example.com")
	require.NoError(t, f.svc.Wait())
	token := resetTokenFromEmail(t, f.mailer.Sent()[1])

	// signature still valid, stored expiry already passed
	require.NoError(t, f.repo.SetPasswordReset(ctx, models.VariantUser, "stored@example.com", token, f.clock.Now().Add(-time.Second)))

	_, err := f.svc.VerifyResetToken(ctx, token)
	assert.ErrorIs(t, err, models.ErrInvalidOrExpired)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "newsecret"), models.ErrInvalidOrExpired)
}

func TestPasswordReset_NewRequestSupersedesOld(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	f.activate(t, userSignup("twice@example.com", "secret1"))

	f.svc.ForgotPassword(ctx, models.VariantUser, "twice@example.com")
	require.NoError(t, f.svc.Wait())
	f.svc.ForgotPassword(ctx, models.VariantUser, "twice@example.com")
	require.NoError(t, f.svc.Wait())

	sent := f.mailer.Sent()
	require.Len(t, sent, 3)
	first, second := resetTokenFromEmail(t, sent[1]), resetTokenFromEmail(t, sent[2])
	require.NotEqual(t, first, second)

	_, err := f.svc.VerifyResetToken(ctx, first)
	assert.ErrorIs(t, err, models.ErrInvalidOrExpired)
	_, err = f.svc.VerifyResetToken(ctx, second)
	assert.NoError(t, err)
}

func TestResetPassword_RejectsShortPassword(t *testing.T) {
	f := newServiceFixture(t, nil)

	token, _, err := f.tm.IssueReset("jane@example.com", models.VariantUser)
	require.NoError(t, err)

	err = f.svc.ResetPassword(context.Background(), token, "123")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestResetPassword_BadTokenWinsOverBadPassword(t *testing.T) {
	f := newServiceFixture(t, nil)

	err := f.svc.ResetPassword(context.Background(), "anything", "123")
	assert.ErrorIs(t, err, models.ErrInvalidOrExpired)
	assert.NotErrorIs(t, err, models.ErrValidation)
}

func TestForgotPassword_DeliveryFailureIsSilent(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	f.activate(t, userSignup("quiet@example.com", "secret1"))

	f.mailer.SendFunc = func(ctx context.Context, to, subject, body string) error {
		return errors.New("provider down")
	}
	f.svc.ForgotPassword(ctx, models.VariantUser, "quiet@example.com")
	require.NoError(t, f.svc.Wait())

	stored, err := f.repo.GetByEmail(ctx, models.VariantUser, "quiet@example.com")
	require.NoError(t, err)
	assert.NotNil(t, stored.PasswordResetToken, "token is stored before delivery is attempted")
}

func TestForgotPassword_DeliveryOutlivesRequestContext(t *testing.T) {
	f := newServiceFixture(t, nil)
	f.activate(t, userSignup("detached@example.com", "secret1"))

	ctx, cancel := context.WithCancel(context.Background())
	f.mailer.SendFunc = func(sendCtx context.Context, to, subject, body string) error {
		cancel()
		return sendCtx.Err()
	}
	f.svc.ForgotPassword(ctx, models.VariantUser, "detached@example.com")
	require.NoError(t, f.svc.Wait())

	assert.Len(t, f.mailer.Sent(), 2)
}

func TestForgotPassword_RateLimited(t *testing.T) {
	limiter := &MockResetLimiter{}
	f := newServiceFixture(t, func(o *AccountServiceOptions) { o.Limiter = limiter })
	ctx := context.Background()
	f.activate(t, userSignup("busy@example.com", "secret1"))

	limiter.CheckRequestFunc = func(ctx context.Context, v models.Variant, email string) error {
		return ErrResetRateLimited
	}
	f.svc.ForgotPassword(ctx, models.VariantUser, "busy@example.com")
	require.NoError(t, f.svc.Wait())
	assert.Len(t, f.mailer.Sent(), 1, "only the activation email")

	limiter.CheckRequestFunc = func(ctx context.Context, v models.Variant, email string) error {
		return ErrResetRedisUnavailable
	}
	f.svc.ForgotPassword(ctx, models.VariantUser, "busy@example.com")
	require.NoError(t, f.svc.Wait())
	assert.Len(t, f.mailer.Sent(), 2, "limiter outage does not block resets")
}

func TestForgotPassword_DropsWhenSaturated(t *testing.T) {
	f := newServiceFixture(t, func(o *AccountServiceOptions) { o.MaxInFlight = 1 })
	ctx := context.Background()
	f.activate(t, userSignup("first@example.com", "secret1"))
	f.activate(t, userSignup("second@example.com", "secret1"))

	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	f.mailer.SendFunc = func(ctx context.Context, to, subject, body string) error {
		entered <- struct{}{}
		<-release
		return nil
	}

	f.svc.ForgotPassword(ctx, models.VariantUser, "first@example.com")
	<-entered
	f.svc.ForgotPassword(ctx, models.VariantUser, "second@example.com")
	close(release)
	require.NoError(t, f.svc.Wait())

	var resets []string
	for _, m := range f.mailer.Sent() {
		if strings.Contains(m.Body, "reset-password") {
			resets = append(resets, m.To)
		}
	}
	assert.Equal(t, []string{"first@example.com"}, resets)
}

func TestForgotPassword_PadsResponseTime(t *testing.T) {
	f := newServiceFixture(t, func(o *AccountServiceOptions) {
		o.Timing = auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 30})
	})

	start := time.Now()
	f.svc.ForgotPassword(context.Background(), models.VariantUser, "ghost@example.com")

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestVerifyPassword(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	f.activate(t, userSignup("check@example.com", "secret1"))

	ok, err := f.svc.VerifyPassword(ctx, models.VariantUser, "check@example.com", "secret1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.VerifyPassword(ctx, models.VariantUser, "check@example.com", "nope-nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.VerifyPassword(ctx, models.VariantUser, "missing@example.com", "secret1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetProfile(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	in := userSignup("pro@example.com", "secret1")
	in.Variant = models.VariantProvider
	years := 4
	in.Provider = &models.ProviderProfile{BusinessName: "Hay Day", BusinessType: "Farm Services", Experience: &years}
	stored := f.activate(t, in)

	profile, err := f.svc.GetProfile(ctx, models.VariantProvider, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hay Day", profile.BusinessName)
	assert.Equal(t, "Farm Services", profile.BusinessType)
	assert.Equal(t, &years, profile.Experience)
	assert.True(t, profile.IsActivated)

	_, err = f.svc.GetProfile(ctx, models.VariantUser, stored.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestClearExpiredResets(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	f.activate(t, userSignup("sweep@example.com", "secret1"))

	f.svc.ForgotPassword(ctx, models.VariantUser, "sweep@example.com")
	require.NoError(t, f.svc.Wait())

	n, err := f.svc.ClearExpiredResets(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(2 * time.Hour)
	n, err = f.svc.ClearExpiredResets(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRepositoryErrorsBecomeInternal(t *testing.T) {
	f := newServiceFixture(t, nil)
	boom := errors.New("connection refused")
	f.repo.GetByEmailFunc = func(ctx context.Context, v models.Variant, email string) (*models.Account, error) {
		return nil, boom
	}
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, userSignup("x@example.com", "secret1"))
	assert.ErrorIs(t, err, models.ErrInternalServer)
	_, err = f.svc.Signin(ctx, models.VariantUser, "x@example.com", "secret1")
	assert.ErrorIs(t, err, models.ErrInternalServer)

	// forgot-password swallows everything
	f.svc.ForgotPassword(ctx, models.VariantUser, "x@example.com")
}
