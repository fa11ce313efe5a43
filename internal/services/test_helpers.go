package services

import (
	"context"
	"sync"
	"time"

	"github.com/agrirent/agrirent/internal/models"
	"github.com/google/uuid"
)

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	GetByEmailFunc           func(ctx context.Context, variant models.Variant, email string) (*models.Account, error)
	GetByIDFunc              func(ctx context.Context, variant models.Variant, id string) (*models.Account, error)
	CreateFunc               func(ctx context.Context, account *models.Account) (*models.Account, error)
	ActivateFunc             func(ctx context.Context, variant models.Variant, email, token string) (*models.Account, error)
	SetPasswordResetFunc     func(ctx context.Context, variant models.Variant, email, token string, expiresAt time.Time) error
	GetByResetTokenFunc      func(ctx context.Context, variant models.Variant, email, token string) (*models.Account, error)
	ConsumePasswordResetFunc func(ctx context.Context, variant models.Variant, email, token, newHash string, now time.Time) error
	ClearExpiredResetsFunc   func(ctx context.Context, now time.Time) (int64, error)
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, variant models.Variant, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, variant, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByID(ctx context.Context, variant models.Variant, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, variant, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountRepository) Activate(ctx context.Context, variant models.Variant, email, token string) (*models.Account, error) {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, variant, email, token)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) SetPasswordReset(ctx context.Context, variant models.Variant, email, token string, expiresAt time.Time) error {
	if m.SetPasswordResetFunc != nil {
		return m.SetPasswordResetFunc(ctx, variant, email, token, expiresAt)
	}
	return models.ErrNotFound
}

func (m *MockAccountRepository) GetByResetToken(ctx context.Context, variant models.Variant, email, token string) (*models.Account, error) {
	if m.GetByResetTokenFunc != nil {
		return m.GetByResetTokenFunc(ctx, variant, email, token)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) ConsumePasswordReset(ctx context.Context, variant models.Variant, email, token, newHash string, now time.Time) error {
	if m.ConsumePasswordResetFunc != nil {
		return m.ConsumePasswordResetFunc(ctx, variant, email, token, newHash, now)
	}
	return models.ErrNotFound
}

func (m *MockAccountRepository) ClearExpiredResets(ctx context.Context, now time.Time) (int64, error) {
	if m.ClearExpiredResetsFunc != nil {
		return m.ClearExpiredResetsFunc(ctx, now)
	}
	return 0, nil
}

// NewMemoryAccountRepository returns a MockAccountRepository whose functions share an
// in-memory store with the same conditional-update semantics as the Postgres repository
func NewMemoryAccountRepository() *MockAccountRepository {
	var mu sync.Mutex
	accounts := map[string]*models.Account{}
	key := func(v models.Variant, email string) string { return v.String() + "|" + email }
	clone := func(a *models.Account) *models.Account {
		c := *a
		if a.Provider != nil {
			p := *a.Provider
			c.Provider = &p
		}
		return &c
	}

	return &MockAccountRepository{
		GetByEmailFunc: func(_ context.Context, v models.Variant, email string) (*models.Account, error) {
			mu.Lock()
			defer mu.Unlock()
			if a, ok := accounts[key(v, email)]; ok {
				return clone(a), nil
			}
			return nil, models.ErrNotFound
		},
		GetByIDFunc: func(_ context.Context, v models.Variant, id string) (*models.Account, error) {
			mu.Lock()
			defer mu.Unlock()
			for _, a := range accounts {
				if a.Variant == v && a.ID == id {
					return clone(a), nil
				}
			}
			return nil, models.ErrNotFound
		},
		CreateFunc: func(_ context.Context, a *models.Account) (*models.Account, error) {
			mu.Lock()
			defer mu.Unlock()
			if _, ok := accounts[key(a.Variant, a.Email)]; ok {
				return nil, models.ErrConflict
			}
			a.ID = uuid.New().String()
			a.CreatedAt = time.Now()
			a.UpdatedAt = a.CreatedAt
			accounts[key(a.Variant, a.Email)] = clone(a)
			return a, nil
		},
		ActivateFunc: func(_ context.Context, v models.Variant, email, token string) (*models.Account, error) {
			mu.Lock()
			defer mu.Unlock()
			a, ok := accounts[key(v, email)]
			if !ok || a.IsActivated || a.ActivationToken == nil || *a.ActivationToken != token {
				return nil, models.ErrNotFound
			}
			a.IsActivated = true
			a.ActivationToken = nil
			return clone(a), nil
		},
		SetPasswordResetFunc: func(_ context.Context, v models.Variant, email, token string, expiresAt time.Time) error {
			mu.Lock()
			defer mu.Unlock()
			a, ok := accounts[key(v, email)]
			if !ok {
				return models.ErrNotFound
			}
			a.PasswordResetToken = &token
			a.PasswordResetExpires = &expiresAt
			return nil
		},
		GetByResetTokenFunc: func(_ context.Context, v models.Variant, email, token string) (*models.Account, error) {
			mu.Lock()
			defer mu.Unlock()
			a, ok := accounts[key(v, email)]
			if !ok || a.PasswordResetToken == nil || *a.PasswordResetToken != token {
				return nil, models.ErrNotFound
			}
			return clone(a), nil
		},
		ConsumePasswordResetFunc: func(_ context.Context, v models.Variant, email, token, newHash string, now time.Time) error {
			mu.Lock()
			defer mu.Unlock()
			a, ok := accounts[key(v, email)]
			if !ok || !a.ResetValidAt(token, now) {
				return models.ErrNotFound
			}
			a.PasswordHash = newHash
			a.PasswordResetToken = nil
			a.PasswordResetExpires = nil
			return nil
		},
		ClearExpiredResetsFunc: func(_ context.Context, now time.Time) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			var n int64
			for _, a := range accounts {
				if a.PasswordResetExpires != nil && !a.PasswordResetExpires.After(now) {
					a.PasswordResetToken = nil
					a.PasswordResetExpires = nil
					n++
				}
			}
			return n, nil
		},
	}
}

// SentEmail is one message captured by MockMailer
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// MockMailer records sent messages. SendFunc, when set, decides the result.
type MockMailer struct {
	SendFunc func(ctx context.Context, to, subject, htmlBody string) error

	mu   sync.Mutex
	sent []SentEmail
}

func (m *MockMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, to, subject, htmlBody); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.sent = append(m.sent, SentEmail{To: to, Subject: subject, Body: htmlBody})
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of every accepted message
func (m *MockMailer) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmail(nil), m.sent...)
}

// MockResetLimiter implements ResetLimiter for testing
type MockResetLimiter struct {
	CheckRequestFunc func(ctx context.Context, variant models.Variant, email string) error
}

func (m *MockResetLimiter) CheckRequest(ctx context.Context, variant models.Variant, email string) error {
	if m.CheckRequestFunc != nil {
		return m.CheckRequestFunc(ctx, variant, email)
	}
	return nil
}
