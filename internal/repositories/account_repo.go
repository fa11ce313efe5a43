package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/agrirent/agrirent/internal/database"
	"github.com/agrirent/agrirent/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepository persists user and provider accounts. Every lookup is scoped by variant.
type AccountRepository struct {
	db *database.DB
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `
	a.id, a.variant, a.email, a.password_hash, a.name, a.phone, a.address,
	a.is_activated, a.activation_token, a.password_reset_token, a.password_reset_expires,
	a.is_active, a.created_at, a.updated_at,
	p.business_name, p.business_type, p.license_number, p.service_area, p.experience, p.certifications`

const accountFrom = `
	FROM accounts a
	LEFT JOIN provider_profiles p ON p.account_id = a.id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAccountRow populates an Account, attaching the provider profile when the join matched
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var a models.Account
	var variant string
	var businessName, businessType, licenseNumber, serviceArea, certifications *string
	var experience *int32

	err := scanner.Scan(
		&a.ID, &variant, &a.Email, &a.PasswordHash, &a.Name, &a.Phone, &a.Address,
		&a.IsActivated, &a.ActivationToken, &a.PasswordResetToken, &a.PasswordResetExpires,
		&a.IsActive, &a.CreatedAt, &a.UpdatedAt,
		&businessName, &businessType, &licenseNumber, &serviceArea, &experience, &certifications,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	a.Variant = models.Variant(variant)

	if businessType != nil {
		p := &models.ProviderProfile{
			BusinessName:   deref(businessName),
			BusinessType:   *businessType,
			LicenseNumber:  deref(licenseNumber),
			ServiceArea:    deref(serviceArea),
			Certifications: deref(certifications),
		}
		if experience != nil {
			years := int(*experience)
			p.Experience = &years
		}
		a.Provider = p
	}

	return &a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *AccountRepository) GetByEmail(ctx context.Context, variant models.Variant, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + accountFrom + `
		WHERE a.variant = $1 AND a.email = $2`

	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, variant.String(), email))
}

func (r *AccountRepository) GetByID(ctx context.Context, variant models.Variant, id string) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	query := `SELECT ` + accountColumns + accountFrom + `
		WHERE a.variant = $1 AND a.id = $2`

	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, variant.String(), id))
}

// Create inserts the account and, for providers, its profile in one transaction.
// A duplicate (variant, email) yields models.ErrConflict.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO accounts (id, variant, email, password_hash, name, phone, address,
				is_activated, activation_token, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			account.ID, account.Variant.String(), account.Email, account.PasswordHash,
			account.Name, account.Phone, account.Address,
			account.IsActivated, account.ActivationToken, account.IsActive,
			account.CreatedAt, account.UpdatedAt,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}

		if account.Variant != models.VariantProvider || account.Provider == nil {
			return nil
		}

		p := account.Provider
		_, err = tx.Exec(ctx, `
			INSERT INTO provider_profiles (account_id, business_name, business_type, license_number,
				service_area, experience, certifications, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			account.ID, p.BusinessName, p.BusinessType, p.LicenseNumber,
			p.ServiceArea, p.Experience, p.Certifications, now, now,
		)
		return database.MapPostgresError(err)
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// Activate flips the account to activated only while token is the stored activation token.
// No match yields models.ErrNotFound.
func (r *AccountRepository) Activate(ctx context.Context, variant models.Variant, email, token string) (*models.Account, error) {
	query := `
		WITH a AS (
			UPDATE accounts
			SET is_activated = TRUE, activation_token = NULL, updated_at = NOW()
			WHERE variant = $1 AND email = $2 AND activation_token = $3 AND is_activated = FALSE
			RETURNING *
		)
		SELECT ` + accountColumns + `
		FROM a
		LEFT JOIN provider_profiles p ON p.account_id = a.id`

	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, variant.String(), email, token))
}

// SetPasswordReset stores a reset token and its expiry, replacing any earlier one
func (r *AccountRepository) SetPasswordReset(ctx context.Context, variant models.Variant, email, token string, expiresAt time.Time) error {
	result, err := r.db.Pool.Exec(ctx, `
		UPDATE accounts
		SET password_reset_token = $3, password_reset_expires = $4, updated_at = NOW()
		WHERE variant = $1 AND email = $2`,
		variant.String(), email, token, expiresAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetByResetToken returns the account whose stored reset token equals token. Expiry is not checked.
func (r *AccountRepository) GetByResetToken(ctx context.Context, variant models.Variant, email, token string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + accountFrom + `
		WHERE a.variant = $1 AND a.email = $2 AND a.password_reset_token = $3`

	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, variant.String(), email, token))
}

// ConsumePasswordReset replaces the password hash and clears the reset credential in one
// statement, only while token matches and is unexpired at now. No match yields models.ErrNotFound.
func (r *AccountRepository) ConsumePasswordReset(ctx context.Context, variant models.Variant, email, token, newHash string, now time.Time) error {
	result, err := r.db.Pool.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $4, password_reset_token = NULL, password_reset_expires = NULL, updated_at = NOW()
		WHERE variant = $1 AND email = $2
			AND password_reset_token = $3
			AND password_reset_expires > $5`,
		variant.String(), email, token, newHash, now,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ClearExpiredResets drops reset credentials that expired at or before now
func (r *AccountRepository) ClearExpiredResets(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `
		UPDATE accounts
		SET password_reset_token = NULL, password_reset_expires = NULL, updated_at = NOW()
		WHERE password_reset_expires IS NOT NULL AND password_reset_expires <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired reset tokens: %w", err)
	}
	return result.RowsAffected(), nil
}
