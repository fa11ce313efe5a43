package models

import (
	"time"
)

// Variant identifies which kind of account a record belongs to
type Variant string

const (
	VariantUser     Variant = "user"
	VariantProvider Variant = "provider"
)

// ParseVariant returns the Variant for s, or false if s names no known variant
func ParseVariant(s string) (Variant, bool) {
	switch Variant(s) {
	case VariantUser, VariantProvider:
		return Variant(s), true
	}
	return "", false
}

func (v Variant) String() string {
	return string(v)
}

// Business types accepted for provider profiles
const DefaultBusinessType = "Equipment Rental"

var BusinessTypes = []string{
	"Equipment Rental",
	"Farm Services",
	"Agricultural Contractor",
	"Equipment Dealer",
	"Other",
}

// IsBusinessType reports whether s is an accepted business type. Empty is accepted
// and later replaced by DefaultBusinessType.
func IsBusinessType(s string) bool {
	if s == "" {
		return true
	}
	for _, bt := range BusinessTypes {
		if bt == s {
			return true
		}
	}
	return false
}

// Account is a user or provider record as far as authentication is concerned
type Account struct {
	ID                   string
	Variant              Variant
	Email                string
	PasswordHash         string
	Name                 string
	Phone                string
	Address              string
	IsActivated          bool
	ActivationToken      *string
	PasswordResetToken   *string
	PasswordResetExpires *time.Time
	IsActive             bool
	Provider             *ProviderProfile // nil for VariantUser
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ProviderProfile holds the business fields only providers carry
type ProviderProfile struct {
	BusinessName   string
	BusinessType   string
	LicenseNumber  string
	ServiceArea    string
	Experience     *int
	Certifications string
}

// ResetValidAt reports whether the stored reset credential matches token and is unexpired at now
func (a *Account) ResetValidAt(token string, now time.Time) bool {
	if a.PasswordResetToken == nil || a.PasswordResetExpires == nil {
		return false
	}
	if *a.PasswordResetToken != token {
		return false
	}
	return a.PasswordResetExpires.After(now)
}
