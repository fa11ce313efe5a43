package services

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/agrirent/agrirent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailLinks(t *testing.T) {
	links := EmailLinks{
		Frontend:         "https://app.example.com/",
		ProviderFrontend: "https://providers.example.com",
	}

	assert.Equal(t, "https://app.example.com/?activate=abc.def", links.ActivationURL(models.VariantUser, "abc.def"))
	assert.Equal(t, "https://providers.example.com/?activate=abc", links.ActivationURL(models.VariantProvider, "abc"))
	assert.Equal(t, "https://app.example.com/reset-password/tok", links.ResetURL(models.VariantUser, "tok"))
	assert.Equal(t, "https://providers.example.com/reset-password/tok", links.ResetURL(models.VariantProvider, "tok"))
}

func TestActivationEmail_EscapesProfileFields(t *testing.T) {
	account := &models.Account{
		Variant:  models.VariantProvider,
		Name:     "<script>alert(1)</script>",
		Provider: &models.ProviderProfile{BusinessName: "Plough & Sons"},
	}

	subject, body, err := ActivationEmail(account, "https://app.example.com/?activate=t")
	require.NoError(t, err)

	assert.Equal(t, "Activate your provider account", subject)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "Plough &amp; Sons")
	assert.Contains(t, body, "https://app.example.com/?activate=t")
}

func TestResetEmail_StatesExpiry(t *testing.T) {
	_, body, err := ResetEmail(&models.Account{Name: "Sam"}, "https://app.example.com/reset-password/t", 30*time.Minute)
	require.NoError(t, err)

	assert.Contains(t, body, "This link will expire in 30 minutes.")
	assert.Contains(t, body, "Hello Sam")
}

func TestEmails_RenderInsideLayout(t *testing.T) {
	account := &models.Account{Name: "Sam", Variant: models.VariantUser}

	_, activation, err := ActivationEmail(account, "https://app.example.com/?activate=t")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(activation, "<!DOCTYPE html>"))
	assert.Contains(t, activation, "<h1>Activate Your Account</h1>")
	assert.Contains(t, activation, "Hello Sam")
	assert.Contains(t, activation, "Please do not reply to this email.")

	_, reset, err := ResetEmail(account, "https://app.example.com/reset-password/t", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reset, "<!DOCTYPE html>"))
	assert.Contains(t, reset, "<h1>Reset Your Password</h1>")
	assert.Contains(t, reset, "https://app.example.com/reset-password/t")
	assert.Contains(t, reset, "Please do not reply to this email.")
}

func TestHumanizeDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{time.Hour, "1 hour"},
		{90 * time.Minute, "90 minutes"},
		{48 * time.Hour, "2 days"},
		{24 * time.Hour, "1 day"},
		{45 * time.Second, "45 seconds"},
		{1500 * time.Millisecond, "1.5s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, humanizeDuration(tt.in), tt.in.String())
	}
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	mailer := NewLogMailer(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, mailer.Send(context.Background(), "alice@example.com", "Hi", "<p>body</p>"))
	assert.Contains(t, buf.String(), "a****@*******.com")
	assert.NotContains(t, buf.String(), "alice@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, mailer.Send(ctx, "alice@example.com", "Hi", "<p>body</p>"))
}
