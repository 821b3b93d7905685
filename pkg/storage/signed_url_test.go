package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("job-1", "report-cards/class-a.csv")
	require.NoError(t, err)

	parsed, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "job-1", parsed.JobID)
	require.Equal(t, "report-cards/class-a.csv", parsed.Path)
	require.True(t, expiresAt.Equal(parsed.ExpiresAt))
}

func TestSignedURLExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	signer := NewSignedURLSigner("secret", time.Minute)
	signer.now = func() time.Time { return now }

	token, _, err := signer.Generate("job-1", "a.pdf")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = signer.Parse(token, false)
	require.ErrorIs(t, err, ErrTokenExpired)

	parsed, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "a.pdf", parsed.Path)
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("job-1", "a.pdf")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "job-2"
	_, err = signer.Parse(strings.Join(parts, "."), false)
	require.ErrorIs(t, err, ErrTokenSignature)

	_, err = signer.Parse("garbage", false)
	require.ErrorIs(t, err, ErrTokenMalformed)

	other := NewSignedURLSigner("other", time.Hour)
	_, err = other.Parse(token, false)
	require.ErrorIs(t, err, ErrTokenSignature)
}
