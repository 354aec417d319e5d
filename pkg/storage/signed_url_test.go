package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("report-1", "2025/report-1.csv")
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	reportID, relPath, parsedExp, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "report-1", reportID)
	require.Equal(t, "2025/report-1.csv", relPath)
	require.WithinDuration(t, expiresAt, parsedExp, time.Second)
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, _, err := signer.Generate("report-1", "2025/report-1.csv")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token+"x", false)
	require.Error(t, err)

	other := NewSignedURLSigner("other-secret", time.Minute)
	_, _, _, err = other.Parse(token, false)
	require.Error(t, err)
}

func TestSignedURLExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	signer.ttl = -time.Minute

	token, _, err := signer.Generate("report-1", "file.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	_, _, _, err = signer.Parse(token, true)
	require.NoError(t, err)
}
