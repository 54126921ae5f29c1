package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-Pass!")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret-Pass!", hash)

	require.True(t, VerifyPassword(hash, "s3cret-Pass!"))
	require.False(t, VerifyPassword(hash, "wrong"))
}

func TestGenerateTokenLengthAndUniqueness(t *testing.T) {
	_, err := GenerateToken(0)
	require.Error(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 32; i++ {
		token, err := GenerateToken(32)
		require.NoError(t, err)
		require.NotContains(t, token, "=")
		require.GreaterOrEqual(t, len(token), 40)

		_, dup := seen[token]
		require.False(t, dup, "token collision")
		seen[token] = struct{}{}
	}
}

func TestGenerateDigitCode(t *testing.T) {
	_, err := GenerateDigitCode(0)
	require.Error(t, err)

	code, err := GenerateDigitCode(6)
	require.NoError(t, err)
	require.Len(t, code, 6)
	require.Equal(t, "", strings.Trim(code, "0123456789"))
}
