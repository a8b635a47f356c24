package tokens

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func seg(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

const secret = "test-secret-32-bytes-should-be-long-enough"

func TestIssueAndVerify(t *testing.T) {
	tok, err := Issue(secret, "draftledger", "user-123", 2*time.Minute)
	require.NoError(t, err)

	v := NewHMACVerifier(secret, "draftledger")
	got, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, got.Claims(&claims))
	require.Equal(t, "user-123", claims["sub"])

	left, err := v.Remaining(tok)
	require.NoError(t, err)
	require.Greater(t, left, time.Minute)
	require.LessOrEqual(t, left, 2*time.Minute)
}

func TestIssueRequiresSecret(t *testing.T) {
	_, err := Issue("", "", "u", time.Minute)
	require.Error(t, err)
}

func TestVerifyRejects(t *testing.T) {
	v := NewHMACVerifier(secret, "draftledger")
	ctx := context.Background()

	expired, err := Issue(secret, "draftledger", "u", -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(ctx, expired)
	require.Error(t, err)

	wrongSecret, err := Issue("secret-one-32-bytes-xxxxxxxxxxxxxxxx", "draftledger", "u", time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(ctx, wrongSecret)
	require.Error(t, err)

	wrongIssuer, err := Issue(secret, "someone-else", "u", time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(ctx, wrongIssuer)
	require.Error(t, err)

	_, err = v.Verify(ctx, "not.a.jwt")
	require.Error(t, err)

	// header {"alg":"none"}
	none := seg(`{"alg":"none"}`) + "." + seg(`{"sub":"u-none","exp":9999999999}`) + "."
	_, err = v.Verify(ctx, none)
	require.Error(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u"}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = NewHMACVerifier(secret, "").Verify(ctx, noExp)
	require.Error(t, err)
}

// Tampering with payload must fail signature verification
func TestVerifyTamperedPayload(t *testing.T) {
	tok, err := Issue(secret, "", "user-t", 5*time.Minute)
	require.NoError(t, err)
	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	parts[1] = seg(strings.Replace(string(payload), "user-t", "attacker", 1))

	_, err = NewHMACVerifier(secret, "").Verify(context.Background(), strings.Join(parts, "."))
	require.Error(t, err)
}
