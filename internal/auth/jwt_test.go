package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/freshcart/internal/models"
)

const testSecret = "test-secret"

func TestMintAndParseToken(t *testing.T) {
	p := Principal{ID: uuid.New(), Name: "Kiprop", Role: models.RoleDelivery}

	token, err := MintToken(testSecret, p, time.Hour)
	require.NoError(t, err)

	parsed, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	require.Equal(t, p.ID, parsed.ID)
	require.Equal(t, p.Name, parsed.Name)
	require.Equal(t, models.RoleDelivery, parsed.Role)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := MintToken(testSecret, Principal{ID: uuid.New(), Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "other-secret")
	require.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := MintToken(testSecret, Principal{ID: uuid.New(), Role: models.RoleCustomer}, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	require.Error(t, err)
}

func TestParseTokenRejectsUnknownRole(t *testing.T) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ParseToken(signed, testSecret)
	require.Error(t, err)
}

func TestParseTokenRejectsWrongAlgorithm(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: uuid.New().String(),
		},
	})
	signed, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseToken(signed, testSecret)
	require.Error(t, err)
}

func TestMintTokenRequiresSecret(t *testing.T) {
	_, err := MintToken("", Principal{ID: uuid.New(), Role: models.RoleAdmin}, time.Hour)
	require.Error(t, err)
}
