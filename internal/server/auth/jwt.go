// Package auth issues and reads session tokens. A session token is an
// HS256 JWT whose claims carry the caller's cloud credentials sealed with
// a key derived from the server secret.
package auth

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/dmitrijs2005/filecatalog/internal/cryptox"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

const credentialsKeyInfo = "filecatalog session credentials"

// Claims holds the registered claims plus the sealed credentials.
type Claims struct {
	jwt.RegisteredClaims
	Sealed []byte `json:"sc"`
	Nonce  []byte `json:"sn"`
}

// GenerateSessionToken issues an HS256 token valid for validityDuration
// that carries creds sealed with a key derived from secretKey.
func GenerateSessionToken(creds models.Credentials, secretKey []byte, validityDuration time.Duration) (string, error) {
	key, err := cryptox.DeriveKey(secretKey, credentialsKeyInfo)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(key)

	sealed, nonce, err := cryptox.Seal(creds, key)
	if err != nil {
		return "", fmt.Errorf("seal credentials: %w", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Sealed: sealed,
		Nonce:  nonce,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// CredentialsFromToken verifies tokenString and unseals the credentials it
// carries. Any failure, expiry included, wraps common.ErrInvalidToken.
func CredentialsFromToken(tokenString string, secretKey []byte) (*models.Credentials, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	key, err := cryptox.DeriveKey(secretKey, credentialsKeyInfo)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	var creds models.Credentials
	if err := cryptox.Open(claims.Sealed, claims.Nonce, key, &creds); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}
	if !creds.Valid() {
		return nil, fmt.Errorf("%w: incomplete credentials", common.ErrInvalidToken)
	}

	return &creds, nil
}
