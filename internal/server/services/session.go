package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/dmitrijs2005/filecatalog/internal/server/auth"
	"github.com/dmitrijs2005/filecatalog/internal/server/config"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
	"github.com/dmitrijs2005/filecatalog/internal/server/storage"
)

// SessionService turns caller credentials into session tokens and back.
// Credentials are checked against the object store before a token is
// issued; nothing is stored server-side.
type SessionService struct {
	store            storage.Store
	secretKey        []byte
	validityDuration time.Duration
	timeout          time.Duration
}

// NewSessionService returns a SessionService signing with cfg.SecretKey.
func NewSessionService(store storage.Store, cfg *config.Config) *SessionService {
	return &SessionService{
		store:            store,
		secretKey:        []byte(cfg.SecretKey),
		validityDuration: cfg.SessionValidityDuration,
		timeout:          cfg.OperationTimeout,
	}
}

// Login verifies creds by listing buckets with them and returns a session
// token. Credentials the store rejects yield common.ErrorUnauthorized; a
// store that cannot be reached in time yields common.ErrTimeout.
func (s *SessionService) Login(ctx context.Context, creds models.Credentials) (string, error) {
	if !creds.Valid() {
		return "", fmt.Errorf("%w: access key and secret key are required", common.ErrValidation)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if _, err := s.store.ListBuckets(ctx, &creds); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: verify credentials: %w", common.ErrTimeout, err)
		}
		return "", fmt.Errorf("verify credentials: %w", err)
	}

	token, err := auth.GenerateSessionToken(creds, s.secretKey, s.validityDuration)
	if err != nil {
		return "", fmt.Errorf("error generating session token: %w", err)
	}
	return token, nil
}

// Authenticate returns the credentials carried by token.
func (s *SessionService) Authenticate(token string) (*models.Credentials, error) {
	return auth.CredentialsFromToken(token, s.secretKey)
}
