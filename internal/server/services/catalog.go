package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/dmitrijs2005/filecatalog/internal/server/config"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
	"github.com/dmitrijs2005/filecatalog/internal/server/repositories/repomanager"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// CatalogService is the read side of the metadata catalog.
type CatalogService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	timeout     time.Duration
}

// NewCatalogService returns a CatalogService reading through m's repositories.
func NewCatalogService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *CatalogService {
	return &CatalogService{
		db:          db,
		repomanager: m,
		timeout:     cfg.OperationTimeout,
	}
}

// ListFiles returns the newest catalog records, optionally restricted to
// one folder. A zero limit means DefaultListLimit.
func (s *CatalogService) ListFiles(ctx context.Context, folder string, limit int) ([]*models.FileMetadata, error) {
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 0 || limit > MaxListLimit {
		return nil, fmt.Errorf("%w: limit must be within [1, %d]", common.ErrValidation, MaxListLimit)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	files, err := s.repomanager.Metadata(s.db).List(ctx, folder, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrCatalog, err)
	}
	return files, nil
}
