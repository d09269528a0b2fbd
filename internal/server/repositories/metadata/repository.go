// Package metadata stores and reads rows of metadata.file_metadata.
package metadata

import (
	"context"

	"github.com/dmitrijs2005/filecatalog/internal/server/models"
)

// Repository reads and writes metadata.file_metadata rows.
type Repository interface {
	// Insert appends rec and returns the generated row id.
	Insert(ctx context.Context, rec *models.FileMetadata) (int64, error)
	// List returns the newest rows first, optionally limited to one folder.
	List(ctx context.Context, folder string, limit int) ([]*models.FileMetadata, error)
}
