package metadata

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/filecatalog/internal/dbx"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert appends one row. Rows are never deduplicated: uploading the same
// file name again adds another row.
func (r *PostgresRepository) Insert(ctx context.Context, rec *models.FileMetadata) (int64, error) {
	query := `
		INSERT INTO metadata.file_metadata
			(file_name, file_size, file_extension, folder, folder_url, file_url, upload_datetime)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		rec.FileName, rec.FileSizeBytes, rec.FileExtension, rec.Folder, rec.FolderURL, rec.FileURL, rec.UploadedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert file metadata: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) List(ctx context.Context, folder string, limit int) ([]*models.FileMetadata, error) {
	query := `
		SELECT id, file_name, file_size, file_extension, folder, folder_url, file_url, upload_datetime
		FROM metadata.file_metadata
		WHERE ($1 = '' OR folder = $1)
		ORDER BY upload_datetime DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, folder, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select file metadata: %w", err)
	}
	defer rows.Close()

	result := []*models.FileMetadata{}
	for rows.Next() {
		var item models.FileMetadata
		if err := rows.Scan(&item.ID, &item.FileName, &item.FileSizeBytes, &item.FileExtension,
			&item.Folder, &item.FolderURL, &item.FileURL, &item.UploadedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
