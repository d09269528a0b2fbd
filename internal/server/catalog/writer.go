// Package catalog records successfully transferred files in the metadata
// catalog, one transaction per record.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/dmitrijs2005/filecatalog/internal/dbx"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
	"github.com/dmitrijs2005/filecatalog/internal/server/repositories/repomanager"
)

// CatalogError reports a failed metadata insert. It matches
// common.ErrCatalog, and common.ErrTimeout when the insert ran out of time.
type CatalogError struct {
	FileName string
	Err      error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog insert %q: %v", e.FileName, e.Err)
}

func (e *CatalogError) Unwrap() []error {
	errs := []error{common.ErrCatalog, e.Err}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		errs = append(errs, common.ErrTimeout)
	}
	return errs
}

// Writer inserts catalog records. It is safe for concurrent use when db is
// a pooled *sql.DB: each Insert runs in its own transaction on its own
// connection.
type Writer struct {
	db      dbx.TxBeginner
	repos   repomanager.RepositoryManager
	timeout time.Duration
}

// NewWriter returns a Writer that bounds each insert by timeout.
func NewWriter(db dbx.TxBeginner, repos repomanager.RepositoryManager, timeout time.Duration) *Writer {
	return &Writer{db: db, repos: repos, timeout: timeout}
}

// Insert commits rec in a dedicated transaction and sets rec.ID on success.
// A failure never affects records committed by earlier calls.
func (w *Writer) Insert(ctx context.Context, rec *models.FileMetadata) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	var id int64
	err := dbx.WithTx(ctx, w.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		id, err = w.repos.Metadata(tx).Insert(ctx, rec)
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return &CatalogError{FileName: rec.FileName, Err: err}
	}

	rec.ID = id
	return nil
}
