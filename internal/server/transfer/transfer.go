// Package transfer writes a single uploaded file to the object store.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
	"github.com/dmitrijs2005/filecatalog/internal/server/storage"
)

// TransferError reports a failed object-store write. It matches
// common.ErrTransfer, and common.ErrTimeout when the write ran out of time.
type TransferError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *TransferError) Unwrap() []error {
	errs := []error{common.ErrTransfer, e.Err}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		errs = append(errs, common.ErrTimeout)
	}
	return errs
}

// Executor performs object-store writes with a bounded duration.
type Executor struct {
	store   storage.Store
	timeout time.Duration
}

// NewExecutor returns an Executor. A non-positive timeout disables the
// per-write deadline and leaves cancellation to the caller's context.
func NewExecutor(store storage.Store, timeout time.Duration) *Executor {
	return &Executor{store: store, timeout: timeout}
}

// ContentType maps the file extension to a MIME type, falling back to
// common.DefaultContentType.
func ContentType(fileName string) string {
	if ct := mime.TypeByExtension(filepath.Ext(fileName)); ct != "" {
		return ct
	}
	return common.DefaultContentType
}

// Transfer writes item to loc. An existing object at the same key is
// overwritten. creds may be nil to use the store's ambient identity.
// Every failure is returned as *TransferError.
func (e *Executor) Transfer(ctx context.Context, loc models.ResolvedLocation, item models.FileItem, creds *models.Credentials) error {
	if item.Content == nil {
		return &TransferError{Bucket: loc.Bucket, Key: loc.ObjectKey, Err: errors.New("no content")}
	}
	if _, err := item.Content.Seek(0, io.SeekStart); err != nil {
		return &TransferError{Bucket: loc.Bucket, Key: loc.ObjectKey, Err: fmt.Errorf("rewind content: %w", err)}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if err := e.store.Put(ctx, creds, loc.Bucket, loc.ObjectKey, item.Content, ContentType(item.Name)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return &TransferError{Bucket: loc.Bucket, Key: loc.ObjectKey, Err: err}
	}
	return nil
}
