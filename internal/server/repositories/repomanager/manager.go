package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/filecatalog/internal/dbx"
	"github.com/dmitrijs2005/filecatalog/internal/server/repositories/metadata"
)

// RepositoryManager vends repositories bound to a DBTX so the same code
// runs against a pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Metadata(db dbx.DBTX) metadata.Repository
}
