// Package resolver maps caller-supplied identifiers to storage folders.
package resolver

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
)

// Resolver turns (bucket, identifier, file name) into an object location
// using an injected identifier -> folder table. It never performs I/O and
// is safe for concurrent use; the table is copied at construction.
type Resolver struct {
	folders map[string]string
	strict  bool
}

// New copies folders into a new Resolver. With strict set, Resolve rejects
// identifiers missing from the table; otherwise they map to an empty
// folder and the object is keyed by its bare file name.
func New(folders map[string]string, strict bool) *Resolver {
	m := make(map[string]string, len(folders))
	for k, v := range folders {
		m[k] = strings.Trim(v, "/")
	}
	return &Resolver{folders: m, strict: strict}
}

// Folder returns the folder mapped to id and whether it is known.
func (r *Resolver) Folder(id string) (string, bool) {
	f, ok := r.folders[id]
	return f, ok
}

// Resolve computes where fileName is stored for id. An unknown id yields
// common.ErrUnknownIdentifier in strict mode.
func (r *Resolver) Resolve(bucket, id, fileName string) (models.ResolvedLocation, error) {
	folder, ok := r.Folder(id)
	if !ok && r.strict {
		return models.ResolvedLocation{}, fmt.Errorf("%w: %q", common.ErrUnknownIdentifier, id)
	}
	return models.ResolvedLocation{
		Bucket:    bucket,
		Folder:    folder,
		ObjectKey: ObjectKey(folder, fileName),
	}, nil
}

// ObjectKey joins folder and file name, omitting an empty folder so no key
// ever starts with "/".
func ObjectKey(folder, fileName string) string {
	if folder == "" {
		return fileName
	}
	return folder + "/" + fileName
}
