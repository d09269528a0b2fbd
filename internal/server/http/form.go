package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/dmitrijs2005/filecatalog/internal/filex"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
)

const maxValueSize = 4 << 10

// uploadForm is a multipart upload body read part by part so that file
// order is preserved and parts with an empty file name are kept.
type uploadForm struct {
	items  []models.FileItem
	ids    []string
	bucket string
	spools []*filex.Spooled
}

func (f *uploadForm) Close() error {
	var errs []error
	for _, s := range f.spools {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

func fieldIs(name string, want string) bool {
	return name == want || name == want+"[]"
}

// readUploadForm consumes r. Up to memLimit bytes of file content in total
// are held in memory; the rest is spooled to temporary files in dir.
func readUploadForm(r *multipart.Reader, memLimit int64, dir string) (_ *uploadForm, err error) {
	form := &uploadForm{}
	defer func() {
		if err != nil {
			_ = form.Close()
		}
	}()

	remaining := memLimit
	for {
		part, err := r.NextPart()
		if err == io.EOF {
			return form, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read multipart: %w", common.ErrValidation, err)
		}

		name := part.FormName()
		switch {
		case fieldIs(name, "files"):
			fileName := part.FileName()
			if fileName == "" {
				_, _ = io.Copy(io.Discard, part)
				form.items = append(form.items, models.FileItem{})
				continue
			}
			s, err := filex.Spool(part, max(remaining, 0), dir)
			if err != nil {
				return nil, fmt.Errorf("spool %q: %w", fileName, err)
			}
			form.spools = append(form.spools, s)
			if !s.OnDisk() {
				remaining -= s.Size()
			}
			form.items = append(form.items, models.FileItem{Name: fileName, Size: s.Size(), Content: s})

		case fieldIs(name, "ids"):
			v, err := readValue(part)
			if err != nil {
				return nil, err
			}
			form.ids = append(form.ids, v)

		case name == "bucket":
			v, err := readValue(part)
			if err != nil {
				return nil, err
			}
			form.bucket = v

		default:
			_, _ = io.Copy(io.Discard, part)
		}
	}
}

func readValue(p *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(p, maxValueSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: read field %q: %w", common.ErrValidation, p.FormName(), err)
	}
	if len(b) > maxValueSize {
		return "", fmt.Errorf("%w: field %q is too long", common.ErrValidation, p.FormName())
	}
	return strings.TrimSpace(string(b)), nil
}
