package entity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/propwatch/propwatch/engine/domain"
	"github.com/propwatch/propwatch/pkg/atomicjson"
)

// Source loads the curated entity table. A missing or unreadable table is
// fatal: resolving against an empty registry would silently mark every
// report Unknown.
type Source interface {
	Load(ctx context.Context) (Table, error)
}

// FileSource reads the table from a JSON file.
type FileSource struct {
	Path string
}

func (s FileSource) Load(context.Context) (Table, error) {
	var t Table
	if err := atomicjson.Load(s.Path, &t); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Table{}, fmt.Errorf("%w: %s", domain.ErrMissingTable, s.Path)
		}
		return Table{}, fmt.Errorf("%w: %v", domain.ErrMissingTable, err)
	}
	return t, nil
}
