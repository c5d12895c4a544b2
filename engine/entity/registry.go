// Package entity resolves free-text entity hints against a curated table.
// Resolution is exact-key or alias-table lookup only; anything else is the
// universal Unknown. The registry never guesses.
package entity

import (
	"log/slog"
	"strings"

	"github.com/propwatch/propwatch/engine/domain"
)

// Entity is one curated entity record.
type Entity struct {
	Key     string `json:"key"`
	Display string `json:"display"`
	Desc    string `json:"desc"`
}

// AliasEntry maps one spelling variant to a canonical key. Entries are a
// list, not a map, so duplicate spellings survive loading and can be
// rejected instead of silently collapsing.
type AliasEntry struct {
	Spelling string `json:"spelling"`
	Key      string `json:"key"`
}

// Table is the raw curated data as a source delivers it.
type Table struct {
	Entities []Entity     `json:"entities"`
	Aliases  []AliasEntry `json:"aliases"`
}

// Registry is the materialized read-only lookup built once at startup.
type Registry struct {
	byKey   map[string]Entity
	byAlias map[string]string
}

// NewRegistry builds a registry from a table. Alias entries that point at a
// missing key, shadow a different entity's key, or map one spelling to two
// keys are logged and dropped; many spellings mapping to one key is the
// intended shape.
func NewRegistry(t Table, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		byKey:   make(map[string]Entity, len(t.Entities)),
		byAlias: make(map[string]string, len(t.Aliases)),
	}
	for _, e := range t.Entities {
		k := norm(e.Key)
		if k == "" {
			continue
		}
		if _, dup := r.byKey[k]; dup {
			log.Warn("entity registry: duplicate key dropped", "key", e.Key)
			continue
		}
		r.byKey[k] = e
	}
	poisoned := make(map[string]bool)
	for _, a := range t.Aliases {
		spelling, key := norm(a.Spelling), norm(a.Key)
		if spelling == "" || key == "" || poisoned[spelling] {
			continue
		}
		if _, ok := r.byKey[key]; !ok {
			log.Warn("entity registry: alias to missing key dropped",
				"alias", a.Spelling, "key", a.Key)
			continue
		}
		if e, ok := r.byKey[spelling]; ok && norm(e.Key) != key {
			log.Warn("entity registry: alias shadows another entity, dropped",
				"alias", a.Spelling, "key", a.Key)
			continue
		}
		if prev, ok := r.byAlias[spelling]; ok && prev != key {
			log.Warn("entity registry: conflicting alias dropped",
				"alias", a.Spelling, "keys", []string{prev, key})
			delete(r.byAlias, spelling)
			poisoned[spelling] = true
			continue
		}
		r.byAlias[spelling] = key
	}
	return r
}

// Resolve maps a hint to its curated EntityRef, or to Unknown.
func (r *Registry) Resolve(hint string) domain.EntityRef {
	h := norm(hint)
	if h == "" {
		return domain.UnknownEntity()
	}
	if e, ok := r.byKey[h]; ok {
		return ref(e)
	}
	if key, ok := r.byAlias[h]; ok {
		if e, ok := r.byKey[key]; ok {
			return ref(e)
		}
	}
	return domain.UnknownEntity()
}

// Len returns the number of curated entities.
func (r *Registry) Len() int { return len(r.byKey) }

func ref(e Entity) domain.EntityRef {
	return domain.EntityRef{Key: e.Key, Display: e.Display, Desc: e.Desc}
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
