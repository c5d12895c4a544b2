// Package store owns the public dataset file. It is the single writer: the
// pipeline returns mutations as data and the store applies them, then
// rewrites the whole file atomically. A crash never leaves a torn dataset.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"

	"github.com/propwatch/propwatch/engine/domain"
	"github.com/propwatch/propwatch/pkg/atomicjson"
)

// Store holds the tracked spots and the reply ledger.
type Store struct {
	datasetPath string
	statePath   string
	log         *slog.Logger

	spots []domain.Report
	byID  map[string]int
	// replied records post IDs already answered publicly, so re-processing
	// a batch never sends the same reply twice.
	replied map[string]bool
	dirty   bool
}

type sidecarState struct {
	RepliedPostIDs []string `json:"replied_post_ids"`
}

// Open loads the dataset and its sidecar state, starting empty when the
// files do not exist yet. A malformed file is fatal.
func Open(datasetPath, statePath string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		datasetPath: datasetPath,
		statePath:   statePath,
		log:         log,
		byID:        make(map[string]int),
		replied:     make(map[string]bool),
	}

	var fc featureCollection
	err := atomicjson.Load(datasetPath, &fc)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// first run
	case err != nil:
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedState, err)
	default:
		s.spots, err = decode(fc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedState, err)
		}
		for i, sp := range s.spots {
			s.byID[sp.ID] = i
		}
	}

	var side sidecarState
	if err := atomicjson.Load(statePath, &side); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedState, err)
		}
	}
	for _, id := range side.RepliedPostIDs {
		s.replied[id] = true
	}
	return s, nil
}

// View returns a copy of the current spots for read-only matching.
func (s *Store) View() []domain.Report {
	return slices.Clone(s.spots)
}

// Len returns the number of tracked spots.
func (s *Store) Len() int { return len(s.spots) }

// Apply executes store mutations in order and returns the reply mutations
// that still need sending. Creates of an already-present ID and replies to
// an already-answered post are skipped, which makes re-applying a batch
// harmless.
func (s *Store) Apply(muts []domain.Mutation) []domain.Mutation {
	var replies []domain.Mutation
	for _, m := range muts {
		switch m.Op {
		case domain.OpCreate:
			s.create(m)
		case domain.OpConfirm:
			s.confirm(m)
		case domain.OpRemove:
			s.setStatus(m.SpotID, domain.StatusRemoved)
		case domain.OpStale:
			s.setStatus(m.SpotID, domain.StatusStale)
		case domain.OpReply:
			if s.replied[m.PostID] {
				continue
			}
			s.replied[m.PostID] = true
			s.dirty = true
			replies = append(replies, m)
		}
	}
	return replies
}

func (s *Store) create(m domain.Mutation) {
	if m.Spot == nil {
		s.log.Warn("create mutation without spot payload")
		return
	}
	if _, exists := s.byID[m.Spot.ID]; exists {
		return
	}
	s.byID[m.Spot.ID] = len(s.spots)
	s.spots = append(s.spots, *m.Spot)
	s.dirty = true
}

func (s *Store) confirm(m domain.Mutation) {
	i, ok := s.byID[m.SpotID]
	if !ok {
		s.log.Warn("confirm for unknown spot", "spot_id", m.SpotID)
		return
	}
	sp := &s.spots[i]
	sp.SeenCount++
	if m.Spot != nil {
		// Record the confirming post so a re-applied batch matches it by
		// source and never counts it twice.
		if m.Spot.SourceURL != "" && !sp.HasSource(m.Spot.SourceURL) {
			sp.Sources = append(sp.Sources, m.Spot.SourceURL)
		}
		if m.Spot.LastSeen.After(sp.LastSeen) {
			sp.LastSeen = m.Spot.LastSeen
		}
		if sp.Category == "" && m.Spot.Category != "" {
			sp.Category = m.Spot.Category
		}
		for _, url := range m.Spot.Media {
			if !slices.Contains(sp.Media, url) {
				sp.Media = append(sp.Media, url)
			}
		}
	}
	// A reconfirmed stale spot is demonstrably still there.
	if sp.Status == domain.StatusStale {
		sp.Status = domain.StatusPresent
	}
	s.dirty = true
}

func (s *Store) setStatus(id string, st domain.Status) {
	i, ok := s.byID[id]
	if !ok {
		s.log.Warn("status change for unknown spot", "spot_id", id, "status", st)
		return
	}
	if s.spots[i].Status == st {
		return
	}
	s.spots[i].Status = st
	s.dirty = true
}

// Save rewrites the dataset and sidecar atomically if anything changed.
func (s *Store) Save() error {
	if !s.dirty {
		return nil
	}
	if err := atomicjson.Save(s.datasetPath, encode(s.spots)); err != nil {
		return err
	}
	side := sidecarState{RepliedPostIDs: make([]string, 0, len(s.replied))}
	for id := range s.replied {
		side.RepliedPostIDs = append(side.RepliedPostIDs, id)
	}
	slices.Sort(side.RepliedPostIDs)
	if err := atomicjson.Save(s.statePath, side); err != nil {
		return err
	}
	s.dirty = false
	return nil
}
