package runner

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/propwatch/propwatch/engine/domain"
	"github.com/propwatch/propwatch/pkg/atomicjson"
)

// Target outcomes.
const (
	OutcomeDone   = "done"
	OutcomeFailed = "failed"
)

// Failure and success details recorded per target.
const (
	DetailDeleted     = "deleted"
	DetailGone        = "gone"
	DetailNotOwned    = "not_owned"
	DetailRateLimited = "rate_limited"
)

// Target is one entry of the audit-supplied work list.
type Target struct {
	TargetID string `json:"target_id"`
	Reason   string `json:"reason"`
}

// AuditRecord is a target with its recorded outcome. The audit file starts
// as a list of bare targets and is rewritten with outcomes as the run
// progresses.
type AuditRecord struct {
	Target
	Outcome string `json:"outcome,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// State is the runner's persisted progress. It is rewritten after every
// transition, so a crash loses at most the one in-flight action.
type State struct {
	Audit        string            `json:"audit"`
	Done         map[string]string `json:"done"`
	Failed       map[string]string `json:"failed"`
	DeletedTotal int               `json:"deleted_total"`
	LastActionAt time.Time         `json:"last_action_at"`
}

// Seen reports whether a target was already settled by a prior run.
func (s *State) Seen(id string) bool {
	_, done := s.Done[id]
	_, failed := s.Failed[id]
	return done || failed
}

func loadState(path string) (*State, error) {
	s := &State{Done: map[string]string{}, Failed: map[string]string{}}
	if err := atomicjson.Load(path, s); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedState, err)
	}
	if s.Done == nil {
		s.Done = map[string]string{}
	}
	if s.Failed == nil {
		s.Failed = map[string]string{}
	}
	return s, nil
}

func loadAudit(path string) ([]AuditRecord, error) {
	var records []AuditRecord
	if err := atomicjson.Load(path, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedAudit, err)
	}
	for _, r := range records {
		if r.TargetID == "" {
			return nil, fmt.Errorf("%w: record without target_id", domain.ErrMalformedAudit)
		}
	}
	return records, nil
}
