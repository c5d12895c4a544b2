// Package runner executes audit-defined deletions against the social
// account: strictly sequential, rate limited, resumable after a crash, and
// pausable through a kill-switch marker file. It never runs concurrently
// with itself.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/propwatch/propwatch/pkg/atomicjson"
	"github.com/propwatch/propwatch/pkg/metrics"
)

// Client is the remote side of a destructive action. Delete returns the
// HTTP-style status code and, for 429 responses, the server-requested wait.
type Client interface {
	Owns(ctx context.Context, targetID string) (bool, error)
	Delete(ctx context.Context, targetID string) (status int, retryAfter time.Duration, err error)
}

// Runner processes one audit file FIFO.
type Runner struct {
	Client      Client
	StatePath   string
	KillSwitch  string
	ActionLog   string
	Delay       time.Duration
	RetryMargin time.Duration
	Log         *slog.Logger
	Metrics     *metrics.Metrics

	// Test seams; production uses the zero values.
	wait  func(ctx context.Context) error
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// ErrHalted is returned when the kill-switch stopped the run cleanly.
// Nothing is marked failed; removing the marker file resumes the queue.
var ErrHalted = fmt.Errorf("halted by kill-switch")

// Run processes the audit file at auditPath in order, skipping targets a
// prior run already settled. State and audit are rewritten after every
// transition.
func (r *Runner) Run(ctx context.Context, auditPath string) error {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	now := r.now
	if now == nil {
		now = time.Now
	}
	wait := r.wait
	if wait == nil {
		limiter := rate.NewLimiter(rate.Every(r.Delay), 1)
		wait = limiter.Wait
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	records, err := loadAudit(auditPath)
	if err != nil {
		return err
	}
	state, err := loadState(r.StatePath)
	if err != nil {
		return err
	}
	state.Audit = filepath.Base(auditPath)

	r.appendLog(now(), fmt.Sprintf("BATCH n=%d audit=%s", len(records), state.Audit))
	log.Info("batch start", "targets", len(records), "audit", state.Audit)

	// The rate limiter starts with a full bucket, so without this the
	// first action of a restarted run would fire immediately after the
	// crash. The persisted clock carries the spacing across runs.
	resumeAt := state.LastActionAt

	for i := range records {
		rec := &records[i]
		if state.Seen(rec.TargetID) {
			continue
		}

		if r.killSwitchPresent() {
			r.appendLog(now(), "HALT kill-switch present")
			log.Warn("kill-switch present, stopping before next action")
			return ErrHalted
		}

		if !resumeAt.IsZero() {
			if rest := r.Delay - now().Sub(resumeAt); rest > 0 {
				log.Info("honoring delay from previous run", "wait", rest)
				if err := sleep(ctx, rest); err != nil {
					return err
				}
			}
			resumeAt = time.Time{}
		}

		// Fixed spacing between destructive calls, independent of how the
		// server answers.
		if err := wait(ctx); err != nil {
			return err
		}

		outcome, detail := r.process(ctx, rec.Target, now, sleep)
		rec.Outcome, rec.Detail = outcome, detail

		switch outcome {
		case OutcomeDone:
			state.Done[rec.TargetID] = detail
			if detail == DetailDeleted {
				state.DeletedTotal++
			}
		case OutcomeFailed:
			state.Failed[rec.TargetID] = detail
		}
		state.LastActionAt = now()
		if r.Metrics != nil {
			r.Metrics.RunnerActions.WithLabelValues(detail).Inc()
		}
		if err := atomicjson.Save(r.StatePath, state); err != nil {
			return err
		}
		if err := atomicjson.Save(auditPath, records); err != nil {
			return err
		}
	}
	return nil
}

// process performs ownership verification and the deletion for one target,
// including the single 429 retry.
func (r *Runner) process(ctx context.Context, t Target, now func() time.Time, sleep func(context.Context, time.Duration) error) (outcome, detail string) {
	owns, err := r.Client.Owns(ctx, t.TargetID)
	if err != nil {
		r.appendLog(now(), fmt.Sprintf("DEL FAIL %s verify: %v", t.TargetID, err))
		return OutcomeFailed, fmt.Sprintf("verify: %v", err)
	}
	if !owns {
		// Never delete what is not ours, whatever the audit says.
		r.appendLog(now(), fmt.Sprintf("DEL FAIL %s %s", t.TargetID, DetailNotOwned))
		return OutcomeFailed, DetailNotOwned
	}

	status, retryAfter, err := r.Client.Delete(ctx, t.TargetID)
	if status == http.StatusTooManyRequests {
		pause := retryAfter + r.RetryMargin
		r.appendLog(now(), fmt.Sprintf("429 %s wait=%s", t.TargetID, pause))
		if err := sleep(ctx, pause); err != nil {
			return OutcomeFailed, DetailRateLimited
		}
		status, _, err = r.Client.Delete(ctx, t.TargetID)
		if status == http.StatusTooManyRequests {
			r.appendLog(now(), fmt.Sprintf("DEL FAIL %s %s", t.TargetID, DetailRateLimited))
			return OutcomeFailed, DetailRateLimited
		}
	}

	switch {
	case err != nil:
		r.appendLog(now(), fmt.Sprintf("DEL FAIL %s %v", t.TargetID, err))
		return OutcomeFailed, err.Error()
	case status == http.StatusNotFound || status == http.StatusGone:
		r.appendLog(now(), fmt.Sprintf("GONE OK %s reason=%s", t.TargetID, t.Reason))
		return OutcomeDone, DetailGone
	case status >= 200 && status < 300:
		r.appendLog(now(), fmt.Sprintf("DEL OK %s reason=%s", t.TargetID, t.Reason))
		return OutcomeDone, DetailDeleted
	default:
		r.appendLog(now(), fmt.Sprintf("DEL FAIL %s http_%d", t.TargetID, status))
		return OutcomeFailed, fmt.Sprintf("http_%d", status)
	}
}

func (r *Runner) killSwitchPresent() bool {
	if r.KillSwitch == "" {
		return false
	}
	_, err := os.Stat(r.KillSwitch)
	return err == nil
}

// appendLog writes one line to the append-only action log. Timestamps are
// execution time; the target's own timestamps never appear here.
func (r *Runner) appendLog(at time.Time, line string) {
	if r.ActionLog == "" {
		return
	}
	f, err := os.OpenFile(r.ActionLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s %s\n", at.UTC().Format(time.RFC3339), line)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
