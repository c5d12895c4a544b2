// Command deleterunner executes the deletions an audit file calls for,
// one at a time, against the configured social account. It resumes where
// a previous run stopped and halts cleanly when the kill-switch marker
// exists.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/propwatch/propwatch/adapters/social"
	"github.com/propwatch/propwatch/engine/runner"
	"github.com/propwatch/propwatch/pkg/config"
	"github.com/propwatch/propwatch/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	auditPath := flag.String("audit", "", "audit file to process (default: all deleted_*.json in the audit dir)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, *auditPath, logger); err != nil {
		if errors.Is(err, runner.ErrHalted) {
			logger.Warn("halted by kill-switch, remove the marker file to resume")
			return
		}
		logger.Error("deleterunner exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, auditPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Social.BaseURL == "" || cfg.Social.Token == "" {
		return fmt.Errorf("social base URL and SOCIAL_TOKEN are required")
	}
	client := social.New(cfg.Social.BaseURL, cfg.Social.Token, logger)
	acct, err := client.VerifyCredentials(ctx)
	if err != nil {
		return fmt.Errorf("social account: %w", err)
	}
	logger.Info("deleting as", "acct", acct.Acct)

	audits, err := auditFiles(cfg, auditPath)
	if err != nil {
		return err
	}
	if len(audits) == 0 {
		logger.Info("no audit files to process")
		return nil
	}

	r := &runner.Runner{
		Client:      client,
		StatePath:   cfg.Runner.StatePath,
		KillSwitch:  cfg.Runner.KillSwitch,
		ActionLog:   cfg.Runner.ActionLog,
		Delay:       cfg.Runner.ActionDelay,
		RetryMargin: cfg.Runner.RetryMargin,
		Log:         logger,
		Metrics:     metrics.New(),
	}

	for _, path := range audits {
		logger.Info("processing audit", "audit", path)
		if err := r.Run(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// auditFiles returns the audits to process: the explicit one, or every
// deleted_*.json in the audit dir in name order.
func auditFiles(cfg config.Config, explicit string) ([]string, error) {
	if explicit != "" {
		return []string{explicit}, nil
	}
	if cfg.Runner.AuditDir == "" {
		return nil, fmt.Errorf("either -audit or runner.audit_dir is required")
	}
	matches, err := filepath.Glob(filepath.Join(cfg.Runner.AuditDir, "deleted_*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
