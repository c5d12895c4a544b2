// Command checkdata validates the published dataset and optionally
// repairs the fields the checks know how to fix. It is meant for CI and
// for a manual look after hand-editing the file.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/propwatch/propwatch/engine/store"
	"github.com/propwatch/propwatch/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	fix := flag.Bool("fix", false, "repair fixable fields and rewrite the dataset")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Paths.Dataset, cfg.Paths.State, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *fix {
		if n := st.Normalize(); n > 0 {
			fmt.Printf("repaired %d fields\n", n)
			if err := st.Save(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		}
	}

	issues := st.Check()
	for _, issue := range issues {
		fmt.Println(issue)
	}
	if len(issues) > 0 {
		fmt.Printf("%d issues in %s (%d spots)\n", len(issues), cfg.Paths.Dataset, st.Len())
		os.Exit(1)
	}
	fmt.Printf("ok: %d spots\n", st.Len())
}
