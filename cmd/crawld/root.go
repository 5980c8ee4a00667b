package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/durable-crawler/crawld/internal/config"
	"github.com/durable-crawler/crawld/internal/crawler"
	"github.com/durable-crawler/crawld/internal/storage"
)

var (
	configPath string
	resumeArg  string
)

// resumeLatest is the flag value meaning "newest running session".
const resumeLatest = "latest"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawld <http(s)-url>",
		Short: "Persistent multi-threaded web crawler",
		Long: `crawld performs a bounded breadth-first crawl of the web graph from a
seed URL. The frontier, downloaded pages, and the discovered link graph
are persisted in a SQLite database, so a crawl can be paused and resumed
across process lifetimes.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runCrawl,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ./crawld.yaml)")
	cmd.Flags().StringVar(&resumeArg, "resume", "", "resume a running session (newest when no id is given)")
	cmd.Flags().Lookup("resume").NoOptDefVal = resumeLatest

	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newExportCmd())

	return cmd
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Verbose)

	resuming := resumeArg != ""
	var resumeID int64
	switch {
	case resuming && resumeArg != resumeLatest:
		resumeID, err = strconv.ParseInt(resumeArg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session id %q", resumeArg)
		}
	case resuming && len(args) == 1:
		// "--resume 3": the id lands as a positional argument.
		resumeID, err = strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session id %q", args[0])
		}
	case !resuming && len(args) != 1:
		return fmt.Errorf("provide either a seed URL or --resume")
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	c := crawler.New(cfg, db, logger)

	if resuming {
		if err := c.Resume(resumeID); err != nil {
			return err
		}
		logger.Info("resuming session",
			"session", c.Session().ID,
			"seed", c.Session().StartURL,
			"started", c.Session().StartTime)
	} else {
		if err := c.StartSession(args[0]); err != nil {
			return err
		}
	}

	return c.Run(context.Background())
}
