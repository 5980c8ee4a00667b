package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/durable-crawler/crawld/internal/config"
	"github.com/durable-crawler/crawld/internal/report"
	"github.com/durable-crawler/crawld/internal/storage"
)

func newExportCmd() *cobra.Command {
	var (
		sessionID int64
		format    string
		out       string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a session's pages, queue, and link graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			db, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if sessionID == 0 {
				session, err := db.FindResumable()
				if err != nil {
					return err
				}
				if session == nil {
					return fmt.Errorf("no session specified and no running session found")
				}
				sessionID = session.ID
			}

			r, err := report.Build(db, sessionID)
			if err != nil {
				return err
			}
			if err := report.Export(r, f, out); err != nil {
				return err
			}

			fmt.Printf("Exported session %d (%d pages, %d links) to %s\n",
				sessionID, len(r.Pages), len(r.Links), out)
			return nil
		},
	}

	cmd.Flags().Int64Var(&sessionID, "session", 0, "session id (default: newest running session)")
	cmd.Flags().StringVar(&format, "format", "csv", "export format: csv, xlsx, json")
	cmd.Flags().StringVar(&out, "out", "crawl-report.csv", "output file path")

	return cmd
}
