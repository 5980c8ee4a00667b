package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/durable-crawler/crawld/internal/config"
	"github.com/durable-crawler/crawld/internal/storage"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions available to resume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			db, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			summaries, err := db.ListResumable()
			if err != nil {
				return err
			}

			fmt.Println("=== Available Sessions to Resume ===")
			if len(summaries) == 0 {
				fmt.Println("No active sessions found to resume.")
				return nil
			}
			for _, s := range summaries {
				fmt.Printf("Session %d: %s\n", s.ID, s.StartURL)
				fmt.Printf("  Started: %s\n", s.StartTime.Format("2006-01-02 15:04:05"))
				fmt.Printf("  Progress: %d pages crawled, %d URLs in queue\n\n", s.PagesCrawled, s.QueuedURLs)
			}
			return nil
		},
	}
}
