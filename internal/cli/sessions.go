package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fbolanos/AutoHeadFixFB/internal/db"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/store/sqlite"
)

func newSessionsCmd() *cobra.Command {
	var (
		dbPath string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sqlDB, err := db.Open(cmd.Context(), db.Config{Path: dbPath})
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			sessions, err := sqlite.ListSessions(cmd.Context(), sqlDB)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sessions)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tCAGE\tSTARTED\tENDED\tEVENTS")
			for _, s := range sessions {
				ended := "running"
				if s.EndedAt != nil {
					ended = s.EndedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", s.SessionID, s.CageID, s.StartedAt.Format(time.RFC3339), ended, s.Events)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", db.DefaultPath, "Session database path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}
