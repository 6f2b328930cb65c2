package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fbolanos/AutoHeadFixFB/internal/db"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/store/sqlite"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
)

func newStatsCmd() *cobra.Command {
	var (
		dbPath    string
		sessionID string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-animal statistics for a session (default: the latest)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sqlDB, err := db.Open(cmd.Context(), db.Config{Path: dbPath})
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if sessionID == "" {
				if sessionID, err = sqlite.LatestSessionID(cmd.Context(), sqlDB); err != nil {
					return err
				}
				if sessionID == "" {
					return fmt.Errorf("no sessions recorded in %s", dbPath)
				}
			}

			animals, err := sqlite.ReadStats(cmd.Context(), sqlDB, sessionID)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					SessionID string         `json:"session_id"`
					Animals   []types.Animal `json:"animals"`
				}{sessionID, animals})
			}
			return writeStatsTable(cmd.OutOrStdout(), sessionID, animals)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", db.DefaultPath, "Session database path")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (default: latest)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func writeStatsTable(w io.Writer, sessionID string, animals []types.Animal) error {
	if _, err := fmt.Fprintf(w, "session %s\n", sessionID); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Mouse_ID\tentries\tent_rew\thfixes\thf_rew")
	for _, a := range animals {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", a.Tag, a.Entries, a.EntranceRewards, a.HeadFixes, a.HeadFixedRewards)
	}
	return tw.Flush()
}
