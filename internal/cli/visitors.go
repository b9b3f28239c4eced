package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newVisitorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "visitors",
		Short: "Print the visitor counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore()
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()

			n, err := s.VisitCount(cmd.Context())
			if err != nil {
				return fmt.Errorf("count visits: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newContactsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List recent contact form outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore()
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()

			subs, err := s.RecentContacts(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list contacts: %w", err)
			}

			type row struct {
				At      string `json:"at"`
				Email   string `json:"email"`
				Subject string `json:"subject"`
				Status  string `json:"status"`
				Failure string `json:"failure,omitempty"`
			}
			rows := make([]row, 0, len(subs))
			for _, sub := range subs {
				rows = append(rows, row{
					At:      sub.CreatedAt.UTC().Format(time.RFC3339),
					Email:   sub.SenderEmail,
					Subject: sub.Subject,
					Status:  string(sub.Status),
					Failure: sub.FailureKind,
				})
			}
			b, _ := json.MarshalIndent(rows, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of submissions to show")
	return cmd
}
