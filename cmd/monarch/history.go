package main

import (
	"fmt"
	"strings"
	"time"

	"monarch/cmd/monarch/ui"
	"monarch/internal/journal"

	"github.com/spf13/cobra"
)

func historyCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List activations received by the primary instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := journal.Open(g.journalPath())
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), ui.Muted("No activations recorded."))
				return nil
			}

			rows := make([][]string, len(records))
			for i, r := range records {
				rows[i] = []string{
					r.ReceivedAt.Local().Format(time.DateTime),
					r.ReceivedAt.Sub(r.SentAt).Round(time.Millisecond).String(),
					strings.Join(r.Args, " "),
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Table([]string{"RECEIVED", "LATENCY", "ARGS"}, rows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries")
	return cmd
}
