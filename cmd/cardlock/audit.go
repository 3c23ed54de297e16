package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCmd(a *app) *cobra.Command {
	var (
		limit int
		prune time.Duration
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent journal events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			j, err := a.openJournal(ctx)
			if err != nil {
				return err
			}
			if j == nil {
				return errors.New("audit journal is disabled")
			}
			defer j.Close()

			if prune > 0 {
				n, err := j.Prune(ctx, time.Now().Add(-prune))
				if err != nil {
					return err
				}
				a.printf(cmd, "pruned %d events\n", n)
				return nil
			}

			events, err := j.Recent(ctx, limit)
			if err != nil {
				return err
			}
			for _, e := range events {
				a.printf(cmd, "%s\n", e)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of events to show")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete events older than this instead of listing")
	return cmd
}
