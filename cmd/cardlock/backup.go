package main

import (
	"fmt"
	"os"

	"github.com/backkem/cardlock/pkg/nvstore"
	"github.com/spf13/cobra"
)

func newBackupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <file>",
		Short: "Write a compressed backup of the storage image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := nvstore.Backup(f, store); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.printf(cmd, "backed up %d bytes to %s\n", store.Size(), args[0])
			return nil
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Overwrite the storage image from a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				if err := confirm(cmd, "restore"); err != nil {
					return err
				}
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := nvstore.Restore(f, store)
			if err != nil {
				return fmt.Errorf("restore %s: %w", args[0], err)
			}
			a.journal(cmd.Context(), kindRestore, args[0])
			a.printf(cmd, "restored %s, %d bytes changed\n", args[0], n)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
