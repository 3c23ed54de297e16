package main

import (
	"context"
	"fmt"

	"github.com/backkem/cardlock/internal/config"
	"github.com/backkem/cardlock/internal/i18n"
	"github.com/backkem/cardlock/pkg/audit"
	"github.com/backkem/cardlock/pkg/nvstore"
	"github.com/backkem/cardlock/pkg/registry"
	"github.com/pion/logging"
	"github.com/spf13/cobra"
)

// app carries what every command needs once flags and config are parsed.
type app struct {
	configFile string

	cfg config.Config
	lf  logging.LoggerFactory
	log logging.LeveledLogger
	cat *i18n.Catalog
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "cardlock",
		Short:         "RFID door lock controller",
		Long:          "cardlock keeps a table of authorized card credentials and drives a door lock from card scans.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	defaults := config.Default()
	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default is ./"+config.FileName+")")
	flags.String("store", defaults.Store.Path, "storage image file")
	flags.String("log-level", defaults.Log.Level, "log level (error, warn, info, debug, trace)")
	flags.String("lang", defaults.Language, `message language ("en", "de")`)
	flags.String("audit-db", defaults.Audit.Path, "audit journal database")
	flags.Bool("no-audit", false, "disable the audit journal")

	cmd.AddCommand(
		newRunCmd(a),
		newStatusCmd(a),
		newListCmd(a),
		newProvisionCmd(a),
		newAddCmd(a),
		newRemoveCmd(a),
		newWipeCmd(a),
		newResetCmd(a),
		newBackupCmd(a),
		newRestoreCmd(a),
		newAuditCmd(a),
		newConfigCmd(a),
	)
	return cmd
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.lf = cfg.LoggerFactory()
	a.log = a.lf.NewLogger("cardlock")

	a.cat, err = i18n.New(cfg.Language)
	if err != nil {
		return err
	}
	return nil
}

// openStore opens the storage image, creating a virgin one if missing.
func (a *app) openStore() (*nvstore.FileStore, error) {
	store, err := nvstore.OpenFileStore(a.cfg.Store.Path, a.cfg.Store.Size)
	if err != nil {
		return nil, err
	}
	store.SyncWrites = a.cfg.Store.Sync
	return store, nil
}

// withRegistry opens the registry for the duration of fn.
func (a *app) withRegistry(fn func(reg *registry.Registry) error) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	reg, err := registry.New(registry.Config{Store: store, LoggerFactory: a.lf})
	if err != nil {
		return err
	}
	return fn(reg)
}

// openJournal returns nil when the journal is disabled.
func (a *app) openJournal(ctx context.Context) (*audit.Journal, error) {
	if !a.cfg.Audit.Enabled {
		return nil, nil
	}
	return audit.Open(ctx, audit.Config{Path: a.cfg.Audit.Path, LoggerFactory: a.lf})
}

// journal records an administrative action. Journal failures are logged.
func (a *app) journal(ctx context.Context, kind, detail string) {
	j, err := a.openJournal(ctx)
	if err != nil {
		a.log.Warnf("audit: %v", err)
		return
	}
	if j == nil {
		return
	}
	defer j.Close()

	if err := j.Record(ctx, kind, detail); err != nil {
		a.log.Warnf("%v", err)
	}
}

func (a *app) printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
