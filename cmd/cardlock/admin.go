package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/backkem/cardlock/internal/i18n"
	"github.com/backkem/cardlock/pkg/credential"
	"github.com/backkem/cardlock/pkg/registry"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Journal kinds for administrative commands.
const (
	kindProvision = "provision"
	kindAdd       = "add"
	kindRemove    = "remove"
	kindWipe      = "wipe"
	kindReset     = "reset"
	kindRestore   = "restore"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provisioning state and usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(func(reg *registry.Registry) error {
				a.printf(cmd, "store:    %s (%d bytes)\n", a.cfg.Store.Path, a.cfg.Store.Size)

				provisioned, err := reg.Provisioned()
				if err != nil {
					return err
				}
				if !provisioned {
					a.printf(cmd, "state:    %s\n", a.cat.T(i18n.MsgStatusUnprovisioned))
					return nil
				}
				if err := reg.Check(); err != nil {
					return err
				}
				master, err := reg.Master()
				if err != nil {
					return err
				}
				count, err := reg.Count()
				if err != nil {
					return err
				}
				a.printf(cmd, "master:   %s\n", master)
				a.printf(cmd, "entries:  %s\n", a.cat.Tf(i18n.MsgStatusSummary, map[string]any{
					"Count":    count,
					"Capacity": reg.Capacity(),
				}))
				return nil
			})
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List enrolled credentials in slot order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(func(reg *registry.Registry) error {
				entries, err := reg.Entries()
				if err != nil {
					return err
				}
				for i, c := range entries {
					a.printf(cmd, "%3d  %s\n", i+1, c)
				}
				return nil
			})
		},
	}
}

func newProvisionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "provision <credential>",
		Short: "Define the master credential on virgin storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := credential.Parse(args[0])
			if err != nil {
				return err
			}
			err = a.withRegistry(func(reg *registry.Registry) error {
				return reg.Provision(cred)
			})
			if err != nil {
				return err
			}
			a.journal(cmd.Context(), kindProvision, cred.String())
			a.printf(cmd, "%s\n", a.cat.T(i18n.MsgProvisioned))
			return nil
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <credential>...",
		Short: "Enroll credentials",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := parseCredentials(args)
			if err != nil {
				return err
			}
			return a.withRegistry(func(reg *registry.Registry) error {
				for _, c := range creds {
					if err := reg.Add(c); err != nil {
						return fmt.Errorf("add %s: %w", c, err)
					}
					a.journal(cmd.Context(), kindAdd, c.String())
					slot, err := reg.Slot(c)
					if err != nil {
						return err
					}
					a.printf(cmd, "%s  %s (slot %d)\n", a.cat.T(i18n.MsgAdded), c, slot)
				}
				return nil
			})
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <credential>...",
		Short: "Remove credentials",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := parseCredentials(args)
			if err != nil {
				return err
			}
			return a.withRegistry(func(reg *registry.Registry) error {
				for _, c := range creds {
					if err := reg.Remove(c); err != nil {
						return fmt.Errorf("remove %s: %w", c, err)
					}
					a.journal(cmd.Context(), kindRemove, c.String())
					a.printf(cmd, "%s  %s\n", a.cat.T(i18n.MsgRemoved), c)
				}
				return nil
			})
		},
	}
}

var errNotConfirmed = errors.New("not confirmed")

func newWipeCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Erase every record, including the master credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				if err := confirm(cmd, "wipe"); err != nil {
					return err
				}
			}
			err := a.withRegistry(func(reg *registry.Registry) error {
				return reg.Wipe(wipeProgress(func(pct int) {
					a.printf(cmd, "\r%s %3d%%", a.cat.T(i18n.MsgWipeProgress), pct)
				}))
			})
			if err != nil {
				return err
			}
			a.journal(cmd.Context(), kindWipe, a.cfg.Store.Path)
			a.printf(cmd, "\n%s\n", a.cat.T(i18n.MsgWipeComplete))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// wipeProgress calls report with the percentage done, once per tenth.
func wipeProgress(report func(pct int)) registry.ProgressFunc {
	last := -10
	return func(done, total int) {
		if total <= 0 {
			return
		}
		if pct := done * 100 / total; pct/10 != last/10 {
			last = pct
			report(pct)
		}
	}
}

func newResetCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the master credential so the next start provisions a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				if err := confirm(cmd, "reset"); err != nil {
					return err
				}
			}
			err := a.withRegistry(func(reg *registry.Registry) error {
				return reg.ResetProvisioning()
			})
			if err != nil {
				return err
			}
			a.journal(cmd.Context(), kindReset, "")
			a.printf(cmd, "%s\n", a.cat.T(i18n.MsgStatusUnprovisioned))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func parseCredentials(args []string) ([]credential.Credential, error) {
	out := make([]credential.Credential, 0, len(args))
	for _, s := range args {
		c, err := credential.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// confirm asks the operator to type word. Without a terminal on stdin the
// command must be run with --yes.
func confirm(cmd *cobra.Command, word string) error {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return fmt.Errorf("%w: stdin is not a terminal, use --yes", errNotConfirmed)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Type %q to continue: ", word)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return fmt.Errorf("%w: %v", errNotConfirmed, err)
	}
	if strings.TrimSpace(line) != word {
		return errNotConfirmed
	}
	return nil
}
