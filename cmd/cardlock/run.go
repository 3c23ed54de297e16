package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/backkem/cardlock/internal/i18n"
	"github.com/backkem/cardlock/pkg/credential"
	"github.com/backkem/cardlock/pkg/doorlock"
	"github.com/backkem/cardlock/pkg/feedback"
	"github.com/backkem/cardlock/pkg/reader"
	"github.com/backkem/cardlock/pkg/registry"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newRunCmd(a *app) *cobra.Command {
	var inputs string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the door controller",
		Long: `Run the door controller against the storage image.

Cards are read from a reader module at --reader (host:port), or as hex
lines from standard input when no reader is configured. With --inputs,
files named "wipe", "reset" and "open" in that directory act as the
administrative inputs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, inputs)
		},
	}
	cmd.Flags().String("reader", "", "reader module address (host:port)")
	cmd.Flags().StringVar(&inputs, "inputs", "", "directory of input files")
	return cmd
}

func (a *app) run(cmd *cobra.Command, inputs string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	reg, err := registry.New(registry.Config{Store: store, LoggerFactory: a.lf})
	if err != nil {
		return err
	}

	source, closeSource, err := a.openSource(ctx, cmd, cancel)
	if err != nil {
		return err
	}
	defer closeSource()

	sink, closeSink, err := a.buildSink(ctx)
	if err != nil {
		return err
	}
	defer closeSink()

	var signals doorlock.Signals = doorlock.NoSignals{}
	if inputs != "" {
		signals = fileSignals{dir: inputs}
	}

	door := a.cfg.Door
	ctrl, err := doorlock.New(doorlock.Config{
		Registry:                reg,
		Source:                  source,
		Sink:                    sink,
		Signals:                 signals,
		GrantDuration:           door.GrantDuration,
		FeedbackHold:            door.FeedbackHold,
		PollInterval:            door.PollInterval,
		FullWipeWindow:          door.FullWipeWindow,
		ResetProvisioningWindow: door.ResetProvisioningWindow,
		HaltInterval:            door.HaltInterval,
		LoggerFactory:           a.lf,
		OnModeChanged: func(m doorlock.Mode) {
			name := a.cat.T(i18n.MsgModeNormal)
			if m == doorlock.ModeEnroll {
				name = a.cat.T(i18n.MsgModeEnroll)
			}
			a.log.Infof("mode: %s", name)
		},
	})
	if err != nil {
		return err
	}

	if provisioned, err := reg.Provisioned(); err == nil && !provisioned {
		a.printf(cmd, "%s\n", a.cat.T(i18n.MsgProvisionPrompt))
	}

	err = ctrl.Run(ctx)
	if errors.Is(err, doorlock.ErrRestartRequired) {
		a.printf(cmd, "%s\n", a.cat.T(i18n.MsgRestartRequired))
	}
	return err
}

// openSource connects to the reader module, or reads the console.
func (a *app) openSource(ctx context.Context, cmd *cobra.Command, stop context.CancelFunc) (doorlock.ScanSource, func(), error) {
	addr := a.cfg.Reader.Address
	if addr != "" {
		d := net.Dialer{Timeout: a.cfg.Reader.Dial}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, nil, fmt.Errorf("reader %s: %w", addr, err)
		}
		src, err := reader.NewConnSource(reader.ConnConfig{
			Conn:          conn,
			QueueSize:     a.cfg.Reader.QueueSize,
			LoggerFactory: a.lf,
		})
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		a.log.Infof("reading cards from %s", addr)
		return src, func() { _ = src.Close() }, nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		a.printf(cmd, "enter card IDs as hex, e.g. DE:AD:BE:EF\n")
	}
	src, err := reader.NewLineSource(reader.LineConfig{
		Input:         in,
		QueueSize:     a.cfg.Reader.QueueSize,
		LoggerFactory: a.lf,
	})
	if err != nil {
		return nil, nil, err
	}
	return &consoleSource{src: src, stop: stop}, func() {}, nil
}

// consoleSource ends the run once console input is exhausted and every
// queued line has been read. It does not expose Probe, so a short piped
// input that ends before startup is not a reader fault.
type consoleSource struct {
	src  *reader.LineSource
	stop context.CancelFunc
	once sync.Once
}

func (c *consoleSource) TryRead() (credential.Credential, bool, error) {
	cred, ok, err := c.src.TryRead()
	if errors.Is(err, reader.ErrClosed) {
		c.once.Do(c.stop)
	}
	return cred, ok, err
}

// buildSink fans out to the log stream, the indicator and relay
// stand-ins, and the audit journal when enabled.
func (a *app) buildSink(ctx context.Context) (doorlock.Sink, func(), error) {
	indicator, err := feedback.NewIndicatorSink(feedback.IndicatorConfig{
		Indicator:    feedback.NewLogIndicator(a.lf),
		BlinkPeriod:  a.cfg.Door.BlinkPeriod,
		FeedbackHold: a.cfg.Door.FeedbackHold,
	})
	if err != nil {
		return nil, nil, err
	}
	relay, err := feedback.NewRelaySink(feedback.NewLogRelay(a.lf))
	if err != nil {
		return nil, nil, err
	}

	sinks := feedback.Multi{
		feedback.NewLogSink(feedback.LogConfig{LoggerFactory: a.lf, Catalog: a.cat}),
		indicator,
		relay,
	}

	j, err := a.openJournal(ctx)
	if err != nil {
		return nil, nil, err
	}
	if j == nil {
		return sinks, func() {}, nil
	}
	return append(sinks, j), func() { _ = j.Close() }, nil
}
