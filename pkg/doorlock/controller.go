package doorlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/backkem/cardlock/pkg/credential"
	"github.com/backkem/cardlock/pkg/registry"
	"github.com/pion/logging"
)

// Controller is the lock's control loop. It owns the mode state machine and
// the registry, and is driven by a single goroutine: Run, or Bootstrap
// followed by repeated Step calls.
//
// Controller is not safe for concurrent use.
type Controller struct {
	config Config
	reg    *registry.Registry
	log    logging.LeveledLogger

	state state
}

// state is all mutable controller state. Nothing outside it changes after
// New returns.
type state struct {
	mode         Mode
	bootstrapped bool
	halted       error
	lastTick     time.Time
}

// New creates a controller. The controller starts in Normal mode and must
// be bootstrapped before it handles scans.
func New(config Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	c := &Controller{
		config: config,
		reg:    config.Registry,
		state:  state{mode: ModeNormal},
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("doorlock")
	}
	return c, nil
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	return c.state.mode
}

// Halted returns the error that halted the controller, or nil.
func (c *Controller) Halted() error {
	return c.state.halted
}

// Run bootstraps the controller and polls until ctx is done. A clean
// shutdown returns nil. After a fatal error the controller emits a reader
// fault every HaltInterval until ctx is done and then returns that error.
// On return a sink implementing Releaser is released, so a door unlocked
// by a grant in progress is locked again.
func (c *Controller) Run(ctx context.Context) error {
	defer c.release()

	if err := c.Bootstrap(ctx); err != nil {
		if c.state.halted == nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		return c.haltLoop(ctx)
	}

	for {
		if err := c.Step(ctx); err != nil {
			if c.state.halted != nil {
				return c.haltLoop(ctx)
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.config.Clock.Sleep(ctx, c.config.PollInterval); err != nil {
			return nil
		}
	}
}

// Step performs one poll of the control loop: feedback tick, the
// administrative inputs in Normal mode, then one reader poll. Returns the
// halting error once the controller is halted.
func (c *Controller) Step(ctx context.Context) error {
	if c.state.halted != nil {
		return c.state.halted
	}
	if !c.state.bootstrapped {
		return ErrNotBootstrapped
	}
	c.tick()

	if c.state.mode == ModeNormal {
		if err := c.checkResetProvisioning(ctx); err != nil {
			return err
		}
		if c.config.Signals.OpenRequested() {
			c.debugf("momentary open requested")
			c.config.Sink.Granted(c.config.GrantDuration)
			return c.config.Clock.Sleep(ctx, c.config.GrantDuration)
		}
	}

	cred, ok, err := c.config.Source.TryRead()
	if err != nil {
		c.debugf("reader fault: %v", err)
		return nil
	}
	if !ok {
		return nil
	}

	outcome := c.HandleScan(cred)
	return c.hold(ctx, outcome)
}

// HandleScan classifies cred and applies the transition for the current
// mode:
//
//	Normal  master   -> EnterEnroll, Enroll
//	Normal  known    -> Granted
//	Normal  unknown  -> Denied
//	Enroll  master   -> ExitEnroll, Normal
//	Enroll  known    -> Remove, Removed or RemoveFailed
//	Enroll  unknown  -> Add, Added or AddFailed
//
// Registry errors are turned into notifications. Only storage failures
// halt the controller.
func (c *Controller) HandleScan(cred credential.Credential) Outcome {
	if c.state.halted != nil {
		return OutcomeHalted
	}

	isMaster, err := c.reg.IsMaster(cred)
	if err != nil {
		c.halt(fmt.Errorf("classify %s: %w", cred, err))
		return OutcomeHalted
	}

	if isMaster {
		switch c.state.mode {
		case ModeNormal:
			c.infof("master credential, entering enroll mode")
			c.setMode(ModeEnroll)
			c.config.Sink.EnterEnroll()
			return OutcomeEnterEnroll
		default:
			c.infof("master credential, leaving enroll mode")
			c.setMode(ModeNormal)
			c.config.Sink.ExitEnroll()
			return OutcomeExitEnroll
		}
	}

	known, err := c.reg.Contains(cred)
	if err != nil {
		c.halt(fmt.Errorf("look up %s: %w", cred, err))
		return OutcomeHalted
	}

	if c.state.mode == ModeNormal {
		if known {
			c.infof("access granted to %s", cred)
			c.config.Sink.Granted(c.config.GrantDuration)
			return OutcomeGranted
		}
		c.infof("access denied to %s", cred)
		c.config.Sink.Denied()
		return OutcomeDenied
	}

	if known {
		if err := c.reg.Remove(cred); err != nil {
			if c.haltIfFatal(err) {
				return OutcomeHalted
			}
			c.warnf("remove %s: %v", cred, err)
			c.config.Sink.RemoveFailed()
			return OutcomeRemoveFailed
		}
		c.infof("removed %s", cred)
		c.config.Sink.Removed()
		return OutcomeRemoved
	}

	if err := c.reg.Add(cred); err != nil {
		if c.haltIfFatal(err) {
			return OutcomeHalted
		}
		c.warnf("add %s: %v", cred, err)
		c.config.Sink.AddFailed()
		return OutcomeAddFailed
	}
	c.infof("added %s", cred)
	c.config.Sink.Added()
	return OutcomeAdded
}

// hold blocks after an outcome so the user sees the feedback. The reader
// is not polled meanwhile.
func (c *Controller) hold(ctx context.Context, o Outcome) error {
	switch o {
	case OutcomeHalted:
		return c.state.halted
	case OutcomeGranted:
		return c.config.Clock.Sleep(ctx, c.config.GrantDuration)
	case OutcomeDenied, OutcomeAdded, OutcomeRemoved, OutcomeAddFailed, OutcomeRemoveFailed:
		return c.config.Clock.Sleep(ctx, c.config.FeedbackHold)
	default:
		return nil
	}
}

func (c *Controller) setMode(m Mode) {
	if c.state.mode == m {
		return
	}
	c.state.mode = m
	if obs, ok := c.config.Sink.(ModeObserver); ok {
		obs.ModeChanged(m)
	}
	if c.config.OnModeChanged != nil {
		c.config.OnModeChanged(m)
	}
}

// haltIfFatal halts on storage incoherence and reports whether it did.
func (c *Controller) haltIfFatal(err error) bool {
	if !errors.Is(err, registry.ErrStorageIncoherent) {
		return false
	}
	c.halt(err)
	return true
}

func (c *Controller) halt(err error) {
	if c.state.halted != nil {
		return
	}
	c.state.halted = err
	if c.log != nil {
		c.log.Errorf("system halted: %v", err)
	}
}

// haltLoop emits a reader fault every HaltInterval until ctx is done.
func (c *Controller) haltLoop(ctx context.Context) error {
	for {
		c.config.Sink.ReaderFault()
		if err := c.config.Clock.Sleep(ctx, c.config.HaltInterval); err != nil {
			return c.state.halted
		}
	}
}

func (c *Controller) release() {
	if r, ok := c.config.Sink.(Releaser); ok {
		c.debugf("releasing outputs")
		r.Release()
	}
}

func (c *Controller) tick() {
	now := c.config.Clock.Now()
	c.state.lastTick = now
	if t, ok := c.config.Sink.(Ticker); ok {
		t.Tick(now)
	}
}

func (c *Controller) debugf(format string, args ...interface{}) {
	if c.log != nil {
		c.log.Debugf(format, args...)
	}
}

func (c *Controller) infof(format string, args ...interface{}) {
	if c.log != nil {
		c.log.Infof(format, args...)
	}
}

func (c *Controller) warnf(format string, args ...interface{}) {
	if c.log != nil {
		c.log.Warnf(format, args...)
	}
}
