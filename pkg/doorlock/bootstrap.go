package doorlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/backkem/cardlock/pkg/registry"
)

// Bootstrap runs the startup sequence:
//
//  1. reader self-test, if the source implements Prober
//  2. full wipe, if the wipe input is held for FullWipeWindow
//  3. storage coherence check
//  4. master provisioning on virgin storage: poll until a card is scanned
//     and store it as the master credential
//
// A failed self-test or an incoherent store halts the controller and the
// halting error is returned. Bootstrap returns ctx.Err() if ctx is done
// while waiting for a master card.
func (c *Controller) Bootstrap(ctx context.Context) error {
	if c.state.halted != nil {
		return c.state.halted
	}

	if p, ok := c.config.Source.(Prober); ok {
		if err := p.Probe(); err != nil {
			c.config.Sink.ReaderFault()
			c.halt(fmt.Errorf("%w: %v", ErrReaderFault, err))
			return c.state.halted
		}
	}

	if err := c.startupWipe(ctx); err != nil {
		return err
	}

	if err := c.reg.Check(); err != nil {
		c.halt(err)
		return c.state.halted
	}

	provisioned, err := c.reg.Provisioned()
	if err != nil {
		c.halt(err)
		return c.state.halted
	}
	if !provisioned {
		if err := c.provisionMaster(ctx); err != nil {
			return err
		}
	}

	count, err := c.reg.Count()
	if err != nil {
		c.halt(err)
		return c.state.halted
	}
	c.infof("ready, %d of %d credentials enrolled", count, c.reg.Capacity())

	c.state.mode = ModeNormal
	c.state.bootstrapped = true
	return nil
}

// startupWipe erases every record when the wipe input is held through the
// full confirmation window.
func (c *Controller) startupWipe(ctx context.Context) error {
	if !c.config.Signals.WipeHeld() {
		return nil
	}
	if c.log != nil {
		c.log.Warnf("wipe input held, release within %s to cancel", c.config.FullWipeWindow)
	}

	confirmed, err := c.confirm(ctx, c.config.Signals.WipeHeld, c.config.FullWipeWindow)
	if err != nil {
		return err
	}
	if !confirmed {
		c.infof("wipe cancelled")
		return nil
	}

	if err := c.reg.Wipe(func(done, total int) {
		c.config.Sink.WipeProgress()
	}); err != nil {
		c.halt(fmt.Errorf("wipe: %w", err))
		return c.state.halted
	}
	c.infof("all records wiped")
	c.config.Sink.WipeComplete()
	return nil
}

// provisionMaster blocks until a matchable card is scanned and stores it as
// the master credential.
func (c *Controller) provisionMaster(ctx context.Context) error {
	c.infof("no master credential defined, scan a card to define one")

	for {
		c.tick()

		cred, ok, err := c.config.Source.TryRead()
		if err != nil {
			c.debugf("reader fault: %v", err)
		}
		if err == nil && ok {
			err := c.reg.Provision(cred)
			switch {
			case err == nil:
				c.infof("master credential defined: %s", cred)
				return nil
			case errors.Is(err, registry.ErrUnmatchable):
				c.warnf("cannot use %s as master credential: %v", cred, err)
			default:
				c.halt(fmt.Errorf("provision: %w", err))
				return c.state.halted
			}
		}

		if err := c.config.Clock.Sleep(ctx, c.config.PollInterval); err != nil {
			return err
		}
	}
}

// checkResetProvisioning invalidates the master credential when the reset
// input is held through ResetProvisioningWindow, then halts until restart.
func (c *Controller) checkResetProvisioning(ctx context.Context) error {
	if !c.config.Signals.ResetHeld() {
		return nil
	}
	if c.log != nil {
		c.log.Warnf("reset input held, master credential will be erased in %s", c.config.ResetProvisioningWindow)
	}

	confirmed, err := c.confirm(ctx, c.config.Signals.ResetHeld, c.config.ResetProvisioningWindow)
	if err != nil {
		return err
	}
	if !confirmed {
		c.infof("reset cancelled")
		return nil
	}

	if err := c.reg.ResetProvisioning(); err != nil {
		c.halt(fmt.Errorf("reset provisioning: %w", err))
		return c.state.halted
	}
	c.config.Sink.WipeComplete()
	c.halt(ErrRestartRequired)
	return c.state.halted
}

// confirm implements the two-phase confirmation: held must stay asserted
// for the whole window, sampled every PollInterval. Releasing it at any
// sample aborts without side effects.
func (c *Controller) confirm(ctx context.Context, held func() bool, window time.Duration) (bool, error) {
	if !held() {
		return false, nil
	}

	deadline := c.config.Clock.Now().Add(window)
	for {
		remaining := deadline.Sub(c.config.Clock.Now())
		if remaining <= 0 {
			break
		}
		step := c.config.PollInterval
		if step > remaining {
			step = remaining
		}
		if err := c.config.Clock.Sleep(ctx, step); err != nil {
			return false, err
		}
		if !held() {
			return false, nil
		}
	}
	return held(), nil
}
