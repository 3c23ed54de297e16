// Package integration provides end-to-end tests of the door controller
// wired to a framed reader link, file storage and the output sinks.
package integration

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/backkem/cardlock/pkg/audit"
	"github.com/backkem/cardlock/pkg/credential"
	"github.com/backkem/cardlock/pkg/doorlock"
	"github.com/backkem/cardlock/pkg/feedback"
	"github.com/backkem/cardlock/pkg/nvstore"
	"github.com/backkem/cardlock/pkg/reader"
	"github.com/backkem/cardlock/pkg/registry"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/test"
)

// TestDoorConfig configures a TestDoor.
type TestDoorConfig struct {
	// StorePath is the storage image. If empty, a file in t.TempDir() is used.
	StorePath string

	// StoreSize is the storage image size. Default: 64.
	StoreSize int

	// Signals are the administrative inputs. Default: all released.
	Signals doorlock.Signals

	// Timeout bounds every wait. Default: 5s.
	Timeout time.Duration

	// LoggerFactory for logging. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// TestDoor is a running controller with a simulated reader module on the
// other end of a bridged link.
//
// Example usage:
//
//	door := NewTestDoor(t, TestDoorConfig{})
//	defer door.Close()
//	door.Scan(master)
//	door.WaitFor(doorlock.EventEnterEnroll, 1)
type TestDoor struct {
	Controller *doorlock.Controller
	Registry   *registry.Registry
	Store      *nvstore.FileStore
	Source     *reader.ConnSource
	Events     *doorlock.RecordingSink
	Relay      *feedback.RelaySink
	RelayOut   *feedback.RecordingRelay
	Journal    *audit.Journal

	t        *testing.T
	bridge   *test.Bridge
	timeout  time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	stopTick chan struct{}
	tickDone chan struct{}

	mu     sync.Mutex
	runErr error
}

// NewTestDoor opens the storage, connects the link and starts Run.
func NewTestDoor(t *testing.T, config TestDoorConfig) *TestDoor {
	t.Helper()

	if config.StorePath == "" {
		config.StorePath = filepath.Join(t.TempDir(), "nv.img")
	}
	if config.StoreSize == 0 {
		config.StoreSize = 64
	}
	if config.Signals == nil {
		config.Signals = doorlock.NoSignals{}
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	d := &TestDoor{
		t:        t,
		bridge:   test.NewBridge(),
		timeout:  config.Timeout,
		done:     make(chan struct{}),
		stopTick: make(chan struct{}),
		tickDone: make(chan struct{}),
		Events:   &doorlock.RecordingSink{},
	}
	go d.tickLoop()

	var err error
	d.Store, err = nvstore.OpenFileStore(config.StorePath, config.StoreSize)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	d.Registry, err = registry.New(registry.Config{Store: d.Store, LoggerFactory: config.LoggerFactory})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	d.Source, err = reader.NewConnSource(reader.ConnConfig{
		Conn:          d.bridge.GetConn0(),
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		t.Fatalf("NewConnSource: %v", err)
	}

	d.RelayOut = &feedback.RecordingRelay{}
	d.Relay, err = feedback.NewRelaySink(d.RelayOut)
	if err != nil {
		t.Fatalf("NewRelaySink: %v", err)
	}
	d.Journal, err = audit.Open(context.Background(), audit.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}

	d.Controller, err = doorlock.New(doorlock.Config{
		Registry:      d.Registry,
		Source:        d.Source,
		Sink:          feedback.Multi{d.Events, d.Relay, d.Journal},
		Signals:       config.Signals,
		GrantDuration: 20 * time.Millisecond,
		FeedbackHold:  5 * time.Millisecond,
		PollInterval:  time.Millisecond,
		HaltInterval:  5 * time.Millisecond,
		// Windows are sampled every PollInterval.
		FullWipeWindow:          30 * time.Millisecond,
		ResetProvisioningWindow: 20 * time.Millisecond,
		LoggerFactory:           config.LoggerFactory,
	})
	if err != nil {
		t.Fatalf("doorlock.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go func() {
		defer close(d.done)
		err := d.Controller.Run(ctx)
		d.mu.Lock()
		d.runErr = err
		d.mu.Unlock()
	}()
	return d
}

// tickLoop delivers bridge packets and closes every millisecond until
// Close has released the link.
func (d *TestDoor) tickLoop() {
	defer close(d.tickDone)

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopTick:
			return
		case <-ticker.C:
			d.bridge.Tick()
		}
	}
}

// Scan sends cred from the reader module and waits until the link has
// delivered it.
func (d *TestDoor) Scan(cred credential.Credential) {
	d.t.Helper()

	if _, err := d.bridge.GetConn1().Write(reader.EncodeFrame(cred.Bytes())); err != nil {
		d.t.Fatalf("reader write: %v", err)
	}
	d.Eventually("frame delivery", func() bool { return d.bridge.Len(1) == 0 })
}

// WaitFor blocks until event has been recorded at least n times.
func (d *TestDoor) WaitFor(event string, n int) {
	d.t.Helper()

	deadline := time.Now().Add(d.timeout)
	for d.Events.Count(event) < n {
		if time.Now().After(deadline) {
			d.t.Fatalf("timed out waiting for %d x %s, events: %v", n, event, d.Events.Events())
		}
		time.Sleep(time.Millisecond)
	}
}

// Eventually polls cond until it holds.
func (d *TestDoor) Eventually(what string, cond func() bool) {
	d.t.Helper()

	deadline := time.Now().Add(d.timeout)
	for !cond() {
		if time.Now().After(deadline) {
			d.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// Stop cancels Run and returns its result.
func (d *TestDoor) Stop() error {
	d.cancel()
	select {
	case <-d.done:
	case <-time.After(d.timeout):
		d.t.Fatalf("controller did not stop")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Close stops the controller and releases the link, journal and storage.
// The bridge keeps ticking until the link is closed. Close may be called
// more than once.
func (d *TestDoor) Close() {
	_ = d.Stop()
	_ = d.Source.Close()
	select {
	case <-d.stopTick:
	default:
		close(d.stopTick)
	}
	<-d.tickDone
	_ = d.Journal.Close()
	_ = d.Store.Close()
}
