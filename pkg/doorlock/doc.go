// Package doorlock implements the control loop of a card-operated door lock.
//
// A Controller owns the credential registry and a two-state mode machine.
// It polls a ScanSource, classifies each card against the registry and
// reports the outcome to a Sink:
//
//	mode    card     action
//	Normal  master   EnterEnroll, switch to Enroll
//	Normal  known    Granted(GrantDuration)
//	Normal  unknown  Denied
//	Enroll  master   ExitEnroll, switch to Normal
//	Enroll  known    remove it, Removed or RemoveFailed
//	Enroll  unknown  add it, Added or AddFailed
//
// The master credential never opens the door. The mode is not persisted;
// every start begins in Normal.
//
// # Startup
//
// Bootstrap probes the reader if the source implements Prober, offers a full
// wipe while the wipe input is held for FullWipeWindow, checks storage
// coherence and, on virgin storage, waits for the first card and stores it
// as the master credential.
//
// # Administrative inputs
//
// In Normal mode the reset input, held for ResetProvisioningWindow,
// invalidates the master credential and halts with ErrRestartRequired. The
// open input grants access without a card. A window aborts without side
// effects if its input is released at any sample.
//
// # Halting
//
// Incoherent storage or a failed probe halts the controller. A halted
// controller ignores the reader and reports ReaderFault every HaltInterval.
//
// # Running
//
//	ctrl, err := doorlock.New(doorlock.Config{
//	    Registry: reg,
//	    Source:   src,
//	    Sink:     sink,
//	    Signals:  doorlock.NoSignals{},
//	})
//	if err != nil {
//	    return err
//	}
//	return ctrl.Run(ctx)
//
// For tests, FakeClock, FakeSignals, FakeSource and RecordingSink drive the
// controller step by step with Bootstrap and Step.
package doorlock
