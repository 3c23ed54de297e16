// Package registry manages the table of authorized credentials in
// non-volatile storage.
//
// The registry is a compacting table: enrolled credentials occupy slots
// 1..count with no gaps. Add appends at count+1; Remove shifts every later
// entry down one slot and zeroes the vacated tail, so the relative order of
// the remaining entries never changes. The master credential lives in its
// own slot ahead of the table and is never stored as an entry.
//
// Every write goes through nvstore.Update, so cells that already hold the
// target value are not rewritten.
//
// A multi-byte update such as the shift in Remove is not atomic against
// power loss. An interrupted shift can leave a duplicated or stale entry
// inside 1..count; recovery requires a wipe.
package registry

import (
	"fmt"

	"github.com/backkem/cardlock/pkg/credential"
	"github.com/backkem/cardlock/pkg/nvstore"
	"github.com/pion/logging"
)

// Config configures a Registry.
type Config struct {
	// Store is the backing non-volatile storage. Required.
	Store nvstore.Store

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// ProgressFunc receives wipe progress as cells processed out of total.
type ProgressFunc func(done, total int)

// Registry is the credential table.
//
// Registry is not safe for concurrent use. The lock controller owns it and
// serializes every operation.
type Registry struct {
	store    nvstore.Store
	capacity int
	log      logging.LeveledLogger
}

// New creates a registry over the configured store. It does not touch the
// store contents.
func New(config Config) (*Registry, error) {
	if config.Store == nil {
		return nil, ErrStoreRequired
	}
	if config.Store.Size() < HeaderSize {
		return nil, fmt.Errorf("%w: store of %d bytes is smaller than the %d byte header",
			ErrStorageIncoherent, config.Store.Size(), HeaderSize)
	}

	r := &Registry{
		store:    config.Store,
		capacity: CapacityFor(config.Store.Size()),
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("registry")
	}
	return r, nil
}

// Capacity returns the maximum number of enrolled credentials.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Provisioned reports whether a master credential has been stored.
func (r *Registry) Provisioned() (bool, error) {
	marker, err := r.store.Get(AddrMarker)
	if err != nil {
		return false, err
	}
	return marker == InitializedMarker, nil
}

// Check verifies that the persisted header is consistent with the store.
// Virgin storage is coherent.
func (r *Registry) Check() error {
	ok, err := r.Provisioned()
	if err != nil || !ok {
		return err
	}
	_, err = r.count()
	return err
}

// Count returns the number of enrolled credentials.
func (r *Registry) Count() (int, error) {
	if err := r.requireProvisioned(); err != nil {
		return 0, err
	}
	return r.count()
}

// Provision stores master as the master credential on virgin storage and
// starts an empty table. The marker is written last, so an interrupted
// provision leaves the storage virgin.
func (r *Registry) Provision(master credential.Credential) error {
	ok, err := r.Provisioned()
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyProvisioned
	}
	if !master.Matchable() {
		return fmt.Errorf("%w: %s", ErrUnmatchable, master)
	}

	if _, err := nvstore.WriteRange(r.store, AddrMaster, master[:]); err != nil {
		return fmt.Errorf("write master: %w", err)
	}
	if _, err := nvstore.Update(r.store, AddrCount, 0); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	if _, err := nvstore.Update(r.store, AddrMarker, InitializedMarker); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}

	if r.log != nil {
		r.log.Infof("provisioned master credential %s", master)
	}
	return nil
}

// Master returns the stored master credential.
func (r *Registry) Master() (credential.Credential, error) {
	if err := r.requireProvisioned(); err != nil {
		return credential.Credential{}, err
	}
	return r.read(AddrMaster)
}

// IsMaster reports whether c matches the master credential. The entry table
// is never consulted.
func (r *Registry) IsMaster(c credential.Credential) (bool, error) {
	master, err := r.Master()
	if err != nil {
		return false, err
	}
	return c.Matches(master), nil
}

// Contains reports whether c is enrolled.
func (r *Registry) Contains(c credential.Credential) (bool, error) {
	slot, err := r.Slot(c)
	if err != nil {
		return false, err
	}
	return slot != 0, nil
}

// Slot returns the 1-indexed slot holding c, or 0 if c is not enrolled.
func (r *Registry) Slot(c credential.Credential) (int, error) {
	count, err := r.Count()
	if err != nil {
		return 0, err
	}
	return r.find(c, count)
}

// Entries returns the enrolled credentials in slot order.
func (r *Registry) Entries() ([]credential.Credential, error) {
	count, err := r.Count()
	if err != nil {
		return nil, err
	}

	entries := make([]credential.Credential, 0, count)
	for slot := 1; slot <= count; slot++ {
		c, err := r.read(slotAddr(slot))
		if err != nil {
			return nil, err
		}
		entries = append(entries, c)
	}
	return entries, nil
}

// Add enrolls c in slot count+1.
//
// Returns ErrAlreadyExists if c is enrolled, ErrMasterCredential if c is the
// master credential, ErrUnmatchable if c has a zero first byte and
// ErrStorageFull if every slot is taken. Nothing is written on error.
func (r *Registry) Add(c credential.Credential) error {
	count, err := r.Count()
	if err != nil {
		return err
	}
	if !c.Matchable() {
		return fmt.Errorf("%w: %s", ErrUnmatchable, c)
	}

	isMaster, err := r.IsMaster(c)
	if err != nil {
		return err
	}
	if isMaster {
		return ErrMasterCredential
	}

	slot, err := r.find(c, count)
	if err != nil {
		return err
	}
	if slot != 0 {
		return ErrAlreadyExists
	}
	if count >= r.capacity {
		return ErrStorageFull
	}

	count++
	if _, err := nvstore.Update(r.store, AddrCount, byte(count)); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	if _, err := nvstore.WriteRange(r.store, slotAddr(count), c[:]); err != nil {
		return fmt.Errorf("write slot %d: %w", count, err)
	}

	if r.log != nil {
		r.log.Debugf("added %s at slot %d", c, count)
	}
	return nil
}

// Remove deletes c and closes the gap by shifting later entries down one
// slot. The vacated tail slot is zeroed.
//
// Returns ErrNotFound if c is not enrolled.
func (r *Registry) Remove(c credential.Credential) error {
	count, err := r.Count()
	if err != nil {
		return err
	}
	slot, err := r.find(c, count)
	if err != nil {
		return err
	}
	if slot == 0 {
		return ErrNotFound
	}

	if _, err := nvstore.Update(r.store, AddrCount, byte(count-1)); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for s := slot; s < count; s++ {
		next, err := nvstore.ReadRange(r.store, slotAddr(s+1), credential.Size)
		if err != nil {
			return fmt.Errorf("read slot %d: %w", s+1, err)
		}
		if _, err := nvstore.WriteRange(r.store, slotAddr(s), next); err != nil {
			return fmt.Errorf("shift slot %d: %w", s+1, err)
		}
	}
	if _, err := nvstore.WriteRange(r.store, slotAddr(count), make([]byte, credential.Size)); err != nil {
		return fmt.Errorf("clear slot %d: %w", count, err)
	}

	if r.log != nil {
		r.log.Debugf("removed %s from slot %d, %d entries remain", c, slot, count-1)
	}
	return nil
}

// Wipe zeroes the whole store, marker first, skipping cells that are
// already zero. The registry is left unprovisioned. progress may be nil; it
// is called after each credential-sized block.
func (r *Registry) Wipe(progress ProgressFunc) error {
	if _, err := nvstore.Update(r.store, AddrMarker, 0); err != nil {
		return fmt.Errorf("clear marker: %w", err)
	}

	size := r.store.Size()
	written := 0
	for addr := 0; addr < size; addr++ {
		ok, err := nvstore.Update(r.store, addr, 0)
		if err != nil {
			return fmt.Errorf("clear %d: %w", addr, err)
		}
		if ok {
			written++
		}
		if progress != nil && ((addr+1)%credential.Size == 0 || addr == size-1) {
			progress(addr+1, size)
		}
	}

	if r.log != nil {
		r.log.Infof("wiped storage, %d of %d cells written", written, size)
	}
	return nil
}

// ResetProvisioning clears the marker only. The master credential is
// invalidated and the next start provisions a new one, which also starts an
// empty table. Entry bytes are left in place.
func (r *Registry) ResetProvisioning() error {
	if err := r.requireProvisioned(); err != nil {
		return err
	}
	if _, err := nvstore.Update(r.store, AddrMarker, 0); err != nil {
		return fmt.Errorf("clear marker: %w", err)
	}

	if r.log != nil {
		r.log.Warn("master credential invalidated, restart to provision")
	}
	return nil
}

// String returns a summary of the registry.
func (r *Registry) String() string {
	count, err := r.Count()
	if err != nil {
		return fmt.Sprintf("Registry{%v, Capacity=%d}", err, r.capacity)
	}
	return fmt.Sprintf("Registry{Count=%d, Capacity=%d}", count, r.capacity)
}

func (r *Registry) requireProvisioned() error {
	ok, err := r.Provisioned()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotProvisioned
	}
	return nil
}

// count reads the count byte and bounds-checks it against capacity.
func (r *Registry) count() (int, error) {
	b, err := r.store.Get(AddrCount)
	if err != nil {
		return 0, err
	}
	if int(b) > r.capacity {
		return 0, fmt.Errorf("%w: count %d exceeds capacity %d", ErrStorageIncoherent, b, r.capacity)
	}
	return int(b), nil
}

func (r *Registry) find(c credential.Credential, count int) (int, error) {
	for slot := 1; slot <= count; slot++ {
		entry, err := r.read(slotAddr(slot))
		if err != nil {
			return 0, err
		}
		if c.Matches(entry) {
			return slot, nil
		}
	}
	return 0, nil
}

func (r *Registry) read(addr int) (credential.Credential, error) {
	b, err := nvstore.ReadRange(r.store, addr, credential.Size)
	if err != nil {
		return credential.Credential{}, err
	}
	return credential.New(b)
}
