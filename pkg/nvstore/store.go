// Package nvstore provides byte-addressable non-volatile storage for the lock.
//
// The registry treats storage as a small EEPROM: single-byte reads and
// writes at fixed addresses, contents surviving power loss, and a bounded
// number of write cycles per cell. Update implements the read-before-write
// rule that keeps unchanged cells from being rewritten.
//
// Implementations:
//   - MemoryStore: EEPROM emulation for tests and simulation, with per-cell
//     write counters
//   - FileStore: a fixed-size image file on disk
package nvstore

import (
	"errors"
	"fmt"
)

// Errors.
var (
	// ErrOutOfRange is returned for an address outside the store.
	ErrOutOfRange = errors.New("nvstore: address out of range")
	// ErrInvalidSize is returned when a store is created with a bad size.
	ErrInvalidSize = errors.New("nvstore: invalid size")
	// ErrClosed is returned when a closed store is accessed.
	ErrClosed = errors.New("nvstore: store closed")
)

// ErasedValue is the value of a cell that has never been written.
const ErasedValue byte = 0xFF

// Store is byte-addressable persistent storage.
//
// Addresses run from 0 to Size()-1. Implementations need not be safe for
// concurrent use; the lock controller serializes all access.
type Store interface {
	// Get reads the byte at addr.
	Get(addr int) (byte, error)
	// Set writes v at addr. Every call consumes a write cycle.
	Set(addr int, v byte) error
	// Size returns the number of addressable bytes.
	Size() int
}

// Update writes v at addr only if the cell holds a different value.
// It reports whether a write was issued.
func Update(s Store, addr int, v byte) (bool, error) {
	cur, err := s.Get(addr)
	if err != nil {
		return false, err
	}
	if cur == v {
		return false, nil
	}
	if err := s.Set(addr, v); err != nil {
		return false, err
	}
	return true, nil
}

// ReadRange reads n bytes starting at addr.
func ReadRange(s Store, addr, n int) ([]byte, error) {
	buf := make([]byte, n)
	for i := range buf {
		b, err := s.Get(addr + i)
		if err != nil {
			return nil, err
		}
		buf[i] = b
	}
	return buf, nil
}

// WriteRange writes data starting at addr through Update and returns the
// number of cells actually written.
func WriteRange(s Store, addr int, data []byte) (int, error) {
	written := 0
	for i, b := range data {
		ok, err := Update(s, addr+i, b)
		if err != nil {
			return written, err
		}
		if ok {
			written++
		}
	}
	return written, nil
}

// Snapshot returns a copy of the full store contents.
func Snapshot(s Store) ([]byte, error) {
	return ReadRange(s, 0, s.Size())
}

func checkAddr(addr, size int) error {
	if addr < 0 || addr >= size {
		return fmt.Errorf("%w: %d (size %d)", ErrOutOfRange, addr, size)
	}
	return nil
}
