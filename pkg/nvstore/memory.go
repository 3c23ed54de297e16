package nvstore

import (
	"fmt"
	"sync"
)

// DefaultSize matches the 1 KiB EEPROM of common lock controller boards.
const DefaultSize = 1024

// MemoryStore is an in-memory Store emulating an EEPROM.
// Useful for testing and simulation. Data is lost when the process exits.
//
// All methods are safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	data   []byte
	writes []uint32
}

// NewMemoryStore creates a virgin store of the given size with every cell
// set to ErasedValue.
func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	m := &MemoryStore{
		data:   make([]byte, size),
		writes: make([]uint32, size),
	}
	for i := range m.data {
		m.data[i] = ErasedValue
	}
	return m, nil
}

// NewMemoryStoreFrom creates a store holding a copy of image.
func NewMemoryStoreFrom(image []byte) (*MemoryStore, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidSize)
	}
	m := &MemoryStore{
		data:   make([]byte, len(image)),
		writes: make([]uint32, len(image)),
	}
	copy(m.data, image)
	return m, nil
}

// Get implements Store.
func (m *MemoryStore) Get(addr int) (byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := checkAddr(addr, len(m.data)); err != nil {
		return 0, err
	}
	return m.data[addr], nil
}

// Set implements Store.
func (m *MemoryStore) Set(addr int, v byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkAddr(addr, len(m.data)); err != nil {
		return err
	}
	m.data[addr] = v
	m.writes[addr]++
	return nil
}

// Size implements Store.
func (m *MemoryStore) Size() int {
	return len(m.data)
}

// WriteCount returns how many times the cell at addr has been written.
func (m *MemoryStore) WriteCount(addr int) uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if addr < 0 || addr >= len(m.writes) {
		return 0
	}
	return m.writes[addr]
}

// TotalWrites returns the number of writes across all cells.
func (m *MemoryStore) TotalWrites() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total uint64
	for _, w := range m.writes {
		total += uint64(w)
	}
	return total
}

// ResetCounters zeroes the write counters without touching the data.
func (m *MemoryStore) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.writes {
		m.writes[i] = 0
	}
}

// Bytes returns a copy of the store contents.
func (m *MemoryStore) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Verify MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
