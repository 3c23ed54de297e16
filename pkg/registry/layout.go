package registry

import "github.com/backkem/cardlock/pkg/credential"

// Storage layout. All offsets are fixed.
//
//	0      count      number of enrolled credentials
//	1      marker     InitializedMarker once provisioned
//	2..5   master     master credential
//	6..    entries    credential.Size bytes each, slot 1 first
const (
	AddrCount   = 0
	AddrMarker  = 1
	AddrMaster  = 2
	AddrEntries = AddrMaster + credential.Size

	// HeaderSize is the number of bytes before the first entry.
	HeaderSize = AddrEntries
)

// InitializedMarker is written at AddrMarker when the master credential is
// provisioned. Any other value means virgin storage.
const InitializedMarker byte = 0x8F

// MaxCapacity is the hard upper bound on entries; count is a single byte.
const MaxCapacity = 255

// CapacityFor returns how many entries a store of size bytes can hold.
func CapacityFor(size int) int {
	if size < HeaderSize {
		return 0
	}
	n := (size - HeaderSize) / credential.Size
	if n > MaxCapacity {
		n = MaxCapacity
	}
	return n
}

// slotAddr returns the address of the 1-indexed entry slot.
func slotAddr(slot int) int {
	return AddrEntries + (slot-1)*credential.Size
}
