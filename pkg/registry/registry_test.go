package registry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/backkem/cardlock/pkg/credential"
	"github.com/backkem/cardlock/pkg/nvstore"
)

var (
	testMaster = credential.MustParse("AA:BB:CC:DD")
	cardA      = credential.MustParse("11:22:33:44")
	cardB      = credential.MustParse("55:66:77:88")
	cardC      = credential.MustParse("99:AA:BB:CC")
)

// newTestRegistry creates a provisioned registry over a store of size bytes.
func newTestRegistry(t *testing.T, size int) (*Registry, *nvstore.MemoryStore) {
	t.Helper()

	store, err := nvstore.NewMemoryStore(size)
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}
	r, err := New(Config{Store: store})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := r.Provision(testMaster); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	return r, store
}

func mustEntries(t *testing.T, r *Registry) []credential.Credential {
	t.Helper()

	entries, err := r.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	return entries
}

func mustContains(t *testing.T, r *Registry, c credential.Credential) bool {
	t.Helper()

	ok, err := r.Contains(c)
	if err != nil {
		t.Fatalf("Contains(%s) failed: %v", c, err)
	}
	return ok
}

func TestNew(t *testing.T) {
	t.Run("store required", func(t *testing.T) {
		if _, err := New(Config{}); !errors.Is(err, ErrStoreRequired) {
			t.Errorf("expected ErrStoreRequired, got %v", err)
		}
	})

	t.Run("store too small", func(t *testing.T) {
		store, _ := nvstore.NewMemoryStore(HeaderSize - 1)
		if _, err := New(Config{Store: store}); !errors.Is(err, ErrStorageIncoherent) {
			t.Errorf("expected ErrStorageIncoherent, got %v", err)
		}
	})

	t.Run("capacity", func(t *testing.T) {
		tests := []struct {
			size int
			want int
		}{
			{HeaderSize, 0},
			{HeaderSize + 3, 0},
			{HeaderSize + 4, 1},
			{26, 5},
			{1024, 254},
			{4096, MaxCapacity},
		}
		for _, tc := range tests {
			store, _ := nvstore.NewMemoryStore(tc.size)
			r, err := New(Config{Store: store})
			if err != nil {
				t.Fatalf("New(%d) failed: %v", tc.size, err)
			}
			if r.Capacity() != tc.want {
				t.Errorf("Capacity() for %d bytes = %d, want %d", tc.size, r.Capacity(), tc.want)
			}
		}
	})
}

func TestProvision(t *testing.T) {
	store, _ := nvstore.NewMemoryStore(64)
	r, _ := New(Config{Store: store})

	ok, err := r.Provisioned()
	if err != nil || ok {
		t.Fatalf("virgin Provisioned() = %v, %v", ok, err)
	}
	if _, err := r.Count(); !errors.Is(err, ErrNotProvisioned) {
		t.Errorf("Count on virgin storage: expected ErrNotProvisioned, got %v", err)
	}
	if err := r.Add(cardA); !errors.Is(err, ErrNotProvisioned) {
		t.Errorf("Add on virgin storage: expected ErrNotProvisioned, got %v", err)
	}

	if err := r.Provision(credential.Credential{0x00, 0x01, 0x02, 0x03}); !errors.Is(err, ErrUnmatchable) {
		t.Errorf("expected ErrUnmatchable, got %v", err)
	}
	if ok, _ := r.Provisioned(); ok {
		t.Fatal("rejected provision must leave storage virgin")
	}

	if err := r.Provision(testMaster); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	b, _ := store.Get(AddrMarker)
	if b != InitializedMarker {
		t.Errorf("marker = 0x%02X, want 0x%02X", b, InitializedMarker)
	}
	master, err := r.Master()
	if err != nil || master != testMaster {
		t.Errorf("Master() = %v, %v", master, err)
	}
	count, err := r.Count()
	if err != nil || count != 0 {
		t.Errorf("Count() = %d, %v; want 0", count, err)
	}

	if err := r.Provision(cardA); !errors.Is(err, ErrAlreadyProvisioned) {
		t.Errorf("second Provision: expected ErrAlreadyProvisioned, got %v", err)
	}
}

func TestAddContains(t *testing.T) {
	r, _ := newTestRegistry(t, 64)

	if mustContains(t, r, cardA) {
		t.Fatal("empty registry should not contain cardA")
	}
	if err := r.Add(cardA); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !mustContains(t, r, cardA) {
		t.Error("Contains after Add should be true")
	}

	slot, err := r.Slot(cardA)
	if err != nil || slot != 1 {
		t.Errorf("Slot(cardA) = %d, %v; want 1", slot, err)
	}

	if err := r.Add(cardA); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate Add: expected ErrAlreadyExists, got %v", err)
	}
	if err := r.Add(testMaster); !errors.Is(err, ErrMasterCredential) {
		t.Errorf("Add(master): expected ErrMasterCredential, got %v", err)
	}

	count, _ := r.Count()
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestContains_Idempotent(t *testing.T) {
	r, store := newTestRegistry(t, 64)
	_ = r.Add(cardA)
	store.ResetCounters()

	for i := 0; i < 5; i++ {
		if !mustContains(t, r, cardA) {
			t.Fatalf("call %d: Contains(cardA) = false", i)
		}
		if mustContains(t, r, cardB) {
			t.Fatalf("call %d: Contains(cardB) = true", i)
		}
	}
	if store.TotalWrites() != 0 {
		t.Errorf("Contains wrote %d cells", store.TotalWrites())
	}
}

func TestRemove(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		r, _ := newTestRegistry(t, 64)
		if err := r.Remove(cardA); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		r, _ := newTestRegistry(t, 64)
		_ = r.Add(cardA)
		if err := r.Remove(cardA); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if mustContains(t, r, cardA) {
			t.Error("Contains after Remove should be false")
		}
	})

	t.Run("delete first of two", func(t *testing.T) {
		r, _ := newTestRegistry(t, 64)
		_ = r.Add(cardA)
		_ = r.Add(cardB)

		if err := r.Remove(cardA); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if !mustContains(t, r, cardB) {
			t.Fatal("cardB should still be enrolled")
		}
		slot, _ := r.Slot(cardB)
		if slot != 1 {
			t.Errorf("cardB slot = %d, want 1", slot)
		}
	})

	t.Run("tail zeroed", func(t *testing.T) {
		r, store := newTestRegistry(t, 64)
		_ = r.Add(cardA)
		_ = r.Add(cardB)
		_ = r.Remove(cardA)

		tail, _ := nvstore.ReadRange(store, slotAddr(2), credential.Size)
		for i, b := range tail {
			if b != 0 {
				t.Errorf("tail byte %d = 0x%02X, want 0", i, b)
			}
		}
	})
}

func TestDensePacking(t *testing.T) {
	r, _ := newTestRegistry(t, 128)

	var cards []credential.Credential
	for i := 1; i <= 6; i++ {
		c := credential.Credential{byte(i), 0x10, 0x20, byte(0x30 + i)}
		cards = append(cards, c)
		if err := r.Add(c); err != nil {
			t.Fatalf("Add(%s) failed: %v", c, err)
		}
	}
	before := mustEntries(t, r)

	for _, victim := range []int{0, 2, 5} {
		t.Run(fmt.Sprintf("remove %d", victim), func(t *testing.T) {
			c := cards[victim]
			if err := r.Remove(c); err != nil {
				t.Fatalf("Remove failed: %v", err)
			}

			var want []credential.Credential
			for _, e := range before {
				if e != c {
					want = append(want, e)
				}
			}
			got := mustEntries(t, r)
			assertEntries(t, got, want)

			// Re-adding appends at the end; every other entry keeps its order.
			if err := r.Add(c); err != nil {
				t.Fatalf("re-Add failed: %v", err)
			}
			got = mustEntries(t, r)
			assertEntries(t, got, append(want, c))
			assertNoDuplicates(t, got)

			if err := r.Remove(c); err != nil {
				t.Fatalf("Remove after re-Add failed: %v", err)
			}
			if err := r.Add(c); err != nil {
				t.Fatalf("second re-Add failed: %v", err)
			}
			before = mustEntries(t, r)
		})
	}
}

func TestAddThenRemove_RestoresSequence(t *testing.T) {
	r, _ := newTestRegistry(t, 64)
	_ = r.Add(cardA)
	_ = r.Add(cardB)
	before := mustEntries(t, r)

	if err := r.Add(cardC); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := r.Remove(cardC); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	assertEntries(t, mustEntries(t, r), before)
}

func TestStorageFull(t *testing.T) {
	// Room for exactly two entries.
	r, store := newTestRegistry(t, HeaderSize+2*credential.Size)
	_ = r.Add(cardA)
	_ = r.Add(cardB)

	snapshot := store.Bytes()
	store.ResetCounters()

	if err := r.Add(cardC); !errors.Is(err, ErrStorageFull) {
		t.Fatalf("expected ErrStorageFull, got %v", err)
	}
	if store.TotalWrites() != 0 {
		t.Errorf("failed Add wrote %d cells", store.TotalWrites())
	}
	if string(store.Bytes()) != string(snapshot) {
		t.Error("failed Add mutated storage")
	}
	if err := r.Add(cardA); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate on full registry: expected ErrAlreadyExists, got %v", err)
	}
}

func TestMasterExclusivity(t *testing.T) {
	r, _ := newTestRegistry(t, 64)
	_ = r.Add(cardA)
	_ = r.Add(testMaster)

	for _, c := range []credential.Credential{testMaster, cardA, cardB} {
		isMaster, err := r.IsMaster(c)
		if err != nil {
			t.Fatalf("IsMaster failed: %v", err)
		}
		if isMaster && mustContains(t, r, c) {
			t.Errorf("%s is master and enrolled", c)
		}
	}

	ok, _ := r.IsMaster(testMaster)
	if !ok {
		t.Error("IsMaster(master) should be true")
	}
	ok, _ = r.IsMaster(cardA)
	if ok {
		t.Error("IsMaster(cardA) should be false")
	}
}

func TestZeroCredentialQuirk(t *testing.T) {
	r, _ := newTestRegistry(t, 64)

	if mustContains(t, r, credential.Zero) {
		t.Error("all-zero credential should not be contained")
	}
	if err := r.Add(credential.Zero); !errors.Is(err, ErrUnmatchable) {
		t.Errorf("Add(zero): expected ErrUnmatchable, got %v", err)
	}
	if mustContains(t, r, credential.Zero) {
		t.Error("all-zero credential never matches itself")
	}

	// Removed slots are zeroed and must not be found either.
	_ = r.Add(cardA)
	_ = r.Remove(cardA)
	if mustContains(t, r, credential.Zero) {
		t.Error("zeroed tail slot matched")
	}
}

func TestWriteEndurance(t *testing.T) {
	r, store := newTestRegistry(t, 64)
	_ = r.Add(cardA)
	_ = r.Add(cardB)
	_ = r.Add(cardC)
	store.ResetCounters()

	// Removing cardC only rewrites the count byte and its four cells.
	if err := r.Remove(cardC); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if got := store.TotalWrites(); got != 5 {
		t.Errorf("Remove(last) wrote %d cells, want 5", got)
	}

	// Provisioning the same bytes again is rejected; nothing is written.
	store.ResetCounters()
	_ = r.Provision(testMaster)
	if store.TotalWrites() != 0 {
		t.Errorf("rejected Provision wrote %d cells", store.TotalWrites())
	}
}

func TestWipe(t *testing.T) {
	r, store := newTestRegistry(t, 64)
	_ = r.Add(cardA)

	nonZero := 0
	for _, b := range store.Bytes() {
		if b != 0 {
			nonZero++
		}
	}
	store.ResetCounters()

	var calls, lastDone, lastTotal int
	err := r.Wipe(func(done, total int) {
		calls++
		lastDone, lastTotal = done, total
	})
	if err != nil {
		t.Fatalf("Wipe failed: %v", err)
	}

	for i, b := range store.Bytes() {
		if b != 0 {
			t.Fatalf("cell %d = 0x%02X after wipe", i, b)
		}
	}
	if got := store.TotalWrites(); got != uint64(nonZero) {
		t.Errorf("Wipe wrote %d cells, want %d (zero cells skipped)", got, nonZero)
	}
	if calls != 64/credential.Size || lastDone != 64 || lastTotal != 64 {
		t.Errorf("progress: calls=%d last=%d/%d", calls, lastDone, lastTotal)
	}
	if ok, _ := r.Provisioned(); ok {
		t.Error("registry should be unprovisioned after wipe")
	}

	// Wiping zeroed storage writes nothing.
	store.ResetCounters()
	if err := r.Wipe(nil); err != nil {
		t.Fatalf("second Wipe failed: %v", err)
	}
	if store.TotalWrites() != 0 {
		t.Errorf("second Wipe wrote %d cells", store.TotalWrites())
	}
}

func TestResetProvisioning(t *testing.T) {
	r, store := newTestRegistry(t, 64)
	_ = r.Add(cardA)

	if err := r.ResetProvisioning(); err != nil {
		t.Fatalf("ResetProvisioning failed: %v", err)
	}
	if ok, _ := r.Provisioned(); ok {
		t.Fatal("registry should be unprovisioned")
	}
	if _, err := r.IsMaster(testMaster); !errors.Is(err, ErrNotProvisioned) {
		t.Errorf("IsMaster after reset: expected ErrNotProvisioned, got %v", err)
	}

	// Entry bytes are left in place.
	entry, _ := nvstore.ReadRange(store, slotAddr(1), credential.Size)
	if string(entry) != string(cardA[:]) {
		t.Errorf("slot 1 = % X, want % X", entry, cardA[:])
	}

	// Re-provisioning starts an empty table.
	if err := r.Provision(cardB); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	count, _ := r.Count()
	if count != 0 {
		t.Errorf("Count() after re-provision = %d, want 0", count)
	}
	if mustContains(t, r, cardA) {
		t.Error("stale entry must not be authoritative")
	}

	if err := r.ResetProvisioning(); err != nil {
		t.Fatalf("second ResetProvisioning failed: %v", err)
	}
	if err := r.ResetProvisioning(); !errors.Is(err, ErrNotProvisioned) {
		t.Errorf("ResetProvisioning on virgin storage: expected ErrNotProvisioned, got %v", err)
	}
}

func TestCheck_Incoherent(t *testing.T) {
	r, store := newTestRegistry(t, 26) // capacity 5
	if err := r.Check(); err != nil {
		t.Fatalf("Check on fresh registry: %v", err)
	}

	_ = store.Set(AddrCount, 6)
	if err := r.Check(); !errors.Is(err, ErrStorageIncoherent) {
		t.Errorf("expected ErrStorageIncoherent, got %v", err)
	}
	if _, err := r.Contains(cardA); !errors.Is(err, ErrStorageIncoherent) {
		t.Errorf("Contains: expected ErrStorageIncoherent, got %v", err)
	}

	// Virgin storage with garbage count is coherent.
	_ = store.Set(AddrMarker, nvstore.ErasedValue)
	if err := r.Check(); err != nil {
		t.Errorf("Check on virgin storage: %v", err)
	}
}

func assertEntries(t *testing.T, got, want []credential.Credential) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("entries = %v, want %v", got, want)
		}
	}
}

func assertNoDuplicates(t *testing.T, entries []credential.Credential) {
	t.Helper()

	seen := make(map[credential.Credential]bool)
	for _, e := range entries {
		if seen[e] {
			t.Fatalf("duplicate entry %s in %v", e, entries)
		}
		seen[e] = true
	}
}

// TestCountMatchingMarkerValue fills the table until the count byte holds
// the same value as the marker byte. The two fields live at separate
// addresses and must not be confused.
func TestCountMatchingMarkerValue(t *testing.T) {
	r, store := newTestRegistry(t, 1024)

	n := int(InitializedMarker)
	var last credential.Credential
	for i := 1; i <= n; i++ {
		last = credential.Credential{0x01, byte(i >> 8), byte(i), 0x5A}
		if err := r.Add(last); err != nil {
			t.Fatalf("Add #%d failed: %v", i, err)
		}
	}

	if b, _ := store.Get(AddrCount); b != InitializedMarker {
		t.Fatalf("count byte = %#x, want %#x", b, InitializedMarker)
	}
	if err := r.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ok, err := r.Provisioned(); err != nil || !ok {
		t.Fatalf("Provisioned = %v, %v", ok, err)
	}
	if ok, err := r.IsMaster(testMaster); err != nil || !ok {
		t.Fatalf("IsMaster(master) = %v, %v", ok, err)
	}
	if !mustContains(t, r, last) {
		t.Fatalf("last entry not found")
	}

	if err := r.Remove(last); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if count, err := r.Count(); err != nil || count != n-1 {
		t.Fatalf("Count = %d, %v, want %d", count, err, n-1)
	}
}
