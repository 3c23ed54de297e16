package nvstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// FileStore is a Store backed by a fixed-size image file.
//
// Every Set is written through to the file. When SyncWrites is enabled the
// file is also fsynced after each write, trading speed for the same
// durability a real EEPROM cell gives.
//
// All methods are safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	f    *os.File
	size int

	// SyncWrites forces an fsync after every Set.
	SyncWrites bool
}

// OpenFileStore opens the image at path. A missing file is created with
// size bytes of ErasedValue. An existing file keeps its own length; size is
// only used on creation.
func OpenFileStore(path string, size int) (*FileStore, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return createFileStore(path, size)
	}
	if err != nil {
		return nil, fmt.Errorf("nvstore: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("nvstore: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidSize, path)
	}

	return &FileStore{f: f, size: int(info.Size())}, nil
}

func createFileStore(path string, size int) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("nvstore: create %s: %w", path, err)
	}

	blank := make([]byte, size)
	for i := range blank {
		blank[i] = ErasedValue
	}
	if _, err := f.WriteAt(blank, 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("nvstore: initialize %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("nvstore: sync %s: %w", path, err)
	}

	return &FileStore{f: f, size: size}, nil
}

// Get implements Store.
func (s *FileStore) Get(addr int) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return 0, ErrClosed
	}
	if err := checkAddr(addr, s.size); err != nil {
		return 0, err
	}

	var buf [1]byte
	if _, err := s.f.ReadAt(buf[:], int64(addr)); err != nil {
		return 0, fmt.Errorf("nvstore: read %d: %w", addr, err)
	}
	return buf[0], nil
}

// Set implements Store.
func (s *FileStore) Set(addr int, v byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return ErrClosed
	}
	if err := checkAddr(addr, s.size); err != nil {
		return err
	}

	if _, err := s.f.WriteAt([]byte{v}, int64(addr)); err != nil {
		return fmt.Errorf("nvstore: write %d: %w", addr, err)
	}
	if s.SyncWrites {
		if err := s.f.Sync(); err != nil {
			return fmt.Errorf("nvstore: sync: %w", err)
		}
	}
	return nil
}

// Size implements Store.
func (s *FileStore) Size() int {
	return s.size
}

// Path returns the image file path.
func (s *FileStore) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return ""
	}
	return s.f.Name()
}

// Close flushes and closes the image file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	syncErr := s.f.Sync()
	closeErr := s.f.Close()
	s.f = nil
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// Verify FileStore implements Store.
var _ Store = (*FileStore)(nil)
