package nvstore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
)

// Backup errors.
var (
	// ErrDigestMismatch is returned when a backup image fails verification.
	ErrDigestMismatch = errors.New("nvstore: backup digest mismatch")
	// ErrSizeMismatch is returned when a backup does not fit the target store.
	ErrSizeMismatch = errors.New("nvstore: backup size does not match store")
)

// backupFormat is bumped when the backup document changes shape.
const backupFormat = 1

// Image is the decoded content of a backup.
type Image struct {
	Format  int       `json:"format"`
	Created time.Time `json:"created"`
	Size    int       `json:"size"`
	Data    []byte    `json:"data"`
	Digest  string    `json:"digest"`
}

// Digest returns the hex BLAKE2b-256 digest of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Backup writes a zstd-compressed JSON image of the whole store to w.
func Backup(w io.Writer, s Store) error {
	data, err := Snapshot(s)
	if err != nil {
		return fmt.Errorf("read store: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}

	img := Image{
		Format:  backupFormat,
		Created: time.Now().UTC(),
		Size:    len(data),
		Data:    data,
		Digest:  Digest(data),
	}
	if err := json.NewEncoder(zw).Encode(&img); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode backup: %w", err)
	}
	return zw.Close()
}

// ReadImage decodes and verifies a backup produced by Backup.
func ReadImage(r io.Reader) (*Image, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	var img Image
	if err := json.NewDecoder(zr).Decode(&img); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	if img.Format != backupFormat {
		return nil, fmt.Errorf("nvstore: unsupported backup format %d", img.Format)
	}
	if img.Size != len(img.Data) {
		return nil, fmt.Errorf("%w: header says %d, image has %d", ErrSizeMismatch, img.Size, len(img.Data))
	}
	if Digest(img.Data) != img.Digest {
		return nil, ErrDigestMismatch
	}
	return &img, nil
}

// Restore verifies a backup and writes it into s. Only cells that differ
// are written. It returns the number of cells written.
func Restore(r io.Reader, s Store) (int, error) {
	img, err := ReadImage(r)
	if err != nil {
		return 0, err
	}
	if img.Size != s.Size() {
		return 0, fmt.Errorf("%w: backup %d, store %d", ErrSizeMismatch, img.Size, s.Size())
	}
	return WriteRange(s, 0, img.Data)
}
