package reader

import (
	"bufio"
	"fmt"

	"github.com/backkem/cardlock/pkg/credential"
)

// Frame delimiters used by the reader module link.
//
//	STX  LEN  UID[LEN]  XOR  ETX
//
// XOR is the exclusive-or of LEN and every UID byte.
const (
	frameSTX = 0x02
	frameETX = 0x03

	// maxUIDLen bounds LEN; longer frames are treated as line noise.
	maxUIDLen = 10
)

// EncodeFrame builds a link frame carrying uid.
func EncodeFrame(uid []byte) []byte {
	frame := make([]byte, 0, len(uid)+4)
	frame = append(frame, frameSTX, byte(len(uid)))
	frame = append(frame, uid...)
	frame = append(frame, checksum(uid), frameETX)
	return frame
}

func checksum(uid []byte) byte {
	sum := byte(len(uid))
	for _, b := range uid {
		sum ^= b
	}
	return sum
}

// readFrame reads the next frame from r, skipping bytes until STX. It
// returns a transport error as-is and a framing problem wrapped in
// ErrBadFrame or ErrUnsupportedUID, after which the caller may continue
// reading.
func readFrame(r *bufio.Reader) (credential.Credential, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return credential.Credential{}, err
		}
		if b == frameSTX {
			break
		}
	}

	n, err := r.ReadByte()
	if err != nil {
		return credential.Credential{}, err
	}
	if n == 0 || n > maxUIDLen {
		return credential.Credential{}, fmt.Errorf("%w: length %d", ErrBadFrame, n)
	}

	uid := make([]byte, n)
	for i := range uid {
		if uid[i], err = r.ReadByte(); err != nil {
			return credential.Credential{}, err
		}
	}
	sum, err := r.ReadByte()
	if err != nil {
		return credential.Credential{}, err
	}
	end, err := r.ReadByte()
	if err != nil {
		return credential.Credential{}, err
	}

	if end != frameETX {
		return credential.Credential{}, fmt.Errorf("%w: terminator 0x%02X", ErrBadFrame, end)
	}
	if sum != checksum(uid) {
		return credential.Credential{}, fmt.Errorf("%w: checksum 0x%02X, want 0x%02X", ErrBadFrame, sum, checksum(uid))
	}
	if len(uid) != credential.Size {
		return credential.Credential{}, fmt.Errorf("%w: %d bytes", ErrUnsupportedUID, len(uid))
	}
	return credential.New(uid)
}
