package reader

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/backkem/cardlock/pkg/credential"
	"github.com/backkem/cardlock/pkg/doorlock"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/test"
)

var (
	_ doorlock.ScanSource = (*ConnSource)(nil)
	_ doorlock.Prober     = (*ConnSource)(nil)
	_ doorlock.ScanSource = (*LineSource)(nil)
	_ doorlock.Prober     = (*LineSource)(nil)
)

// poll calls TryRead until it yields a card or an error, or the timeout passes.
func poll(t *testing.T, src doorlock.ScanSource) (credential.Credential, error) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cred, ok, err := src.TryRead()
		if ok || err != nil {
			return cred, err
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no read within timeout")
	return credential.Credential{}, nil
}

// newTickingBridge returns a bridge that delivers packets and closes from a
// background goroutine every millisecond. The goroutine stops at test
// cleanup, after any deferred Close in the test body has returned.
func newTickingBridge(t *testing.T) *test.Bridge {
	t.Helper()

	br := test.NewBridge()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				br.Tick()
			}
		}
	}()
	t.Cleanup(func() {
		close(stop)
		<-done
	})
	return br
}

func TestEncodeFrame(t *testing.T) {
	got := EncodeFrame([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	want := []byte{frameSTX, 4, 0xDE, 0xAD, 0xBE, 0xEF, 4 ^ 0xDE ^ 0xAD ^ 0xBE ^ 0xEF, frameETX}
	if !bytes.Equal(got, want) {
		t.Fatalf("EncodeFrame = % X, want % X", got, want)
	}
}

func TestReadFrame(t *testing.T) {
	uid := []byte{0x11, 0x22, 0x33, 0x44}

	badSum := EncodeFrame(uid)
	badSum[6] ^= 0xFF
	badEnd := EncodeFrame(uid)
	badEnd[7] = 0x00

	tests := []struct {
		name    string
		input   []byte
		want    credential.Credential
		wantErr error
	}{
		{"valid", EncodeFrame(uid), credential.MustParse("11:22:33:44"), nil},
		{"leading noise", append([]byte{0xFF, 0x00, 0x7E}, EncodeFrame(uid)...), credential.MustParse("11:22:33:44"), nil},
		{"bad checksum", badSum, credential.Credential{}, ErrBadFrame},
		{"bad terminator", badEnd, credential.Credential{}, ErrBadFrame},
		{"zero length", []byte{frameSTX, 0, 0, frameETX}, credential.Credential{}, ErrBadFrame},
		{"seven byte uid", EncodeFrame([]byte{1, 2, 3, 4, 5, 6, 7}), credential.Credential{}, ErrUnsupportedUID},
		{"truncated", EncodeFrame(uid)[:4], credential.Credential{}, io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readFrame(bufio.NewReader(bytes.NewReader(tt.input)))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("readFrame() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("readFrame() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("readFrame() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadFrame_ResyncsAfterBadFrame(t *testing.T) {
	bad := EncodeFrame([]byte{1, 2, 3, 4})
	bad[6] ^= 0x01
	input := append(bad, EncodeFrame([]byte{5, 6, 7, 8})...)

	r := bufio.NewReader(bytes.NewReader(input))
	if _, err := readFrame(r); !errors.Is(err, ErrBadFrame) {
		t.Fatalf("first frame error = %v, want ErrBadFrame", err)
	}
	got, err := readFrame(r)
	if err != nil {
		t.Fatalf("second frame error = %v", err)
	}
	if got != credential.MustParse("05060708") {
		t.Fatalf("second frame = %v", got)
	}
}

func TestNewConnSource_RequiresConn(t *testing.T) {
	if _, err := NewConnSource(ConnConfig{}); !errors.Is(err, ErrConnRequired) {
		t.Fatalf("NewConnSource() error = %v, want ErrConnRequired", err)
	}
}

func TestConnSource_Bridge(t *testing.T) {
	br := newTickingBridge(t)
	src, err := NewConnSource(ConnConfig{
		Conn:          br.GetConn0(),
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("NewConnSource() error = %v", err)
	}
	defer src.Close()

	module := br.GetConn1()

	if _, ok, err := src.TryRead(); ok || err != nil {
		t.Fatalf("TryRead() on idle link = %v, %v", ok, err)
	}
	if err := src.Probe(); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	t.Run("card", func(t *testing.T) {
		if _, err := module.Write(EncodeFrame([]byte{0xCA, 0xFE, 0xBA, 0xBE})); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		got, err := poll(t, src)
		if err != nil {
			t.Fatalf("TryRead() error = %v", err)
		}
		if got != credential.MustParse("CA:FE:BA:BE") {
			t.Fatalf("TryRead() = %v", got)
		}
	})

	t.Run("corrupt frame is transient", func(t *testing.T) {
		frame := EncodeFrame([]byte{1, 2, 3, 4})
		frame[6] ^= 0x10
		if _, err := module.Write(frame); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		if _, err := poll(t, src); !errors.Is(err, ErrBadFrame) {
			t.Fatalf("TryRead() error = %v, want ErrBadFrame", err)
		}
		if err := src.Probe(); err != nil {
			t.Fatalf("Probe() after bad frame = %v", err)
		}
		if got := src.Stats().Faults; got != 1 {
			t.Fatalf("Faults = %d, want 1", got)
		}
	})
}

func TestConnSource_BridgeClose(t *testing.T) {
	br := newTickingBridge(t)
	src, err := NewConnSource(ConnConfig{Conn: br.GetConn0()})
	if err != nil {
		t.Fatalf("NewConnSource() error = %v", err)
	}

	module := br.GetConn1()
	for _, b := range []byte{1, 2, 3} {
		if _, err := module.Write(EncodeFrame([]byte{b, b, b, b})); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	for _, b := range []byte{1, 2, 3} {
		got, err := poll(t, src)
		if err != nil {
			t.Fatalf("TryRead() error = %v", err)
		}
		if want := (credential.Credential{b, b, b, b}); got != want {
			t.Fatalf("TryRead() = %v, want %v", got, want)
		}
	}

	closed := make(chan error, 1)
	go func() { closed <- src.Close() }()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close() did not return")
	}
	if err := src.Probe(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Probe() after Close = %v, want ErrClosed", err)
	}
}

func TestConnSource_LinkEnd(t *testing.T) {
	local, remote := net.Pipe()
	src, err := NewConnSource(ConnConfig{Conn: local})
	if err != nil {
		t.Fatalf("NewConnSource() error = %v", err)
	}
	defer src.Close()

	if _, err := remote.Write(EncodeFrame([]byte{9, 8, 7, 6})); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	remote.Close()

	got, err := poll(t, src)
	if err != nil {
		t.Fatalf("TryRead() error = %v", err)
	}
	if got != credential.MustParse("09080706") {
		t.Fatalf("TryRead() = %v", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for src.Probe() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("Probe() still healthy after link end")
		}
		time.Sleep(time.Millisecond)
	}
	if err := src.Probe(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Probe() error = %v, want ErrClosed", err)
	}
	if _, _, err := src.TryRead(); !errors.Is(err, ErrClosed) {
		t.Fatalf("TryRead() error = %v, want ErrClosed", err)
	}
}

func TestConnSource_QueueOverflow(t *testing.T) {
	local, remote := net.Pipe()
	src, err := NewConnSource(ConnConfig{Conn: local, QueueSize: 1})
	if err != nil {
		t.Fatalf("NewConnSource() error = %v", err)
	}
	defer src.Close()

	for _, b := range []byte{1, 2, 3} {
		if _, err := remote.Write(EncodeFrame([]byte{b, b, b, b})); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	remote.Close()

	deadline := time.Now().Add(2 * time.Second)
	for src.Probe() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("read loop did not finish")
		}
		time.Sleep(time.Millisecond)
	}

	got, ok, err := src.TryRead()
	if !ok || err != nil {
		t.Fatalf("TryRead() = %v, %v", ok, err)
	}
	if got != credential.MustParse("01010101") {
		t.Fatalf("TryRead() = %v, want first card", got)
	}
	if dropped := src.Stats().Dropped; dropped != 2 {
		t.Fatalf("Dropped = %d, want 2", dropped)
	}
}

func TestLineSource(t *testing.T) {
	input := strings.Join([]string{
		"# badge export",
		"DE:AD:BE:EF",
		"",
		"not-a-card",
		"0x01020304",
	}, "\n")

	src, err := NewLineSource(LineConfig{Input: strings.NewReader(input)})
	if err != nil {
		t.Fatalf("NewLineSource() error = %v", err)
	}
	src.Wait()

	got, ok, err := src.TryRead()
	if !ok || err != nil || got != credential.MustParse("DEADBEEF") {
		t.Fatalf("first TryRead() = %v, %v, %v", got, ok, err)
	}
	if _, _, err := src.TryRead(); !errors.Is(err, ErrUnsupportedUID) {
		t.Fatalf("second TryRead() error = %v, want ErrUnsupportedUID", err)
	}
	got, ok, err = src.TryRead()
	if !ok || err != nil || got != credential.MustParse("01020304") {
		t.Fatalf("third TryRead() = %v, %v, %v", got, ok, err)
	}
	if _, _, err := src.TryRead(); !errors.Is(err, ErrClosed) {
		t.Fatalf("TryRead() after EOF error = %v, want ErrClosed", err)
	}
	if err := src.Probe(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Probe() after EOF error = %v, want ErrClosed", err)
	}
}
