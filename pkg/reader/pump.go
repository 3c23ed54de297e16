package reader

import (
	"errors"
	"fmt"
	"sync"

	"github.com/backkem/cardlock/pkg/credential"
	"github.com/pion/logging"
)

// Errors.
var (
	// ErrClosed is returned once the underlying link has ended.
	ErrClosed = errors.New("reader: link closed")
	// ErrBadFrame is returned for a frame with a bad checksum or terminator.
	ErrBadFrame = errors.New("reader: bad frame")
	// ErrUnsupportedUID is returned for a UID that is not credential.Size bytes.
	ErrUnsupportedUID = errors.New("reader: unsupported UID length")
	// ErrConnRequired is returned when a source is created without a link.
	ErrConnRequired = errors.New("reader: connection is required")
)

// DefaultQueueSize is the number of unread results a source buffers.
const DefaultQueueSize = 16

type result struct {
	cred credential.Credential
	err  error
}

// pump buffers results produced by a background read loop so TryRead can
// poll without blocking.
type pump struct {
	ch   chan result
	done chan struct{}
	log  logging.LeveledLogger

	mu      sync.Mutex
	err     error
	dropped uint64
	faults  uint64
}

func newPump(size int, log logging.LeveledLogger) *pump {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &pump{
		ch:   make(chan result, size),
		done: make(chan struct{}),
		log:  log,
	}
}

// push queues a result, dropping it if the queue is full.
func (p *pump) push(r result) {
	if r.err != nil {
		p.mu.Lock()
		p.faults++
		p.mu.Unlock()
	}

	select {
	case p.ch <- r:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		if p.log != nil {
			p.log.Warn("scan queue full, dropping read")
		}
	}
}

// finish records why the read loop ended.
func (p *pump) finish(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	close(p.done)
}

func (p *pump) tryRead() (credential.Credential, bool, error) {
	select {
	case r := <-p.ch:
		if r.err != nil {
			return credential.Credential{}, false, r.err
		}
		return r.cred, true, nil
	default:
	}

	select {
	case <-p.done:
		return credential.Credential{}, false, ErrClosed
	default:
		return credential.Credential{}, false, nil
	}
}

func (p *pump) probe() error {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.err != nil {
			return fmt.Errorf("%w: %v", ErrClosed, p.err)
		}
		return ErrClosed
	default:
		return nil
	}
}

// Stats are counters of a source's read loop.
type Stats struct {
	Faults  uint64 // malformed or unsupported reads
	Dropped uint64 // reads lost to a full queue
}

func (p *pump) stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Faults: p.faults, Dropped: p.dropped}
}
