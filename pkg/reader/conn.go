package reader

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/backkem/cardlock/pkg/credential"
	"github.com/pion/logging"
)

// ConnConfig configures a ConnSource.
type ConnConfig struct {
	// Conn is the link to the reader module, typically a serial port
	// exposed over TCP. Required.
	Conn net.Conn

	// QueueSize is the number of unread scans buffered. Default: 16.
	QueueSize int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// ConnSource reads framed UIDs from a reader module link.
//
// A background goroutine decodes frames into a bounded queue and TryRead
// polls that queue without blocking. Malformed frames surface from TryRead
// as transient errors. Once the link ends, Probe and TryRead report
// ErrClosed.
type ConnSource struct {
	conn net.Conn
	pump *pump
	log  logging.LeveledLogger

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewConnSource starts reading from config.Conn.
func NewConnSource(config ConnConfig) (*ConnSource, error) {
	if config.Conn == nil {
		return nil, ErrConnRequired
	}

	s := &ConnSource{conn: config.Conn}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("reader")
	}
	s.pump = newPump(config.QueueSize, s.log)

	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

func (s *ConnSource) readLoop() {
	defer s.wg.Done()

	r := bufio.NewReader(s.conn)
	for {
		cred, err := readFrame(r)
		switch {
		case err == nil:
			s.pump.push(result{cred: cred})
		case errors.Is(err, ErrBadFrame), errors.Is(err, ErrUnsupportedUID):
			if s.log != nil {
				s.log.Debugf("discarding frame: %v", err)
			}
			s.pump.push(result{err: err})
		default:
			if s.log != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Warnf("reader link ended: %v", err)
			}
			s.pump.finish(err)
			return
		}
	}
}

// TryRead implements the controller's scan source.
func (s *ConnSource) TryRead() (credential.Credential, bool, error) {
	return s.pump.tryRead()
}

// Probe reports an error once the link has ended.
func (s *ConnSource) Probe() error {
	return s.pump.probe()
}

// Stats returns read loop counters.
func (s *ConnSource) Stats() Stats {
	return s.pump.stats()
}

// Close closes the link and waits for the read loop to exit.
func (s *ConnSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}
