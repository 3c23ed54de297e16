package reader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/backkem/cardlock/pkg/credential"
	"github.com/pion/logging"
)

// LineConfig configures a LineSource.
type LineConfig struct {
	// Input yields one UID per line in hex, e.g. "DE:AD:BE:EF". Required.
	Input io.Reader

	// QueueSize is the number of unread scans buffered. Default: 16.
	QueueSize int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// LineSource reads hex UIDs line by line, for consoles and keyboard-wedge
// readers. Blank lines and lines starting with '#' are ignored.
type LineSource struct {
	input io.Reader
	pump  *pump
	log   logging.LeveledLogger
	wg    sync.WaitGroup
}

// NewLineSource starts reading from config.Input.
func NewLineSource(config LineConfig) (*LineSource, error) {
	if config.Input == nil {
		return nil, ErrConnRequired
	}

	s := &LineSource{input: config.Input}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("reader")
	}
	s.pump = newPump(config.QueueSize, s.log)

	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

func (s *LineSource) readLoop() {
	defer s.wg.Done()

	scanner := bufio.NewScanner(s.input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cred, err := credential.Parse(line)
		if err != nil {
			err = fmt.Errorf("%w: %q", ErrUnsupportedUID, line)
			if s.log != nil {
				s.log.Debugf("discarding line: %v", err)
			}
			s.pump.push(result{err: err})
			continue
		}
		s.pump.push(result{cred: cred})
	}

	err := scanner.Err()
	if err != nil && s.log != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.log.Warnf("line input ended: %v", err)
	}
	s.pump.finish(err)
}

// TryRead implements the controller's scan source.
func (s *LineSource) TryRead() (credential.Credential, bool, error) {
	return s.pump.tryRead()
}

// Probe reports an error once the input has ended.
func (s *LineSource) Probe() error {
	return s.pump.probe()
}

// Stats returns read loop counters.
func (s *LineSource) Stats() Stats {
	return s.pump.stats()
}

// Wait blocks until the input is exhausted.
func (s *LineSource) Wait() {
	s.wg.Wait()
}
