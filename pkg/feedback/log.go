package feedback

import (
	"time"

	"github.com/backkem/cardlock/internal/i18n"
	"github.com/backkem/cardlock/pkg/doorlock"
	"github.com/pion/logging"
)

// LogConfig configures a LogSink.
type LogConfig struct {
	// LoggerFactory is the factory for creating loggers.
	// If nil, the sink discards everything.
	LoggerFactory logging.LoggerFactory

	// Catalog translates the messages. Default: English.
	Catalog *i18n.Catalog
}

// LogSink writes every notification to the operator log stream.
type LogSink struct {
	log logging.LeveledLogger
	cat *i18n.Catalog
}

// NewLogSink creates a LogSink.
func NewLogSink(config LogConfig) *LogSink {
	s := &LogSink{cat: config.Catalog}
	if s.cat == nil {
		s.cat = i18n.MustNew("en")
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("door")
	}
	return s
}

func (s *LogSink) info(id string) {
	if s.log != nil {
		s.log.Info(s.cat.T(id))
	}
}

func (s *LogSink) warn(id string) {
	if s.log != nil {
		s.log.Warn(s.cat.T(id))
	}
}

func (s *LogSink) Granted(d time.Duration) {
	if s.log != nil {
		s.log.Info(s.cat.Tf(i18n.MsgGranted, map[string]any{"Seconds": int(d / time.Second)}))
	}
}

func (s *LogSink) Denied()       { s.info(i18n.MsgDenied) }
func (s *LogSink) EnterEnroll()  { s.info(i18n.MsgEnterEnroll) }
func (s *LogSink) ExitEnroll()   { s.info(i18n.MsgExitEnroll) }
func (s *LogSink) Added()        { s.info(i18n.MsgAdded) }
func (s *LogSink) Removed()      { s.info(i18n.MsgRemoved) }
func (s *LogSink) AddFailed()    { s.warn(i18n.MsgAddFailed) }
func (s *LogSink) RemoveFailed() { s.warn(i18n.MsgRemoveFailed) }
func (s *LogSink) WipeComplete() { s.info(i18n.MsgWipeComplete) }
func (s *LogSink) ReaderFault()  { s.warn(i18n.MsgReaderFault) }

// WipeProgress is logged at trace level; a full wipe reports every few bytes.
func (s *LogSink) WipeProgress() {
	if s.log != nil {
		s.log.Trace(s.cat.T(i18n.MsgWipeProgress))
	}
}

var _ doorlock.Sink = (*LogSink)(nil)
