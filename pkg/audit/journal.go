// Package audit keeps a persistent journal of door events in SQLite.
//
// Journal is a doorlock.Sink, so it can be fanned in next to the physical
// outputs. Write failures are logged and never reach the controller.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/backkem/cardlock/pkg/doorlock"
	"github.com/pion/logging"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Event kinds recorded by the sink methods. Administrative commands use
// their own kinds through Record.
const (
	KindGranted      = "granted"
	KindDenied       = "denied"
	KindEnterEnroll  = "enter_enroll"
	KindExitEnroll   = "exit_enroll"
	KindAdded        = "added"
	KindRemoved      = "removed"
	KindAddFailed    = "add_failed"
	KindRemoveFailed = "remove_failed"
	KindWipeComplete = "wipe_complete"
	KindReaderFault  = "reader_fault"
)

// Defaults.
const (
	DefaultPath         = "cardlock-audit.db"
	DefaultWriteTimeout = 2 * time.Second
)

// ErrInvalidLimit is returned by Recent for a non-positive limit.
var ErrInvalidLimit = errors.New("audit: limit must be positive")

// Event is one journal row.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID     int64     `bun:"id,pk,autoincrement"`
	At     time.Time `bun:"at,notnull"`
	Kind   string    `bun:"kind,notnull"`
	Detail string    `bun:"detail"`
}

// String formats the event for a terminal.
func (e Event) String() string {
	s := fmt.Sprintf("%s  %-13s", e.At.Local().Format(time.RFC3339), e.Kind)
	if e.Detail != "" {
		s += "  " + e.Detail
	}
	return s
}

// Config configures a Journal.
type Config struct {
	// Path is the SQLite database file, or ":memory:".
	// Default: cardlock-audit.db.
	Path string

	// WriteTimeout bounds each insert made by a sink method.
	// Default: 2s.
	WriteTimeout time.Duration

	// Now returns the event timestamp. Default: time.Now.
	Now func() time.Time

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Journal is the SQLite-backed audit journal.
type Journal struct {
	db      *bun.DB
	now     func() time.Time
	timeout time.Duration
	log     logging.LeveledLogger

	mu        sync.Mutex
	lastFault bool
}

// Open opens or creates the journal database and its schema.
func Open(ctx context.Context, config Config) (*Journal, error) {
	config.applyDefaults()

	sqlDB, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", config.Path, err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)

	j := &Journal{
		db:      bun.NewDB(sqlDB, sqlitedialect.New()),
		now:     config.Now,
		timeout: config.WriteTimeout,
	}
	if config.LoggerFactory != nil {
		j.log = config.LoggerFactory.NewLogger("audit")
	}

	if _, err := j.db.NewCreateTable().Model((*Event)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = j.db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	if _, err := j.db.NewCreateIndex().Model((*Event)(nil)).Index("events_at_idx").Column("at").IfNotExists().Exec(ctx); err != nil {
		_ = j.db.Close()
		return nil, fmt.Errorf("audit: create index: %w", err)
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends an event.
func (j *Journal) Record(ctx context.Context, kind, detail string) error {
	e := &Event{At: j.now().UTC(), Kind: kind, Detail: detail}
	if _, err := j.db.NewInsert().Model(e).Exec(ctx); err != nil {
		return fmt.Errorf("audit: record %s: %w", kind, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	var events []Event
	err := j.db.NewSelect().Model(&events).OrderExpr("id DESC").Limit(limit).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	return events, nil
}

// Prune deletes events older than before and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.NewDelete().Model((*Event)(nil)).Where("at < ?", before.UTC()).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("audit: prune: %w", err)
	}
	return res.RowsAffected()
}

// record is the fire-and-forget path used by the sink methods. A run of
// reader faults, as emitted by a halted controller, is journaled once.
func (j *Journal) record(kind, detail string) {
	j.mu.Lock()
	repeat := kind == KindReaderFault && j.lastFault
	j.lastFault = kind == KindReaderFault
	j.mu.Unlock()
	if repeat {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.Record(ctx, kind, detail); err != nil && j.log != nil {
		j.log.Warnf("%v", err)
	}
}

func (j *Journal) Granted(d time.Duration) { j.record(KindGranted, d.String()) }
func (j *Journal) Denied()                 { j.record(KindDenied, "") }
func (j *Journal) EnterEnroll()            { j.record(KindEnterEnroll, "") }
func (j *Journal) ExitEnroll()             { j.record(KindExitEnroll, "") }
func (j *Journal) Added()                  { j.record(KindAdded, "") }
func (j *Journal) Removed()                { j.record(KindRemoved, "") }
func (j *Journal) AddFailed()              { j.record(KindAddFailed, "") }
func (j *Journal) RemoveFailed()           { j.record(KindRemoveFailed, "") }
func (j *Journal) WipeComplete()           { j.record(KindWipeComplete, "") }
func (j *Journal) ReaderFault()            { j.record(KindReaderFault, "") }

// WipeProgress is not journaled.
func (j *Journal) WipeProgress() {}

var _ doorlock.Sink = (*Journal)(nil)
