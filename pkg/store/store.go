package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// LeaseTimeout is how long a claim may sit untouched before any worker may
// sweep it. It must comfortably exceed one OCR round trip so live claims are
// never stolen.
const LeaseTimeout = 3 * time.Minute

// Store wraps the database handle. A disabled store swallows every write and
// answers every read with its zero value, so call sites need no nil checks.
type Store struct {
	db      *gorm.DB
	profile string
	enabled bool
	logger  log.Logger
}

// Open connects to the database named by dsn and runs migrations. DSNs with
// a postgres scheme use the Postgres driver; anything else is treated as a
// SQLite path. When enabled is false no connection is attempted.
func Open(dsn, profile string, enabled bool, logger log.Logger) (*Store, error) {
	s := &Store{profile: profile, enabled: enabled, logger: logger}
	if !enabled {
		return s, nil
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.db = db

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&Lease{},
		&Result{},
		&TokenUsage{},
		&ErrorTrace{},
		&Artifact{},
		&ProfileState{},
		&CriticalEvent{},
	)
}

// Enabled reports whether the store has a live database behind it.
func (s *Store) Enabled() bool { return s.enabled && s.db != nil }

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// bestEffort logs a failed write and moves on. Persistence problems must not
// break an OCR run that is otherwise producing text.
func (s *Store) bestEffort(op string, err error) {
	if err != nil {
		s.logger.Warn().Err(err).Str("op", op).Msg("database write failed")
	}
}
