package dbtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Statements records the SQL a dry-run database would have sent.
type Statements struct {
	mu  sync.Mutex
	sql []string
}

func (s *Statements) LogMode(gormlogger.LogLevel) gormlogger.Interface { return s }

func (s *Statements) Info(context.Context, string, ...any)  {}
func (s *Statements) Warn(context.Context, string, ...any)  {}
func (s *Statements) Error(context.Context, string, ...any) {}

func (s *Statements) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sql = append(s.sql, sql)
}

// All returns the recorded statements in order.
func (s *Statements) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sql...)
}

// Last returns the most recent statement, or "" when none ran.
func (s *Statements) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sql) == 0 {
		return ""
	}
	return s.sql[len(s.sql)-1]
}

// DryRunPostgres builds a gorm handle on the postgres dialector that renders
// SQL without a server. Locking clauses the SQLite dialector drops show up
// here as they would in production.
func DryRunPostgres(t testing.TB) (*gorm.DB, *Statements) {
	t.Helper()
	stmts := &Statements{}
	conn, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=scentmarket dbname=scentmarket sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               stmts,
	})
	if err != nil {
		t.Fatalf("open dry-run postgres: %v", err)
	}
	return conn, stmts
}
