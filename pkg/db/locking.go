package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate adds an exclusive row lock to the query. SQLite ignores the clause.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// ForUpdateSkipLocked locks the selected rows and skips rows held by others.
func ForUpdateSkipLocked(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{
		Strength: clause.LockingStrengthUpdate,
		Options:  clause.LockingOptionsSkipLocked,
	})
}

// SetLocalLockTimeout bounds lock waits for the rest of the transaction.
// It is a no-op on dialects without a lock_timeout setting.
func SetLocalLockTimeout(tx *gorm.DB, timeout time.Duration) error {
	if tx == nil || timeout <= 0 {
		return nil
	}
	if tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	ms := timeout.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)).Error
}
