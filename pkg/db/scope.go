package db

import (
	"context"

	"gorm.io/gorm"
)

// ScopeFactory hands out storage scopes that are independent of any request
// lifecycle. Finalization work that may outlive the originating request asks
// the factory for its own scope instead of reusing the request handle.
type ScopeFactory struct {
	db *gorm.DB
}

func NewScopeFactory(db *gorm.DB) *ScopeFactory {
	return &ScopeFactory{db: db}
}

// Session returns a fresh, short-lived session detached from prior statement
// state. Suitable for single atomic statements.
func (f *ScopeFactory) Session(ctx context.Context) *gorm.DB {
	return f.db.Session(&gorm.Session{NewDB: true}).WithContext(ctx)
}

// Scope is a transactional storage scope with guaranteed release semantics:
// Close rolls back unless Commit was called, on every exit path.
type Scope struct {
	tx   *gorm.DB
	done bool
}

// Begin opens a transactional scope on a fresh session.
func (f *ScopeFactory) Begin(ctx context.Context) (*Scope, error) {
	tx := f.Session(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &Scope{tx: tx}, nil
}

func (s *Scope) DB() *gorm.DB {
	return s.tx
}

func (s *Scope) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.tx.Commit().Error
}

// Close releases the scope. Safe to defer alongside Commit.
func (s *Scope) Close() {
	if s.done {
		return
	}
	s.done = true
	_ = s.tx.Rollback()
}
