package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type txContextKey struct{}

var errTxClosed = errors.New("transaction already closed")

// txScope is the unit of work carried by a context. Every store call made
// with that context runs on the same gorm transaction.
type txScope struct {
	id      string
	db      *gorm.DB
	started time.Time
	log     logrus.FieldLogger
}

func scopeFromContext(ctx context.Context) (*txScope, bool) {
	scope, ok := ctx.Value(txContextKey{}).(*txScope)
	return scope, ok && scope != nil
}

// Commit ends the transaction carried by ctx. It is a no-op for a context
// without one.
func Commit(ctx context.Context) (context.Context, error) {
	scope, ok := scopeFromContext(ctx)
	if !ok {
		return ctx, nil
	}
	return context.WithValue(ctx, txContextKey{}, nil), scope.end(true)
}

func Rollback(ctx context.Context) (context.Context, error) {
	scope, ok := scopeFromContext(ctx)
	if !ok {
		return ctx, nil
	}
	return context.WithValue(ctx, txContextKey{}, nil), scope.end(false)
}

// WithinTransaction runs fn in a transaction carried by the context. The
// transaction is committed when fn succeeds and rolled back otherwise. When
// ctx already carries a transaction fn simply joins it.
func WithinTransaction(ctx context.Context, s Store, fn func(ctx context.Context) error) error {
	if _, ok := scopeFromContext(ctx); ok {
		return fn(ctx)
	}

	txCtx, err := s.NewTransactionContext(ctx)
	if err != nil {
		return err
	}

	if err := fn(txCtx); err != nil {
		if _, rerr := Rollback(txCtx); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}

	_, err = Commit(txCtx)
	return err
}

// FromContext returns the transaction carried by ctx or nil.
func FromContext(ctx context.Context) *gorm.DB {
	if scope, ok := scopeFromContext(ctx); ok {
		return scope.db
	}
	return nil
}

func newTransactionContext(ctx context.Context, db *gorm.DB, log logrus.FieldLogger) (context.Context, error) {
	if _, ok := scopeFromContext(ctx); ok {
		return ctx, nil
	}

	tx := db.Session(&gorm.Session{Context: ctx}).Begin()
	if tx.Error != nil {
		return ctx, tx.Error
	}

	id := uuid.NewString()
	scope := &txScope{
		id:      id,
		db:      tx,
		started: time.Now(),
		log:     log.WithField("tx", id),
	}
	return context.WithValue(ctx, txContextKey{}, scope), nil
}

func (t *txScope) end(commit bool) error {
	if t.db == nil {
		return errTxClosed
	}

	action := "rollback"
	result := t.db.Rollback
	if commit {
		action = "commit"
		result = t.db.Commit
	}
	t.db = nil

	if err := result().Error; err != nil {
		t.log.WithError(err).Errorf("transaction %s failed", action)
		return err
	}
	t.log.WithField("duration", time.Since(t.started)).Debugf("transaction %s", action)
	return nil
}
