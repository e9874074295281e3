package repository

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"remnabot/internal/tenancy"
)

// WriteOption tunes a single mutating repository call.
type WriteOption func(*writeOptions)

type writeOptions struct {
	commit bool
}

// Commit sets whether the call finalizes the session transaction itself.
// The default is true.
func Commit(commit bool) WriteOption {
	return func(o *writeOptions) {
		o.commit = commit
	}
}

// Deferred stages the write in the session transaction and leaves the
// commit or rollback to the caller. Shorthand for Commit(false).
func Deferred() WriteOption {
	return Commit(false)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func resolveWriteOptions(opts []WriteOption) writeOptions {
	o := writeOptions{commit: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Session is a unit of work over one lazily started transaction.
// A session bound to a bot scopes every transaction it starts to that bot
// through the app.current_bot_id setting read by the row-level security
// policies. Sessions are not safe for concurrent use.
type Session struct {
	db    *sqlx.DB
	botID int64
	tx    *sqlx.Tx
}

// NewSession returns a session that is not bound to any bot. Only the
// admins and bots tables are visible through it.
func NewSession(db *sqlx.DB) *Session {
	return &Session{db: db}
}

// NewBotSession returns a session scoped to botID.
func NewBotSession(db *sqlx.DB, botID int64) *Session {
	return &Session{db: db, botID: botID}
}

// NewSessionFor scopes the session to the bot carried by ctx, if any.
func NewSessionFor(ctx context.Context, db *sqlx.DB) *Session {
	botID, _ := tenancy.BotID(ctx)
	return NewBotSession(db, botID)
}

func (s *Session) BotID() int64 {
	return s.botID
}

// InTx reports whether a transaction is currently open.
func (s *Session) InTx() bool {
	return s.tx != nil
}

// Tx returns the open transaction, beginning one if needed.
func (s *Session) Tx(ctx context.Context) (*sqlx.Tx, error) {
	if s.tx != nil {
		return s.tx, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}

	if s.botID != 0 {
		// is_local=true: the setting dies with the transaction
		if _, err := tx.ExecContext(ctx, "SELECT set_config('app.current_bot_id', $1, true)",
			formatID(s.botID)); err != nil {
			_ = tx.Rollback()
			return nil, errors.Wrap(err, "scope transaction to bot")
		}
	}

	s.tx = tx
	return tx, nil
}

// Commit finalizes the open transaction. It is a no-op when none is open.
func (s *Session) Commit() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// Rollback discards the open transaction. It is a no-op when none is open.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil {
		return errors.Wrap(err, "rollback")
	}
	return nil
}

// Close rolls back anything left uncommitted.
func (s *Session) Close() {
	_ = s.Rollback()
}

// write runs fn inside the session transaction and applies opts.
// With commit enabled a failing fn rolls the whole transaction back, staged
// writes from earlier deferred calls included.
func (s *Session) write(ctx context.Context, opts []WriteOption, fn func(tx *sqlx.Tx) error) error {
	o := resolveWriteOptions(opts)

	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if o.commit {
			_ = s.Rollback()
		}
		return err
	}

	if o.commit {
		return s.Commit()
	}
	return nil
}

func (s *Session) read(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	return fn(tx)
}

// RunInTx runs fn in a fresh session scoped to the bot in ctx and
// finalizes it: commit when fn returns nil, rollback on error or panic.
// Repository calls inside fn should pass Deferred() so that everything
// lands in one commit.
func RunInTx(ctx context.Context, db *sqlx.DB, fn func(s *Session) error) error {
	s := NewSessionFor(ctx, db)
	defer func() {
		if p := recover(); p != nil {
			_ = s.Rollback()
			panic(p)
		}
	}()

	if err := fn(s); err != nil {
		if rbErr := s.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return err
	}
	return s.Commit()
}
