// Package session scopes access to a drawing database: it acquires a
// transaction (and optionally the database itself), resolves handles to
// typed objects, runs selections and guarantees release.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
	"github.com/mohammed-shakir/raceway-cad/internal/filter"
	"github.com/mohammed-shakir/raceway-cad/internal/host"
)

var (
	ErrClosed   = errors.New("session closed")
	ErrFinished = errors.New("session transaction already finished")
)

const selectionCacheSize = 64

type state int

const (
	stateOpen state = iota
	stateCommitted
	stateAborted
	stateClosed
)

// Session is single threaded. What Close releases depends on the
// constructor: Attach releases nothing, Begin releases the transaction and
// OpenFile releases the transaction and the database.
type Session struct {
	db     host.Database
	tx     host.Transaction
	ownsTx bool
	ownsDB bool
	state  state
	cache  *lru.Cache[uint64, []model.Handle]
}

func newSession(db host.Database, tx host.Transaction, ownsTx, ownsDB bool) *Session {
	c, _ := lru.New[uint64, []model.Handle](selectionCacheSize)
	return &Session{db: db, tx: tx, ownsTx: ownsTx, ownsDB: ownsDB, cache: c}
}

// Attach borrows a transaction the caller already holds.
func Attach(db host.Database, tx host.Transaction) *Session {
	return newSession(db, tx, false, false)
}

// Begin starts a transaction on an already open database and owns it.
func Begin(db host.Database) (*Session, error) {
	tx, err := db.StartTransaction()
	if err != nil {
		return nil, fmt.Errorf("start transaction: %w", err)
	}
	return newSession(db, tx, true, false), nil
}

// OpenFile opens path without an interactive view and owns both the
// database and its transaction.
func OpenFile(ctx context.Context, opener host.Opener, path string) (*Session, error) {
	db, err := opener.OpenFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	tx, err := db.StartTransaction()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("start transaction on %s: %w", path, err)
	}
	return newSession(db, tx, true, true), nil
}

// WithFile runs fn on a session over path and releases it on every exit
// path. A panic in fn propagates after release.
func WithFile(ctx context.Context, opener host.Opener, path string, fn func(*Session) error) (err error) {
	s, err := OpenFile(ctx, opener, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

func (s *Session) usable() error {
	switch s.state {
	case stateClosed:
		return ErrClosed
	case stateCommitted, stateAborted:
		return ErrFinished
	}
	return nil
}

func (s *Session) Database() host.Database { return s.db }

// Get resolves h to a T. A handle that does not resolve, or resolves to
// another kind, is a miss and reports ok == false with a nil error. Errors
// are reserved for host failures and misuse of the session.
func Get[T host.Object](s *Session, h model.Handle, mode host.OpenMode) (T, bool, error) {
	var zero T
	if err := s.usable(); err != nil {
		return zero, false, err
	}
	o, err := s.tx.GetObject(h, mode)
	if errors.Is(err, host.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("get %s for %s: %w", h, mode, err)
	}
	t, ok := o.(T)
	if !ok {
		return zero, false, nil
	}
	return t, true, nil
}

// GetMany resolves handles in order and drops misses.
func GetMany[T host.Object](s *Session, hs []model.Handle, mode host.OpenMode) ([]T, error) {
	out := make([]T, 0, len(hs))
	for _, h := range hs {
		t, ok, err := Get[T](s, h, mode)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// Select runs f against the database. An empty filter selects nothing
// without reaching the host. Results are cached per filter until the next
// write through this session.
func (s *Session) Select(f filter.Expr) ([]model.Handle, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	if filter.Empty(f) {
		return nil, nil
	}
	key := filter.Fingerprint(f)
	if hs, ok := s.cache.Get(key); ok {
		return slices.Clone(hs), nil
	}
	tokens := filter.Tokens(f)
	if err := filter.Balanced(tokens); err != nil {
		return nil, err
	}
	hs, status := s.db.Select(tokens)
	switch status {
	case host.SelectOK:
	case host.SelectNone:
		hs = nil
	default:
		return nil, fmt.Errorf("select %v: host reported status %d", tokens, status)
	}
	s.cache.Add(key, hs)
	return slices.Clone(hs), nil
}

// ContainerHandles lists the entities of a container record.
func (s *Session) ContainerHandles(container model.Handle) ([]model.Handle, error) {
	rec, ok, err := Get[host.BlockTableRecord](s, container, host.ForRead)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("container %s: %w", container, host.ErrNotFound)
	}
	return rec.Entities(), nil
}

func (s *Session) TemplateExists(name string) bool {
	_, ok := s.db.Template(name)
	return ok
}

// NewBlockReference builds an unattached reference to the named template.
func (s *Session) NewBlockReference(template string, position model.Point3) (host.BlockReference, []host.AttributeReference, error) {
	if err := s.usable(); err != nil {
		return nil, nil, err
	}
	h, ok := s.db.Template(template)
	if !ok {
		return nil, nil, fmt.Errorf("template %q: %w", template, host.ErrNotFound)
	}
	return s.db.NewBlockReference(h, position)
}

// AddEntity appends e to container.
func (s *Session) AddEntity(container model.Handle, e host.Entity) (model.Handle, error) {
	if err := s.usable(); err != nil {
		return "", err
	}
	s.cache.Purge()
	h, err := s.tx.Append(container, e)
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", container, err)
	}
	return h, nil
}

// RegisterApp registers an application name for xdata.
func (s *Session) RegisterApp(name string) error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := s.tx.RegisterApp(name); err != nil {
		return fmt.Errorf("register app %q: %w", name, err)
	}
	return nil
}

// Commit publishes the transaction. A borrowed transaction is left for its
// owner to commit.
func (s *Session) Commit() error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.ownsTx {
		if err := s.tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	s.state = stateCommitted
	return nil
}

// Abort rolls back an owned transaction.
func (s *Session) Abort() error {
	if err := s.usable(); err != nil {
		return err
	}
	s.state = stateAborted
	s.cache.Purge()
	if s.ownsTx {
		if err := s.tx.Abort(); err != nil {
			return fmt.Errorf("abort: %w", err)
		}
	}
	return nil
}

// Close releases what the session owns. An owned transaction that was not
// committed is rolled back. Close is idempotent.
func (s *Session) Close() error {
	if s.state == stateClosed {
		return nil
	}
	var errs []error
	if s.ownsTx {
		if s.state == stateOpen {
			if err := s.tx.Abort(); err != nil {
				errs = append(errs, fmt.Errorf("abort: %w", err))
			}
		}
		if err := s.tx.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("dispose transaction: %w", err))
		}
	}
	if s.ownsDB {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	s.state = stateClosed
	s.cache.Purge()
	return errors.Join(errs...)
}
