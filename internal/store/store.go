// Package store persists comment records keyed by their logical id.
//
// Every operation reports expected conditions as a *StoreError with a Kind
// (Conflict, NotFound, Unavailable) instead of panicking or returning nil
// values, so callers can tell "nothing matched" apart from "store is down".
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/marminbh/toxicity-score-svc/internal/models"
)

// RecordStore is the persistence gateway for comment records. Implementations
// must be safe for concurrent use.
type RecordStore interface {
	// EnsureSchema idempotently creates the unique index on the logical key.
	EnsureSchema(ctx context.Context) error
	// Create inserts a record, assigning an id when record.ID is empty.
	// A duplicate id is a Conflict and never overwrites the stored record.
	Create(ctx context.Context, record models.CommentRecord) (models.CommentRecord, error)
	// UpdateScore sets the score of the single record matching id.
	UpdateScore(ctx context.Context, id string, score float64) (models.CommentRecord, error)
	// Delete removes the record matching id. It reports false, without error,
	// when nothing matched.
	Delete(ctx context.Context, id string) (bool, error)
	// Ping checks store reachability for health reporting.
	Ping(ctx context.Context) error
}

// Finder reads a single record by id. Every backend implements it; the
// consumer never reads, so it is kept out of RecordStore.
type Finder interface {
	Find(ctx context.Context, id string) (models.CommentRecord, error)
}

// Kind classifies a StoreError.
type Kind int

const (
	KindUnknown Kind = iota
	KindConflict
	KindNotFound
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

var (
	ErrConflict    = errors.New("record already exists")
	ErrNotFound    = errors.New("record not found")
	ErrUnavailable = errors.New("store unavailable")
	// ErrInvalidScore is returned for scores outside [0,100]; reaching it is a
	// caller bug since inbound scores are validated before the store.
	ErrInvalidScore = errors.New("invalid score")
	// ErrSchemaMismatch means an existing index on the logical key does not
	// enforce uniqueness. It is not recoverable by retrying.
	ErrSchemaMismatch = errors.New("record store schema mismatch")
)

// StoreError is returned by every RecordStore operation for expected failures.
type StoreError struct {
	Kind Kind
	Op   string
	ID   string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.ID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.ID, e.Kind)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is lets errors.Is match a StoreError against the kind sentinels.
func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	}
	return false
}

// KindOf returns the Kind of err, or KindUnknown when err is not a StoreError.
func KindOf(err error) Kind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

func conflict(op, id string, err error) error {
	return &StoreError{Kind: KindConflict, Op: op, ID: id, Err: err}
}

func notFound(op, id string) error {
	return &StoreError{Kind: KindNotFound, Op: op, ID: id}
}

func unavailable(op, id string, err error) error {
	return &StoreError{Kind: KindUnavailable, Op: op, ID: id, Err: err}
}

func invalidScore(op, id string) error {
	return &StoreError{Kind: KindUnknown, Op: op, ID: id, Err: ErrInvalidScore}
}
