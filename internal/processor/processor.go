// Package processor dispatches a decoded comment operation to the record store
// and reports the result as an Outcome. It performs no I/O of its own.
package processor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/marminbh/toxicity-score-svc/internal/models"
	"github.com/marminbh/toxicity-score-svc/internal/store"
)

// Kind is the shape of an Outcome.
type Kind int

const (
	KindRejected Kind = iota
	KindCreated
	KindUpdated
	KindDeleted
)

func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindUpdated:
		return "updated"
	case KindDeleted:
		return "deleted"
	default:
		return "rejected"
	}
}

// Reason explains a rejected Outcome.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonMissingScore     Reason = "missing_score"
	ReasonUnknownOperation Reason = "unknown_operation"
	ReasonConflict         Reason = "conflict"
	ReasonNotFound         Reason = "not_found"
	ReasonStoreUnavailable Reason = "store_unavailable"
	ReasonInvalidScore     Reason = "invalid_score"
	ReasonInvalidPayload   Reason = "invalid_payload"
	ReasonScoringFailed    Reason = "scoring_failed"
	ReasonInternal         Reason = "internal_error"
)

// Outcome is the tri-state result of Process: a stored record (create, update),
// a removal flag (delete) or a rejection with its reason.
type Outcome struct {
	Kind    Kind
	Record  models.CommentRecord
	Deleted bool
	Reason  Reason
	Err     error
}

// Succeeded reports whether the outcome should be acknowledged and published
// as processed. A delete that removed nothing is a success only when it was
// produced under DeleteIdempotent.
func (o Outcome) Succeeded() bool {
	switch o.Kind {
	case KindCreated, KindUpdated:
		return true
	case KindDeleted:
		return o.Deleted || o.Reason == ReasonNone
	default:
		return false
	}
}

// Transient reports whether the rejection came from losing the store rather
// than from the message itself. Such deliveries must be retried.
func (o Outcome) Transient() bool {
	if o.Kind != KindRejected {
		return false
	}
	return o.Reason == ReasonStoreUnavailable || errors.Is(o.Err, context.DeadlineExceeded)
}

// Rejected builds a rejected Outcome.
func Rejected(reason Reason, err error) Outcome {
	return Outcome{Kind: KindRejected, Reason: reason, Err: err}
}

// DeletePolicy decides how a delete of a missing id is reported.
type DeletePolicy int

const (
	// DeleteStrict reports a delete that removed nothing as failed.
	DeleteStrict DeletePolicy = iota
	// DeleteIdempotent treats an already-absent record as processed.
	DeleteIdempotent
)

// Processor dispatches operations to a RecordStore.
type Processor struct {
	store        store.RecordStore
	deletePolicy DeletePolicy
	logger       *zap.Logger
}

// New creates a processor over the given store.
func New(s store.RecordStore, policy DeletePolicy, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{store: s, deletePolicy: policy, logger: logger}
}

// Process applies op to record. For create the score, when present, replaces
// record.Score; update requires a score; delete ignores it.
func (p *Processor) Process(ctx context.Context, record models.CommentRecord, op string, score *float64) Outcome {
	operation, err := models.ParseOperationType(op)
	if err != nil {
		return Rejected(ReasonUnknownOperation, err)
	}

	switch operation {
	case models.OperationCreate:
		if score != nil {
			record.Score = *score
		}
		created, err := p.store.Create(ctx, record)
		if err != nil {
			return p.storeRejection(operation, record.ID, err)
		}
		return Outcome{Kind: KindCreated, Record: created}

	case models.OperationUpdate:
		if score == nil {
			return Rejected(ReasonMissingScore, fmt.Errorf("score is required for %s", operation))
		}
		updated, err := p.store.UpdateScore(ctx, record.ID, *score)
		if err != nil {
			return p.storeRejection(operation, record.ID, err)
		}
		return Outcome{Kind: KindUpdated, Record: updated}

	case models.OperationDelete:
		deleted, err := p.store.Delete(ctx, record.ID)
		if err != nil {
			return p.storeRejection(operation, record.ID, err)
		}
		if !deleted && p.deletePolicy == DeleteStrict {
			return Outcome{Kind: KindDeleted, Reason: ReasonNotFound, Err: store.ErrNotFound}
		}
		return Outcome{Kind: KindDeleted, Deleted: deleted}
	}

	return Rejected(ReasonUnknownOperation, fmt.Errorf("unknown operation type: %s", op))
}

func (p *Processor) storeRejection(op models.OperationType, id string, err error) Outcome {
	reason := ReasonStoreUnavailable
	switch {
	case errors.Is(err, store.ErrConflict):
		reason = ReasonConflict
	case errors.Is(err, store.ErrNotFound):
		reason = ReasonNotFound
	case errors.Is(err, store.ErrInvalidScore):
		reason = ReasonInvalidScore
	}

	p.logger.Warn("Store rejected operation",
		zap.String("operation", string(op)),
		zap.String("message_id", id),
		zap.String("reason", string(reason)),
		zap.Error(err),
	)
	return Rejected(reason, err)
}
