package models

import (
	"fmt"
	"strings"
	"time"
)

// OperationType is the comment lifecycle operation carried by an inbound event
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// ParseOperationType parses a string into an OperationType
// Returns an error if the operation is unknown
func ParseOperationType(name string) (OperationType, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	for _, op := range []OperationType{OperationCreate, OperationUpdate, OperationDelete} {
		if string(op) == name {
			return op, nil
		}
	}

	return "", fmt.Errorf("unknown operation type: %s", name)
}

// Status is the processing status reported in an outcome event
type Status string

const (
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// UnknownMessageID and UnknownType are reported when a delivery could not be
// decoded far enough to learn its id or operation.
const (
	UnknownMessageID = "unknown"
	UnknownType      = "unknown"
)

// InboundEvent is the payload received from the broker
type InboundEvent struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	Text      string   `json:"text"`
	Timestamp string   `json:"timestamp"`
	Type      string   `json:"type"`
	Score     *float64 `json:"score,omitempty"`
}

// Validate checks required fields and the optional score range.
func (e InboundEvent) Validate() error {
	var missing []string
	if e.ID == "" {
		missing = append(missing, "id")
	}
	if e.UserID == "" {
		missing = append(missing, "user_id")
	}
	if e.Text == "" {
		missing = append(missing, "text")
	}
	if e.Timestamp == "" {
		missing = append(missing, "timestamp")
	}
	if e.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required fields missing: %s", strings.Join(missing, ", "))
	}
	if e.Score != nil {
		if err := ValidateScore(*e.Score); err != nil {
			return err
		}
	}
	return nil
}

// Record maps the event onto a CommentRecord (text -> content). The score is
// the inbound score or 0 when absent.
func (e InboundEvent) Record() CommentRecord {
	rec := CommentRecord{
		ID:                e.ID,
		UserID:            e.UserID,
		Content:           e.Text,
		OriginalTimestamp: e.Timestamp,
	}
	if e.Score != nil {
		rec.Score = *e.Score
	}
	return rec
}

// OutcomeEvent is published after a delivery reaches a terminal outcome
type OutcomeEvent struct {
	MessageID   string    `json:"message_id"`
	Type        string    `json:"type"`
	Status      Status    `json:"status"`
	ProcessedAt time.Time `json:"processed_at"`
	ResultID    string    `json:"result_id"`
}
