package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseOperationType(t *testing.T) {
	tests := []struct {
		in      string
		want    OperationType
		wantErr bool
	}{
		{in: "create", want: OperationCreate},
		{in: "UPDATE", want: OperationUpdate},
		{in: " Delete ", want: OperationDelete},
		{in: "upsert", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOperationType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOperationType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseOperationType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestInboundEventValidate(t *testing.T) {
	score := func(v float64) *float64 { return &v }
	valid := InboundEvent{ID: "msg_1", UserID: "u1", Text: "hello", Timestamp: "t1", Type: "create"}

	tests := []struct {
		name    string
		mutate  func(e *InboundEvent)
		wantErr string
	}{
		{name: "valid", mutate: func(e *InboundEvent) {}},
		{name: "valid with score", mutate: func(e *InboundEvent) { e.Score = score(42) }},
		{name: "missing id", mutate: func(e *InboundEvent) { e.ID = "" }, wantErr: "id"},
		{name: "missing several", mutate: func(e *InboundEvent) { e.UserID = ""; e.Text = "" }, wantErr: "user_id, text"},
		{name: "score above range", mutate: func(e *InboundEvent) { e.Score = score(100.5) }, wantErr: "between"},
		{name: "score below range", mutate: func(e *InboundEvent) { e.Score = score(-1) }, wantErr: "between"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			err := e.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestInboundEventDecodeAndRecord(t *testing.T) {
	body := []byte(`{"id":"msg_1","user_id":"u1","text":"hello","timestamp":"t1","type":"create","score":12.5}`)

	var e InboundEvent
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	rec := e.Record()
	if rec.ID != "msg_1" || rec.UserID != "u1" || rec.Content != "hello" || rec.OriginalTimestamp != "t1" {
		t.Errorf("Record() = %+v, fields not mapped", rec)
	}
	if rec.Score != 12.5 {
		t.Errorf("Record().Score = %v, want 12.5", rec.Score)
	}

	e.Score = nil
	if got := e.Record().Score; got != 0 {
		t.Errorf("Record().Score without inbound score = %v, want 0", got)
	}
}

func TestOutcomeEventRoundTrip(t *testing.T) {
	processedAt := time.Date(2025, 11, 25, 10, 0, 0, 0, time.UTC)
	in := OutcomeEvent{
		MessageID:   "msg_1",
		Type:        "update",
		Status:      StatusFailed,
		ProcessedAt: processedAt,
		ResultID:    "res-1",
	}

	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"processed_at":"2025-11-25T10:00:00Z"`) {
		t.Errorf("processed_at not ISO-8601: %s", raw)
	}

	var out OutcomeEvent
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.MessageID != in.MessageID || out.Type != in.Type || out.Status != in.Status {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
	if !out.ProcessedAt.Equal(processedAt) {
		t.Errorf("ProcessedAt = %v, want %v", out.ProcessedAt, processedAt)
	}
}
