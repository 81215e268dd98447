package samples

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/marminbh/toxicity-score-svc/internal/config"
	"github.com/marminbh/toxicity-score-svc/internal/models"
)

type sent struct {
	exchange, key string
	body          []byte
}

type fakeChannel struct {
	declared []config.Binding
	sent     []sent
	failAt   int
}

func (f *fakeChannel) DeclareTopology(b config.Binding) error {
	f.declared = append(f.declared, b)
	return nil
}

func (f *fakeChannel) Publish(_ context.Context, exchange, key string, body []byte) error {
	if f.failAt > 0 && len(f.sent)+1 == f.failAt {
		return errors.New("connection reset")
	}
	f.sent = append(f.sent, sent{exchange, key, body})
	return nil
}

func TestRoutingKey(t *testing.T) {
	e := models.InboundEvent{ID: "msg_1", Type: "update"}
	tests := []struct {
		binding string
		want    string
	}{
		{binding: "texts.#", want: "texts.msg_1.update"},
		{binding: "texts.*", want: "texts.msg_1.update"},
		{binding: "texts", want: "texts.msg_1.update"},
	}
	for _, tt := range tests {
		if got := RoutingKey(tt.binding, e); got != tt.want {
			t.Errorf("RoutingKey(%q) = %q, want %q", tt.binding, got, tt.want)
		}
	}
}

func TestMessagesAreValid(t *testing.T) {
	for _, m := range Messages(time.Now()) {
		if err := m.Validate(); err != nil {
			t.Errorf("sample %s/%s invalid: %v", m.ID, m.Type, err)
		}
	}
}

func TestPublish(t *testing.T) {
	b := config.Default().Consumer.Inbound
	ch := &fakeChannel{}
	msgs := Messages(time.Date(2025, 11, 25, 10, 0, 0, 0, time.UTC))

	if err := Publish(context.Background(), ch, b, msgs, nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(ch.declared) != 1 || ch.declared[0] != b {
		t.Errorf("declared = %+v, want the inbound binding once", ch.declared)
	}
	if len(ch.sent) != len(msgs) {
		t.Fatalf("sent %d messages, want %d", len(ch.sent), len(msgs))
	}
	for i, s := range ch.sent {
		var got models.InboundEvent
		if err := json.Unmarshal(s.body, &got); err != nil {
			t.Fatalf("message %d is not JSON: %v", i, err)
		}
		if got.ID != msgs[i].ID || got.Type != msgs[i].Type {
			t.Errorf("message %d = %s/%s, want %s/%s", i, got.ID, got.Type, msgs[i].ID, msgs[i].Type)
		}
		if s.exchange != b.Exchange || s.key != RoutingKey(b.RoutingKey, msgs[i]) {
			t.Errorf("message %d sent to %s/%s", i, s.exchange, s.key)
		}
	}
}

func TestPublishStopsOnFailure(t *testing.T) {
	ch := &fakeChannel{failAt: 2}
	err := Publish(context.Background(), ch, config.Default().Consumer.Inbound, Messages(time.Now()), nil)
	if err == nil {
		t.Fatal("Publish() error = nil, want failure")
	}
	if len(ch.sent) != 1 {
		t.Errorf("sent %d messages before failing, want 1", len(ch.sent))
	}
}
