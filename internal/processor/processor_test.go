package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/marminbh/toxicity-score-svc/internal/models"
	"github.com/marminbh/toxicity-score-svc/internal/store"
)

// fakeStore records calls and returns canned errors.
type fakeStore struct {
	createErr error
	updateErr error
	deleteErr error
	deleted   bool

	creates []models.CommentRecord
	updates []float64
	removes []string
}

func (f *fakeStore) EnsureSchema(context.Context) error { return nil }
func (f *fakeStore) Ping(context.Context) error         { return nil }

func (f *fakeStore) Create(_ context.Context, r models.CommentRecord) (models.CommentRecord, error) {
	f.creates = append(f.creates, r)
	if f.createErr != nil {
		return models.CommentRecord{}, f.createErr
	}
	return r, nil
}

func (f *fakeStore) UpdateScore(_ context.Context, id string, score float64) (models.CommentRecord, error) {
	f.updates = append(f.updates, score)
	if f.updateErr != nil {
		return models.CommentRecord{}, f.updateErr
	}
	return models.CommentRecord{ID: id, Score: score}, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) (bool, error) {
	f.removes = append(f.removes, id)
	return f.deleted, f.deleteErr
}

func ptr(v float64) *float64 { return &v }

func TestProcessDispatch(t *testing.T) {
	record := models.CommentRecord{ID: "msg_1", UserID: "u1", Content: "hello", OriginalTimestamp: "t1"}

	tests := []struct {
		name        string
		store       *fakeStore
		policy      DeletePolicy
		op          string
		score       *float64
		wantKind    Kind
		wantReason  Reason
		wantSuccess bool
	}{
		{name: "create", store: &fakeStore{}, op: "create", score: ptr(42), wantKind: KindCreated, wantSuccess: true},
		{name: "create upper case tag", store: &fakeStore{}, op: "CREATE", score: ptr(42), wantKind: KindCreated, wantSuccess: true},
		{name: "create conflict", store: &fakeStore{createErr: &store.StoreError{Kind: store.KindConflict}}, op: "create", wantReason: ReasonConflict},
		{name: "create store down", store: &fakeStore{createErr: &store.StoreError{Kind: store.KindUnavailable}}, op: "create", wantReason: ReasonStoreUnavailable},
		{name: "update", store: &fakeStore{}, op: "update", score: ptr(10), wantKind: KindUpdated, wantSuccess: true},
		{name: "update without score", store: &fakeStore{}, op: "update", wantReason: ReasonMissingScore},
		{name: "update missing id", store: &fakeStore{updateErr: &store.StoreError{Kind: store.KindNotFound}}, op: "update", score: ptr(10), wantReason: ReasonNotFound},
		{name: "update invalid score", store: &fakeStore{updateErr: &store.StoreError{Err: store.ErrInvalidScore}}, op: "update", score: ptr(10), wantReason: ReasonInvalidScore},
		{name: "delete removed", store: &fakeStore{deleted: true}, op: "delete", wantKind: KindDeleted, wantSuccess: true},
		{name: "delete missing strict", store: &fakeStore{}, op: "delete", wantKind: KindDeleted, wantReason: ReasonNotFound},
		{name: "delete missing idempotent", store: &fakeStore{}, policy: DeleteIdempotent, op: "delete", wantKind: KindDeleted, wantSuccess: true},
		{name: "delete store down", store: &fakeStore{deleteErr: &store.StoreError{Kind: store.KindUnavailable}}, op: "delete", wantReason: ReasonStoreUnavailable},
		{name: "unknown operation", store: &fakeStore{}, op: "archive", wantReason: ReasonUnknownOperation},
		{name: "empty operation", store: &fakeStore{}, op: "", wantReason: ReasonUnknownOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.store, tt.policy, nil)
			got := p.Process(context.Background(), record, tt.op, tt.score)

			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if got.Succeeded() != tt.wantSuccess {
				t.Errorf("Succeeded() = %v, want %v", got.Succeeded(), tt.wantSuccess)
			}
			if !tt.wantSuccess && got.Err == nil {
				t.Error("rejected outcome should carry an error")
			}
		})
	}
}

func TestProcessCreateUsesProvidedScore(t *testing.T) {
	fs := &fakeStore{}
	p := New(fs, DeleteStrict, nil)

	rec := models.CommentRecord{ID: "msg_1", Score: 5}
	got := p.Process(context.Background(), rec, "create", ptr(73))

	if len(fs.creates) != 1 || fs.creates[0].Score != 73 {
		t.Fatalf("Create called with %+v, want one record with score 73", fs.creates)
	}
	if got.Record.Score != 73 {
		t.Errorf("Record.Score = %v, want 73", got.Record.Score)
	}

	got = p.Process(context.Background(), rec, "create", nil)
	if got.Record.Score != 5 {
		t.Errorf("without a score the record keeps %v, got %v", rec.Score, got.Record.Score)
	}
}

func TestProcessUpdateWithoutScoreDoesNotTouchStore(t *testing.T) {
	fs := &fakeStore{}
	got := New(fs, DeleteStrict, nil).Process(context.Background(), models.CommentRecord{ID: "msg_1"}, "update", nil)

	if got.Reason != ReasonMissingScore {
		t.Fatalf("Reason = %q, want %q", got.Reason, ReasonMissingScore)
	}
	if len(fs.updates) != 0 || len(fs.creates) != 0 {
		t.Errorf("store mutated: updates=%v creates=%v", fs.updates, fs.creates)
	}
}

func TestProcessDeleteIgnoresScore(t *testing.T) {
	fs := &fakeStore{deleted: true}
	got := New(fs, DeleteStrict, nil).Process(context.Background(), models.CommentRecord{ID: "msg_9"}, "delete", ptr(99))

	if !got.Deleted {
		t.Fatal("Deleted = false, want true")
	}
	if len(fs.removes) != 1 || fs.removes[0] != "msg_9" || len(fs.updates) != 0 {
		t.Errorf("unexpected store calls: removes=%v updates=%v", fs.removes, fs.updates)
	}
}

func TestProcessAgainstMemoryStore(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	p := New(mem, DeleteStrict, nil)
	rec := models.CommentRecord{ID: "msg_1", UserID: "u1", Content: "hello", OriginalTimestamp: "t1"}

	if out := p.Process(ctx, rec, "update", ptr(10)); out.Succeeded() || out.Reason != ReasonNotFound {
		t.Fatalf("update before create = %+v, want not_found rejection", out)
	}
	if mem.Len() != 0 {
		t.Fatalf("update of a missing id created a record")
	}

	if out := p.Process(ctx, rec, "create", ptr(20)); !out.Succeeded() {
		t.Fatalf("create = %+v, want success", out)
	}
	if out := p.Process(ctx, rec, "create", ptr(30)); out.Reason != ReasonConflict {
		t.Fatalf("second create = %+v, want conflict", out)
	}
	if stored, _ := mem.Get("msg_1"); stored.Score != 20 {
		t.Errorf("stored score = %v, want 20 (duplicate create must not overwrite)", stored.Score)
	}

	if out := p.Process(ctx, rec, "update", ptr(20)); !out.Succeeded() {
		t.Errorf("re-applying the same score = %+v, want success", out)
	}
	if out := p.Process(ctx, rec, "delete", nil); !out.Succeeded() {
		t.Errorf("delete = %+v, want success", out)
	}
	if out := p.Process(ctx, rec, "delete", nil); out.Succeeded() {
		t.Errorf("second delete = %+v, want failure under DeleteStrict", out)
	}
}

func TestOutcomeErrKeepsStoreError(t *testing.T) {
	cause := &store.StoreError{Kind: store.KindUnavailable, Op: "create", ID: "msg_1", Err: errors.New("dial tcp: refused")}
	out := New(&fakeStore{createErr: cause}, DeleteStrict, nil).
		Process(context.Background(), models.CommentRecord{ID: "msg_1"}, "create", ptr(1))

	if !errors.Is(out.Err, store.ErrUnavailable) {
		t.Errorf("Err = %v, want it to match store.ErrUnavailable", out.Err)
	}
}

func TestOutcomeTransient(t *testing.T) {
	unavailable := &store.StoreError{Kind: store.KindUnavailable, Op: "update", ID: "msg_1", Err: errors.New("connection reset")}
	deadline := &store.StoreError{Kind: store.KindUnavailable, Op: "create", ID: "msg_1", Err: context.DeadlineExceeded}

	tests := []struct {
		name  string
		store *fakeStore
		op    string
		score *float64
		want  bool
	}{
		{name: "store unavailable", store: &fakeStore{updateErr: unavailable}, op: "update", score: ptr(3), want: true},
		{name: "deadline during store call", store: &fakeStore{createErr: deadline}, op: "create", score: ptr(3), want: true},
		{name: "raw driver error", store: &fakeStore{deleteErr: errors.New("i/o timeout")}, op: "delete", want: true},
		{name: "conflict", store: &fakeStore{createErr: &store.StoreError{Kind: store.KindConflict, Op: "create", ID: "msg_1"}}, op: "create", score: ptr(3), want: false},
		{name: "missing record", store: &fakeStore{updateErr: &store.StoreError{Kind: store.KindNotFound, Op: "update", ID: "msg_1"}}, op: "update", score: ptr(3), want: false},
		{name: "missing score", store: &fakeStore{}, op: "update", want: false},
		{name: "unknown operation", store: &fakeStore{}, op: "archive", want: false},
		{name: "strict delete of missing record", store: &fakeStore{}, op: "delete", want: false},
		{name: "success", store: &fakeStore{}, op: "create", score: ptr(3), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := New(tt.store, DeleteStrict, nil).
				Process(context.Background(), models.CommentRecord{ID: "msg_1"}, tt.op, tt.score)
			if got := out.Transient(); got != tt.want {
				t.Errorf("Transient() = %v, want %v (outcome %+v)", got, tt.want, out)
			}
		})
	}
}
