package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu  sync.Mutex
	got []Event
}

func (r *recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, ev)
	return nil
}

func (r *recorder) wait(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.got) >= n {
			out := append([]Event(nil), r.got...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events", n)
	return nil
}

func TestEmitAsync_DeliversEvent(t *testing.T) {
	rec := &recorder{}
	EmitAsync(rec, Event{
		Type:      TypeLoginSuccess,
		SubjectID: "subj-1",
		SessionID: "sess-1",
		At:        time.Now().UTC(),
		Fields:    map[string]string{"identifier": "alice"},
	})
	got := rec.wait(t, 1)
	if got[0].Type != TypeLoginSuccess || got[0].SubjectID != "subj-1" {
		t.Errorf("unexpected event: %+v", got[0])
	}
}

func TestEmitAsync_NilEmitterIsNoop(t *testing.T) {
	// Must not panic or spawn anything.
	EmitAsync(nil, Event{Type: TypeLogout})
}
