package archive

import (
	"context"
	"testing"
)

func TestInMemoryStoreSaveAndRecent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for _, stage := range []string{"upload", "clean", "query"} {
		err := s.SaveEvent(ctx, StageEvent{SessionID: "s1", Stage: stage, Success: true, Message: stage + " ok"})
		if err != nil {
			t.Fatalf("SaveEvent(%s) error = %v", stage, err)
		}
	}
	_ = s.SaveEvent(ctx, StageEvent{SessionID: "s2", Stage: "upload", Success: false, Message: "bad file"})

	events, err := s.RecentEvents(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("RecentEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Stage != "clean" || events[1].Stage != "query" {
		t.Fatalf("events out of order: %+v", events)
	}
	if events[0].ID == "" || events[0].CreatedAt.IsZero() {
		t.Fatalf("SaveEvent should assign id and timestamp: %+v", events[0])
	}

	other, _ := s.RecentEvents(ctx, "s2", 0)
	if len(other) != 1 || other[0].Success {
		t.Fatalf("s2 events = %+v, want one failed upload", other)
	}

	none, err := s.RecentEvents(ctx, "missing", 5)
	if err != nil || none != nil {
		t.Fatalf("unknown session should return nil, nil; got %v, %v", none, err)
	}
}
