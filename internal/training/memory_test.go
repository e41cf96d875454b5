package training

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreSessions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.UpdateSession(ctx, Session{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}

	a := Session{ID: "a", Title: "first", Participants: []string{"p1"}}
	b := Session{ID: "b", Title: "second"}
	if err := s.CreateSession(ctx, a); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if err := s.CreateSession(ctx, b); err != nil {
		t.Fatalf("create b: %v", err)
	}

	all, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Fatalf("expected creation order, got %+v", all)
	}

	// Mutating a returned session must not leak into the store.
	got, err := s.GetSession(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Participants[0] = "tampered"
	again, _ := s.GetSession(ctx, "a")
	if again.Participants[0] != "p1" {
		t.Fatal("expected stored session isolated from caller mutation")
	}
}

func TestMemoryStoreOpenRequests(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	reqs := []SignatureRequest{
		{ID: "r1", SessionID: "a", Period: PeriodMorning, Status: RequestSent, ExpiresAt: now.Add(-time.Hour)},
		{ID: "r2", SessionID: "a", Period: PeriodAfternoon, Status: RequestSent, ExpiresAt: now.Add(time.Hour)},
		{ID: "r3", SessionID: "b", Period: PeriodMorning, Status: RequestSigned, ExpiresAt: now.Add(-time.Hour)},
	}
	for _, r := range reqs {
		if err := s.PutSignatureRequest(ctx, r); err != nil {
			t.Fatalf("put %s: %v", r.ID, err)
		}
	}

	stale, err := s.ListOpenSignatureRequests(ctx, now)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "r1" {
		t.Fatalf("expected only r1 stale, got %+v", stale)
	}
}
