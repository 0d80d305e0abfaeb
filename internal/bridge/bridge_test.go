package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindhaven/relay/internal/models"
	"github.com/mindhaven/relay/internal/registry"
	"github.com/mindhaven/relay/internal/session"
)

type fakeSink struct {
	mu        sync.Mutex
	delivered []*models.Envelope
}

func (f *fakeSink) Deliver(env *models.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, env)
	return nil
}

func (f *fakeSink) DeliverError(models.ErrorEnvelope) {}

func (f *fakeSink) envelopes() []*models.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Envelope, len(f.delivered))
	copy(out, f.delivered)
	return out
}

type fakeHistory struct {
	mu       sync.Mutex
	byRoom   map[string][]models.Envelope
	requests []string
	err      error
}

func (f *fakeHistory) FetchSince(_ context.Context, roomID string, after int64) ([]models.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, roomID)
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Envelope
	for _, env := range f.byRoom[roomID] {
		if env.ServerTimestamp > after {
			out = append(out, env)
		}
	}
	return out, nil
}

func newFixture() (*session.Manager, *registry.Registry, *fakeHistory, *Bridge) {
	sessions := session.NewManager(session.NewVerifier("secret"), time.Hour, 3, time.Minute, zerolog.Nop())
	reg := registry.New(zerolog.Nop())
	hist := &fakeHistory{byRoom: make(map[string][]models.Envelope)}
	b := New(sessions, reg, hist, zerolog.Nop())

	sessions.SetCloseHook(func(id string) {
		reg.RemoveSession(id)
		b.OnClose(id)
	})
	return sessions, reg, hist, b
}

func TestResumeRejoinsAndBackfills(t *testing.T) {
	sessions, reg, hist, b := newFixture()

	sink := &fakeSink{}
	sess, _, _ := sessions.Connect("s1", "", "alice", sink)
	reg.Join("anxiety", "s1", false)
	sess.MarkJoined("anxiety")
	sess.ObserveDelivery("anxiety", 1000)

	// Messages posted during the outage.
	hist.byRoom["anxiety"] = []models.Envelope{
		{MessageID: "old", RoomID: "anxiety", SenderID: "bob", Kind: models.KindText, ServerTimestamp: 900},
		{MessageID: "m2", RoomID: "anxiety", SenderID: "bob", Kind: models.KindText, Body: "you there?", ServerTimestamp: 1500},
		{MessageID: "m3", RoomID: "anxiety", SenderID: "carol", Kind: models.KindText, Body: "hello", ServerTimestamp: 2000},
	}

	sessions.Disconnect("s1")
	b.OnDisconnect(sess)

	if reg.Contains("anxiety", "s1") {
		t.Fatal("disconnected session must leave fan-out")
	}

	// Resume inside the window.
	sink2 := &fakeSink{}
	resumed, ok, err := sessions.Connect("s1", "", "alice", sink2)
	if err != nil || !ok {
		t.Fatalf("resume failed: %v", err)
	}
	if err := b.Resume(context.Background(), resumed, nil); err != nil {
		t.Fatal(err)
	}

	if !reg.Contains("anxiety", "s1") {
		t.Fatal("resume must re-join retained rooms without an explicit join")
	}

	got := sink2.envelopes()
	if len(got) != 2 {
		t.Fatalf("backfill delivered %d envelopes, want 2 (after ts=1000)", len(got))
	}
	if got[0].MessageID != "m2" || got[1].MessageID != "m3" {
		t.Fatalf("backfill order wrong: %s %s", got[0].MessageID, got[1].MessageID)
	}
}

func TestResumeUsesClientHighWaterMark(t *testing.T) {
	sessions, reg, hist, b := newFixture()

	sink := &fakeSink{}
	sess, _, _ := sessions.Connect("s1", "", "alice", sink)
	reg.Join("anxiety", "s1", false)
	sess.MarkJoined("anxiety")
	sess.ObserveDelivery("anxiety", 1000)

	hist.byRoom["anxiety"] = []models.Envelope{
		{MessageID: "m2", RoomID: "anxiety", SenderID: "bob", Kind: models.KindText, ServerTimestamp: 1500},
		{MessageID: "m3", RoomID: "anxiety", SenderID: "bob", Kind: models.KindText, ServerTimestamp: 2000},
	}

	sessions.Disconnect("s1")
	b.OnDisconnect(sess)

	sink2 := &fakeSink{}
	resumed, _, _ := sessions.Connect("s1", "", "alice", sink2)

	// Client says it already has everything through 1500.
	if err := b.Resume(context.Background(), resumed, map[string]int64{"anxiety": 1500}); err != nil {
		t.Fatal(err)
	}

	got := sink2.envelopes()
	if len(got) != 1 || got[0].MessageID != "m3" {
		t.Fatalf("expected only m3, got %+v", got)
	}
}

func TestResumeSkipsOwnCommunityMessages(t *testing.T) {
	sessions, reg, hist, b := newFixture()

	sess, _, _ := sessions.Connect("s1", "", "alice", &fakeSink{})
	reg.Join("anxiety", "s1", false)
	sess.MarkJoined("anxiety")

	hist.byRoom["anxiety"] = []models.Envelope{
		{MessageID: "mine", RoomID: "anxiety", SenderID: "alice", Kind: models.KindText, ServerTimestamp: 100},
		{MessageID: "theirs", RoomID: "anxiety", SenderID: "bob", Kind: models.KindText, ServerTimestamp: 200},
	}

	sessions.Disconnect("s1")
	b.OnDisconnect(sess)

	sink2 := &fakeSink{}
	resumed, _, _ := sessions.Connect("s1", "", "alice", sink2)
	if err := b.Resume(context.Background(), resumed, nil); err != nil {
		t.Fatal(err)
	}

	got := sink2.envelopes()
	if len(got) != 1 || got[0].MessageID != "theirs" {
		t.Fatalf("own community messages must not be echoed in replay, got %+v", got)
	}
}

func TestDisconnectPinsAssistantRoom(t *testing.T) {
	sessions, reg, _, b := newFixture()

	room := models.AssistantRoomID("alice")
	sess, _, _ := sessions.Connect("s1", "", "alice", &fakeSink{})
	reg.Join(room, "s1", true)
	sess.MarkJoined(room)

	sessions.Disconnect("s1")
	b.OnDisconnect(sess)

	if !reg.Exists(room) {
		t.Fatal("pinned assistant room must survive while its member may resume")
	}

	// Expiry path: close releases the pin and the room is reclaimed.
	sessions.Close("s1")
	if reg.Exists(room) {
		t.Fatal("room should be reclaimed once the session is gone for good")
	}
}

func TestResumeHistoryFailureSurfaces(t *testing.T) {
	sessions, reg, hist, b := newFixture()

	sess, _, _ := sessions.Connect("s1", "", "alice", &fakeSink{})
	reg.Join("anxiety", "s1", false)
	sess.MarkJoined("anxiety")

	hist.err = errors.New("history store down")

	sessions.Disconnect("s1")
	b.OnDisconnect(sess)

	resumed, _, _ := sessions.Connect("s1", "", "alice", &fakeSink{})
	if err := b.Resume(context.Background(), resumed, nil); err == nil {
		t.Fatal("gap-fill failure must be surfaced, not swallowed")
	}

	// Membership is still restored; only the backfill failed.
	if !reg.Contains("anxiety", "s1") {
		t.Fatal("membership restoration should precede backfill")
	}
}
