package session

import (
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/mindhaven/relay/internal/models"
)

type fakeSink struct {
	mu        sync.Mutex
	delivered []*models.Envelope
	errors    []models.ErrorEnvelope
}

func (f *fakeSink) Deliver(env *models.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, env)
	return nil
}

func (f *fakeSink) DeliverError(e models.ErrorEnvelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, e)
}

func (f *fakeSink) deliveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func signToken(t *testing.T, secret, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func newTestManager(ackTimeout time.Duration, retries int, window time.Duration) *Manager {
	return NewManager(NewVerifier("test-secret"), ackTimeout, retries, window, zerolog.Nop())
}

func TestConnectWithValidToken(t *testing.T) {
	m := newTestManager(time.Second, 3, time.Minute)

	sess, resumed, err := m.Connect("s1", signToken(t, "test-secret", "user-42"), "", &fakeSink{})
	if err != nil {
		t.Fatal(err)
	}
	if resumed {
		t.Fatal("fresh session should not resume")
	}
	if sess.UserID != "user-42" {
		t.Fatalf("UserID = %s, want user-42", sess.UserID)
	}
	if sess.Anonymous {
		t.Fatal("token-backed session should not be anonymous")
	}
	if sess.State() != StateAuthenticated {
		t.Fatalf("state = %s, want authenticated", sess.State())
	}
}

func TestConnectWithBadToken(t *testing.T) {
	m := newTestManager(time.Second, 3, time.Minute)

	_, _, err := m.Connect("s1", signToken(t, "wrong-secret", "user-42"), "", &fakeSink{})
	if err == nil {
		t.Fatal("expected auth error")
	}
	if _, ok := err.(*models.AuthError); !ok {
		t.Fatalf("expected AuthError, got %T", err)
	}
}

func TestConnectAnonymous(t *testing.T) {
	m := newTestManager(time.Second, 3, time.Minute)

	sess, _, err := m.Connect("s1", "", "guest-7", &fakeSink{})
	if err != nil {
		t.Fatal(err)
	}
	if !sess.Anonymous || sess.UserID != "guest-7" {
		t.Fatalf("unexpected session: anonymous=%v user=%s", sess.Anonymous, sess.UserID)
	}

	// No supplied ID: one is generated.
	sess2, _, err := m.Connect("s2", "", "", &fakeSink{})
	if err != nil {
		t.Fatal(err)
	}
	if sess2.UserID == "" {
		t.Fatal("anonymous session should get a generated user ID")
	}
}

func TestSessionIDIdentityMismatch(t *testing.T) {
	m := newTestManager(time.Second, 3, time.Minute)

	m.Connect("s1", "", "guest-a", &fakeSink{})
	_, _, err := m.Connect("s1", "", "guest-b", &fakeSink{})
	if _, ok := err.(*models.AuthError); !ok {
		t.Fatalf("expected AuthError for identity mismatch, got %v", err)
	}
}

func TestJoinLeaveBookkeeping(t *testing.T) {
	m := newTestManager(time.Second, 3, time.Minute)
	sess, _, _ := m.Connect("s1", "", "guest", &fakeSink{})

	sess.MarkJoined("anxiety")
	if sess.State() != StateJoined {
		t.Fatalf("state = %s, want joined", sess.State())
	}
	if !sess.InRoom("anxiety") {
		t.Fatal("session should be in room")
	}

	sess.MarkLeft("anxiety")
	if sess.InRoom("anxiety") {
		t.Fatal("session should have left room")
	}
}

func TestDeliverAckResolution(t *testing.T) {
	m := newTestManager(50*time.Millisecond, 2, time.Minute)
	sink := &fakeSink{}
	sess, _, _ := m.Connect("s1", "", "guest", sink)

	env := &models.Envelope{MessageID: "m1", RoomID: "r", Kind: models.KindText, Body: "hi"}
	sess.Deliver(env, nil)

	if sink.deliveredCount() != 1 {
		t.Fatalf("delivered %d, want 1", sink.deliveredCount())
	}
	if sess.PendingCount() != 1 {
		t.Fatal("envelope should be pending until acked")
	}

	if !sess.ResolveAck("r", "m1") {
		t.Fatal("ack should resolve pending envelope")
	}
	if sess.ResolveAck("r", "m1") {
		t.Fatal("double ack should be a no-op")
	}

	// No retries after resolution.
	time.Sleep(150 * time.Millisecond)
	if sink.deliveredCount() != 1 {
		t.Fatalf("resolved envelope was redelivered, count=%d", sink.deliveredCount())
	}
}

func TestDeliveryRetryExhaustion(t *testing.T) {
	m := newTestManager(20*time.Millisecond, 2, time.Minute)
	sink := &fakeSink{}
	sess, _, _ := m.Connect("s1", "", "guest", sink)

	var mu sync.Mutex
	var failure *models.DeliveryFailed
	notify := func(f *models.DeliveryFailed) {
		mu.Lock()
		failure = f
		mu.Unlock()
	}

	env := &models.Envelope{MessageID: "m1", RoomID: "r", Kind: models.KindText}
	sess.Deliver(env, notify)

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		done := failure != nil
		mu.Unlock()
		if done || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if failure == nil {
		t.Fatal("retry exhaustion should notify DeliveryFailed")
	}
	if failure.MessageID != "m1" {
		t.Fatalf("failure carries %s, want m1", failure.MessageID)
	}
	// Initial send + 2 retries.
	if n := sink.deliveredCount(); n != 3 {
		t.Fatalf("delivered %d times, want 3", n)
	}
	if sess.PendingCount() != 0 {
		t.Fatal("exhausted envelope should leave the pending set")
	}
}

func TestDisconnectRetainsState(t *testing.T) {
	m := newTestManager(time.Second, 3, time.Minute)
	sess, _, _ := m.Connect("s1", "", "guest", &fakeSink{})
	sess.MarkJoined("anxiety")

	m.Disconnect("s1")
	if sess.State() != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", sess.State())
	}
	if !sess.InRoom("anxiety") {
		t.Fatal("joined rooms must survive disconnect")
	}
	if m.Get("s1") == nil {
		t.Fatal("parked session should still be tracked")
	}
}

func TestResumeWithinWindow(t *testing.T) {
	m := newTestManager(time.Second, 3, time.Minute)
	sess, _, _ := m.Connect("s1", "", "guest", &fakeSink{})
	sess.MarkJoined("anxiety")
	m.Disconnect("s1")

	sink2 := &fakeSink{}
	resumedSess, resumed, err := m.Connect("s1", "", "guest", sink2)
	if err != nil {
		t.Fatal(err)
	}
	if !resumed {
		t.Fatal("connect with parked session ID should resume")
	}
	if resumedSess != sess {
		t.Fatal("resume should return the same session")
	}
	if !resumedSess.InRoom("anxiety") {
		t.Fatal("room membership should survive the blip")
	}
}

func TestResumeRedeliversPending(t *testing.T) {
	m := newTestManager(time.Hour, 3, time.Minute) // long timeout: no timer-driven retries
	sink := &fakeSink{}
	sess, _, _ := m.Connect("s1", "", "guest", sink)

	env := &models.Envelope{MessageID: "m1", RoomID: "r", Kind: models.KindText}
	sess.Deliver(env, nil)
	m.Disconnect("s1")

	sink2 := &fakeSink{}
	m.Connect("s1", "", "guest", sink2)

	if sink2.deliveredCount() != 1 {
		t.Fatalf("pending envelope should be redelivered on resume, got %d", sink2.deliveredCount())
	}
}

func TestRetentionWindowExpiry(t *testing.T) {
	m := newTestManager(time.Second, 3, 30*time.Millisecond)
	m.Connect("s1", "", "guest", &fakeSink{})

	var mu sync.Mutex
	var closedID string
	m.SetCloseHook(func(id string) {
		mu.Lock()
		closedID = id
		mu.Unlock()
	})

	m.Disconnect("s1")
	time.Sleep(100 * time.Millisecond)

	if m.Get("s1") != nil {
		t.Fatal("expired session should be destroyed")
	}
	mu.Lock()
	defer mu.Unlock()
	if closedID != "s1" {
		t.Fatal("close hook should fire on expiry")
	}
}

func TestResumeBeatsExpiry(t *testing.T) {
	m := newTestManager(time.Second, 3, 50*time.Millisecond)
	m.Connect("s1", "", "guest", &fakeSink{})
	m.Disconnect("s1")

	if _, resumed, err := m.Connect("s1", "", "guest", &fakeSink{}); err != nil || !resumed {
		t.Fatalf("resume failed: %v", err)
	}

	// The stale expiry timer must not kill the resumed session.
	time.Sleep(120 * time.Millisecond)
	if m.Get("s1") == nil {
		t.Fatal("resumed session was destroyed by a stale retention timer")
	}
}

func TestCloseIsTerminal(t *testing.T) {
	m := newTestManager(time.Second, 3, time.Minute)
	sess, _, _ := m.Connect("s1", "", "guest", &fakeSink{})
	m.Close("s1")

	if sess.State() != StateClosed {
		t.Fatalf("state = %s, want closed", sess.State())
	}
	if m.Get("s1") != nil {
		t.Fatal("closed session should be removed")
	}

	// Connecting again with the same ID starts fresh.
	fresh, resumed, err := m.Connect("s1", "", "guest", &fakeSink{})
	if err != nil {
		t.Fatal(err)
	}
	if resumed {
		t.Fatal("closed sessions never resume")
	}
	if fresh == sess {
		t.Fatal("expected a fresh session value")
	}
}

func TestObserveDelivery(t *testing.T) {
	m := newTestManager(time.Second, 3, time.Minute)
	sess, _, _ := m.Connect("s1", "", "guest", &fakeSink{})

	sess.ObserveDelivery("r", 100)
	sess.ObserveDelivery("r", 50) // older, ignored
	if got := sess.LastSeen("r"); got != 100 {
		t.Fatalf("LastSeen = %d, want 100", got)
	}
}

func TestVerifierRejectsMissingSubject(t *testing.T) {
	v := NewVerifier("secret")
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, _ := tok.SignedString([]byte("secret"))

	if _, err := v.Verify(signed); err == nil {
		t.Fatal("token without subject should fail")
	}
}

func TestDetachSinkIgnoresSupersededConnection(t *testing.T) {
	m := newTestManager(time.Second, 3, time.Minute)

	oldSink := &fakeSink{}
	sess, _, err := m.Connect("s1", "", "guest", oldSink)
	if err != nil {
		t.Fatal(err)
	}

	newSink := &fakeSink{}
	if _, _, err := m.Connect("s1", "", "guest", newSink); err != nil {
		t.Fatal(err)
	}

	// The stale socket's teardown must not park the session the newer
	// connection owns.
	if m.DetachSink("s1", oldSink) {
		t.Fatal("superseded sink should not detach the session")
	}
	if sess.State() == StateDisconnected {
		t.Fatal("session should stay live after stale detach")
	}

	if !m.DetachSink("s1", newSink) {
		t.Fatal("current sink should detach")
	}
	if sess.State() != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", sess.State())
	}
}

func TestSameMessageIDAcrossRooms(t *testing.T) {
	m := newTestManager(time.Hour, 3, time.Minute)
	sink := &fakeSink{}
	sess, _, _ := m.Connect("s1", "", "guest", sink)

	// Message IDs are only unique per sender; two rooms can carry the same
	// ID at once and both must be delivered and tracked.
	sess.Deliver(&models.Envelope{MessageID: "m1", RoomID: "anxiety", Kind: models.KindText, Body: "a"}, nil)
	sess.Deliver(&models.Envelope{MessageID: "m1", RoomID: "depression", Kind: models.KindText, Body: "b"}, nil)

	if sink.deliveredCount() != 2 {
		t.Fatalf("delivered %d, want 2", sink.deliveredCount())
	}
	if sess.PendingCount() != 2 {
		t.Fatalf("pending = %d, want 2", sess.PendingCount())
	}

	if !sess.ResolveAck("anxiety", "m1") {
		t.Fatal("ack for the first room should resolve")
	}
	if sess.PendingCount() != 1 {
		t.Fatal("ack in one room must not resolve the other room's entry")
	}
	if !sess.ResolveAck("depression", "m1") {
		t.Fatal("ack for the second room should resolve")
	}
}
