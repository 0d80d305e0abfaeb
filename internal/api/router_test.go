package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindhaven/relay/internal/registry"
	"github.com/mindhaven/relay/internal/session"
	"github.com/mindhaven/relay/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, *registry.Registry) {
	t.Helper()

	dir := store.NewMemoryDirectory()
	dir.CreateRoom(context.Background(), "anxiety", true)
	dir.CreateRoom(context.Background(), "depression", false)

	sessions := session.NewManager(session.NewVerifier("secret"), time.Second, 3, time.Minute, zerolog.Nop())
	reg := registry.New(zerolog.Nop())

	r := NewRouter(RouterConfig{
		Directory: dir,
		Limiter:   store.NewMemoryLimiter(),
		Sessions:  sessions,
		Registry:  reg,
		Socket:    http.NotFoundHandler(),
		Log:       zerolog.Nop(),
	})
	return r, reg
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" {
		t.Fatalf("status = %s, want healthy", body.Status)
	}
}

func TestListRooms(t *testing.T) {
	r, reg := newTestRouter(t)
	reg.Join("anxiety", "s1", false)
	reg.Join("anxiety", "s2", false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/rooms", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Rooms []struct {
			ID        string `json:"id"`
			Occupancy int    `json:"occupancy"`
		} `json:"rooms"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 2 || len(body.Rooms) != 2 {
		t.Fatalf("total = %d, rooms = %d", body.Total, len(body.Rooms))
	}
	for _, room := range body.Rooms {
		if room.ID == "anxiety" && room.Occupancy != 2 {
			t.Fatalf("anxiety occupancy = %d, want 2", room.Occupancy)
		}
	}
}

func TestGetRoomNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/rooms/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStats(t *testing.T) {
	r, reg := newTestRouter(t)
	reg.Join("anxiety", "s1", false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		ActiveRooms    int   `json:"active_rooms"`
		DirectoryRooms int64 `json:"directory_rooms"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.ActiveRooms != 1 || body.DirectoryRooms != 2 {
		t.Fatalf("unexpected stats: %+v", body)
	}
}

func TestSuspiciousPathRejected(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/rooms/%2e%2e%2fsecret", nil)
	r.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatal("traversal path should not succeed")
	}
}

func TestSecurityHeaders(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options = %q", got)
	}
}
