package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mindhaven/relay/internal/models"
)

func TestFetchSince(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rooms/anxiety/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("after"); got != "1000" {
			t.Errorf("after = %s, want 1000", got)
		}
		json.NewEncoder(w).Encode(map[string][]models.Envelope{
			"messages": {
				{MessageID: "m2", RoomID: "anxiety", Kind: models.KindText, Body: "still here", ServerTimestamp: 1500},
				{MessageID: "m3", RoomID: "anxiety", Kind: models.KindText, Body: "me too", ServerTimestamp: 2000},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	msgs, err := c.FetchSince(context.Background(), "anxiety", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].MessageID != "m2" || msgs[1].MessageID != "m3" {
		t.Fatalf("unexpected order: %s %s", msgs[0].MessageID, msgs[1].MessageID)
	}
}

func TestFetchSinceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	if _, err := c.FetchSince(context.Background(), "anxiety", 0); err == nil {
		t.Fatal("expected error for 500")
	}
}
