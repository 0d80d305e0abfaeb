package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/infer" {
			t.Errorf("path = %s, want /infer", r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}
		if req.Message != "I can't sleep" {
			t.Errorf("message = %q", req.Message)
		}
		json.NewEncoder(w).Encode(Reply{
			Text:       "Let's talk about your sleep routine.",
			Intent:     "sleep_support",
			Confidence: 0.93,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	reply, err := c.Infer(context.Background(), Request{Message: "I can't sleep", UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Intent != "sleep_support" || reply.Confidence != 0.93 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestInferServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	if _, err := c.Infer(context.Background(), Request{Message: "hi"}); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestInferTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, 20*time.Millisecond)
	if _, err := c.Infer(context.Background(), Request{Message: "hi"}); err == nil {
		t.Fatal("expected timeout error")
	}
}
