package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type staticToken string

func (s staticToken) Get(context.Context) (string, error) { return string(s), nil }

func newTestHelix(t *testing.T, handlers map[string]http.HandlerFunc) *HelixClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return &HelixClient{
		Tokens:        staticToken("test-token"),
		ClientID:      "test-client",
		BroadcasterID: "999",
		BaseURL:       srv.URL,
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestGetUserID(t *testing.T) {
	hc := newTestHelix(t, map[string]http.HandlerFunc{
		"/users": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("Authorization = %q", got)
			}
			if got := r.Header.Get("Client-Id"); got != "test-client" {
				t.Errorf("Client-Id = %q", got)
			}
			if got := r.URL.Query().Get("login"); got != "alice" {
				t.Errorf("login = %q", got)
			}
			writeJSON(t, w, map[string]any{"data": []map[string]string{{"id": "42"}}})
		},
	})
	id, err := hc.GetUserID(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUserID() err = %v", err)
	}
	if id != "42" {
		t.Errorf("GetUserID() = %q, want 42", id)
	}
}

func TestGetUserIDNotFound(t *testing.T) {
	hc := newTestHelix(t, map[string]http.HandlerFunc{
		"/users": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"data": []map[string]string{}})
		},
	})
	if _, err := hc.GetUserID(context.Background(), "ghost"); err == nil {
		t.Error("GetUserID() for unknown user should error")
	}
	if _, err := hc.GetUserID(context.Background(), ""); err == nil {
		t.Error("GetUserID() with empty login should error")
	}
}

func TestIsFollower(t *testing.T) {
	follows := true
	hc := newTestHelix(t, map[string]http.HandlerFunc{
		"/channels/followers": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("broadcaster_id"); got != "999" {
				t.Errorf("broadcaster_id = %q", got)
			}
			if follows {
				writeJSON(t, w, map[string]any{"data": []map[string]string{{"user_id": "42"}}})
			} else {
				writeJSON(t, w, map[string]any{"data": []map[string]string{}})
			}
		},
	})
	got, err := hc.IsFollower(context.Background(), "42")
	if err != nil || !got {
		t.Errorf("IsFollower() = %v, %v, want true", got, err)
	}
	follows = false
	got, err = hc.IsFollower(context.Background(), "42")
	if err != nil || got {
		t.Errorf("IsFollower() = %v, %v, want false", got, err)
	}
}

func TestIsSubscriber404IsNegative(t *testing.T) {
	hc := newTestHelix(t, map[string]http.HandlerFunc{
		"/subscriptions/user": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	})
	got, err := hc.IsSubscriber(context.Background(), "42")
	if err != nil {
		t.Fatalf("IsSubscriber() err = %v, 404 must not be an error", err)
	}
	if got {
		t.Error("IsSubscriber() = true on 404, want false")
	}
}

func TestLookupUserDegradesOnPartialFailure(t *testing.T) {
	hc := newTestHelix(t, map[string]http.HandlerFunc{
		"/users": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"data": []map[string]string{{"id": "42"}}})
		},
		"/channels/followers": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
		"/subscriptions/user": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})
	id, err := hc.LookupUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("LookupUser() err = %v", err)
	}
	if id.UserID != "42" {
		t.Errorf("UserID = %q", id.UserID)
	}
	if id.Following {
		t.Error("Following should default to false when the check fails")
	}
	if !id.Subscribed {
		t.Error("Subscribed = false, want true")
	}
}

func TestListSubscribers(t *testing.T) {
	hc := newTestHelix(t, map[string]http.HandlerFunc{
		"/subscriptions": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"data": []map[string]string{
				{"user_name": "Alice"}, {"user_name": "Bob"},
			}})
		},
	})
	subs, err := hc.ListSubscribers(context.Background())
	if err != nil {
		t.Fatalf("ListSubscribers() err = %v", err)
	}
	if len(subs) != 2 || subs[0] != "Alice" || subs[1] != "Bob" {
		t.Errorf("ListSubscribers() = %v", subs)
	}
}

func TestGetStreamStartedAt(t *testing.T) {
	started := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	live := true
	hc := newTestHelix(t, map[string]http.HandlerFunc{
		"/streams": func(w http.ResponseWriter, r *http.Request) {
			if live {
				writeJSON(t, w, map[string]any{"data": []map[string]string{{"started_at": started.Format(time.RFC3339)}}})
			} else {
				writeJSON(t, w, map[string]any{"data": []map[string]string{}})
			}
		},
	})
	got, ok, err := hc.GetStreamStartedAt(context.Background())
	if err != nil || !ok {
		t.Fatalf("GetStreamStartedAt() = %v, %v, %v", got, ok, err)
	}
	if !got.Equal(started) {
		t.Errorf("started = %v, want %v", got, started)
	}
	live = false
	_, ok, err = hc.GetStreamStartedAt(context.Background())
	if err != nil || ok {
		t.Errorf("offline stream: ok = %v, err = %v, want false, nil", ok, err)
	}
}

func TestCreatePoll(t *testing.T) {
	var body map[string]any
	hc := newTestHelix(t, map[string]http.HandlerFunc{
		"/polls": func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode poll body: %v", err)
			}
			w.WriteHeader(http.StatusOK)
		},
	})
	err := hc.CreatePoll(context.Background(), "best color?", []string{"red", "blue"}, 60*time.Second)
	if err != nil {
		t.Fatalf("CreatePoll() err = %v", err)
	}
	// Helix declares duration an integer, not a string.
	if body["title"] != "best color?" || body["duration"] != float64(60) {
		t.Errorf("poll payload = %v", body)
	}
	if choices, ok := body["choices"].([]any); !ok || len(choices) != 2 {
		t.Errorf("choices = %v", body["choices"])
	}
}

func TestResolveBroadcaster(t *testing.T) {
	hc := newTestHelix(t, map[string]http.HandlerFunc{
		"/users": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"data": []map[string]string{{"id": "1234"}}})
		},
	})
	hc.BroadcasterID = ""
	if err := hc.ResolveBroadcaster(context.Background(), "thechannel"); err != nil {
		t.Fatalf("ResolveBroadcaster() err = %v", err)
	}
	if hc.BroadcasterID != "1234" {
		t.Errorf("BroadcasterID = %q, want 1234", hc.BroadcasterID)
	}
}
