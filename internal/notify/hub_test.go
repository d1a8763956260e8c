package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestHub_BroadcastsEvents(t *testing.T) {
	h := NewHub(zap.NewNop(), nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	id := uuid.New()
	if err := h.Notify(context.Background(), Event{ServiceID: id, Name: "api", Success: true}); err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.ServiceID != id || ev.Name != "api" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://dash.example.com"})
	cases := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "api.local", true},
		{"https://dash.example.com", "api.local", true},
		{"http://api.local", "api.local", true},
		{"https://evil.example.com", "api.local", false},
	}
	for _, c := range cases {
		r, _ := http.NewRequest("GET", "http://"+c.host+"/api/events", nil)
		r.Host = c.host
		if c.origin != "" {
			r.Header.Set("Origin", c.origin)
		}
		if got := check(r); got != c.want {
			t.Errorf("origin %q host %q: got %v", c.origin, c.host, got)
		}
	}
}
