package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/genericchat/backend/internal/domain"
)

// dialTestConn returns both ends of a live websocket connection.
func dialTestConn(t *testing.T) (*Conn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverSide <- c
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	server := <-serverSide
	t.Cleanup(func() { server.Close() })
	return newConn(server), client
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	conn := &Conn{}

	if hub.Online("alice-example-com") {
		t.Fatal("fresh hub should have nobody online")
	}

	hub.Register("alice-example-com", conn)
	if !hub.Online("alice-example-com") {
		t.Fatal("alice should be online after register")
	}

	hub.Unregister("alice-example-com", conn)
	if hub.Online("alice-example-com") {
		t.Fatal("alice should be offline after unregister")
	}
}

func TestHubBroadcastToKeys(t *testing.T) {
	hub := NewHub()

	aliceConn, aliceClient := dialTestConn(t)
	bobConn, bobClient := dialTestConn(t)
	hub.Register("alice-example-com", aliceConn)
	hub.Register("bob-example-com", bobConn)

	hub.BroadcastToKeys([]domain.CanonicalKey{"alice-example-com"}, map[string]string{
		"type": "test_event",
	})

	aliceClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]string
	if err := aliceClient.ReadJSON(&got); err != nil {
		t.Fatalf("alice read: %v", err)
	}
	if got["type"] != "test_event" {
		t.Errorf("expected test_event, got %q", got["type"])
	}

	// Bob was not addressed and must receive nothing.
	bobClient.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var stray map[string]string
	if err := bobClient.ReadJSON(&stray); err == nil {
		t.Errorf("bob should not have received %v", stray)
	}
}

func TestHubBroadcastAll(t *testing.T) {
	hub := NewHub()

	aliceConn, aliceClient := dialTestConn(t)
	bobConn, bobClient := dialTestConn(t)
	hub.Register("alice-example-com", aliceConn)
	hub.Register("bob-example-com", bobConn)

	hub.BroadcastAll(map[string]string{"type": "user_online"})

	for _, client := range []*websocket.Conn{aliceClient, bobClient} {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got map[string]string
		if err := client.ReadJSON(&got); err != nil {
			t.Fatalf("read: %v", err)
		}
		if got["type"] != "user_online" {
			t.Errorf("expected user_online, got %q", got["type"])
		}
	}
}

func TestHubMultipleConnectionsPerAccount(t *testing.T) {
	hub := NewHub()

	first, firstClient := dialTestConn(t)
	second, secondClient := dialTestConn(t)
	hub.Register("alice-example-com", first)
	hub.Register("alice-example-com", second)

	hub.BroadcastToKeys([]domain.CanonicalKey{"alice-example-com"}, map[string]string{"type": "ping"})

	for _, client := range []*websocket.Conn{firstClient, secondClient} {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got map[string]string
		if err := client.ReadJSON(&got); err != nil {
			t.Fatalf("read: %v", err)
		}
	}

	// Dropping one device keeps the account online.
	hub.Unregister("alice-example-com", first)
	if !hub.Online("alice-example-com") {
		t.Fatal("alice should stay online while one device remains")
	}
	hub.Unregister("alice-example-com", second)
	if hub.Online("alice-example-com") {
		t.Fatal("alice should be offline once all devices drop")
	}
}
