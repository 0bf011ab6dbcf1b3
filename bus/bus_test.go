package bus

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestPublishFansOutToPeer(t *testing.T) {
	b := New(nil)
	b.Run()
	defer b.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgraderForTest.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		b.Register(conn)
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	// Give the server handler a moment to register the peer.
	time.Sleep(50 * time.Millisecond)

	b.Publish("add_message", 42)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("reading broadcast: %v", err)
	}
	if string(msg) != "add_message,42" {
		t.Errorf("got %q, want %q", msg, "add_message,42")
	}
}

var upgraderForTest = websocket.Upgrader{}
