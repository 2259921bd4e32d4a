package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestSendClosesSlowConsumer(t *testing.T) {
	serverConns := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("unexpected upgrade error: %v", err)
			return
		}
		serverConns <- sock
	}))
	defer server.Close()

	dialURL := "ws" + strings.TrimPrefix(server.URL, "http")
	clientSock, _, err := websocket.DefaultDialer.Dial(dialURL, nil)
	if err != nil {
		t.Fatalf("unexpected dial error: %v", err)
	}
	defer clientSock.Close()

	conn := &wsConn{
		id:     "conn-a",
		sock:   <-serverConns,
		send:   make(chan []byte, 1),
		logger: zap.NewNop(),
	}

	// No write pump is draining the buffer, so the second send overflows it
	// and must tear the connection down rather than drop the frame silently.
	conn.Send(EventNotepad, "first")
	conn.Send(EventNotepad, "second")

	_ = clientSock.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := clientSock.ReadMessage(); err == nil {
		t.Fatal("expected the connection to be closed after buffer overflow")
	}
}
