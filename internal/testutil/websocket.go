package testutil

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const wsReadTimeout = 5 * time.Second

// WSMessage is a server frame as seen by a test client. Error frames fill
// Error and Code instead of Data.
type WSMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// WSClient is a websocket test client.
type WSClient struct {
	Conn     *websocket.Conn
	Protocol string
}

// WebSocketURL turns an httptest server URL into a ws:// URL for path.
func WebSocketURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// DialWebSocket connects to url and closes the connection when the test ends.
// The handshake response is returned so callers can check rejections.
func DialWebSocket(t testing.TB, url string, header http.Header) (*WSClient, *http.Response, error) {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, resp, err
	}
	t.Cleanup(func() { conn.Close() })
	return &WSClient{Conn: conn, Protocol: conn.Subprotocol()}, resp, nil
}

// Send writes a typed message with an optional data payload.
func (c *WSClient) Send(t testing.TB, messageType, id string, data interface{}) {
	t.Helper()
	msg := map[string]interface{}{"type": messageType}
	if id != "" {
		msg["id"] = id
	}
	if data != nil {
		msg["data"] = data
	}
	if err := c.Conn.WriteJSON(msg); err != nil {
		t.Fatalf("Failed to send %s: %v", messageType, err)
	}
}

// SendRaw writes a text frame as is.
func (c *WSClient) SendRaw(t testing.TB, payload string) {
	t.Helper()
	if err := c.Conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("Failed to send raw frame: %v", err)
	}
}

// Read returns the next frame.
func (c *WSClient) Read(t testing.TB) WSMessage {
	t.Helper()
	if err := c.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var msg WSMessage
	if err := c.Conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	return msg
}

// Expect reads the next frame and fails unless it has messageType.
// When v is non-nil the data payload is decoded into it.
func (c *WSClient) Expect(t testing.TB, messageType string, v interface{}) WSMessage {
	t.Helper()
	msg := c.Read(t)
	if msg.Type != messageType {
		t.Fatalf("Expected message type %q, got %q (error=%q)", messageType, msg.Type, msg.Error)
	}
	if v != nil {
		if err := json.Unmarshal(msg.Data, v); err != nil {
			t.Fatalf("Failed to decode %s data: %v", messageType, err)
		}
	}
	return msg
}
