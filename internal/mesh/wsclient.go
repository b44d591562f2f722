package mesh

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"peacepad-signaling/internal/hub"
)

const clientWriteWait = 10 * time.Second

// WSClient is a Signaler over the router's websocket endpoint.
type WSClient struct {
	conn *websocket.Conn
	mu   sync.Mutex // one writer at a time
}

// Dial connects to url, authenticating with a bearer token when set.
func Dial(ctx context.Context, url, token string) (*WSClient, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("mesh: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("mesh: dial %s: %w", url, err)
	}
	return &WSClient{conn: conn}, nil
}

func (w *WSClient) Signal(env hub.Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	return w.conn.WriteJSON(env)
}

// Listen hands every received envelope to handle until the connection fails
// or ctx is done.
func (w *WSClient) Listen(ctx context.Context, handle func(hub.Envelope)) error {
	go func() {
		<-ctx.Done()
		_ = w.conn.Close()
	}()
	for {
		var env hub.Envelope
		if err := w.conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		handle(env)
	}
}

func (w *WSClient) Close() error {
	w.mu.Lock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	w.mu.Unlock()
	return w.conn.Close()
}
