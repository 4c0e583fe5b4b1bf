package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tradedesk/internal/model"
)

// transport is a connected event source. ReadEvent blocks until the next
// event arrives or the transport fails; Close unblocks it.
type transport interface {
	ReadEvent() (model.PriceEvent, error)
	Close() error
}

// subscribeFrame is the first frame sent on a new websocket connection.
type subscribeFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

type wsTransport struct {
	conn *websocket.Conn
}

func dialWebSocket(ctx context.Context, cfg Config) (*wsTransport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, cfg.WSURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("ws dial %s: %w (status %s)", cfg.WSURL, err, resp.Status)
		}
		return nil, fmt.Errorf("ws dial %s: %w", cfg.WSURL, err)
	}

	if err := conn.WriteJSON(subscribeFrame{Action: "subscribe", Topic: cfg.Topic}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ws subscribe %s: %w", cfg.Topic, err)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) ReadEvent() (model.PriceEvent, error) {
	var ev model.PriceEvent
	if err := t.conn.ReadJSON(&ev); err != nil {
		return model.PriceEvent{}, err
	}
	return ev, nil
}

func (t *wsTransport) Close() error {
	// Best effort: tell the server we are leaving before dropping the socket.
	deadline := time.Now().Add(time.Second)
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}

// streamTransport reads newline-delimited JSON events from a long-lived
// HTTP response, the downgrade path when the websocket handshake fails.
type streamTransport struct {
	cancel context.CancelFunc
	resp   *http.Response
	dec    *json.Decoder
}

func dialStream(ctx context.Context, cfg Config) (*streamTransport, error) {
	reqCtx, cancel := context.WithCancel(ctx)

	url := cfg.StreamURL + "?topic=" + cfg.Topic
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "application/x-ndjson")

	// No overall timeout: the response body is an endless stream.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stream dial %s: %w", cfg.StreamURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream dial %s: status %s", cfg.StreamURL, resp.Status)
	}

	return &streamTransport{
		cancel: cancel,
		resp:   resp,
		dec:    json.NewDecoder(resp.Body),
	}, nil
}

func (t *streamTransport) ReadEvent() (model.PriceEvent, error) {
	var ev model.PriceEvent
	if err := t.dec.Decode(&ev); err != nil {
		return model.PriceEvent{}, err
	}
	return ev, nil
}

func (t *streamTransport) Close() error {
	t.cancel()
	return t.resp.Body.Close()
}
