package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"riskgate/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client talks to a gateway server over one WebSocket connection. One
// request is in flight at a time, matching the server's strict
// request/reply ordering.
type Client struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

// DialClient connects to a gateway at url (ws://host:port/ws).
func DialClient(ctx context.Context, url string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// do sends one envelope and decodes the reply into out, verifying the
// correlation id round-tripped.
func (c *Client) do(req any, correlationID string, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	_, reply, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}

	var header Header
	if err := json.Unmarshal(reply, &header); err != nil {
		return fmt.Errorf("decode reply header: %w", err)
	}
	if header.CorrelationID != correlationID {
		return fmt.Errorf("correlation mismatch: sent %s, got %s", correlationID, header.CorrelationID)
	}

	if err := json.Unmarshal(reply, out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

func newEnvelope(action Action) Envelope {
	return Envelope{
		CorrelationID: uuid.NewString(),
		Action:        action,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Ping measures the round trip.
func (c *Client) Ping() (*PingResponse, error) {
	env := newEnvelope(ActionPing)
	var resp PingResponse
	if err := c.do(env, env.CorrelationID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Open submits a risk-authorized order.
func (c *Client) Open(order domain.Order, riskAuthorization string) (*OpenResponse, error) {
	env := newEnvelope(ActionOpen)
	req := struct {
		Envelope
		OpenPayload
	}{
		Envelope: env,
		OpenPayload: OpenPayload{
			Symbol:            order.Symbol,
			Type:              string(order.Direction),
			Volume:            order.Volume,
			Price:             order.EntryPrice,
			SL:                order.StopLoss,
			TP:                order.TakeProfit,
			Comment:           order.Comment,
			RiskAuthorization: riskAuthorization,
		},
	}
	var resp OpenResponse
	if err := c.do(req, env.CorrelationID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClosePosition closes a venue ticket.
func (c *Client) ClosePosition(ticket int64, symbol string) (*CloseResponse, error) {
	env := newEnvelope(ActionClose)
	req := struct {
		Envelope
		ClosePayload
	}{
		Envelope:     env,
		ClosePayload: ClosePayload{Ticket: ticket, Symbol: symbol},
	}
	var resp CloseResponse
	if err := c.do(req, env.CorrelationID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Account queries the venue account snapshot.
func (c *Client) Account() (*AccountResponse, error) {
	env := newEnvelope(ActionGetAccount)
	var resp AccountResponse
	if err := c.do(env, env.CorrelationID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Positions lists open venue positions, optionally filtered by symbol.
func (c *Client) Positions(symbol string) (*PositionsResponse, error) {
	env := newEnvelope(ActionGetPositions)
	req := struct {
		Envelope
		PositionsPayload
	}{
		Envelope:         env,
		PositionsPayload: PositionsPayload{Symbol: symbol},
	}
	var resp PositionsResponse
	if err := c.do(req, env.CorrelationID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncAll fetches the bulk recovery snapshot.
func (c *Client) SyncAll() (*SyncAllResponse, error) {
	env := newEnvelope(ActionSyncAll)
	var resp SyncAllResponse
	if err := c.do(env, env.CorrelationID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
