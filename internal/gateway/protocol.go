// Package gateway implements the wire-level command/response server of the
// order-execution gateway, its command dispatcher and the client used by
// the live execution path.
package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"riskgate/internal/domain"

	"github.com/shopspring/decimal"
)

// Action is the command carried by a request envelope.
type Action string

const (
	ActionPing         Action = "PING"
	ActionOpen         Action = "OPEN"
	ActionClose        Action = "CLOSE"
	ActionGetAccount   Action = "GET_ACCOUNT"
	ActionGetPositions Action = "GET_POSITIONS"
	ActionSyncAll      Action = "SYNC_ALL"
)

// Response status values. Queries answer lowercase, order commands answer
// uppercase FILLED/REJECTED, SYNC_ALL answers OK/ERROR.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusFilled    = "FILLED"
	StatusRejected  = "REJECTED"
	StatusSyncOK    = "OK"
	StatusSyncError = "ERROR"
)

// Machine-readable rejection codes.
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeUnknownAction    = "UNKNOWN_ACTION"
	CodeAuthRejected     = "AUTH_REJECTED"
	CodeInvalidOrder     = "INVALID_ORDER"
	CodeVenueUnavailable = "VENUE_UNAVAILABLE"
	CodeVenueRejected    = "VENUE_REJECTED"
	CodeVenueError       = "VENUE_ERROR"
)

// Envelope carries the fields common to every request.
type Envelope struct {
	CorrelationID string `json:"correlation_id"`
	Action        Action `json:"action"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// OpenPayload is the OPEN-specific request body.
type OpenPayload struct {
	Symbol            string          `json:"symbol"`
	Type              string          `json:"type"` // BUY or SELL
	Volume            decimal.Decimal `json:"volume"`
	Price             decimal.Decimal `json:"price"`
	SL                decimal.Decimal `json:"sl"`
	TP                decimal.Decimal `json:"tp"`
	Comment           string          `json:"comment,omitempty"`
	RiskAuthorization string          `json:"risk_authorization,omitempty"`
}

// Order converts the payload into the domain order the venue sees. The
// same conversion feeds token binding, so it must stay canonical.
func (p *OpenPayload) Order() domain.Order {
	return domain.Order{
		Symbol:     p.Symbol,
		Direction:  domain.Direction(p.Type),
		Volume:     p.Volume,
		EntryPrice: p.Price,
		StopLoss:   p.SL,
		TakeProfit: p.TP,
		Comment:    p.Comment,
		CreatedAt:  time.Now().UTC(),
	}
}

// ClosePayload is the CLOSE-specific request body.
type ClosePayload struct {
	Ticket int64           `json:"ticket"`
	Symbol string          `json:"symbol,omitempty"`
	Volume decimal.Decimal `json:"volume,omitempty"`
}

// PositionsPayload is the GET_POSITIONS-specific request body.
type PositionsPayload struct {
	Symbol string `json:"symbol,omitempty"`
}

// Request is the decoded form of one wire request: the envelope plus
// exactly one action-specific payload.
type Request struct {
	Envelope
	Open      *OpenPayload
	Close     *ClosePayload
	Positions *PositionsPayload
}

// DecodeRequest parses a wire frame into a typed request. The envelope is
// decoded first; the action then selects which payload to decode from the
// same frame.
func DecodeRequest(raw []byte) (*Request, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed request: %w", err)
	}

	req := &Request{Envelope: env}
	switch env.Action {
	case ActionPing, ActionGetAccount, ActionSyncAll:
		// Envelope only.
	case ActionOpen:
		var p OpenPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed OPEN payload: %w", err)
		}
		req.Open = &p
	case ActionClose:
		var p ClosePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed CLOSE payload: %w", err)
		}
		req.Close = &p
	case ActionGetPositions:
		var p PositionsPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed GET_POSITIONS payload: %w", err)
		}
		req.Positions = &p
	default:
		return req, nil
	}
	return req, nil
}

// Header carries the fields common to every response.
type Header struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
}

// ErrorBody is attached to any failure response.
type ErrorBody struct {
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// PingResponse answers PING.
type PingResponse struct {
	Header
	ServerTime string `json:"server_time"`
	LatencyMS  int64  `json:"latency_ms"`
}

// OpenResponse answers OPEN.
type OpenResponse struct {
	Header
	ErrorBody
	Ticket     int64           `json:"ticket,omitempty"`
	FillPrice  decimal.Decimal `json:"price,omitempty"`
	FillVolume decimal.Decimal `json:"volume,omitempty"`
	LatencyMS  int64           `json:"latency_ms"`
}

// CloseResponse answers CLOSE.
type CloseResponse struct {
	Header
	ErrorBody
	CloseTicket int64           `json:"close_ticket,omitempty"`
	ClosePrice  decimal.Decimal `json:"close_price,omitempty"`
}

// AccountResponse answers GET_ACCOUNT.
type AccountResponse struct {
	Header
	ErrorBody
	Balance     decimal.Decimal `json:"balance"`
	Equity      decimal.Decimal `json:"equity"`
	Margin      decimal.Decimal `json:"margin"`
	FreeMargin  decimal.Decimal `json:"free_margin"`
	MarginLevel decimal.Decimal `json:"margin_level"`
}

// PositionsResponse answers GET_POSITIONS.
type PositionsResponse struct {
	Header
	ErrorBody
	Positions []domain.Position `json:"positions"`
}

// SyncAllResponse answers SYNC_ALL with a full recovery snapshot.
type SyncAllResponse struct {
	Header
	ErrorBody
	Account   *domain.AccountSnapshot `json:"account,omitempty"`
	Positions []domain.Position       `json:"positions"`
}

// ErrorResponse answers requests that never reached a handler.
type ErrorResponse struct {
	Header
	ErrorBody
}

func newHeader(correlationID, status string) Header {
	return Header{
		CorrelationID: correlationID,
		Status:        status,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// EncodeResponse serializes any response at the wire boundary.
func EncodeResponse(resp any) []byte {
	raw, err := json.Marshal(resp)
	if err != nil {
		// Responses are plain structs; this cannot fail with well-formed
		// payloads. Answer something rather than drop the request.
		return []byte(`{"status":"error","error_code":"ENCODE_FAILED"}`)
	}
	return raw
}
