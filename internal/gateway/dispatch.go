package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"riskgate/internal/auth"
	"riskgate/internal/domain"
	"riskgate/internal/infra"
	"riskgate/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// ConnState is the venue connection state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// DispatcherConfig tunes per-request behavior.
type DispatcherConfig struct {
	RequestTimeout      time.Duration
	ReconnectMaxRetries int
}

// Dispatcher routes decoded requests to their handlers. It is driven by a
// single request/reply loop, so handlers never race each other; only the
// venue connection state is shared with observers and kept atomic.
type Dispatcher struct {
	cfg     DispatcherConfig
	venue   domain.VenueConnector
	auth    *auth.Authorizer
	metrics *infra.Metrics
	journal *storage.Journal // optional
	state   atomic.Int32
	now     func() time.Time
}

// NewDispatcher wires a dispatcher. journal may be nil when auditing to
// sqlite is disabled.
func NewDispatcher(cfg DispatcherConfig, venue domain.VenueConnector, authorizer *auth.Authorizer, metrics *infra.Metrics, journal *storage.Journal) *Dispatcher {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.ReconnectMaxRetries <= 0 {
		cfg.ReconnectMaxRetries = 3
	}
	return &Dispatcher{
		cfg:     cfg,
		venue:   venue,
		auth:    authorizer,
		metrics: metrics,
		journal: journal,
		now:     time.Now,
	}
}

// State returns the current venue connection state.
func (d *Dispatcher) State() ConnState {
	return ConnState(d.state.Load())
}

// Handle processes one wire frame and always produces a reply frame.
// Errors never escape a single command: malformed bodies and venue faults
// become structured failure responses and the loop keeps serving.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) []byte {
	started := d.now()
	defer func() {
		d.metrics.RecordRequest(time.Since(started).Nanoseconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	req, err := DecodeRequest(raw)
	if err != nil {
		d.metrics.RecordError()
		return EncodeResponse(&ErrorResponse{
			Header:    newHeader("", StatusError),
			ErrorBody: ErrorBody{ErrorCode: CodeBadRequest, ErrorMsg: err.Error()},
		})
	}

	switch req.Action {
	case ActionPing:
		return EncodeResponse(d.handlePing(req, started))
	case ActionOpen:
		return EncodeResponse(d.handleOpen(ctx, req, started))
	case ActionClose:
		return EncodeResponse(d.handleClose(ctx, req))
	case ActionGetAccount:
		return EncodeResponse(d.handleAccount(ctx, req))
	case ActionGetPositions:
		return EncodeResponse(d.handlePositions(ctx, req))
	case ActionSyncAll:
		return EncodeResponse(d.handleSyncAll(ctx, req))
	default:
		d.metrics.RecordError()
		return EncodeResponse(&ErrorResponse{
			Header:    newHeader(req.CorrelationID, StatusError),
			ErrorBody: ErrorBody{ErrorCode: CodeUnknownAction, ErrorMsg: "unknown action " + string(req.Action)},
		})
	}
}

// handlePing never rejects; it samples the round trip.
func (d *Dispatcher) handlePing(req *Request, started time.Time) *PingResponse {
	return &PingResponse{
		Header:     newHeader(req.CorrelationID, StatusOK),
		ServerTime: d.now().UTC().Format(time.RFC3339Nano),
		LatencyMS:  time.Since(started).Milliseconds(),
	}
}

func (d *Dispatcher) handleOpen(ctx context.Context, req *Request, started time.Time) *OpenResponse {
	reject := func(code, msg string) *OpenResponse {
		d.metrics.RecordOrderRejected()
		d.journalRecord(req, "", decimal.Zero, decimal.Zero, 0, StatusRejected, code, started)
		slog.Warn("OPEN rejected",
			slog.String("correlation_id", req.CorrelationID),
			slog.String("code", code),
			slog.String("reason", msg))
		return &OpenResponse{
			Header:    newHeader(req.CorrelationID, StatusRejected),
			ErrorBody: ErrorBody{ErrorCode: code, ErrorMsg: msg},
			LatencyMS: time.Since(started).Milliseconds(),
		}
	}

	p := req.Open
	if p == nil {
		return reject(CodeBadRequest, "missing OPEN payload")
	}
	if p.Symbol == "" {
		return reject(CodeInvalidOrder, "symbol required")
	}
	order := p.Order()
	if !order.Direction.Tradeable() {
		return reject(CodeInvalidOrder, "type must be BUY or SELL")
	}
	if p.Volume.LessThanOrEqual(decimal.Zero) {
		return reject(CodeInvalidOrder, "volume must be positive")
	}

	// Authorization is checked before any venue interaction: a stale or
	// missing token must fail even while the venue is unreachable.
	if err := d.auth.Verify(p.RiskAuthorization, &order); err != nil {
		return reject(CodeAuthRejected, err.Error())
	}

	if err := d.ensureConnected(ctx); err != nil {
		return reject(CodeVenueUnavailable, err.Error())
	}

	result, err := d.venue.PlaceOrder(ctx, order)
	if err != nil {
		d.observeVenueErr(err)
		return reject(CodeVenueRejected, err.Error())
	}

	d.metrics.RecordOrderFilled()
	d.journalRecord(req, order.Symbol, result.FillVolume, result.FillPrice, result.Ticket, StatusFilled, "", started)
	slog.Info("OPEN filled",
		slog.String("correlation_id", req.CorrelationID),
		slog.String("symbol", order.Symbol),
		slog.String("direction", string(order.Direction)),
		slog.Int64("ticket", result.Ticket))

	return &OpenResponse{
		Header:     newHeader(req.CorrelationID, StatusFilled),
		Ticket:     result.Ticket,
		FillPrice:  result.FillPrice,
		FillVolume: result.FillVolume,
		LatencyMS:  time.Since(started).Milliseconds(),
	}
}

func (d *Dispatcher) handleClose(ctx context.Context, req *Request) *CloseResponse {
	reject := func(code, msg string) *CloseResponse {
		d.metrics.RecordOrderRejected()
		slog.Warn("CLOSE rejected",
			slog.String("correlation_id", req.CorrelationID),
			slog.String("code", code),
			slog.String("reason", msg))
		return &CloseResponse{
			Header:    newHeader(req.CorrelationID, StatusRejected),
			ErrorBody: ErrorBody{ErrorCode: code, ErrorMsg: msg},
		}
	}

	p := req.Close
	if p == nil || p.Ticket <= 0 {
		return reject(CodeBadRequest, "valid ticket required")
	}

	if err := d.ensureConnected(ctx); err != nil {
		return reject(CodeVenueUnavailable, err.Error())
	}

	result, err := d.venue.ClosePosition(ctx, p.Ticket, p.Volume)
	if err != nil {
		d.observeVenueErr(err)
		return reject(CodeVenueRejected, err.Error())
	}

	if d.journal != nil {
		rec := &storage.ExecutionRecord{
			CorrelationID: req.CorrelationID,
			Symbol:        p.Symbol,
			Ticket:        p.Ticket,
			Price:         result.ClosePrice.String(),
			Status:        "CLOSED",
		}
		if err := d.journal.Append(rec); err != nil {
			slog.Warn("Journal append failed", slog.Any("error", err))
		}
	}

	return &CloseResponse{
		Header:      newHeader(req.CorrelationID, StatusOK),
		CloseTicket: result.CloseTicket,
		ClosePrice:  result.ClosePrice,
	}
}

func (d *Dispatcher) handleAccount(ctx context.Context, req *Request) *AccountResponse {
	fail := func(code, msg string) *AccountResponse {
		d.metrics.RecordError()
		return &AccountResponse{
			Header:    newHeader(req.CorrelationID, StatusError),
			ErrorBody: ErrorBody{ErrorCode: code, ErrorMsg: msg},
		}
	}

	if err := d.ensureConnected(ctx); err != nil {
		return fail(CodeVenueUnavailable, err.Error())
	}
	snap, err := d.venue.Account(ctx)
	if err != nil {
		d.observeVenueErr(err)
		return fail(CodeVenueError, err.Error())
	}

	return &AccountResponse{
		Header:      newHeader(req.CorrelationID, StatusOK),
		Balance:     snap.Balance,
		Equity:      snap.Equity,
		Margin:      snap.Margin,
		FreeMargin:  snap.FreeMargin,
		MarginLevel: snap.MarginLevel,
	}
}

func (d *Dispatcher) handlePositions(ctx context.Context, req *Request) *PositionsResponse {
	fail := func(code, msg string) *PositionsResponse {
		d.metrics.RecordError()
		return &PositionsResponse{
			Header:    newHeader(req.CorrelationID, StatusError),
			ErrorBody: ErrorBody{ErrorCode: code, ErrorMsg: msg},
		}
	}

	symbol := ""
	if req.Positions != nil {
		symbol = req.Positions.Symbol
	}

	if err := d.ensureConnected(ctx); err != nil {
		return fail(CodeVenueUnavailable, err.Error())
	}
	positions, err := d.venue.Positions(ctx, symbol)
	if err != nil {
		d.observeVenueErr(err)
		return fail(CodeVenueError, err.Error())
	}
	if positions == nil {
		positions = []domain.Position{}
	}

	return &PositionsResponse{
		Header:    newHeader(req.CorrelationID, StatusOK),
		Positions: positions,
	}
}

// handleSyncAll serves the bulk recovery query: a full account snapshot
// plus every open position, for startup reconciliation.
func (d *Dispatcher) handleSyncAll(ctx context.Context, req *Request) *SyncAllResponse {
	fail := func(code, msg string) *SyncAllResponse {
		d.metrics.RecordError()
		return &SyncAllResponse{
			Header:    newHeader(req.CorrelationID, StatusSyncError),
			ErrorBody: ErrorBody{ErrorCode: code, ErrorMsg: msg},
			Positions: []domain.Position{},
		}
	}

	if err := d.ensureConnected(ctx); err != nil {
		return fail(CodeVenueUnavailable, err.Error())
	}
	snap, err := d.venue.Account(ctx)
	if err != nil {
		d.observeVenueErr(err)
		return fail(CodeVenueError, err.Error())
	}
	positions, err := d.venue.Positions(ctx, "")
	if err != nil {
		d.observeVenueErr(err)
		return fail(CodeVenueError, err.Error())
	}
	if positions == nil {
		positions = []domain.Position{}
	}

	return &SyncAllResponse{
		Header:    newHeader(req.CorrelationID, StatusSyncOK),
		Account:   snap,
		Positions: positions,
	}
}

// ensureConnected drives the Disconnected → Connecting → Connected machine.
// Reconnect attempts back off and are bounded; exhaustion surfaces as
// ErrVenueUnavailable instead of blocking the request loop.
func (d *Dispatcher) ensureConnected(ctx context.Context) error {
	if d.venue.IsConnected() {
		d.state.Store(int32(StateConnected))
		return nil
	}

	d.state.Store(int32(StateConnecting))
	d.metrics.RecordReconnect()

	for attempt := 0; attempt < d.cfg.ReconnectMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				d.state.Store(int32(StateDisconnected))
				return domain.ErrVenueUnavailable
			case <-time.After(infra.CalculateBackoff(attempt - 1)):
			}
		}

		if err := d.venue.Connect(ctx); err != nil {
			slog.Warn("Venue reconnect failed",
				slog.Int("attempt", attempt+1),
				slog.Any("error", err))
			continue
		}

		d.state.Store(int32(StateConnected))
		slog.Info("Venue connected", slog.Int("attempt", attempt+1))
		return nil
	}

	d.state.Store(int32(StateDisconnected))
	return domain.ErrVenueUnavailable
}

// observeVenueErr marks the connection for reconnect when the failure was
// connection-level rather than an explicit venue rejection.
func (d *Dispatcher) observeVenueErr(err error) {
	d.metrics.RecordError()
	var ve *domain.VenueError
	if errors.As(err, &ve) && ve.IsRetriable() {
		d.state.Store(int32(StateDisconnected))
	}
}

func (d *Dispatcher) journalRecord(req *Request, symbol string, volume, price decimal.Decimal, ticket int64, status, reason string, started time.Time) {
	if d.journal == nil {
		return
	}
	direction := ""
	if req.Open != nil {
		direction = req.Open.Type
		if symbol == "" {
			symbol = req.Open.Symbol
		}
	}
	rec := &storage.ExecutionRecord{
		CorrelationID: req.CorrelationID,
		Symbol:        symbol,
		Direction:     direction,
		Volume:        volume.String(),
		Price:         price.String(),
		Ticket:        ticket,
		Status:        status,
		Reason:        reason,
		LatencyMS:     time.Since(started).Milliseconds(),
	}
	if err := d.journal.Append(rec); err != nil {
		slog.Warn("Journal append failed", slog.Any("error", err))
	}
}
