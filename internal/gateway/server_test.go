package gateway

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"riskgate/internal/auth"
	"riskgate/internal/infra"
	"riskgate/internal/venue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer serves the gateway over an ephemeral port and returns a
// connected client.
func startTestServer(t *testing.T) (*Client, *testGateway) {
	t.Helper()

	sim := venue.NewSim(dec("10000"))
	require.NoError(t, sim.Connect(context.Background()))
	sim.UpdatePrice("EURUSD", dec("1.1000"))

	authorizer := auth.NewAuthorizer(testSecret, 5*time.Second)
	metrics := infra.NewMetrics()
	dispatcher := NewDispatcher(DispatcherConfig{
		RequestTimeout:      2 * time.Second,
		ReconnectMaxRetries: 1,
	}, sim, authorizer, metrics, nil)

	srv := NewServer("127.0.0.1:0", dispatcher, metrics)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	client, err := DialClient(context.Background(), wsURL, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, &testGateway{
		dispatcher: dispatcher,
		sim:        sim,
		auth:       authorizer,
		metrics:    metrics,
	}
}

func TestServer_PingRoundTrip(t *testing.T) {
	client, _ := startTestServer(t)

	resp, err := client.Ping()
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	assert.NotEmpty(t, resp.ServerTime)
	assert.NotEmpty(t, resp.CorrelationID)
}

func TestServer_OpenThenPositions(t *testing.T) {
	client, g := startTestServer(t)

	order := testOrder()
	token := g.auth.Mint(&order)

	open, err := client.Open(order, token)
	require.NoError(t, err)
	require.Equal(t, StatusFilled, open.Status)
	assert.NotZero(t, open.Ticket)
	assert.True(t, open.FillPrice.Equal(dec("1.1000")))

	positions, err := client.Positions("EURUSD")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, positions.Status)
	require.Len(t, positions.Positions, 1)
	assert.Equal(t, open.Ticket, positions.Positions[0].Ticket)

	closed, err := client.ClosePosition(open.Ticket, order.Symbol)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, closed.Status)
}

func TestServer_OpenWithoutTokenRejected(t *testing.T) {
	client, _ := startTestServer(t)

	resp, err := client.Open(testOrder(), "")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, resp.Status)
	assert.Equal(t, CodeAuthRejected, resp.ErrorCode)
}

func TestServer_SequentialRequestsOneConnection(t *testing.T) {
	client, g := startTestServer(t)

	// The connection survives a rejection and keeps answering in order.
	_, err := client.Open(testOrder(), "garbage-token")
	require.NoError(t, err)

	account, err := client.Account()
	require.NoError(t, err)
	assert.Equal(t, StatusOK, account.Status)
	assert.True(t, account.Balance.Equal(dec("10000")))

	sync, err := client.SyncAll()
	require.NoError(t, err)
	assert.Equal(t, StatusSyncOK, sync.Status)
	require.NotNil(t, sync.Account)

	assert.GreaterOrEqual(t, g.metrics.Snapshot().RequestsServed, uint64(3))
}

func TestServer_RunShutsDownOnCancel(t *testing.T) {
	sim := venue.NewSim(dec("1000"))
	dispatcher := NewDispatcher(DispatcherConfig{}, sim, auth.NewAuthorizer(testSecret, time.Second), infra.NewMetrics(), nil)
	srv := NewServer("127.0.0.1:0", dispatcher, infra.NewMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
