package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"riskgate/internal/domain"

	"github.com/shopspring/decimal"
)

func testOrder() *domain.Order {
	return &domain.Order{
		Symbol:     "EURUSD",
		Direction:  domain.DirectionBuy,
		Volume:     decimal.RequireFromString("0.5"),
		EntryPrice: decimal.RequireFromString("1.1000"),
		StopLoss:   decimal.RequireFromString("1.0890"),
		TakeProfit: decimal.RequireFromString("1.1220"),
	}
}

func TestAuthorizer_MintFormat(t *testing.T) {
	a := NewAuthorizer("secret", 5*time.Second)
	token := a.Mint(testOrder())

	// Format: MARKER:FRAGMENT:RFC3339. The timestamp itself carries colons.
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 {
		t.Fatalf("Expected 3 colon-separated fields, got %d in %q", len(parts), token)
	}
	if parts[0] != Marker {
		t.Errorf("Expected marker %q, got %q", Marker, parts[0])
	}
	if len(parts[1]) != fragmentLen {
		t.Errorf("Expected fragment length %d, got %d", fragmentLen, len(parts[1]))
	}
	if _, err := time.Parse(time.RFC3339, parts[2]); err != nil {
		t.Errorf("Timestamp does not parse as RFC3339: %v", err)
	}
}

func TestAuthorizer_VerifyFresh(t *testing.T) {
	a := NewAuthorizer("secret", 5*time.Second)
	order := testOrder()
	token := a.Mint(order)

	if err := a.Verify(token, order); err != nil {
		t.Errorf("Fresh token rejected: %v", err)
	}
}

func TestAuthorizer_TTLBoundary(t *testing.T) {
	ttl := 5 * time.Second
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	order := testOrder()

	// Minted at base, verified TTL-1 later: accepted.
	a := NewAuthorizer("secret", ttl).WithClock(func() time.Time { return base })
	token := a.Mint(order)

	a.WithClock(func() time.Time { return base.Add(ttl - time.Second) })
	if err := a.Verify(token, order); err != nil {
		t.Errorf("Token aged TTL-1s rejected: %v", err)
	}

	// Verified TTL+1 later: rejected as expired.
	a.WithClock(func() time.Time { return base.Add(ttl + time.Second) })
	err := a.Verify(token, order)
	if err == nil {
		t.Fatal("Token aged TTL+1s accepted")
	}
	var authErr *domain.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthorizationError, got %T", err)
	}
}

func TestAuthorizer_RejectsMissingToken(t *testing.T) {
	a := NewAuthorizer("secret", 5*time.Second)
	if err := a.Verify("", testOrder()); err == nil {
		t.Fatal("Missing token accepted")
	}
}

func TestAuthorizer_RejectsMalformed(t *testing.T) {
	a := NewAuthorizer("secret", 5*time.Second)
	order := testOrder()

	cases := []struct {
		name  string
		token string
	}{
		{"no colons", "garbage"},
		{"one field short", Marker + ":abcdef0123456789"},
		{"wrong marker", "XXXX:abcdef0123456789:" + time.Now().UTC().Format(time.RFC3339)},
		{"short fragment", Marker + ":abc:" + time.Now().UTC().Format(time.RFC3339)},
		{"non-hex fragment", Marker + ":zzzzzzzzzzzzzzzz:" + time.Now().UTC().Format(time.RFC3339)},
		{"bad timestamp", Marker + ":abcdef0123456789:not-a-time"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := a.Verify(tc.token, order); err == nil {
				t.Errorf("Accepted malformed token %q", tc.token)
			}
		})
	}
}

func TestAuthorizer_BindsToOrderFields(t *testing.T) {
	a := NewAuthorizer("secret", 5*time.Second)
	order := testOrder()
	token := a.Mint(order)

	// A fresh token for a different order must not pass binding.
	other := testOrder()
	other.Volume = decimal.RequireFromString("5")
	if err := a.Verify(token, other); err == nil {
		t.Error("Token minted for one order accepted for another")
	}

	// Without a binding target, format and freshness alone decide.
	if err := a.Verify(token, nil); err != nil {
		t.Errorf("Format/freshness verification failed: %v", err)
	}
}

func TestAuthorizer_RejectsFutureToken(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	order := testOrder()

	a := NewAuthorizer("secret", 5*time.Second).WithClock(func() time.Time { return base.Add(time.Minute) })
	token := a.Mint(order)

	// Verifier clock is a minute behind the minter.
	a.WithClock(func() time.Time { return base })
	if err := a.Verify(token, order); err == nil {
		t.Error("Token minted in the future accepted")
	}
}

func TestAuthorizer_DifferentSecretsDisagree(t *testing.T) {
	order := testOrder()
	a := NewAuthorizer("secret-a", 5*time.Second)
	b := NewAuthorizer("secret-b", 5*time.Second)

	token := a.Mint(order)
	if err := b.Verify(token, order); err == nil {
		t.Error("Token minted under one secret verified under another")
	}
}
