package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"riskgate/internal/domain"
)

// Marker identifies a risk-authorization token. A token proves that the
// exact order passed risk checks within the last few seconds; it is minted
// by the risk side and verified by the gateway before any venue call.
const Marker = "RGW1"

// fragment is the first 16 hex chars of an HMAC-SHA256 over the canonical
// order fields. 16 chars keeps the token compact while leaving forgery
// infeasible within the TTL window.
const fragmentLen = 16

// DefaultTTL bounds token age. An OPEN whose token is older is rejected
// rather than executed late.
const DefaultTTL = 5 * time.Second

// maxClockSkew tolerates minted_at slightly ahead of the verifier's clock.
const maxClockSkew = 2 * time.Second

// Authorizer mints and verifies risk-authorization tokens.
type Authorizer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthorizer creates an Authorizer with the given signing secret and TTL.
// A non-positive ttl falls back to DefaultTTL.
func NewAuthorizer(secret string, ttl time.Duration) *Authorizer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authorizer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL returns the configured token lifetime.
func (a *Authorizer) TTL() time.Duration {
	return a.ttl
}

// WithClock replaces the time source. Tests use it to mint back-dated
// tokens; production code never calls it.
func (a *Authorizer) WithClock(now func() time.Time) *Authorizer {
	a.now = now
	return a
}

// Mint produces a token for an order that just passed risk checks.
// Format: MARKER:FRAGMENT:RFC3339 timestamp.
func (a *Authorizer) Mint(order *domain.Order) string {
	fragment := a.bind(order)
	return Marker + ":" + fragment + ":" + a.now().UTC().Format(time.RFC3339)
}

// Verify checks a raw token. Marker, fragment shape and freshness are
// always enforced. When order is non-nil the fragment is additionally
// recomputed from the order fields, binding the token to this exact order.
func (a *Authorizer) Verify(raw string, order *domain.Order) error {
	if raw == "" {
		return &domain.AuthorizationError{Reason: "token missing"}
	}

	// The timestamp itself contains colons, so split on the first two only.
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return &domain.AuthorizationError{Reason: "malformed token"}
	}
	marker, fragment, stamp := parts[0], parts[1], parts[2]

	if marker != Marker {
		return &domain.AuthorizationError{Reason: "unknown marker"}
	}
	if len(fragment) < fragmentLen || !isHex(fragment) {
		return &domain.AuthorizationError{Reason: "implausible integrity fragment"}
	}

	mintedAt, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return &domain.AuthorizationError{Reason: "unparseable timestamp"}
	}

	now := a.now()
	if mintedAt.After(now.Add(maxClockSkew)) {
		return &domain.AuthorizationError{Reason: "token minted in the future"}
	}
	if now.Sub(mintedAt) > a.ttl {
		return &domain.AuthorizationError{Reason: "token expired"}
	}

	if order != nil {
		expected := a.bind(order)
		if !hmac.Equal([]byte(fragment), []byte(expected)) {
			return &domain.AuthorizationError{Reason: "fragment does not match order"}
		}
	}

	return nil
}

// bind computes the integrity fragment over a canonical rendering of the
// order fields. StringFixed keeps the encoding deterministic regardless of
// how the decimals were produced.
func (a *Authorizer) bind(order *domain.Order) string {
	canonical := strings.Join([]string{
		order.Symbol,
		string(order.Direction),
		order.Volume.StringFixed(8),
		order.EntryPrice.StringFixed(8),
		order.StopLoss.StringFixed(8),
		order.TakeProfit.StringFixed(8),
	}, "|")

	h := hmac.New(sha256.New, a.secret)
	h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))[:fragmentLen]
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
