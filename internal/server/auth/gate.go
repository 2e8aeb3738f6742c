package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/tunevault/internal/common"
	"github.com/dmitrijs2005/tunevault/internal/logging"
)

// TokenDecoder is the verification half of the codec.
type TokenDecoder interface {
	Decode(raw string) (bool, Payload)
}

// IdentityValidator answers whether an identity still exists.
type IdentityValidator interface {
	ValidateUID(ctx context.Context, id string) (bool, error)
}

// DenialRecorder counts denials by reason. Optional.
type DenialRecorder interface {
	AuthDenied(reason string)
}

// Claims are the validated identity fields of a token.
type Claims struct {
	ID   string
	Role string
}

type DenialReason string

const (
	ReasonMissingHeader   DenialReason = "missing_header"
	ReasonMalformedHeader DenialReason = "malformed_header"
	ReasonDecodeFailed    DenialReason = "decode_failed"
	ReasonMalformedClaims DenialReason = "malformed_claims"
	ReasonMissingClaims   DenialReason = "missing_claims"
	ReasonUnknownIdentity DenialReason = "unknown_identity"
)

// Denial explains a refused request. It is for logs and metrics only and
// must never be sent to the client.
type Denial struct {
	Reason DenialReason
	Err    error
}

func (d *Denial) Error() string {
	if d.Err != nil {
		return string(d.Reason) + ": " + d.Err.Error()
	}
	return string(d.Reason)
}

func (d *Denial) Unwrap() error { return d.Err }

// Gate decides whether a request carries a valid bearer token for a known
// identity. Every failure collapses to the same outcome for the caller.
type Gate struct {
	decoder    TokenDecoder
	identities IdentityValidator
	recorder   DenialRecorder
	log        logging.Logger
}

func NewGate(decoder TokenDecoder, identities IdentityValidator, recorder DenialRecorder, log logging.Logger) *Gate {
	return &Gate{decoder: decoder, identities: identities, recorder: recorder, log: log.With("module", "auth")}
}

// HasPermission reports whether r is authorized.
func (g *Gate) HasPermission(r *http.Request) bool {
	_, ok := g.Permit(r)
	return ok
}

// Permit is HasPermission that also returns the verified claims. The denial
// reason stays in the log and metrics.
func (g *Gate) Permit(r *http.Request) (Claims, bool) {
	claims, denial := g.Authorize(r)
	return claims, denial == nil
}

// Authorize runs the checks in order and stops at the first failure.
func (g *Gate) Authorize(r *http.Request) (Claims, *Denial) {
	claims, denial := g.authorize(r)
	if denial != nil {
		attrs := []any{"reason", string(denial.Reason), "path", r.URL.Path}
		if denial.Err != nil {
			attrs = append(attrs, "error", denial.Err)
		}
		g.log.Warn(r.Context(), "request denied", attrs...)
		if g.recorder != nil {
			g.recorder.AuthDenied(string(denial.Reason))
		}
		return Claims{}, denial
	}
	return claims, nil
}

func (g *Gate) authorize(r *http.Request) (Claims, *Denial) {
	header, present := r.Header[http.CanonicalHeaderKey(common.AuthorizationHeaderName)]
	if !present || len(header) == 0 {
		return Claims{}, &Denial{Reason: ReasonMissingHeader}
	}
	if len(header) != 1 {
		return Claims{}, &Denial{Reason: ReasonMalformedHeader}
	}

	raw, ok := parseBearer(header[0])
	if !ok {
		return Claims{}, &Denial{Reason: ReasonMalformedHeader}
	}

	ok, payload := g.decoder.Decode(raw)
	if !ok {
		return Claims{}, &Denial{Reason: ReasonDecodeFailed}
	}

	if len(payload) == 0 {
		return Claims{}, &Denial{Reason: ReasonMalformedClaims}
	}

	claims, ok := claimsFromPayload(payload)
	if !ok {
		return Claims{}, &Denial{Reason: ReasonMissingClaims}
	}

	present, err := g.identities.ValidateUID(r.Context(), claims.ID)
	if err != nil {
		return Claims{}, &Denial{Reason: ReasonUnknownIdentity, Err: err}
	}
	if !present {
		return Claims{}, &Denial{Reason: ReasonUnknownIdentity}
	}

	return claims, nil
}

// parseBearer accepts exactly "Bearer <value>" with a single separating space.
func parseBearer(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != common.BearerScheme || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func claimsFromPayload(p Payload) (Claims, bool) {
	id, ok := p[ClaimID].(string)
	if !ok || id == "" {
		return Claims{}, false
	}
	role, ok := p[ClaimRole].(string)
	if !ok || role == "" {
		return Claims{}, false
	}
	return Claims{ID: id, Role: role}, true
}
