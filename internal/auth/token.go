package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

const (
	CapabilityAdmin  = "admin"
	CapabilityCreate = "create"

	OwnerHeader        = "X-Owner-ID"
	CapabilitiesHeader = "X-Capabilities"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// TokenVerifier checks the shared service token presented by a gateway.
type TokenVerifier struct {
	token []byte
}

func NewTokenVerifier(token string) *TokenVerifier {
	return &TokenVerifier{token: []byte(strings.TrimSpace(token))}
}

func (v *TokenVerifier) Verify(token string) error {
	if token == "" {
		return ErrMissingToken
	}
	if len(v.token) == 0 || subtle.ConstantTimeCompare([]byte(token), v.token) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// Identity is what a gateway asserts about the human behind a request.
type Identity struct {
	OwnerID   string
	IsAdmin   bool
	CanCreate bool
}

// ParseCapabilities reads a comma separated capability list. Unknown entries are ignored.
func ParseCapabilities(raw string) (isAdmin, canCreate bool) {
	for _, part := range strings.Split(raw, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case CapabilityAdmin:
			isAdmin = true
		case CapabilityCreate:
			canCreate = true
		}
	}
	return isAdmin, canCreate
}

func FormatCapabilities(isAdmin, canCreate bool) string {
	var caps []string
	if isAdmin {
		caps = append(caps, CapabilityAdmin)
	}
	if canCreate {
		caps = append(caps, CapabilityCreate)
	}
	return strings.Join(caps, ",")
}

func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
