package middleware

import (
	"net/http"
	"strconv"

	"github.com/deskforge/deskforge/pkg/contextkeys"
	"github.com/deskforge/deskforge/pkg/identity"
	"github.com/deskforge/deskforge/pkg/observability"
	"github.com/google/uuid"
)

// IdentityHeader carries the authenticated identity ID, set by the
// session gateway in front of this service.
const IdentityHeader = "X-Identity-ID"

// RequestIDHeader carries the request correlation ID.
const RequestIDHeader = "X-Request-ID"

// IdentityMiddleware resolves the authenticated identity and attaches it
// to the request context. The upstream gateway has already authenticated
// the session; this middleware only validates that the identity exists
// and is active.
type IdentityMiddleware struct {
	store    identity.Store
	logger   *observability.Logger
	optional bool // If true, allow requests without an identity
}

// NewIdentityMiddleware creates identity resolution middleware
func NewIdentityMiddleware(store identity.Store, logger *observability.Logger, optional bool) *IdentityMiddleware {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &IdentityMiddleware{
		store:    store,
		logger:   logger,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with identity resolution
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(IdentityHeader)
		if header == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			unauthorizedResponse(w, "missing identity header")
			return
		}

		identityID, err := strconv.ParseInt(header, 10, 64)
		if err != nil {
			unauthorizedResponse(w, "invalid identity header")
			return
		}

		ident, err := m.store.GetIdentity(r.Context(), identityID)
		if err != nil {
			// Any store failure denies: unknown identities and
			// infrastructure errors look the same to the caller.
			m.logger.WithError(err).WithField("identity_id", identityID).Debug("identity resolution failed")
			unauthorizedResponse(w, "unknown identity")
			return
		}
		if !ident.IsActive {
			unauthorizedResponse(w, "identity is deactivated")
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), identityID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDMiddleware ensures every request carries a correlation ID,
// generating one when the caller did not supply it.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentityID extracts the authenticated identity ID from a request
func GetIdentityID(r *http.Request) (int64, bool) {
	return contextkeys.GetIdentity(r.Context())
}

func unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

func forbiddenResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
