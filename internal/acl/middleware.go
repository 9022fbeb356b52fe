package acl

import (
	"context"
	"net/http"

	"github.com/thaligo/thali/internal/key"
)

// Identity is everything the admission middleware needs to know about the
// PSK identity that authorized a connection.
type Identity struct {
	ID     string
	Role   Role
	Secret []byte
	Public *key.Public // nil for the fixed beacon identity, which has none
}

// Resolver resolves a request's connection to a PSK identity (via
// ifaces.PSKServer.IdentityHint) and looks up that identity's role and
// associated public key, per the snapshot NotificationSender last
// published (spec.md §4.6).
type Resolver interface {
	IdentityHint(r *http.Request) (id string, ok bool)
	Lookup(id string) (secret []byte, pub *key.Public, ok bool)
}

type ctxKey struct{}

// WithIdentity returns a copy of r carrying identity in its context, for
// downstream handlers to read (never mutate) per spec.md §9's "Dynamic
// per-request role field" design note.
func WithIdentity(r *http.Request, id Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))
}

// IdentityFromRequest retrieves the Identity a prior Middleware call
// attached to r.
func IdentityFromRequest(r *http.Request) (Identity, bool) {
	id, ok := r.Context().Value(ctxKey{}).(Identity)
	return id, ok
}

// Middleware builds the two-stage admission gate from spec.md §4.8: PSK-role
// assignment followed by the ACL table check, with the extra
// local-sequence-point ownership restriction for the replication role.
func Middleware(resolver Resolver, table Table) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pskID, ok := resolver.IdentityHint(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			secret, pub, ok := resolver.Lookup(pskID)
			role := AssignRole(pskID, func(string) ([]byte, bool) { return secret, ok })

			id := Identity{ID: pskID, Role: role, Secret: secret, Public: pub}

			if !table.Allow(role, r.Method, r.URL.Path) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			if role == RoleReplication {
				if reqID, isLocalSeq := table.LocalSeqPointID(r.URL.Path); isLocalSeq {
					if pub == nil || !ownsLocalSeqPoint(reqID, *pub) {
						http.Error(w, "forbidden", http.StatusForbidden)
						return
					}
				}
			}

			next.ServeHTTP(w, WithIdentity(r, id))
		})
	}
}

// ownsLocalSeqPoint reports whether reqID equals hashOf(pub), hex-encoded,
// per spec.md §6's local-sequence-point ownership rule.
func ownsLocalSeqPoint(reqID string, pub key.Public) bool {
	return reqID == pub.Hash().HexString()
}
