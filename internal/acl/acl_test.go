package acl

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thaligo/thali/internal/key"
)

func TestAssignRole(t *testing.T) {
	lookup := func(id string) ([]byte, bool) {
		switch id {
		case "beacons":
			return BeaconPSKSecret, true
		case "peer-a":
			return []byte("some-other-secret-16"), true
		default:
			return nil, false
		}
	}

	assert.Equal(t, RoleBeacon, AssignRole("beacons", lookup))
	assert.Equal(t, RoleReplication, AssignRole("peer-a", lookup))
	assert.Equal(t, RolePublic, AssignRole("unknown", lookup))
}

func TestTableAllow(t *testing.T) {
	table := NewTable("/db", "thali_")

	assert.True(t, table.Allow(RoleBeacon, "GET", "/NotificationBeacons"))
	assert.False(t, table.Allow(RoleReplication, "GET", "/NotificationBeacons"))

	assert.True(t, table.Allow(RoleReplication, "GET", "/db"))
	assert.True(t, table.Allow(RoleReplication, "GET", "/db/_all_docs"))
	assert.True(t, table.Allow(RoleReplication, "POST", "/db/_all_docs"))
	assert.True(t, table.Allow(RoleReplication, "GET", "/db/mydoc"))
	assert.True(t, table.Allow(RoleReplication, "GET", "/db/mydoc/attachment"))
	assert.True(t, table.Allow(RoleReplication, "PUT", "/db/_local/mydoc"))
	assert.True(t, table.Allow(RoleReplication, "PUT", "/db/_local/thali_abc123"))
	assert.True(t, table.Allow(RoleReplication, "POST", "/db/_bulk_get"))
	assert.True(t, table.Allow(RoleReplication, "GET", "/db/_changes"))
	assert.True(t, table.Allow(RoleReplication, "POST", "/db/_changes"))
	assert.True(t, table.Allow(RoleReplication, "POST", "/db/_revs_diff"))

	assert.False(t, table.Allow(RoleReplication, "DELETE", "/db"))
	assert.False(t, table.Allow(RolePublic, "GET", "/db"))
}

func TestLocalSeqPointID(t *testing.T) {
	table := NewTable("/db", "thali_")

	id, ok := table.LocalSeqPointID("/db/_local/thali_deadbeef")
	require.True(t, ok)
	assert.Equal(t, "deadbeef", id)

	_, ok = table.LocalSeqPointID("/db/_local/deadbeef")
	assert.False(t, ok, "a _local/{id} path without the prefix is not a local-sequence-point path")
}

type fakeResolver struct {
	identity string
	secrets  map[string][]byte
	pubs     map[string]*key.Public
}

func (f fakeResolver) IdentityHint(r *http.Request) (string, bool) {
	if f.identity == "" {
		return "", false
	}
	return f.identity, true
}

func (f fakeResolver) Lookup(id string) ([]byte, *key.Public, bool) {
	s, ok := f.secrets[id]
	if !ok {
		return nil, nil, false
	}
	return s, f.pubs[id], true
}

func TestMiddlewareRejectsUnauthorizedConnection(t *testing.T) {
	table := NewTable("/db", "thali_")
	mw := Middleware(fakeResolver{}, table)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/db", nil)
	mw(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareEnforcesLocalSeqPointOwnership(t *testing.T) {
	table := NewTable("/db", "thali_")
	owner := key.New().Public()
	other := key.New().Public()

	resolver := fakeResolver{
		identity: "peer-a",
		secrets:  map[string][]byte{"peer-a": []byte("0123456789abcdef")},
		pubs:     map[string]*key.Public{"peer-a": &owner},
	}
	mw := Middleware(resolver, table)

	// Matching id succeeds.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/db/_local/thali_"+owner.Hash().HexString(), nil)
	mw(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A different id (even a valid hash of a different key) is forbidden.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("PUT", "/db/_local/thali_"+other.Hash().HexString(), nil)
	mw(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddlewarePublicRoleIsDeniedByDefault(t *testing.T) {
	table := NewTable("/db", "thali_")
	resolver := fakeResolver{identity: "mallory", secrets: map[string][]byte{}}
	mw := Middleware(resolver, table)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/db", nil)
	mw(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
