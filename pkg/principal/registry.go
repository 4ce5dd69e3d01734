// Package principal classifies protocol participant identifiers into roles
// by range membership, following the same "compute once, check cheaply"
// style the codebase uses for its registry-style lookups.
package principal

import (
	"fmt"

	"bftcore/pkg/signerror"
)

// Role identifies which class of participant a principal id belongs to.
type Role int

const (
	// RoleUnknown is returned for ids outside every configured range.
	RoleUnknown Role = iota
	RoleReplica
	RoleROReplica
	RoleClientProxy
	RoleExternalClient
	RoleInternalClient
	RoleClientService
)

// String renders the role for logging.
func (r Role) String() string {
	switch r {
	case RoleReplica:
		return "replica"
	case RoleROReplica:
		return "ro-replica"
	case RoleClientProxy:
		return "client-proxy"
	case RoleExternalClient:
		return "external-client"
	case RoleInternalClient:
		return "internal-client"
	case RoleClientService:
		return "client-service"
	default:
		return "unknown"
	}
}

// Counts describes how many principals occupy each contiguous range, in
// the fixed layout order: replicas | ro-replicas | client proxies |
// external clients | internal clients | client services.
type Counts struct {
	NumReplicas        uint32
	NumROReplicas      uint32
	NumClientProxies   uint32
	NumExternalClients uint32
	NumInternalClients uint32
	NumClientServices  uint32
}

type halfOpenRange struct {
	lo, hi uint32 // [lo, hi)
	role   Role
}

// Registry classifies a principal id into exactly one role via O(1)
// range-membership comparisons against pre-computed half-open ranges.
type Registry struct {
	ranges []halfOpenRange
	total  uint32
}

// NewRegistry builds a Registry from replica-count parameters. The ranges
// are laid out contiguously in the fixed order the data model mandates.
func NewRegistry(c Counts) (*Registry, error) {
	r := &Registry{}
	cursor := uint32(0)

	add := func(n uint32, role Role) {
		if n == 0 {
			return
		}
		r.ranges = append(r.ranges, halfOpenRange{lo: cursor, hi: cursor + n, role: role})
		cursor += n
	}

	add(c.NumReplicas, RoleReplica)
	add(c.NumROReplicas, RoleROReplica)
	add(c.NumClientProxies, RoleClientProxy)
	add(c.NumExternalClients, RoleExternalClient)
	add(c.NumInternalClients, RoleInternalClient)
	add(c.NumClientServices, RoleClientService)

	if cursor == 0 {
		return nil, signerror.ConfigurationInvalidf("principal registry: all counts are zero")
	}
	r.total = cursor
	return r, nil
}

// RoleOf returns the role for id, or RoleUnknown if id falls outside every
// configured range.
func (r *Registry) RoleOf(id uint32) Role {
	for _, rg := range r.ranges {
		if id >= rg.lo && id < rg.hi {
			return rg.role
		}
	}
	return RoleUnknown
}

// IsReplica reports whether id is a full voting replica.
func (r *Registry) IsReplica(id uint32) bool { return r.RoleOf(id) == RoleReplica }

// IsROReplica reports whether id is a read-only replica.
func (r *Registry) IsROReplica(id uint32) bool { return r.RoleOf(id) == RoleROReplica }

// IsExternalClient reports whether id is an external client.
func (r *Registry) IsExternalClient(id uint32) bool { return r.RoleOf(id) == RoleExternalClient }

// IsInternalClient reports whether id is an internal client.
func (r *Registry) IsInternalClient(id uint32) bool { return r.RoleOf(id) == RoleInternalClient }

// IsClientService reports whether id is a client service.
func (r *Registry) IsClientService(id uint32) bool { return r.RoleOf(id) == RoleClientService }

// IsClientProxy reports whether id is a client proxy.
func (r *Registry) IsClientProxy(id uint32) bool { return r.RoleOf(id) == RoleClientProxy }

// IsClientPrincipal reports whether id belongs to any of the client roles
// eligible for hot public-key replacement (external clients and client
// services only — see Key Store's build-time contract).
func (r *Registry) IsClientPrincipal(id uint32) bool {
	switch r.RoleOf(id) {
	case RoleExternalClient, RoleClientService:
		return true
	default:
		return false
	}
}

// Total returns the number of principals spanning every configured range.
func (r *Registry) Total() uint32 { return r.total }

// RequireKnown returns signerror.ErrUnknownPrincipal if id classifies as
// RoleUnknown, otherwise nil. Used by construction-time paths where an
// out-of-range principal is fatal.
func (r *Registry) RequireKnown(id uint32) error {
	if r.RoleOf(id) == RoleUnknown {
		return signerror.UnknownPrincipalf("principal id %d out of range (total=%d)", id, r.total)
	}
	return nil
}

func (r *Registry) String() string {
	return fmt.Sprintf("Registry{ranges=%d total=%d}", len(r.ranges), r.total)
}
