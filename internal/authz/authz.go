// Package authz implements the repo-level authorization gate: the permission
// lattice (owner > admin > read) and the pure decision function consulted by
// every mutating or reading operation on members, invites, and secrets.
//
// The gate is stateless per call. Callers must feed it a freshly read
// membership row — repositories re-read the acting user's row inside the same
// transaction as the write they are gating, so a concurrent demotion can never
// land between the check and the mutation. Decisions carry a structured reason
// rather than a bare boolean so the transport layer can surface precise errors.
package authz

import (
	"github.com/secrelo/secrelo-server/internal/db/models"
	"github.com/secrelo/secrelo-server/internal/domain"
)

// Permission is a repo-level permission label.
type Permission string

// The permission lattice, strictly ordered: owner > admin > read.
const (
	PermissionOwner Permission = "owner"
	PermissionAdmin Permission = "admin"
	PermissionRead  Permission = "read"
)

// rank orders the lattice; unknown labels rank below read.
func (p Permission) rank() int {
	switch p {
	case PermissionOwner:
		return 3
	case PermissionAdmin:
		return 2
	case PermissionRead:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is a known permission label.
func (p Permission) Valid() bool {
	return p.rank() > 0
}

// AtLeast reports whether p sits at or above other in the lattice.
func (p Permission) AtLeast(other Permission) bool {
	return p.rank() >= other.rank()
}

// Requirement expresses the minimum privilege an operation demands.
type Requirement int

const (
	// AnyActive requires only an active membership, whatever the permission.
	AnyActive Requirement = iota
	// AdminOrAbove requires an active membership with admin or owner permission.
	AdminOrAbove
	// OwnerOnly requires an active owner membership.
	OwnerOnly
)

// Reason explains why a gate check failed.
type Reason string

const (
	ReasonAllowed                Reason = "allowed"
	ReasonNotAMember             Reason = "not-a-member"
	ReasonInactive               Reason = "inactive"
	ReasonInsufficientPermission Reason = "insufficient-permission"
)

// Decision is the structured outcome of a gate check.
type Decision struct {
	Allowed    bool
	Reason     Reason
	Permission Permission // the acting user's permission when a member
}

// Check evaluates whether the given membership row satisfies the requirement.
// member is nil when the acting user has no row at all for the repo.
func Check(member *models.RepoMember, req Requirement) Decision {
	if member == nil {
		return Decision{Allowed: false, Reason: ReasonNotAMember}
	}
	perm := Permission(member.MemberPermissions)
	if member.Status != models.MemberStatusActive {
		return Decision{Allowed: false, Reason: ReasonInactive, Permission: perm}
	}

	var need Permission
	switch req {
	case OwnerOnly:
		need = PermissionOwner
	case AdminOrAbove:
		need = PermissionAdmin
	default:
		need = PermissionRead
	}

	if !perm.AtLeast(need) {
		return Decision{Allowed: false, Reason: ReasonInsufficientPermission, Permission: perm}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed, Permission: perm}
}

// Err converts a denied decision into the matching domain error. Calling Err
// on an allowed decision returns nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonNotAMember:
		return domain.Authorizationf("you are not a member of this repo")
	case ReasonInactive:
		return domain.Authorizationf("your membership is not active")
	default:
		return domain.Authorizationf("insufficient permission for this action")
	}
}

// CanModifyMember decides whether an acting permission may change a target
// member's permission to the requested value. Owners may assign anything,
// including owner. Admins may manage members but never touch an owner and
// never grant owner. Readers may change nothing. requested is empty when the
// update leaves the permission field unchanged.
func CanModifyMember(acting, target, requested Permission) bool {
	switch acting {
	case PermissionOwner:
		return true
	case PermissionAdmin:
		if target == PermissionOwner {
			return false
		}
		if requested == PermissionOwner {
			return false
		}
		return true
	default:
		return false
	}
}
