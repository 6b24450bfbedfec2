package common

import (
	"errors"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

type Role string

const (
	RoleAdmin          Role = "admin"
	RoleEmergencyAdmin Role = "emergency_admin" // pause authority
	RoleRelayer        Role = "relayer"         // batch + proposal operator
	RoleGuardian       Role = "guardian"        // may cancel proposals
	RoleInstitution    Role = "institution"     // minter-side callers
)

// ErrWrongRole is returned by every mutating entry point when the caller
// lacks the role it requires. Authorization is always checked before any
// state validation.
var ErrWrongRole = errors.New("caller lacks the required role")

// AuthorizationPort is the oracle the core consults for role grants. How
// roles are stored and granted is outside the core; the settlement engine
// only ever asks this one question.
type AuthorizationPort interface {
	HasRole(subject ethcommon.Address, role Role) bool
}
