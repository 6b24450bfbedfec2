package common

import (
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// SimAuthorizer is a map-backed AuthorizationPort for tests and local
// wiring. Grants are (subject, role) pairs.
type SimAuthorizer struct {
	mu     sync.RWMutex
	grants map[ethcommon.Address]map[Role]bool
}

func NewSimAuthorizer() *SimAuthorizer {
	return &SimAuthorizer{grants: make(map[ethcommon.Address]map[Role]bool)}
}

func (sa *SimAuthorizer) Grant(subject ethcommon.Address, roles ...Role) {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	m, ok := sa.grants[subject]
	if !ok {
		m = make(map[Role]bool)
		sa.grants[subject] = m
	}
	for _, r := range roles {
		m[r] = true
	}
}

func (sa *SimAuthorizer) Revoke(subject ethcommon.Address, role Role) {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if m, ok := sa.grants[subject]; ok {
		delete(m, role)
	}
}

func (sa *SimAuthorizer) HasRole(subject ethcommon.Address, role Role) bool {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	return sa.grants[subject][role]
}
