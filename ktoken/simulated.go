package ktoken

import (
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// SimLedger is a map-backed Ledger. Balances never go negative; transfers
// and burns fail with ErrInsufficientBalance instead.
type SimLedger struct {
	mu       sync.Mutex
	balances map[ethcommon.Address]map[ethcommon.Address]*big.Int // token -> account -> balance
	supplies map[ethcommon.Address]*big.Int
}

func NewSimLedger() *SimLedger {
	return &SimLedger{
		balances: make(map[ethcommon.Address]map[ethcommon.Address]*big.Int),
		supplies: make(map[ethcommon.Address]*big.Int),
	}
}

func (sl *SimLedger) balanceRef(token, account ethcommon.Address) *big.Int {
	m, ok := sl.balances[token]
	if !ok {
		m = make(map[ethcommon.Address]*big.Int)
		sl.balances[token] = m
	}
	b, ok := m[account]
	if !ok {
		b = new(big.Int)
		m[account] = b
	}
	return b
}

func (sl *SimLedger) supplyRef(token ethcommon.Address) *big.Int {
	s, ok := sl.supplies[token]
	if !ok {
		s = new(big.Int)
		sl.supplies[token] = s
	}
	return s
}

func (sl *SimLedger) Mint(token, to ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroTokenAmount
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.balanceRef(token, to).Add(sl.balanceRef(token, to), amount)
	sl.supplyRef(token).Add(sl.supplyRef(token), amount)
	return nil
}

func (sl *SimLedger) Burn(token, from ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroTokenAmount
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	b := sl.balanceRef(token, from)
	if b.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	b.Sub(b, amount)
	sl.supplyRef(token).Sub(sl.supplyRef(token), amount)
	return nil
}

func (sl *SimLedger) Transfer(token, from, to ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroTokenAmount
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	b := sl.balanceRef(token, from)
	if b.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	b.Sub(b, amount)
	sl.balanceRef(token, to).Add(sl.balanceRef(token, to), amount)
	return nil
}

func (sl *SimLedger) BalanceOf(token, account ethcommon.Address) *big.Int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	return new(big.Int).Set(sl.balanceRef(token, account))
}

func (sl *SimLedger) TotalSupply(token ethcommon.Address) *big.Int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	return new(big.Int).Set(sl.supplyRef(token))
}
