package adapter

import (
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// SimAdapter tracks a single balance in memory.
type SimAdapter struct {
	mu    sync.Mutex
	total *big.Int
}

func NewSimAdapter() *SimAdapter {
	return &SimAdapter{total: new(big.Int)}
}

func (sa *SimAdapter) Deposit(amount *big.Int) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	sa.total.Add(sa.total, amount)
	return nil
}

func (sa *SimAdapter) Withdraw(amount *big.Int) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if sa.total.Cmp(amount) < 0 {
		return ErrInsufficientAssets
	}
	sa.total.Sub(sa.total, amount)
	return nil
}

func (sa *SimAdapter) TotalAssets() *big.Int {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	return new(big.Int).Set(sa.total)
}

func (sa *SimAdapter) SetTotalAssets(amount *big.Int) {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	sa.total = new(big.Int).Set(amount)
}

type vaultAsset struct {
	vault ethcommon.Address
	asset ethcommon.Address
}

// SimResolver binds SimAdapters per (vault, asset) pair.
type SimResolver struct {
	mu       sync.RWMutex
	adapters map[vaultAsset]Adapter
}

func NewSimResolver() *SimResolver {
	return &SimResolver{adapters: make(map[vaultAsset]Adapter)}
}

func (sr *SimResolver) Bind(vault, asset ethcommon.Address, a Adapter) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sr.adapters[vaultAsset{vault, asset}] = a
}

func (sr *SimResolver) Adapter(vault, asset ethcommon.Address) (Adapter, error) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	a, ok := sr.adapters[vaultAsset{vault, asset}]
	if !ok {
		return nil, ErrAdapterNotBound
	}
	return a, nil
}
