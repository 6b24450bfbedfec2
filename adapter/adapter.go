// Adapters custody funds in external strategies. The settlement core treats
// them as opaque: it deposits, withdraws and reads TotalAssets, and trusts
// the reported figure as the source of truth for "how much does vault V
// actually hold in asset A".

package adapter

import (
	"errors"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	ErrAdapterNotBound    = errors.New("no adapter bound for vault and asset")
	ErrInsufficientAssets = errors.New("adapter holds less than the requested amount")
)

type Adapter interface {
	Deposit(amount *big.Int) error
	Withdraw(amount *big.Int) error
	TotalAssets() *big.Int

	// SetTotalAssets overrides the reported figure. Strategy yield and loss
	// enter the system through this hook.
	SetTotalAssets(amount *big.Int)
}

// Resolver maps a (vault, asset) pair to the Adapter instance bound for it.
// The registry stores the binding addresses; the resolver supplies live
// handles.
type Resolver interface {
	Adapter(vault, asset ethcommon.Address) (Adapter, error)
}
