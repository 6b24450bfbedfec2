// The synthetic-token and underlying-asset ledgers are external
// collaborators of the settlement core. This package defines the port the
// core consumes plus two implementations: a sqlite-backed ledger for the
// daemon and an in-memory one for tests.

package ktoken

import (
	"errors"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("token balance insufficient")
	ErrZeroTokenAmount     = errors.New("token amount must be positive")
)

// Ledger is a standard fungible-asset ledger holding balances for many
// tokens, keyed by token address. Mint and burn are only ever invoked by
// the minter and the asset router.
type Ledger interface {
	Mint(token, to ethcommon.Address, amount *big.Int) error
	Burn(token, from ethcommon.Address, amount *big.Int) error
	Transfer(token, from, to ethcommon.Address, amount *big.Int) error
	BalanceOf(token, account ethcommon.Address) *big.Int
	TotalSupply(token ethcommon.Address) *big.Int
}
