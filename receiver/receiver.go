// A BatchReceiver custodies the assets earmarked for one batch's
// redeemers, keeping them out of the vault's live adapter balance. It
// releases funds only to its owner (the minter or vault it was deployed
// for) and only against its own batch id.

package receiver

import (
	"errors"
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/turingcapitalgroup/kam-go/common"
	"github.com/turingcapitalgroup/kam-go/ktoken"
)

var (
	ErrAlreadyInitialized = errors.New("receiver already initialized")
	ErrNotInitialized     = errors.New("receiver not initialized")
	ErrZeroAddress        = errors.New("address must not be zero")
	ErrZeroAmount         = errors.New("amount must be positive")
	ErrInvalidBatchId     = errors.New("batch id does not match this receiver")
	ErrNotOwner           = errors.New("only the owning minter may pull assets")
)

type BatchReceiver struct {
	mu      sync.Mutex
	owner   ethcommon.Address
	account ethcommon.Address
	batchId ethcommon.Hash
	asset   ethcommon.Address
	tokens  ktoken.Ledger

	initialized bool
}

func newBatchReceiver(owner ethcommon.Address, tokens ktoken.Ledger) *BatchReceiver {
	return &BatchReceiver{owner: owner, tokens: tokens}
}

// Initialize is one-shot. The escrow account address is derived from the
// batch id and asset, so every batch gets an isolated balance.
func (br *BatchReceiver) Initialize(batchId ethcommon.Hash, asset ethcommon.Address) error {
	br.mu.Lock()
	defer br.mu.Unlock()

	if br.initialized {
		return ErrAlreadyInitialized
	}
	if asset == (ethcommon.Address{}) {
		return ErrZeroAddress
	}

	br.batchId = batchId
	br.asset = asset
	br.account = common.DeriveReceiverAddress(batchId, asset)
	br.initialized = true
	return nil
}

func (br *BatchReceiver) Account() ethcommon.Address {
	br.mu.Lock()
	defer br.mu.Unlock()

	return br.account
}

func (br *BatchReceiver) BatchId() ethcommon.Hash {
	br.mu.Lock()
	defer br.mu.Unlock()

	return br.batchId
}

// PullAssets forwards escrowed assets to a redeemer. Repeated partial
// pulls are allowed; the receiver keeps no ledger of "remaining owed" and
// simply forwards against its real token balance, so over-pulling fails
// with the token ledger's insufficient-balance error.
func (br *BatchReceiver) PullAssets(caller, to ethcommon.Address, amount *big.Int, batchId ethcommon.Hash) error {
	br.mu.Lock()
	defer br.mu.Unlock()

	if !br.initialized {
		return ErrNotInitialized
	}
	if caller != br.owner {
		return ErrNotOwner
	}
	if batchId != br.batchId {
		return ErrInvalidBatchId
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if to == (ethcommon.Address{}) {
		return ErrZeroAddress
	}

	return br.tokens.Transfer(br.asset, br.account, to, amount)
}

// Balance reports the escrowed amount still held.
func (br *BatchReceiver) Balance() *big.Int {
	br.mu.Lock()
	defer br.mu.Unlock()

	if !br.initialized {
		return new(big.Int)
	}
	return br.tokens.BalanceOf(br.asset, br.account)
}
