package router

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/turingcapitalgroup/kam-go/common"
)

const (
	DefaultCooldown = time.Hour
	// Protocol maximum; SetCooldown rejects anything above it.
	MaxCooldown = 24 * time.Hour
)

var (
	ErrPaused                     = errors.New("asset router is paused")
	ErrNotPaused                  = errors.New("asset router is not paused")
	ErrZeroAmount                 = errors.New("amount must be positive")
	ErrOnlyVault                  = errors.New("caller is not a registered vault for this asset")
	ErrOnlyMinter                 = errors.New("caller is not the registered minter for this asset")
	ErrOnlyStakingVault           = errors.New("caller is not a registered staking vault")
	ErrInsufficientVirtualBalance = errors.New("cumulative requested amount exceeds adapter total assets")
	ErrInsufficientAdapterAssets  = errors.New("adapter holds less than the settlement outflow")
	ErrSharesUnderflow            = errors.New("shares pull exceeds pushed amount")
	ErrRequestedUnderflow         = errors.New("requested cancel exceeds recorded amount")
	ErrBatchNotClosed             = errors.New("batch is not closed")
	ErrOnlyOneProposalAtATime     = errors.New("vault already has an active proposal")
	ErrBatchIdAlreadyProposed     = errors.New("batch already settled through an executed proposal")
	ErrProposalNotFound           = errors.New("proposal not found")
	ErrCooldownNotPassed          = errors.New("cooldown not passed")
	ErrCooldownExceedsMax         = errors.New("cooldown exceeds protocol maximum")
	ErrCooldownZero               = errors.New("cooldown must be positive")
	ErrProtectedAsset             = errors.New("cannot rescue a protocol asset")
)

// Reasons returned by CanExecuteProposal. Off-chain tooling matches on
// these strings, keep them stable.
const (
	ReasonProposalNotFound  = "Proposal not found"
	ReasonCooldownNotPassed = "Cooldown not passed"
	ReasonProposalCancelled = "Proposal cancelled"
	ReasonProposalExecuted  = "Proposal already executed"
)

// SettlementProposal carries a relayer-observed total-assets figure for one
// closed batch. At most one active (not executed, not cancelled) proposal
// exists per vault at any time.
type SettlementProposal struct {
	Id           ethcommon.Hash
	Asset        ethcommon.Address
	Vault        ethcommon.Address
	BatchId      ethcommon.Hash
	TotalAssets  *big.Int // relayer-reported
	Netted       *big.Int // deposited - requested, may be negative
	Yield        *big.Int // totalAssets - (lastSettledTotalAssets + netted), signed
	ExecuteAfter int64
	Executed     bool
	Cancelled    bool
}

func (p *SettlementProposal) Active() bool {
	return !p.Executed && !p.Cancelled
}

func (p *SettlementProposal) String() string {
	return fmt.Sprintf("SettlementProposal { Id: %s, Vault: %s, Batch: %s, TotalAssets: %v, ExecuteAfter: %d }",
		common.Shorten(p.Id.Hex(), 6), common.Shorten(p.Vault.Hex(), 6),
		common.Shorten(p.BatchId.Hex(), 6), p.TotalAssets, p.ExecuteAfter)
}

// BatchBalances accumulates the gross flows reported for one (vault,
// batchId) pair before settlement. Read-only afterwards.
type BatchBalances struct {
	Vault           ethcommon.Address
	BatchId         ethcommon.Hash
	Deposited       *big.Int
	Requested       *big.Int
	SharesRequested *big.Int
}
