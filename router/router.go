// The asset router is the coordinator that makes the batch pipeline safe
// under concurrent, out-of-order requests. Vaults and the minter report
// gross flows here; the relayer proposes settlements; after the cooldown
// anyone may execute. The per-(vault, batch) counters and the per-vault
// active-proposal slot are mutated only through this type.

package router

import (
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/turingcapitalgroup/kam-go/adapter"
	"github.com/turingcapitalgroup/kam-go/batch"
	"github.com/turingcapitalgroup/kam-go/common"
	"github.com/turingcapitalgroup/kam-go/ktoken"
	"github.com/turingcapitalgroup/kam-go/receiver"
	"github.com/turingcapitalgroup/kam-go/registry"
)

type Config struct {
	// Addr is the router's own identity, the only address the batch
	// ledger accepts SettleBatch from.
	Addr ethcommon.Address

	// Cooldown between propose and execute. DefaultCooldown when zero.
	Cooldown time.Duration

	// Now overrides the wall clock. Nil means time.Now.
	Now func() time.Time
}

type Router struct {
	mu  sync.Mutex
	cfg Config

	db        *RouterDB
	reg       *registry.Registry
	batches   *batch.Ledger
	adapters  adapter.Resolver
	tokens    ktoken.Ledger
	receivers *receiver.Factory

	cooldown time.Duration
	paused   bool

	now func() time.Time
}

func New(
	cfg Config,
	db *RouterDB,
	reg *registry.Registry,
	batches *batch.Ledger,
	adapters adapter.Resolver,
	tokens ktoken.Ledger,
	receivers *receiver.Factory,
) *Router {
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}
	if cooldown > MaxCooldown {
		logger.WithFields(logger.Fields{
			"configured": cooldown.String(),
			"max":        MaxCooldown.String(),
		}).Warn("configured cooldown exceeds protocol maximum, clamping")
		cooldown = MaxCooldown
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Router{
		cfg:       cfg,
		db:        db,
		reg:       reg,
		batches:   batches,
		adapters:  adapters,
		tokens:    tokens,
		receivers: receivers,
		cooldown:  cooldown,
		now:       now,
	}
}

func (r *Router) Address() ethcommon.Address {
	return r.cfg.Addr
}

func (r *Router) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.paused
}

// callerVault resolves the caller to its vault record and checks it is
// registered for the asset.
func (r *Router) callerVault(caller, asset ethcommon.Address) (*registry.Vault, error) {
	v, ok, err := r.reg.GetVault(caller)
	if err != nil {
		return nil, err
	}
	if !ok || v.Asset != asset {
		return nil, ErrOnlyVault
	}
	return v, nil
}

// adapterFor returns the live adapter handle and its custody account for a
// (vault, asset) pair.
func (r *Router) adapterFor(vault, asset ethcommon.Address) (adapter.Adapter, ethcommon.Address, error) {
	addr, ok, err := r.reg.GetAdapter(vault, asset)
	if err != nil {
		return nil, ethcommon.Address{}, err
	}
	if !ok {
		return nil, ethcommon.Address{}, adapter.ErrAdapterNotBound
	}

	a, err := r.adapters.Adapter(vault, asset)
	if err != nil {
		return nil, ethcommon.Address{}, err
	}
	return a, addr, nil
}

// KAssetPush records a gross deposit for the caller's (vault, batchId) and
// physically forwards the funds into the vault's adapter. The caller must
// be a vault registered for the asset; anyone else is rejected before any
// state is touched.
func (r *Router) KAssetPush(caller, asset ethcommon.Address, amount *big.Int, batchId ethcommon.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.callerVault(caller, asset)
	if err != nil {
		return err
	}
	if r.paused {
		return ErrPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	a, adapterAddr, err := r.adapterFor(v.Vault, asset)
	if err != nil {
		return err
	}

	if err := r.db.AddDeposited(v.Vault, batchId, amount); err != nil {
		return err
	}
	if err := r.tokens.Transfer(asset, caller, adapterAddr, amount); err != nil {
		return err
	}
	if err := a.Deposit(amount); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"vault":  v.Vault.Hex(),
		"batch":  common.Shorten(batchId.Hex(), 6),
		"amount": amount.String(),
	}).Debug("asset push recorded")

	return nil
}

// KAssetRequestPull records a redemption-side request. The pull is
// physically deferred to settlement; solvency is pre-validated here: the
// cumulative requested amount may never exceed the adapter's reported
// total assets.
func (r *Router) KAssetRequestPull(caller, asset ethcommon.Address, amount *big.Int, batchId ethcommon.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	minter, ok, err := r.reg.Minter(asset)
	if err != nil {
		return err
	}
	if !ok || caller != minter {
		return ErrOnlyMinter
	}
	if r.paused {
		return ErrPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	a, _, err := r.adapterFor(minter, asset)
	if err != nil {
		return err
	}

	bal, err := r.db.GetBalances(minter, batchId)
	if err != nil {
		return err
	}
	cumulative := new(big.Int).Add(bal.Requested, amount)
	if cumulative.Cmp(a.TotalAssets()) > 0 {
		return ErrInsufficientVirtualBalance
	}

	return r.db.AddRequested(minter, batchId, amount)
}

// KAssetRequestPullCancel backs a redemption request out of the counters
// while its batch is still open, symmetric to the pull down to zero.
func (r *Router) KAssetRequestPullCancel(caller, asset ethcommon.Address, amount *big.Int, batchId ethcommon.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	minter, ok, err := r.reg.Minter(asset)
	if err != nil {
		return err
	}
	if !ok || caller != minter {
		return ErrOnlyMinter
	}
	if r.paused {
		return ErrPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	return r.db.SubRequested(minter, batchId, amount)
}

// KAssetTransfer moves capital between two strategy vaults' adapters, e.g.
// an Alpha -> Beta rebalance. The source's virtual balance check includes
// any still-pending requested amounts, so repeated transfers cannot exceed
// the source's true holdings.
func (r *Router) KAssetTransfer(caller, fromVault, toVault, asset ethcommon.Address, amount *big.Int, batchId ethcommon.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	staking, err := r.reg.IsStakingVault(caller)
	if err != nil {
		return err
	}
	if !staking || caller != fromVault {
		return ErrOnlyStakingVault
	}
	if r.paused {
		return ErrPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	fromAdapter, fromAddr, err := r.adapterFor(fromVault, asset)
	if err != nil {
		return err
	}
	toAdapter, toAddr, err := r.adapterFor(toVault, asset)
	if err != nil {
		return err
	}

	bal, err := r.db.GetBalances(fromVault, batchId)
	if err != nil {
		return err
	}
	cumulative := new(big.Int).Add(bal.Requested, amount)
	if cumulative.Cmp(fromAdapter.TotalAssets()) > 0 {
		return ErrInsufficientVirtualBalance
	}

	// Flow bookkeeping keeps settlement netting aware of the rebalance:
	// outflow for the source, inflow for the destination.
	neg := new(big.Int).Neg(amount)
	if err := r.db.AddDeposited(fromVault, batchId, neg); err != nil {
		return err
	}
	if err := r.db.AddDeposited(toVault, batchId, amount); err != nil {
		return err
	}

	if err := fromAdapter.Withdraw(amount); err != nil {
		return err
	}
	if err := r.tokens.Transfer(asset, fromAddr, toAddr, amount); err != nil {
		return err
	}
	if err := toAdapter.Deposit(amount); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"from":   fromVault.Hex(),
		"to":     toVault.Hex(),
		"amount": amount.String(),
	}).Debug("asset transfer executed")

	return nil
}

// KSharesRequestPush records shares queued for redemption for (vault,
// batchId).
func (r *Router) KSharesRequestPush(caller, vault ethcommon.Address, amount *big.Int, batchId ethcommon.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sharesRequestLocked(caller, vault, amount, batchId, false)
}

// KSharesRequestPull cancels previously pushed shares, symmetric down to
// zero and never below.
func (r *Router) KSharesRequestPull(caller, vault ethcommon.Address, amount *big.Int, batchId ethcommon.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sharesRequestLocked(caller, vault, amount, batchId, true)
}

func (r *Router) sharesRequestLocked(caller, vault ethcommon.Address, amount *big.Int, batchId ethcommon.Hash, pull bool) error {
	staking, err := r.reg.IsStakingVault(caller)
	if err != nil {
		return err
	}
	if !staking || caller != vault {
		return ErrOnlyStakingVault
	}
	if r.paused {
		return ErrPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	delta := amount
	if pull {
		delta = new(big.Int).Neg(amount)
	}
	return r.db.AddSharesRequested(vault, batchId, delta)
}

// ProposeSettleBatch opens the settlement window for a closed batch.
func (r *Router) ProposeSettleBatch(
	caller, asset, vault ethcommon.Address,
	batchId ethcommon.Hash,
	totalAssets, profit, loss *big.Int,
) (ethcommon.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.reg.Authorizer().HasRole(caller, common.RoleRelayer) {
		return ethcommon.Hash{}, common.ErrWrongRole
	}
	if r.paused {
		return ethcommon.Hash{}, ErrPaused
	}

	b, ok, err := r.batches.GetBatch(batchId)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	if !ok || b.Vault != vault {
		return ethcommon.Hash{}, ErrBatchNotClosed
	}

	// Stale retry of a batch that already settled through another
	// proposal, even if the retry follows a cancellation. Checked before
	// the status, so a re-propose of a settled batch names the real
	// conflict instead of the settled status masking it.
	if done, err := r.db.HasExecutedProposalForBatch(batchId); err != nil {
		return ethcommon.Hash{}, err
	} else if done {
		return ethcommon.Hash{}, ErrBatchIdAlreadyProposed
	}

	if b.Status != batch.BatchStatusClosed {
		return ethcommon.Hash{}, ErrBatchNotClosed
	}

	if activeId, active, err := r.db.GetActiveProposal(vault); err != nil {
		return ethcommon.Hash{}, err
	} else if active {
		// The slot may still point at a cancelled proposal.
		p, ok, err := r.db.GetProposal(activeId)
		if err != nil {
			return ethcommon.Hash{}, err
		}
		if ok && p.Active() {
			return ethcommon.Hash{}, ErrOnlyOneProposalAtATime
		}
	}

	bal, err := r.db.GetBalances(vault, batchId)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	netted := new(big.Int).Sub(bal.Deposited, bal.Requested)

	// yield = reported - (previous settled totals + netted): the delta
	// attributable to strategy performance rather than flows.
	prev := new(big.Int)
	if last, ok, err := r.batches.LastSettled(vault); err != nil {
		return ethcommon.Hash{}, err
	} else if ok {
		prev.Set(last.SettledTotalAssets)
	}
	yield := new(big.Int).Sub(totalAssets, new(big.Int).Add(prev, netted))

	proposedAt := r.now().Unix()
	p := &SettlementProposal{
		Id:           common.DeriveProposalId(asset, vault, batchId, proposedAt),
		Asset:        asset,
		Vault:        vault,
		BatchId:      batchId,
		TotalAssets:  common.BigIntClone(totalAssets),
		Netted:       netted,
		Yield:        yield,
		ExecuteAfter: proposedAt + int64(r.cooldown/time.Second),
	}

	if err := r.db.InsertProposal(p); err != nil {
		return ethcommon.Hash{}, err
	}
	if err := r.db.SetActiveProposal(vault, p.Id); err != nil {
		return ethcommon.Hash{}, err
	}

	logger.WithFields(logger.Fields{
		"vault":       vault.Hex(),
		"batch":       common.Shorten(batchId.Hex(), 6),
		"proposal":    common.Shorten(p.Id.Hex(), 6),
		"totalAssets": totalAssets.String(),
		"yield":       yield.String(),
	}).Info("settlement proposed")

	return p.Id, nil
}

// ExecuteSettleBatch is deliberately permissionless: the relayer-gated
// propose step plus the cooldown give a public challenge window, after
// which anyone may finish the settlement.
func (r *Router) ExecuteSettleBatch(caller ethcommon.Address, proposalId ethcommon.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.paused {
		return ErrPaused
	}

	p, ok, err := r.db.GetProposal(proposalId)
	if err != nil {
		return err
	}
	if !ok || !p.Active() {
		return ErrProposalNotFound
	}
	if r.now().Unix() < p.ExecuteAfter {
		return ErrCooldownNotPassed
	}

	asset, ok, err := r.reg.GetAsset(p.Asset)
	if err != nil {
		return err
	}
	if !ok {
		return registry.ErrAssetNotSupported
	}

	v, ok, err := r.reg.GetVault(p.Vault)
	if err != nil {
		return err
	}
	if !ok {
		return registry.ErrVaultNotRegistered
	}

	sharePrice := r.settlementPrice(asset, v, p.TotalAssets)

	// Redemption-bound assets leave the vault's live adapter for a fresh
	// per-batch escrow so claims never touch the adapter again. All fund
	// movement happens before the batch is stamped settled: a shortfall
	// aborts here with the batch still closed and the proposal still
	// executable, so a retry after the adapter is topped up succeeds.
	bal, err := r.db.GetBalances(p.Vault, p.BatchId)
	if err != nil {
		return err
	}
	scale := common.Pow10(asset.Decimals)
	sharesValue := new(big.Int).Div(new(big.Int).Mul(bal.SharesRequested, sharePrice), scale)
	outflow := new(big.Int).Add(bal.Requested, sharesValue)

	if outflow.Sign() > 0 {
		a, adapterAddr, err := r.adapterFor(p.Vault, p.Asset)
		if err != nil {
			return err
		}
		if a.TotalAssets().Cmp(outflow) < 0 || r.tokens.BalanceOf(p.Asset, adapterAddr).Cmp(outflow) < 0 {
			return ErrInsufficientAdapterAssets
		}
		br, err := r.receivers.Deploy(p.Vault, p.BatchId, p.Asset)
		if err != nil {
			return err
		}
		if err := a.Withdraw(outflow); err != nil {
			return err
		}
		if err := r.tokens.Transfer(p.Asset, adapterAddr, br.Account(), outflow); err != nil {
			return err
		}
	}

	if err := r.batches.SettleBatch(r.cfg.Addr, p.BatchId, sharePrice, p.TotalAssets); err != nil {
		return err
	}

	if err := r.db.MarkExecuted(proposalId); err != nil {
		return err
	}
	if err := r.db.ClearActiveProposal(p.Vault); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"executor":   caller.Hex(),
		"vault":      p.Vault.Hex(),
		"batch":      common.Shorten(p.BatchId.Hex(), 6),
		"sharePrice": sharePrice.String(),
		"outflow":    outflow.String(),
	}).Info("settlement executed")

	return nil
}

// settlementPrice fixes the share price from the reported totals: assets
// per share scaled to the asset's decimals, 1:1 at zero supply.
func (r *Router) settlementPrice(asset *registry.Asset, v *registry.Vault, totalAssets *big.Int) *big.Int {
	scale := common.Pow10(asset.Decimals)

	shareToken := asset.SyntheticToken
	if v.Type != registry.VaultTypeMinter {
		shareToken = common.DeriveShareTokenAddress(v.Vault)
	}

	supply := r.tokens.TotalSupply(shareToken)
	if supply.Sign() == 0 {
		return scale
	}
	return new(big.Int).Div(new(big.Int).Mul(totalAssets, scale), supply)
}

// CancelProposal is the guardian's check against a malicious or erroneous
// relayer. Cancelling frees the vault for a fresh proposal immediately.
func (r *Router) CancelProposal(caller ethcommon.Address, proposalId ethcommon.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.reg.Authorizer().HasRole(caller, common.RoleGuardian) {
		return common.ErrWrongRole
	}

	p, ok, err := r.db.GetProposal(proposalId)
	if err != nil {
		return err
	}
	if !ok || !p.Active() {
		return ErrProposalNotFound
	}

	if err := r.db.MarkCancelled(proposalId); err != nil {
		return err
	}
	if err := r.db.ClearActiveProposal(p.Vault); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"guardian": caller.Hex(),
		"proposal": common.Shorten(proposalId.Hex(), 6),
	}).Warn("settlement proposal cancelled")

	return nil
}

// CanExecuteProposal reports executability with a stable reason string.
func (r *Router) CanExecuteProposal(proposalId ethcommon.Hash) (bool, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok, err := r.db.GetProposal(proposalId)
	if err != nil {
		return false, "", err
	}
	if !ok {
		return false, ReasonProposalNotFound, nil
	}
	if p.Cancelled {
		return false, ReasonProposalCancelled, nil
	}
	if p.Executed {
		return false, ReasonProposalExecuted, nil
	}
	if r.now().Unix() < p.ExecuteAfter {
		return false, ReasonCooldownNotPassed, nil
	}
	return true, "", nil
}

func (r *Router) IsProposalPending(proposalId ethcommon.Hash) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok, err := r.db.GetProposal(proposalId)
	if err != nil {
		return false, err
	}
	return ok && p.Active(), nil
}

func (r *Router) GetProposal(proposalId ethcommon.Hash) (*SettlementProposal, bool, error) {
	return r.db.GetProposal(proposalId)
}

func (r *Router) PendingProposals() ([]*SettlementProposal, error) {
	return r.db.PendingProposals()
}

func (r *Router) GetBatchBalances(vault ethcommon.Address, batchId ethcommon.Hash) (*BatchBalances, error) {
	return r.db.GetBalances(vault, batchId)
}

// Pause short-circuits every mutating entry point except Unpause and
// rescue.
func (r *Router) Pause(caller ethcommon.Address) error {
	if !r.reg.Authorizer().HasRole(caller, common.RoleEmergencyAdmin) {
		return common.ErrWrongRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.paused = true
	logger.WithFields(logger.Fields{"by": caller.Hex()}).Warn("asset router paused")
	return nil
}

func (r *Router) Unpause(caller ethcommon.Address) error {
	if !r.reg.Authorizer().HasRole(caller, common.RoleEmergencyAdmin) {
		return common.ErrWrongRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.paused {
		return ErrNotPaused
	}
	r.paused = false
	logger.WithFields(logger.Fields{"by": caller.Hex()}).Warn("asset router unpaused")
	return nil
}

// SetCooldown adjusts the propose/execute delay, bounded by the protocol
// maximum of one day.
func (r *Router) SetCooldown(caller ethcommon.Address, d time.Duration) error {
	if !r.reg.Authorizer().HasRole(caller, common.RoleAdmin) {
		return common.ErrWrongRole
	}
	if d <= 0 {
		return ErrCooldownZero
	}
	if d > MaxCooldown {
		return ErrCooldownExceedsMax
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cooldown = d
	return nil
}

func (r *Router) Cooldown() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.cooldown
}

// RescueAssets recovers stray tokens sent to the router's account.
// Registered assets and synthetic tokens are off limits.
func (r *Router) RescueAssets(caller, token, to ethcommon.Address, amount *big.Int) error {
	if !r.reg.Authorizer().HasRole(caller, common.RoleAdmin) {
		return common.ErrWrongRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	protocol, err := r.reg.IsProtocolToken(token)
	if err != nil {
		return err
	}
	if protocol {
		return ErrProtectedAsset
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	return r.tokens.Transfer(token, r.cfg.Addr, to, amount)
}
