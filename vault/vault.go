// A staking vault accepts stake/unstake requests against its current open
// batch and converts between assets and shares at the price fixed when
// that batch settles. Live/spot prices are only used for reporting; every
// claimant of a batch gets the identical settlement price regardless of
// claim order.

package vault

import (
	"errors"
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
	"github.com/turingcapitalgroup/kam-go/request"
	"github.com/turingcapitalgroup/kam-go/router"
)

var (
	ErrBatchNotSettled  = errors.New("batch not settled yet")
	ErrZeroAmount       = errors.New("amount must be positive")
	ErrZeroAddress      = errors.New("address must not be zero")
	ErrWrongRequestKind = errors.New("request kind does not match this operation")
	ErrNoReceiver       = errors.New("no batch receiver deployed for this batch")
)

const (
	bpsDenominator = 10_000
	secondsPerYear = 365 * 24 * 3600
)

type Config struct {
	Addr  ethcommon.Address
	Asset ethcommon.Address

	// Annualized management fee and performance fee over yield above the
	// asset's hurdle rate, both in basis points.
	ManagementFeeBps  uint16
	PerformanceFeeBps uint16
}

type Vault struct {
	mu  sync.Mutex
	cfg Config

	shareToken ethcommon.Address

	reg       *registry.Registry
	batches   *batch.Ledger
	rt        *router.Router
	requests  *request.RequestDB
	adapters  adapter.Resolver
	tokens    ktoken.Ledger
	receivers *receiver.Factory

	now func() time.Time
}

func New(
	cfg Config,
	reg *registry.Registry,
	batches *batch.Ledger,
	rt *router.Router,
	requests *request.RequestDB,
	adapters adapter.Resolver,
	tokens ktoken.Ledger,
	receivers *receiver.Factory,
) *Vault {
	return &Vault{
		cfg:        cfg,
		shareToken: common.DeriveShareTokenAddress(cfg.Addr),
		reg:        reg,
		batches:    batches,
		rt:         rt,
		requests:   requests,
		adapters:   adapters,
		tokens:     tokens,
		receivers:  receivers,
		now:        time.Now,
	}
}

func (v *Vault) Address() ethcommon.Address {
	return v.cfg.Addr
}

func (v *Vault) ShareToken() ethcommon.Address {
	return v.shareToken
}

// RequestStake escrows the user's assets into the vault's adapter through
// the router and registers a pending stake request on the current batch.
func (v *Vault) RequestStake(caller, recipient ethcommon.Address, amount *big.Int) (ethcommon.Hash, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if recipient == (ethcommon.Address{}) {
		return ethcommon.Hash{}, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ethcommon.Hash{}, ErrZeroAmount
	}

	batchId, err := v.batches.CurrentBatch(v.cfg.Addr)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	if err := v.tokens.Transfer(v.cfg.Asset, caller, v.cfg.Addr, amount); err != nil {
		return ethcommon.Hash{}, err
	}
	if err := v.rt.KAssetPush(v.cfg.Addr, v.cfg.Asset, amount, batchId); err != nil {
		return ethcommon.Hash{}, err
	}

	return v.insertRequest(request.KindStake, caller, recipient, amount, batchId)
}

// RequestUnstake escrows the user's shares at the vault and queues them
// for redemption through the router's shares counter.
func (v *Vault) RequestUnstake(caller, recipient ethcommon.Address, shares *big.Int) (ethcommon.Hash, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if recipient == (ethcommon.Address{}) {
		return ethcommon.Hash{}, ErrZeroAddress
	}
	if shares == nil || shares.Sign() <= 0 {
		return ethcommon.Hash{}, ErrZeroAmount
	}

	batchId, err := v.batches.CurrentBatch(v.cfg.Addr)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	if err := v.tokens.Transfer(v.shareToken, caller, v.cfg.Addr, shares); err != nil {
		return ethcommon.Hash{}, err
	}
	if err := v.rt.KSharesRequestPush(v.cfg.Addr, v.cfg.Addr, shares, batchId); err != nil {
		return ethcommon.Hash{}, err
	}

	return v.insertRequest(request.KindUnstake, caller, recipient, shares, batchId)
}

func (v *Vault) insertRequest(kind request.RequestKind, user, recipient ethcommon.Address, amount *big.Int, batchId ethcommon.Hash) (ethcommon.Hash, error) {
	seq, err := v.requests.NextSeq()
	if err != nil {
		return ethcommon.Hash{}, err
	}

	createdAt := v.now().Unix()
	id := common.DeriveRequestId(string(kind), user, v.cfg.Addr, amount, seq, createdAt)
	if err := v.requests.Insert(&request.Request{
		Id:        id,
		Kind:      kind,
		User:      user,
		Recipient: recipient,
		Vault:     v.cfg.Addr,
		Asset:     v.cfg.Asset,
		Amount:    common.BigIntClone(amount),
		BatchId:   batchId,
		Status:    request.StatusPending,
		CreatedAt: createdAt,
	}); err != nil {
		return ethcommon.Hash{}, err
	}

	logger.WithFields(logger.Fields{
		"vault":   v.cfg.Addr.Hex(),
		"kind":    string(kind),
		"request": common.Shorten(id.Hex(), 6),
		"batch":   common.Shorten(batchId.Hex(), 6),
		"amount":  amount.String(),
	}).Debug("request registered")

	return id, nil
}

// CancelUnstake backs an unstake out while its batch is still open and
// returns the escrowed shares.
func (v *Vault) CancelUnstake(caller ethcommon.Address, requestId ethcommon.Hash) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	req, err := v.pendingRequest(requestId, request.KindUnstake)
	if err != nil {
		return err
	}
	if caller != req.User {
		return request.ErrNotRequester
	}

	b, ok, err := v.batches.GetBatch(req.BatchId)
	if err != nil {
		return err
	}
	if !ok || b.Status != batch.BatchStatusOpen {
		return batch.ErrBatchNotOpen
	}

	if err := v.rt.KSharesRequestPull(v.cfg.Addr, v.cfg.Addr, req.Amount, req.BatchId); err != nil {
		return err
	}
	if err := v.requests.MarkCancelled(requestId); err != nil {
		return err
	}
	return v.tokens.Transfer(v.shareToken, v.cfg.Addr, req.User, req.Amount)
}

// ClaimStakedShares mints shares for a settled stake request, priced at
// the batch's fixed share price. Beneficiary only, exactly once.
func (v *Vault) ClaimStakedShares(caller ethcommon.Address, requestId ethcommon.Hash) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	req, err := v.pendingRequest(requestId, request.KindStake)
	if err != nil {
		return nil, err
	}
	if caller != req.Recipient {
		return nil, request.ErrNotBeneficiary
	}

	b, err := v.settledBatch(req.BatchId)
	if err != nil {
		return nil, err
	}

	// Shares are minted before the status flips; a failed mint leaves
	// the request pending instead of claimed-with-nothing.
	shares := v.assetsToShares(req.Amount, b)
	if err := v.tokens.Mint(v.shareToken, req.Recipient, shares); err != nil {
		return nil, err
	}
	if err := v.requests.MarkClaimed(requestId); err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"vault":   v.cfg.Addr.Hex(),
		"request": common.Shorten(requestId.Hex(), 6),
		"shares":  shares.String(),
	}).Debug("stake claimed")

	return shares, nil
}

// ClaimUnstakedAssets pays out a settled unstake request from the batch's
// receiver escrow, burning the escrowed shares.
func (v *Vault) ClaimUnstakedAssets(caller ethcommon.Address, requestId ethcommon.Hash) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	req, err := v.pendingRequest(requestId, request.KindUnstake)
	if err != nil {
		return nil, err
	}
	if caller != req.Recipient {
		return nil, request.ErrNotBeneficiary
	}

	b, err := v.settledBatch(req.BatchId)
	if err != nil {
		return nil, err
	}

	br, ok := v.receivers.ByBatch(req.BatchId)
	if !ok {
		return nil, ErrNoReceiver
	}

	// The payout runs before the status flips; a failed pull leaves the
	// request pending and the escrowed shares intact for a retry.
	assets := v.sharesToAssets(req.Amount, b)
	if err := br.PullAssets(v.cfg.Addr, req.Recipient, assets, req.BatchId); err != nil {
		return nil, err
	}
	if err := v.tokens.Burn(v.shareToken, v.cfg.Addr, req.Amount); err != nil {
		return nil, err
	}
	if err := v.requests.MarkClaimed(requestId); err != nil {
		return nil, err
	}

	return assets, nil
}

func (v *Vault) pendingRequest(requestId ethcommon.Hash, kind request.RequestKind) (*request.Request, error) {
	req, ok, err := v.requests.Get(requestId)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, request.ErrRequestNotFound
	}
	if req.Kind != kind || req.Vault != v.cfg.Addr {
		return nil, ErrWrongRequestKind
	}
	if req.Status != request.StatusPending {
		return nil, request.ErrRequestNotPending
	}
	return req, nil
}

func (v *Vault) settledBatch(batchId ethcommon.Hash) (*batch.Batch, error) {
	b, ok, err := v.batches.GetBatch(batchId)
	if err != nil {
		return nil, err
	}
	if !ok || !b.IsSettled() {
		return nil, ErrBatchNotSettled
	}
	return b, nil
}

// assetsToShares converts at the batch's fixed price, rounding down in the
// vault's favour.
func (v *Vault) assetsToShares(amount *big.Int, b *batch.Batch) *big.Int {
	scale := v.scale()
	return new(big.Int).Div(new(big.Int).Mul(amount, scale), b.SharePrice)
}

// sharesToAssets also rounds down, in favour of remaining holders.
func (v *Vault) sharesToAssets(shares *big.Int, b *batch.Batch) *big.Int {
	scale := v.scale()
	return new(big.Int).Div(new(big.Int).Mul(shares, b.SharePrice), scale)
}

func (v *Vault) scale() *big.Int {
	a, ok, err := v.reg.GetAsset(v.cfg.Asset)
	if err != nil || !ok {
		return common.Pow10(18)
	}
	return common.Pow10(a.Decimals)
}

// TotalNetAssets is the adapter's reported holdings less the fees accrued
// since the last settlement.
func (v *Vault) TotalNetAssets() (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.totalNetAssetsLocked()
}

func (v *Vault) totalNetAssetsLocked() (*big.Int, error) {
	a, err := v.adapters.Adapter(v.cfg.Addr, v.cfg.Asset)
	if err != nil {
		return nil, err
	}
	total := a.TotalAssets()

	last, ok, err := v.batches.LastSettled(v.cfg.Addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Nothing settled yet, no fee baseline to accrue from.
		return total, nil
	}

	net := new(big.Int).Set(total)
	net.Sub(net, v.accruedManagementFee(total, last.SettledAt))
	net.Sub(net, v.accruedPerformanceFee(total, last.SettledTotalAssets))
	if net.Sign() < 0 {
		net.SetInt64(0)
	}
	return net, nil
}

// accruedManagementFee pro-rates the annualized bps fee over the time
// elapsed since the last settlement.
func (v *Vault) accruedManagementFee(total *big.Int, lastSettledAt int64) *big.Int {
	if v.cfg.ManagementFeeBps == 0 {
		return new(big.Int)
	}
	elapsed := v.now().Unix() - lastSettledAt
	if elapsed <= 0 {
		return new(big.Int)
	}

	fee := new(big.Int).Mul(total, big.NewInt(int64(v.cfg.ManagementFeeBps)))
	fee.Mul(fee, big.NewInt(elapsed))
	fee.Div(fee, big.NewInt(bpsDenominator))
	fee.Div(fee, big.NewInt(secondsPerYear))
	return fee
}

// accruedPerformanceFee charges bps over yield above the asset's hurdle
// rate since the last settlement.
func (v *Vault) accruedPerformanceFee(total, lastTotal *big.Int) *big.Int {
	if v.cfg.PerformanceFeeBps == 0 {
		return new(big.Int)
	}

	yield := new(big.Int).Sub(total, lastTotal)
	if yield.Sign() <= 0 {
		return new(big.Int)
	}

	var hurdleBps uint16
	if a, ok, err := v.reg.GetAsset(v.cfg.Asset); err == nil && ok {
		hurdleBps = a.HurdleRateBps
	}
	if hurdleBps > 0 {
		hurdle := new(big.Int).Mul(lastTotal, big.NewInt(int64(hurdleBps)))
		hurdle.Div(hurdle, big.NewInt(bpsDenominator))
		yield.Sub(yield, hurdle)
		if yield.Sign() <= 0 {
			return new(big.Int)
		}
	}

	fee := new(big.Int).Mul(yield, big.NewInt(int64(v.cfg.PerformanceFeeBps)))
	fee.Div(fee, big.NewInt(bpsDenominator))
	return fee
}

// NetSharePrice is the live price per share from net assets, scaled to the
// asset's decimals. 1.0 at zero supply, avoiding the genesis divide.
func (v *Vault) NetSharePrice() (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	scale := v.scale()
	supply := v.tokens.TotalSupply(v.shareToken)
	if supply.Sign() == 0 {
		return scale, nil
	}

	net, err := v.totalNetAssetsLocked()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Div(new(big.Int).Mul(net, scale), supply), nil
}

func (v *Vault) GetRequest(requestId ethcommon.Hash) (*request.Request, bool, error) {
	return v.requests.Get(requestId)
}
