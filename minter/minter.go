// The minter is the institutional gateway for one asset: qualified
// institutions deposit the underlying and receive the synthetic token 1:1,
// and redeem through the same batch pipeline the staking vaults use.
// Minting is immediate; burning waits for batch settlement.

package minter

import (
	"errors"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/turingcapitalgroup/kam-go/batch"
	"github.com/turingcapitalgroup/kam-go/common"
	"github.com/turingcapitalgroup/kam-go/ktoken"
	"github.com/turingcapitalgroup/kam-go/receiver"
	"github.com/turingcapitalgroup/kam-go/registry"
	"github.com/turingcapitalgroup/kam-go/request"
	"github.com/turingcapitalgroup/kam-go/router"
)

var (
	ErrZeroAmount            = errors.New("amount must be positive")
	ErrZeroAddress           = errors.New("address must not be zero")
	ErrMintCeilingExceeded   = errors.New("batch mint ceiling exceeded")
	ErrRedeemCeilingExceeded = errors.New("batch redeem ceiling exceeded")
	ErrBatchNotSettled       = errors.New("batch not settled yet")
	ErrWrongRequestKind      = errors.New("request kind does not match this operation")
	ErrNoReceiver            = errors.New("no batch receiver deployed for this batch")
)

type Config struct {
	Addr  ethcommon.Address
	Asset ethcommon.Address
}

type Minter struct {
	mu  sync.Mutex
	cfg Config

	reg       *registry.Registry
	batches   *batch.Ledger
	rt        *router.Router
	requests  *request.RequestDB
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
	tokens ktoken.Ledger,
	receivers *receiver.Factory,
) *Minter {
	return &Minter{
		cfg:       cfg,
		reg:       reg,
		batches:   batches,
		rt:        rt,
		requests:  requests,
		tokens:    tokens,
		receivers: receivers,
		now:       time.Now,
	}
}

func (m *Minter) Address() ethcommon.Address {
	return m.cfg.Addr
}

// Mint deposits the underlying and issues the synthetic token 1:1,
// immediately. Only qualified institutions; the per-batch mint ceiling
// caps total issuance within one batch window.
func (m *Minter) Mint(caller, to ethcommon.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.reg.Authorizer().HasRole(caller, common.RoleInstitution) {
		return common.ErrWrongRole
	}
	if to == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	a, err := m.asset()
	if err != nil {
		return err
	}

	batchId, err := m.batches.CurrentBatch(m.cfg.Addr)
	if err != nil {
		return err
	}

	bal, err := m.rt.GetBatchBalances(m.cfg.Addr, batchId)
	if err != nil {
		return err
	}
	if a.MintCeiling.Sign() > 0 {
		minted := new(big.Int).Add(bal.Deposited, amount)
		if minted.Cmp(a.MintCeiling) > 0 {
			return ErrMintCeilingExceeded
		}
	}

	if err := m.tokens.Transfer(m.cfg.Asset, caller, m.cfg.Addr, amount); err != nil {
		return err
	}
	if err := m.rt.KAssetPush(m.cfg.Addr, m.cfg.Asset, amount, batchId); err != nil {
		return err
	}
	if err := m.tokens.Mint(a.SyntheticToken, to, amount); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"institution": caller.Hex(),
		"to":          to.Hex(),
		"amount":      amount.String(),
		"batch":       common.Shorten(batchId.Hex(), 6),
	}).Info("synthetic tokens minted")

	return nil
}

// RequestBurn escrows the institution's synthetic tokens and queues the
// redemption for the current batch. The underlying stays in the adapter
// until settlement; solvency against the adapter's holdings is checked
// through the router's cumulative requested counter.
func (m *Minter) RequestBurn(caller, recipient ethcommon.Address, amount *big.Int) (ethcommon.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.reg.Authorizer().HasRole(caller, common.RoleInstitution) {
		return ethcommon.Hash{}, common.ErrWrongRole
	}
	if recipient == (ethcommon.Address{}) {
		return ethcommon.Hash{}, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ethcommon.Hash{}, ErrZeroAmount
	}

	a, err := m.asset()
	if err != nil {
		return ethcommon.Hash{}, err
	}

	batchId, err := m.batches.CurrentBatch(m.cfg.Addr)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	bal, err := m.rt.GetBatchBalances(m.cfg.Addr, batchId)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	if a.RedeemCeiling.Sign() > 0 {
		requested := new(big.Int).Add(bal.Requested, amount)
		if requested.Cmp(a.RedeemCeiling) > 0 {
			return ethcommon.Hash{}, ErrRedeemCeilingExceeded
		}
	}

	if err := m.tokens.Transfer(a.SyntheticToken, caller, m.cfg.Addr, amount); err != nil {
		return ethcommon.Hash{}, err
	}
	if err := m.rt.KAssetRequestPull(m.cfg.Addr, m.cfg.Asset, amount, batchId); err != nil {
		return ethcommon.Hash{}, err
	}

	seq, err := m.requests.NextSeq()
	if err != nil {
		return ethcommon.Hash{}, err
	}

	createdAt := m.now().Unix()
	id := common.DeriveRequestId(string(request.KindBurn), caller, m.cfg.Addr, amount, seq, createdAt)
	if err := m.requests.Insert(&request.Request{
		Id:        id,
		Kind:      request.KindBurn,
		User:      caller,
		Recipient: recipient,
		Vault:     m.cfg.Addr,
		Asset:     m.cfg.Asset,
		Amount:    common.BigIntClone(amount),
		BatchId:   batchId,
		Status:    request.StatusPending,
		CreatedAt: createdAt,
	}); err != nil {
		return ethcommon.Hash{}, err
	}

	logger.WithFields(logger.Fields{
		"institution": caller.Hex(),
		"request":     common.Shorten(id.Hex(), 6),
		"batch":       common.Shorten(batchId.Hex(), 6),
		"amount":      amount.String(),
	}).Info("burn requested")

	return id, nil
}

// Burn pays out a settled burn request 1:1 from the batch's receiver
// escrow and destroys the escrowed synthetic tokens. Beneficiary only,
// exactly once.
func (m *Minter) Burn(caller ethcommon.Address, requestId ethcommon.Hash) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.pendingRequest(requestId)
	if err != nil {
		return nil, err
	}
	if caller != req.Recipient {
		return nil, request.ErrNotBeneficiary
	}

	b, ok, err := m.batches.GetBatch(req.BatchId)
	if err != nil {
		return nil, err
	}
	if !ok || !b.IsSettled() {
		return nil, ErrBatchNotSettled
	}

	br, ok := m.receivers.ByBatch(req.BatchId)
	if !ok {
		return nil, ErrNoReceiver
	}

	a, err := m.asset()
	if err != nil {
		return nil, err
	}

	// Funds move before the status flips; a failed pull leaves the
	// request pending so the claim can be retried.
	if err := br.PullAssets(m.cfg.Addr, req.Recipient, req.Amount, req.BatchId); err != nil {
		return nil, err
	}
	if err := m.tokens.Burn(a.SyntheticToken, m.cfg.Addr, req.Amount); err != nil {
		return nil, err
	}
	if err := m.requests.MarkClaimed(requestId); err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"recipient": req.Recipient.Hex(),
		"request":   common.Shorten(requestId.Hex(), 6),
		"amount":    req.Amount.String(),
	}).Info("synthetic tokens burned")

	return common.BigIntClone(req.Amount), nil
}

// CancelBurnRequest backs a burn out while its batch is still open and
// returns the escrowed synthetic tokens.
func (m *Minter) CancelBurnRequest(caller ethcommon.Address, requestId ethcommon.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.pendingRequest(requestId)
	if err != nil {
		return err
	}
	if caller != req.User {
		return request.ErrNotRequester
	}

	b, ok, err := m.batches.GetBatch(req.BatchId)
	if err != nil {
		return err
	}
	if !ok || b.Status != batch.BatchStatusOpen {
		return batch.ErrBatchNotOpen
	}

	a, err := m.asset()
	if err != nil {
		return err
	}

	if err := m.rt.KAssetRequestPullCancel(m.cfg.Addr, m.cfg.Asset, req.Amount, req.BatchId); err != nil {
		return err
	}
	if err := m.requests.MarkCancelled(requestId); err != nil {
		return err
	}
	return m.tokens.Transfer(a.SyntheticToken, m.cfg.Addr, req.User, req.Amount)
}

func (m *Minter) pendingRequest(requestId ethcommon.Hash) (*request.Request, error) {
	req, ok, err := m.requests.Get(requestId)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, request.ErrRequestNotFound
	}
	if req.Kind != request.KindBurn || req.Vault != m.cfg.Addr {
		return nil, ErrWrongRequestKind
	}
	if req.Status != request.StatusPending {
		return nil, request.ErrRequestNotPending
	}
	return req, nil
}

func (m *Minter) asset() (*registry.Asset, error) {
	a, ok, err := m.reg.GetAsset(m.cfg.Asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, registry.ErrAssetNotSupported
	}
	return a, nil
}

func (m *Minter) GetRequest(requestId ethcommon.Hash) (*request.Request, bool, error) {
	return m.requests.Get(requestId)
}
