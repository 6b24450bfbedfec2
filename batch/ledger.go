// The batch ledger runs every vault's open -> closed -> settled sequence.
// The relayer drives creation and closing; settlement is reserved to the
// asset router bound at wiring time, which is the access-control boundary
// that keeps share prices out of the relayer's direct reach.

package batch

import (
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/turingcapitalgroup/kam-go/common"
)

type Ledger struct {
	mu     sync.Mutex
	db     *BatchDB
	auth   common.AuthorizationPort
	router ethcommon.Address

	now func() time.Time
}

func NewLedger(db *BatchDB, auth common.AuthorizationPort) *Ledger {
	return &Ledger{db: db, auth: auth, now: time.Now}
}

// WithClock overrides the wall clock used for batch timestamps.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// BindRouter fixes the address allowed to call SettleBatch. One-time,
// admin-gated.
func (l *Ledger) BindRouter(caller, router ethcommon.Address) error {
	if !l.auth.HasRole(caller, common.RoleAdmin) {
		return common.ErrWrongRole
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.router != (ethcommon.Address{}) {
		return ErrRouterAlreadyBound
	}
	l.router = router
	return nil
}

// CreateNewBatch opens a fresh batch for the vault. Fails while an earlier
// batch is still open; the single-open-batch invariant is what ties every
// request to exactly one settlement price.
func (l *Ledger) CreateNewBatch(caller, vault ethcommon.Address) (ethcommon.Hash, error) {
	if !l.auth.HasRole(caller, common.RoleRelayer) {
		return ethcommon.Hash{}, common.ErrWrongRole
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.createLocked(vault)
}

func (l *Ledger) createLocked(vault ethcommon.Address) (ethcommon.Hash, error) {
	if _, open, err := l.db.GetOpen(vault); err != nil {
		return ethcommon.Hash{}, err
	} else if open {
		return ethcommon.Hash{}, ErrBatchStillOpen
	}

	seq, err := l.db.NextSeq(vault)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	createdAt := l.now().Unix()
	id := common.DeriveBatchId(vault, seq, createdAt)
	if err := l.db.Insert(&Batch{
		Id:        id,
		Vault:     vault,
		Seq:       seq,
		CreatedAt: createdAt,
		Status:    BatchStatusOpen,
	}); err != nil {
		return ethcommon.Hash{}, err
	}

	logger.WithFields(logger.Fields{
		"vault": vault.Hex(),
		"batch": common.Shorten(id.Hex(), 6),
		"seq":   seq,
	}).Info("batch opened")

	return id, nil
}

// CloseBatch stops the batch from accepting requests, making it eligible
// for settlement. With createNew the next batch opens in the same step.
func (l *Ledger) CloseBatch(caller, vault ethcommon.Address, batchId ethcommon.Hash, createNew bool) (ethcommon.Hash, error) {
	if !l.auth.HasRole(caller, common.RoleRelayer) {
		return ethcommon.Hash{}, common.ErrWrongRole
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok, err := l.db.Get(batchId)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	if !ok {
		return ethcommon.Hash{}, ErrBatchNotFound
	}
	if b.Vault != vault || b.Status != BatchStatusOpen {
		return ethcommon.Hash{}, ErrBatchNotOpen
	}

	if err := l.db.UpdateClosed(batchId); err != nil {
		return ethcommon.Hash{}, err
	}

	logger.WithFields(logger.Fields{
		"vault": vault.Hex(),
		"batch": common.Shorten(batchId.Hex(), 6),
	}).Info("batch closed")

	if !createNew {
		return ethcommon.Hash{}, nil
	}
	return l.createLocked(vault)
}

// SettleBatch stamps the batch with its fixed share price and settlement
// totals. Only the bound asset router may call it; the relayer and admin
// are rejected like anyone else.
func (l *Ledger) SettleBatch(caller ethcommon.Address, batchId ethcommon.Hash, sharePrice, totalAssets *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.router == (ethcommon.Address{}) {
		return ErrRouterNotBound
	}
	if caller != l.router {
		return ErrNotRouter
	}

	b, ok, err := l.db.Get(batchId)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBatchNotFound
	}
	if b.Status != BatchStatusClosed {
		return ErrBatchNotClosed
	}

	if err := l.db.UpdateSettled(batchId, sharePrice.Text(10), totalAssets.Text(10), l.now().Unix()); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"vault":      b.Vault.Hex(),
		"batch":      common.Shorten(batchId.Hex(), 6),
		"sharePrice": sharePrice.String(),
	}).Info("batch settled")

	return nil
}

// CurrentBatch returns the vault's open batch id.
func (l *Ledger) CurrentBatch(vault ethcommon.Address) (ethcommon.Hash, error) {
	b, ok, err := l.db.GetOpen(vault)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	if !ok {
		return ethcommon.Hash{}, ErrNoOpenBatch
	}
	return b.Id, nil
}

func (l *Ledger) GetBatch(id ethcommon.Hash) (*Batch, bool, error) {
	return l.db.Get(id)
}

// LastSettled returns the most recently settled batch of the vault.
func (l *Ledger) LastSettled(vault ethcommon.Address) (*Batch, bool, error) {
	return l.db.LastSettledTotalAssets(vault)
}
