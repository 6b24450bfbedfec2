package batch

import (
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/turingcapitalgroup/kam-go/common"
)

type testLedgerEnv struct {
	ledger  *Ledger
	admin   ethcommon.Address
	relayer ethcommon.Address
	router  ethcommon.Address
	vault   ethcommon.Address
}

func newTestLedgerEnv(t *testing.T) *testLedgerEnv {
	sqlDB := getMemoryDB()
	t.Cleanup(func() { sqlDB.Close() })

	db, err := NewBatchDB(sqlDB)
	if err != nil {
		t.Fatal(err)
	}

	auth := common.NewSimAuthorizer()
	admin := common.RandAddress()
	relayer := common.RandAddress()
	auth.Grant(admin, common.RoleAdmin)
	auth.Grant(relayer, common.RoleRelayer)

	env := &testLedgerEnv{
		ledger:  NewLedger(db, auth),
		admin:   admin,
		relayer: relayer,
		router:  common.RandAddress(),
		vault:   common.RandAddress(),
	}
	if err := env.ledger.BindRouter(admin, env.router); err != nil {
		t.Fatal(err)
	}
	return env
}

func TestBatchLifecycle(t *testing.T) {
	env := newTestLedgerEnv(t)

	id, err := env.ledger.CreateNewBatch(env.relayer, env.vault)
	assert.NoError(t, err)

	b, ok, err := env.ledger.GetBatch(id)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, BatchStatusOpen, b.Status)
	assert.Equal(t, uint64(1), b.Seq)

	// only one open batch per vault
	_, err = env.ledger.CreateNewBatch(env.relayer, env.vault)
	assert.ErrorIs(t, err, ErrBatchStillOpen)

	// close, no chaining
	_, err = env.ledger.CloseBatch(env.relayer, env.vault, id, false)
	assert.NoError(t, err)

	b, _, err = env.ledger.GetBatch(id)
	assert.NoError(t, err)
	assert.Equal(t, BatchStatusClosed, b.Status)

	// closing twice fails
	_, err = env.ledger.CloseBatch(env.relayer, env.vault, id, false)
	assert.ErrorIs(t, err, ErrBatchNotOpen)

	// settle from the bound router
	err = env.ledger.SettleBatch(env.router, id, big.NewInt(1_000_000), big.NewInt(5_000_000))
	assert.NoError(t, err)

	b, _, err = env.ledger.GetBatch(id)
	assert.NoError(t, err)
	assert.True(t, b.IsSettled())
	assert.Equal(t, big.NewInt(1_000_000), b.SharePrice)
	assert.Equal(t, big.NewInt(5_000_000), b.SettledTotalAssets)
	assert.NotZero(t, b.SettledAt)
}

func TestCloseBatchChainsNext(t *testing.T) {
	env := newTestLedgerEnv(t)

	first, err := env.ledger.CreateNewBatch(env.relayer, env.vault)
	assert.NoError(t, err)

	second, err := env.ledger.CloseBatch(env.relayer, env.vault, first, true)
	assert.NoError(t, err)
	assert.NotEqual(t, first, second)

	current, err := env.ledger.CurrentBatch(env.vault)
	assert.NoError(t, err)
	assert.Equal(t, second, current)

	b, _, err := env.ledger.GetBatch(second)
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), b.Seq)
}

func TestSettleOnlyByRouter(t *testing.T) {
	env := newTestLedgerEnv(t)

	id, err := env.ledger.CreateNewBatch(env.relayer, env.vault)
	assert.NoError(t, err)
	_, err = env.ledger.CloseBatch(env.relayer, env.vault, id, false)
	assert.NoError(t, err)

	// the relayer and the admin are rejected like anyone else
	err = env.ledger.SettleBatch(env.relayer, id, big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotRouter)
	err = env.ledger.SettleBatch(env.admin, id, big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotRouter)

	assert.NoError(t, env.ledger.SettleBatch(env.router, id, big.NewInt(1), big.NewInt(1)))

	// settling twice fails, the batch is no longer closed
	err = env.ledger.SettleBatch(env.router, id, big.NewInt(2), big.NewInt(2))
	assert.ErrorIs(t, err, ErrBatchNotClosed)
}

func TestSettleOpenBatchRejected(t *testing.T) {
	env := newTestLedgerEnv(t)

	id, err := env.ledger.CreateNewBatch(env.relayer, env.vault)
	assert.NoError(t, err)

	err = env.ledger.SettleBatch(env.router, id, big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrBatchNotClosed)
}

func TestBindRouterOnce(t *testing.T) {
	sqlDB := getMemoryDB()
	defer sqlDB.Close()

	db, err := NewBatchDB(sqlDB)
	if err != nil {
		t.Fatal(err)
	}

	auth := common.NewSimAuthorizer()
	admin := common.RandAddress()
	auth.Grant(admin, common.RoleAdmin)

	ledger := NewLedger(db, auth)

	// settle before binding
	err = ledger.SettleBatch(common.RandAddress(), ethcommon.Hash{}, big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrRouterNotBound)

	assert.ErrorIs(t, ledger.BindRouter(common.RandAddress(), common.RandAddress()), common.ErrWrongRole)
	assert.NoError(t, ledger.BindRouter(admin, common.RandAddress()))
	assert.ErrorIs(t, ledger.BindRouter(admin, common.RandAddress()), ErrRouterAlreadyBound)
}

func TestRelayerOnlyBatchOps(t *testing.T) {
	env := newTestLedgerEnv(t)
	stranger := common.RandAddress()

	_, err := env.ledger.CreateNewBatch(stranger, env.vault)
	assert.ErrorIs(t, err, common.ErrWrongRole)

	id, err := env.ledger.CreateNewBatch(env.relayer, env.vault)
	assert.NoError(t, err)

	_, err = env.ledger.CloseBatch(stranger, env.vault, id, false)
	assert.ErrorIs(t, err, common.ErrWrongRole)
}

func TestLastSettled(t *testing.T) {
	env := newTestLedgerEnv(t)

	_, ok, err := env.ledger.LastSettled(env.vault)
	assert.NoError(t, err)
	assert.False(t, ok)

	first, err := env.ledger.CreateNewBatch(env.relayer, env.vault)
	assert.NoError(t, err)
	second, err := env.ledger.CloseBatch(env.relayer, env.vault, first, true)
	assert.NoError(t, err)
	assert.NoError(t, env.ledger.SettleBatch(env.router, first, big.NewInt(10), big.NewInt(100)))

	last, ok, err := env.ledger.LastSettled(env.vault)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, first, last.Id)

	_, err = env.ledger.CloseBatch(env.relayer, env.vault, second, false)
	assert.NoError(t, err)
	assert.NoError(t, env.ledger.SettleBatch(env.router, second, big.NewInt(11), big.NewInt(200)))

	last, ok, err = env.ledger.LastSettled(env.vault)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, second, last.Id)
	assert.Equal(t, big.NewInt(200), last.SettledTotalAssets)
}
