package minter

import (
	"database/sql"
	"math/big"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	logger "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/turingcapitalgroup/kam-go/adapter"
	"github.com/turingcapitalgroup/kam-go/batch"
	"github.com/turingcapitalgroup/kam-go/common"
	"github.com/turingcapitalgroup/kam-go/ktoken"
	"github.com/turingcapitalgroup/kam-go/receiver"
	"github.com/turingcapitalgroup/kam-go/registry"
	"github.com/turingcapitalgroup/kam-go/request"
	"github.com/turingcapitalgroup/kam-go/router"
)

const (
	testDecimals      = 6
	testMintCeiling   = 1000
	testRedeemCeiling = 600
)

func getMemoryDB() *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		logger.Fatal(err)
	}
	return db
}

type testMinterEnv struct {
	auth      *common.SimAuthorizer
	reg       *registry.Registry
	batches   *batch.Ledger
	tokens    *ktoken.SimLedger
	ad        *adapter.SimAdapter
	rt        *router.Router
	minter    *Minter
	receivers *receiver.Factory

	admin       ethcommon.Address
	relayer     ethcommon.Address
	institution ethcommon.Address

	asset      ethcommon.Address
	synthetic  ethcommon.Address
	minterAddr ethcommon.Address

	nowSec int64
}

func newTestMinterEnv(t *testing.T) *testMinterEnv {
	sqlDB := getMemoryDB()
	t.Cleanup(func() { sqlDB.Close() })

	env := &testMinterEnv{
		auth:        common.NewSimAuthorizer(),
		tokens:      ktoken.NewSimLedger(),
		admin:       common.RandAddress(),
		relayer:     common.RandAddress(),
		institution: common.RandAddress(),
		asset:       common.RandAddress(),
		minterAddr:  common.RandAddress(),
		nowSec:      1700000000,
	}
	env.auth.Grant(env.admin, common.RoleAdmin)
	env.auth.Grant(env.relayer, common.RoleRelayer)
	env.auth.Grant(env.institution, common.RoleInstitution)

	regDb, err := registry.NewRegistryDB(sqlDB)
	if err != nil {
		t.Fatal(err)
	}
	env.reg = registry.New(regDb, env.auth)

	env.synthetic, err = env.reg.RegisterAsset(
		env.admin, "USD Coin", "kUSD", env.asset, testDecimals,
		big.NewInt(testMintCeiling), big.NewInt(testRedeemCeiling),
		common.RandAddress(),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.reg.RegisterVault(env.admin, env.minterAddr, registry.VaultTypeMinter, env.asset); err != nil {
		t.Fatal(err)
	}

	env.ad = adapter.NewSimAdapter()
	adapters := adapter.NewSimResolver()
	adapters.Bind(env.minterAddr, env.asset, env.ad)
	if err := env.reg.RegisterAdapter(env.admin, env.minterAddr, env.asset, common.RandAddress()); err != nil {
		t.Fatal(err)
	}

	now := func() time.Time { return time.Unix(env.nowSec, 0) }

	batchDb, err := batch.NewBatchDB(sqlDB)
	if err != nil {
		t.Fatal(err)
	}
	env.batches = batch.NewLedger(batchDb, env.auth).WithClock(now)

	routerDb, err := router.NewRouterDB(sqlDB)
	if err != nil {
		t.Fatal(err)
	}
	requestDb, err := request.NewRequestDB(sqlDB)
	if err != nil {
		t.Fatal(err)
	}

	env.receivers = receiver.NewFactory(env.tokens)

	routerAddr := common.RandAddress()
	env.rt = router.New(router.Config{
		Addr:     routerAddr,
		Cooldown: time.Hour,
		Now:      now,
	}, routerDb, env.reg, env.batches, adapters, env.tokens, env.receivers)

	if err := env.batches.BindRouter(env.admin, routerAddr); err != nil {
		t.Fatal(err)
	}

	env.minter = New(Config{
		Addr:  env.minterAddr,
		Asset: env.asset,
	}, env.reg, env.batches, env.rt, requestDb, env.tokens, env.receivers)
	env.minter.now = now

	return env
}

func (env *testMinterEnv) advance(d time.Duration) {
	env.nowSec += int64(d / time.Second)
}

func (env *testMinterEnv) openBatch(t *testing.T) ethcommon.Hash {
	id, err := env.batches.CreateNewBatch(env.relayer, env.minterAddr)
	assert.NoError(t, err)
	return id
}

func (env *testMinterEnv) settle(t *testing.T, batchId ethcommon.Hash, totalAssets int64) {
	_, err := env.batches.CloseBatch(env.relayer, env.minterAddr, batchId, false)
	assert.NoError(t, err)

	id, err := env.rt.ProposeSettleBatch(env.relayer, env.asset, env.minterAddr, batchId, big.NewInt(totalAssets), nil, nil)
	assert.NoError(t, err)

	env.advance(time.Hour + time.Second)
	assert.NoError(t, env.rt.ExecuteSettleBatch(common.RandAddress(), id))
}

func (env *testMinterEnv) fundedMint(t *testing.T, amount int64) {
	assert.NoError(t, env.tokens.Mint(env.asset, env.institution, big.NewInt(amount)))
	assert.NoError(t, env.minter.Mint(env.institution, env.institution, big.NewInt(amount)))
}

func TestMintIssuesOneToOne(t *testing.T) {
	env := newTestMinterEnv(t)
	batchId := env.openBatch(t)

	env.fundedMint(t, 500)

	// synthetic tokens issued immediately, 1:1
	assert.Equal(t, big.NewInt(500), env.tokens.BalanceOf(env.synthetic, env.institution))
	assert.Equal(t, big.NewInt(500), env.tokens.TotalSupply(env.synthetic))

	// underlying forwarded into the adapter
	assert.Equal(t, big.NewInt(500), env.ad.TotalAssets())
	assert.Equal(t, 0, env.tokens.BalanceOf(env.asset, env.institution).Sign())

	bal, err := env.rt.GetBatchBalances(env.minterAddr, batchId)
	assert.NoError(t, err)
	assert.Equal(t, big.NewInt(500), bal.Deposited)
}

func TestMintInstitutionOnly(t *testing.T) {
	env := newTestMinterEnv(t)
	env.openBatch(t)

	stranger := common.RandAddress()
	assert.NoError(t, env.tokens.Mint(env.asset, stranger, big.NewInt(100)))

	err := env.minter.Mint(stranger, stranger, big.NewInt(100))
	assert.ErrorIs(t, err, common.ErrWrongRole)
}

func TestMintCeilingPerBatch(t *testing.T) {
	env := newTestMinterEnv(t)
	first := env.openBatch(t)

	env.fundedMint(t, testMintCeiling)

	// the batch window is exhausted
	assert.NoError(t, env.tokens.Mint(env.asset, env.institution, big.NewInt(1)))
	err := env.minter.Mint(env.institution, env.institution, big.NewInt(1))
	assert.ErrorIs(t, err, ErrMintCeilingExceeded)

	// the next batch starts a fresh window
	env.settle(t, first, testMintCeiling)
	env.openBatch(t)
	assert.NoError(t, env.minter.Mint(env.institution, env.institution, big.NewInt(1)))
}

func TestBurnLifecycle(t *testing.T) {
	env := newTestMinterEnv(t)
	batchId := env.openBatch(t)
	env.fundedMint(t, 1000)

	recipient := common.RandAddress()
	reqId, err := env.minter.RequestBurn(env.institution, recipient, big.NewInt(400))
	assert.NoError(t, err)

	// synthetic tokens escrowed at the minter
	assert.Equal(t, big.NewInt(600), env.tokens.BalanceOf(env.synthetic, env.institution))
	assert.Equal(t, big.NewInt(400), env.tokens.BalanceOf(env.synthetic, env.minterAddr))

	// burning before settlement fails
	_, err = env.minter.Burn(recipient, reqId)
	assert.ErrorIs(t, err, ErrBatchNotSettled)

	env.settle(t, batchId, 1000)

	// only the beneficiary may claim
	_, err = env.minter.Burn(env.institution, reqId)
	assert.ErrorIs(t, err, request.ErrNotBeneficiary)

	amount, err := env.minter.Burn(recipient, reqId)
	assert.NoError(t, err)
	assert.Equal(t, big.NewInt(400), amount)

	// underlying paid out 1:1, escrowed synthetics destroyed
	assert.Equal(t, big.NewInt(400), env.tokens.BalanceOf(env.asset, recipient))
	assert.Equal(t, big.NewInt(600), env.tokens.TotalSupply(env.synthetic))
	assert.Equal(t, big.NewInt(600), env.ad.TotalAssets())

	// the claim is one-shot
	_, err = env.minter.Burn(recipient, reqId)
	assert.ErrorIs(t, err, request.ErrRequestNotPending)
}

func TestBurnRetriesAfterReceiverShortfall(t *testing.T) {
	env := newTestMinterEnv(t)
	batchId := env.openBatch(t)
	env.fundedMint(t, 1000)

	reqId, err := env.minter.RequestBurn(env.institution, env.institution, big.NewInt(400))
	assert.NoError(t, err)
	env.settle(t, batchId, 1000)

	// drain the escrow out from under the claim
	br, ok := env.receivers.ByBatch(batchId)
	assert.True(t, ok)
	assert.NoError(t, br.PullAssets(env.minterAddr, common.RandAddress(), big.NewInt(400), batchId))

	_, err = env.minter.Burn(env.institution, reqId)
	assert.ErrorIs(t, err, ktoken.ErrInsufficientBalance)

	// the request stays pending and the escrowed synthetics stay intact
	req, ok, err := env.minter.GetRequest(reqId)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, request.StatusPending, req.Status)
	assert.Equal(t, big.NewInt(400), env.tokens.BalanceOf(env.synthetic, env.minterAddr))
	assert.Equal(t, big.NewInt(1000), env.tokens.TotalSupply(env.synthetic))

	// refill the escrow, the retry pays out
	assert.NoError(t, env.tokens.Mint(env.asset, br.Account(), big.NewInt(400)))
	amount, err := env.minter.Burn(env.institution, reqId)
	assert.NoError(t, err)
	assert.Equal(t, big.NewInt(400), amount)
	assert.Equal(t, big.NewInt(600), env.tokens.TotalSupply(env.synthetic))
}

func TestRedeemCeilingPerBatch(t *testing.T) {
	env := newTestMinterEnv(t)
	env.openBatch(t)
	env.fundedMint(t, 1000)

	_, err := env.minter.RequestBurn(env.institution, env.institution, big.NewInt(testRedeemCeiling))
	assert.NoError(t, err)

	_, err = env.minter.RequestBurn(env.institution, env.institution, big.NewInt(1))
	assert.ErrorIs(t, err, ErrRedeemCeilingExceeded)
}

func TestRequestBurnSolvency(t *testing.T) {
	env := newTestMinterEnv(t)
	env.openBatch(t)
	env.fundedMint(t, 100)

	// the strategy lost value, redemptions cannot exceed real holdings
	env.ad.SetTotalAssets(big.NewInt(50))

	_, err := env.minter.RequestBurn(env.institution, env.institution, big.NewInt(100))
	assert.ErrorIs(t, err, router.ErrInsufficientVirtualBalance)
}

func TestCancelBurnRequest(t *testing.T) {
	env := newTestMinterEnv(t)
	batchId := env.openBatch(t)
	env.fundedMint(t, 1000)

	reqId, err := env.minter.RequestBurn(env.institution, env.institution, big.NewInt(400))
	assert.NoError(t, err)

	// only the requester may cancel
	assert.ErrorIs(t, env.minter.CancelBurnRequest(common.RandAddress(), reqId), request.ErrNotRequester)

	assert.NoError(t, env.minter.CancelBurnRequest(env.institution, reqId))

	// escrowed synthetics returned, counters rolled back
	assert.Equal(t, big.NewInt(1000), env.tokens.BalanceOf(env.synthetic, env.institution))
	bal, err := env.rt.GetBatchBalances(env.minterAddr, batchId)
	assert.NoError(t, err)
	assert.Equal(t, 0, bal.Requested.Sign())

	// the freed window is usable again
	reqId, err = env.minter.RequestBurn(env.institution, env.institution, big.NewInt(testRedeemCeiling))
	assert.NoError(t, err)

	// once the batch closes the request is locked in
	_, err = env.batches.CloseBatch(env.relayer, env.minterAddr, batchId, false)
	assert.NoError(t, err)
	assert.ErrorIs(t, env.minter.CancelBurnRequest(env.institution, reqId), batch.ErrBatchNotOpen)
}

func TestMintArgumentChecks(t *testing.T) {
	env := newTestMinterEnv(t)
	env.openBatch(t)

	err := env.minter.Mint(env.institution, ethcommon.Address{}, big.NewInt(1))
	assert.ErrorIs(t, err, ErrZeroAddress)

	err = env.minter.Mint(env.institution, env.institution, big.NewInt(0))
	assert.ErrorIs(t, err, ErrZeroAmount)

	// insufficient underlying surfaces from the token ledger
	err = env.minter.Mint(env.institution, env.institution, big.NewInt(1))
	assert.ErrorIs(t, err, ktoken.ErrInsufficientBalance)
}
