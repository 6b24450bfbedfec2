package registry

import (
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/turingcapitalgroup/kam-go/common"
)

type testRegistryEnv struct {
	reg   *Registry
	auth  *common.SimAuthorizer
	admin ethcommon.Address
}

func newTestRegistryEnv(t *testing.T) *testRegistryEnv {
	sqlDB := getMemoryDB()
	t.Cleanup(func() { sqlDB.Close() })

	db, err := NewRegistryDB(sqlDB)
	if err != nil {
		t.Fatal(err)
	}

	auth := common.NewSimAuthorizer()
	admin := common.RandAddress()
	auth.Grant(admin, common.RoleAdmin)

	return &testRegistryEnv{
		reg:   New(db, auth),
		auth:  auth,
		admin: admin,
	}
}

func (env *testRegistryEnv) registerAsset(t *testing.T) *Asset {
	asset := common.RandAddress()
	token, err := env.reg.RegisterAsset(
		env.admin, "USD Coin", "kUSD", asset, 6,
		big.NewInt(1_000_000_000), big.NewInt(1_000_000_000),
		common.RandAddress(),
	)
	assert.NoError(t, err)
	assert.NotEqual(t, ethcommon.Address{}, token)

	a, ok, err := env.reg.GetAsset(asset)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, token, a.SyntheticToken)
	return a
}

func TestRegisterAsset(t *testing.T) {
	env := newTestRegistryEnv(t)
	a := env.registerAsset(t)

	assert.Equal(t, uint8(6), a.Decimals)
	assert.Equal(t, "kUSD", a.Symbol)

	// duplicate registration rejected
	_, err := env.reg.RegisterAsset(
		env.admin, "USD Coin", "kUSD", a.Asset, 6,
		big.NewInt(1), big.NewInt(1), common.RandAddress(),
	)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	// non-admin rejected
	_, err = env.reg.RegisterAsset(
		common.RandAddress(), "Tether", "kUSDT", common.RandAddress(), 6,
		big.NewInt(1), big.NewInt(1), common.RandAddress(),
	)
	assert.ErrorIs(t, err, common.ErrWrongRole)
}

func TestRegisterVaultSlots(t *testing.T) {
	env := newTestRegistryEnv(t)
	a := env.registerAsset(t)

	minterAddr := common.RandAddress()
	dnAddr := common.RandAddress()

	assert.NoError(t, env.reg.RegisterVault(env.admin, minterAddr, VaultTypeMinter, a.Asset))
	assert.NoError(t, env.reg.RegisterVault(env.admin, dnAddr, VaultTypeDN, a.Asset))

	// one vault per (asset, type) slot
	err := env.reg.RegisterVault(env.admin, common.RandAddress(), VaultTypeMinter, a.Asset)
	assert.ErrorIs(t, err, ErrVaultTypeAssigned)

	// same vault twice rejected
	err = env.reg.RegisterVault(env.admin, dnAddr, VaultTypeAlpha, a.Asset)
	assert.ErrorIs(t, err, ErrVaultAlreadyRegistered)

	// unregistered asset rejected
	err = env.reg.RegisterVault(env.admin, common.RandAddress(), VaultTypeAlpha, common.RandAddress())
	assert.ErrorIs(t, err, ErrAssetNotSupported)

	m, ok, err := env.reg.Minter(a.Asset)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, minterAddr, m)

	staking, err := env.reg.IsStakingVault(dnAddr)
	assert.NoError(t, err)
	assert.True(t, staking)

	staking, err = env.reg.IsStakingVault(minterAddr)
	assert.NoError(t, err)
	assert.False(t, staking)
}

func TestRegisterAdapter(t *testing.T) {
	env := newTestRegistryEnv(t)
	a := env.registerAsset(t)

	vaultAddr := common.RandAddress()
	assert.NoError(t, env.reg.RegisterVault(env.admin, vaultAddr, VaultTypeDN, a.Asset))

	adapterAddr := common.RandAddress()
	assert.NoError(t, env.reg.RegisterAdapter(env.admin, vaultAddr, a.Asset, adapterAddr))

	got, ok, err := env.reg.GetAdapter(vaultAddr, a.Asset)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, adapterAddr, got)

	// second binding rejected
	err = env.reg.RegisterAdapter(env.admin, vaultAddr, a.Asset, common.RandAddress())
	assert.ErrorIs(t, err, ErrAdapterAlreadySet)

	// adapter for a vault that doesn't hold the asset
	err = env.reg.RegisterAdapter(env.admin, common.RandAddress(), a.Asset, common.RandAddress())
	assert.ErrorIs(t, err, ErrVaultAssetUnsupported)

	assert.NoError(t, env.reg.RemoveAdapter(env.admin, vaultAddr, a.Asset))
	_, ok, err = env.reg.GetAdapter(vaultAddr, a.Asset)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveVaultCascadesAdapters(t *testing.T) {
	env := newTestRegistryEnv(t)
	a := env.registerAsset(t)

	vaultAddr := common.RandAddress()
	assert.NoError(t, env.reg.RegisterVault(env.admin, vaultAddr, VaultTypeAlpha, a.Asset))
	assert.NoError(t, env.reg.RegisterAdapter(env.admin, vaultAddr, a.Asset, common.RandAddress()))

	assert.NoError(t, env.reg.RemoveVault(env.admin, vaultAddr))

	_, ok, err := env.reg.GetVault(vaultAddr)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = env.reg.GetAdapter(vaultAddr, a.Asset)
	assert.NoError(t, err)
	assert.False(t, ok)

	// slot is free again
	assert.NoError(t, env.reg.RegisterVault(env.admin, common.RandAddress(), VaultTypeAlpha, a.Asset))
}

func TestRemoveAssetBlockedByVaults(t *testing.T) {
	env := newTestRegistryEnv(t)
	a := env.registerAsset(t)

	vaultAddr := common.RandAddress()
	assert.NoError(t, env.reg.RegisterVault(env.admin, vaultAddr, VaultTypeDN, a.Asset))

	assert.ErrorIs(t, env.reg.RemoveAsset(env.admin, a.Asset), ErrVaultTypeAssigned)

	assert.NoError(t, env.reg.RemoveVault(env.admin, vaultAddr))
	assert.NoError(t, env.reg.RemoveAsset(env.admin, a.Asset))

	_, ok, err := env.reg.GetAsset(a.Asset)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestSetCeilingsAndHurdleRate(t *testing.T) {
	env := newTestRegistryEnv(t)
	a := env.registerAsset(t)

	assert.NoError(t, env.reg.SetCeilings(env.admin, a.Asset, big.NewInt(500), big.NewInt(300)))

	got, _, err := env.reg.GetAsset(a.Asset)
	assert.NoError(t, err)
	assert.Equal(t, big.NewInt(500), got.MintCeiling)
	assert.Equal(t, big.NewInt(300), got.RedeemCeiling)

	// hurdle rate: admin or relayer
	relayer := common.RandAddress()
	env.auth.Grant(relayer, common.RoleRelayer)
	assert.NoError(t, env.reg.SetHurdleRate(relayer, a.Asset, 250))

	got, _, err = env.reg.GetAsset(a.Asset)
	assert.NoError(t, err)
	assert.Equal(t, uint16(250), got.HurdleRateBps)

	assert.ErrorIs(t, env.reg.SetHurdleRate(common.RandAddress(), a.Asset, 100), common.ErrWrongRole)
}

func TestIsProtocolToken(t *testing.T) {
	env := newTestRegistryEnv(t)
	a := env.registerAsset(t)

	ok, err := env.reg.IsProtocolToken(a.Asset)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.reg.IsProtocolToken(a.SyntheticToken)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.reg.IsProtocolToken(common.RandAddress())
	assert.NoError(t, err)
	assert.False(t, ok)
}
