// Registry is the process-wide directory of supported assets, vaults and
// per-(vault, asset) adapter bindings. It holds no batching logic; every
// other component consults it.

package registry

import (
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/turingcapitalgroup/kam-go/common"
)

type Registry struct {
	mu   sync.Mutex
	db   *RegistryDB
	auth common.AuthorizationPort
}

func New(db *RegistryDB, auth common.AuthorizationPort) *Registry {
	return &Registry{db: db, auth: auth}
}

// RegisterAsset registers an underlying asset together with the ceilings
// the minter enforces per batch. The synthetic token address is derived
// from the asset and symbol; it stands in for the token deployment.
func (r *Registry) RegisterAsset(
	caller ethcommon.Address,
	name, symbol string,
	asset ethcommon.Address,
	decimals uint8,
	mintCeiling, redeemCeiling *big.Int,
	feeRecipient ethcommon.Address,
) (ethcommon.Address, error) {
	if !r.auth.HasRole(caller, common.RoleAdmin) {
		return ethcommon.Address{}, common.ErrWrongRole
	}
	if asset == (ethcommon.Address{}) || feeRecipient == (ethcommon.Address{}) {
		return ethcommon.Address{}, ErrZeroAddress
	}
	if name == "" || symbol == "" {
		return ethcommon.Address{}, ErrEmptyString
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ok, err := r.db.HasAsset(asset)
	if err != nil {
		return ethcommon.Address{}, err
	}
	if ok {
		return ethcommon.Address{}, ErrAlreadyRegistered
	}

	token := common.DeriveTokenAddress(asset, symbol)
	if err := r.db.InsertAsset(&Asset{
		Asset:          asset,
		Name:           name,
		Symbol:         symbol,
		Decimals:       decimals,
		SyntheticToken: token,
		MintCeiling:    common.BigIntClone(mintCeiling),
		RedeemCeiling:  common.BigIntClone(redeemCeiling),
		FeeRecipient:   feeRecipient,
	}); err != nil {
		return ethcommon.Address{}, err
	}

	logger.WithFields(logger.Fields{
		"asset":  asset.Hex(),
		"symbol": symbol,
		"token":  token.Hex(),
	}).Info("asset registered")

	return token, nil
}

func (r *Registry) RegisterVault(caller, vault ethcommon.Address, vtype VaultType, asset ethcommon.Address) error {
	if !r.auth.HasRole(caller, common.RoleAdmin) {
		return common.ErrWrongRole
	}
	if vault == (ethcommon.Address{}) {
		return ErrZeroAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ok, err := r.db.HasAsset(asset)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAssetNotSupported
	}

	if _, ok, err = r.db.GetVault(vault); err != nil {
		return err
	} else if ok {
		return ErrVaultAlreadyRegistered
	}

	if _, ok, err = r.db.GetVaultByType(asset, vtype); err != nil {
		return err
	} else if ok {
		return ErrVaultTypeAssigned
	}

	if err := r.db.InsertVault(&Vault{Vault: vault, Type: vtype, Asset: asset}); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"vault": vault.Hex(),
		"type":  string(vtype),
		"asset": asset.Hex(),
	}).Info("vault registered")

	return nil
}

// RemoveVault unregisters a vault and cascades removal of its adapter
// bindings.
func (r *Registry) RemoveVault(caller, vault ethcommon.Address) error {
	if !r.auth.HasRole(caller, common.RoleAdmin) {
		return common.ErrWrongRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok, err := r.db.GetVault(vault); err != nil {
		return err
	} else if !ok {
		return ErrVaultNotRegistered
	}

	if err := r.db.DeleteVault(vault); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{"vault": vault.Hex()}).Info("vault removed")
	return nil
}

// RemoveAsset drops an asset that no vault references anymore.
func (r *Registry) RemoveAsset(caller, asset ethcommon.Address) error {
	if !r.auth.HasRole(caller, common.RoleAdmin) {
		return common.ErrWrongRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ok, err := r.db.HasAsset(asset)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAssetNotSupported
	}

	n, err := r.db.CountVaultsByAsset(asset)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrVaultTypeAssigned
	}

	return r.db.DeleteAsset(asset)
}

func (r *Registry) RegisterAdapter(caller, vault, asset, adapterAddr ethcommon.Address) error {
	if !r.auth.HasRole(caller, common.RoleAdmin) {
		return common.ErrWrongRole
	}
	if adapterAddr == (ethcommon.Address{}) {
		return ErrZeroAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok, err := r.db.GetVault(vault)
	if err != nil {
		return err
	}
	if !ok || v.Asset != asset {
		return ErrVaultAssetUnsupported
	}

	if _, ok, err = r.db.GetAdapter(vault, asset); err != nil {
		return err
	} else if ok {
		return ErrAdapterAlreadySet
	}

	if err := r.db.InsertAdapter(vault, asset, adapterAddr); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"vault":   vault.Hex(),
		"asset":   asset.Hex(),
		"adapter": adapterAddr.Hex(),
	}).Info("adapter registered")

	return nil
}

func (r *Registry) RemoveAdapter(caller, vault, asset ethcommon.Address) error {
	if !r.auth.HasRole(caller, common.RoleAdmin) {
		return common.ErrWrongRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok, err := r.db.GetAdapter(vault, asset); err != nil {
		return err
	} else if !ok {
		return ErrAdapterNotSet
	}

	return r.db.DeleteAdapter(vault, asset)
}

// SetCeilings updates the per-batch mint/redeem ceilings of an asset.
func (r *Registry) SetCeilings(caller, asset ethcommon.Address, mintCeiling, redeemCeiling *big.Int) error {
	if !r.auth.HasRole(caller, common.RoleAdmin) {
		return common.ErrWrongRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ok, err := r.db.HasAsset(asset)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAssetNotSupported
	}

	return r.db.UpdateCeilings(asset, mintCeiling.Text(10), redeemCeiling.Text(10))
}

// SetHurdleRate may be adjusted by the admin or the relayer.
func (r *Registry) SetHurdleRate(caller, asset ethcommon.Address, hurdleRateBps uint16) error {
	if !r.auth.HasRole(caller, common.RoleAdmin) && !r.auth.HasRole(caller, common.RoleRelayer) {
		return common.ErrWrongRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ok, err := r.db.HasAsset(asset)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAssetNotSupported
	}

	return r.db.UpdateHurdleRate(asset, hurdleRateBps)
}

// ---- read surface ----

func (r *Registry) GetAsset(asset ethcommon.Address) (*Asset, bool, error) {
	return r.db.GetAsset(asset)
}

func (r *Registry) GetVault(vault ethcommon.Address) (*Vault, bool, error) {
	return r.db.GetVault(vault)
}

func (r *Registry) VaultByType(asset ethcommon.Address, vtype VaultType) (*Vault, bool, error) {
	return r.db.GetVaultByType(asset, vtype)
}

// Minter returns the address of the minter-slot vault for the asset.
func (r *Registry) Minter(asset ethcommon.Address) (ethcommon.Address, bool, error) {
	v, ok, err := r.db.GetVaultByType(asset, VaultTypeMinter)
	if err != nil || !ok {
		return ethcommon.Address{}, ok, err
	}
	return v.Vault, true, nil
}

// IsStakingVault reports whether the address is a registered non-minter
// vault.
func (r *Registry) IsStakingVault(vault ethcommon.Address) (bool, error) {
	v, ok, err := r.db.GetVault(vault)
	if err != nil || !ok {
		return false, err
	}
	return v.Type != VaultTypeMinter, nil
}

func (r *Registry) GetAdapter(vault, asset ethcommon.Address) (ethcommon.Address, bool, error) {
	return r.db.GetAdapter(vault, asset)
}

// IsProtocolToken reports whether the address is a registered asset or one
// of the synthetic tokens. Rescue operations refuse both.
func (r *Registry) IsProtocolToken(token ethcommon.Address) (bool, error) {
	ok, err := r.db.HasAsset(token)
	if err != nil || ok {
		return ok, err
	}
	return r.db.HasSyntheticToken(token)
}

func (r *Registry) Authorizer() common.AuthorizationPort {
	return r.auth
}
