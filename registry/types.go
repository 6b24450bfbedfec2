package registry

import (
	"errors"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// VaultType tags the role a vault plays for an asset. At most one vault per
// (asset, type) pair may hold the slot.
type VaultType string

const (
	VaultTypeMinter VaultType = "minter"
	VaultTypeDN     VaultType = "dn"
	VaultTypeAlpha  VaultType = "alpha"
	VaultTypeBeta   VaultType = "beta"
	VaultTypeGamma  VaultType = "gamma"
)

var (
	ErrZeroAddress            = errors.New("address must not be zero")
	ErrEmptyString            = errors.New("name and symbol must not be empty")
	ErrAlreadyRegistered      = errors.New("asset already registered")
	ErrAssetNotSupported      = errors.New("asset not registered")
	ErrVaultAlreadyRegistered = errors.New("vault already registered")
	ErrVaultNotRegistered     = errors.New("vault not registered")
	ErrVaultTypeAssigned      = errors.New("another vault already holds this asset/type slot")
	ErrVaultAssetUnsupported  = errors.New("vault does not support this asset")
	ErrAdapterAlreadySet      = errors.New("adapter already set for vault and asset")
	ErrAdapterNotSet          = errors.New("no adapter set for vault and asset")
)

// Asset is a registered underlying asset. An asset is either fully
// registered (synthetic token, ceilings, decimals) or absent; there are no
// partial states.
type Asset struct {
	Asset          ethcommon.Address
	Name           string
	Symbol         string
	Decimals       uint8
	SyntheticToken ethcommon.Address
	MintCeiling    *big.Int // per-batch institutional mint ceiling
	RedeemCeiling  *big.Int // per-batch institutional redeem ceiling
	HurdleRateBps  uint16   // performance fee hurdle, basis points
	FeeRecipient   ethcommon.Address
}

type Vault struct {
	Vault ethcommon.Address
	Type  VaultType
	Asset ethcommon.Address
}
