package common

import (
	"encoding/binary"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Namespace tags keep ids derived for different record kinds from ever
// colliding, even when the remaining fields happen to match.
var (
	nsBatch    = []byte("kam/batch")
	nsProposal = []byte("kam/proposal")
	nsRequest  = []byte("kam/request")
	nsToken    = []byte("kam/token")
	nsReceiver = []byte("kam/receiver")
)

func uint64Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func int64Bytes(v int64) []byte {
	return uint64Bytes(uint64(v))
}

// DeriveBatchId computes the id of a batch from its owning vault, the
// vault's monotonic batch counter and the creation timestamp. The counter
// alone is unique per vault; vault + timestamp make the id globally unique.
func DeriveBatchId(vault ethcommon.Address, seq uint64, createdAt int64) ethcommon.Hash {
	return crypto.Keccak256Hash(nsBatch, vault.Bytes(), uint64Bytes(seq), int64Bytes(createdAt))
}

// DeriveProposalId computes a settlement proposal id. The timestamp keeps
// concurrent proposals for different batches of the same vault distinct.
func DeriveProposalId(asset, vault ethcommon.Address, batchId ethcommon.Hash, proposedAt int64) ethcommon.Hash {
	return crypto.Keccak256Hash(nsProposal, asset.Bytes(), vault.Bytes(), batchId.Bytes(), int64Bytes(proposedAt))
}

// DeriveRequestId computes a stake/unstake/burn request id.
func DeriveRequestId(kind string, user, vault ethcommon.Address, amount *big.Int, seq uint64, createdAt int64) ethcommon.Hash {
	amt := BigInt2Bytes32(amount)
	return crypto.Keccak256Hash(
		nsRequest,
		[]byte(kind),
		user.Bytes(),
		vault.Bytes(),
		amt[:],
		uint64Bytes(seq),
		int64Bytes(createdAt),
	)
}

// DeriveTokenAddress derives the address of the synthetic token registered
// for an asset. It stands in for the token deployment the on-chain system
// performs; the address only has to be unique and reproducible.
func DeriveTokenAddress(asset ethcommon.Address, symbol string) ethcommon.Address {
	h := crypto.Keccak256Hash(nsToken, asset.Bytes(), []byte(symbol))
	return ethcommon.BytesToAddress(h[12:])
}

// DeriveShareTokenAddress derives the share token address of a staking
// vault. The minter-slot vault uses the asset's synthetic token instead.
func DeriveShareTokenAddress(vault ethcommon.Address) ethcommon.Address {
	h := crypto.Keccak256Hash(nsToken, vault.Bytes(), []byte("shares"))
	return ethcommon.BytesToAddress(h[12:])
}

// DeriveReceiverAddress derives the escrow account address of the batch
// receiver that custodies one batch's redemption-bound assets.
func DeriveReceiverAddress(batchId ethcommon.Hash, asset ethcommon.Address) ethcommon.Address {
	h := crypto.Keccak256Hash(nsReceiver, batchId.Bytes(), asset.Bytes())
	return ethcommon.BytesToAddress(h[12:])
}
