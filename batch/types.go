package batch

import (
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/turingcapitalgroup/kam-go/common"
)

type BatchStatus string

const (
	BatchStatusOpen    BatchStatus = "open"    // accepting new requests
	BatchStatusClosed  BatchStatus = "closed"  // eligible for settlement
	BatchStatusSettled BatchStatus = "settled" // share price fixed
)

var (
	ErrBatchNotFound      = errors.New("batch not found")
	ErrBatchNotOpen       = errors.New("batch is not open")
	ErrBatchNotClosed     = errors.New("batch is not closed")
	ErrBatchStillOpen     = errors.New("vault already has an open batch")
	ErrNoOpenBatch        = errors.New("vault has no open batch")
	ErrNotRouter          = errors.New("only the bound asset router may settle")
	ErrRouterAlreadyBound = errors.New("asset router already bound")
	ErrRouterNotBound     = errors.New("asset router not bound")
)

// Batch groups same-vault requests that settle together at one shared
// price. Status only ever moves open -> closed -> settled.
type Batch struct {
	Id        ethcommon.Hash
	Vault     ethcommon.Address
	Seq       uint64
	CreatedAt int64
	Status    BatchStatus

	// Fixed at settlement, zero before.
	SharePrice         *big.Int
	SettledTotalAssets *big.Int
	SettledAt          int64
}

func (b *Batch) IsSettled() bool {
	return b.Status == BatchStatusSettled
}

func (b *Batch) String() string {
	return fmt.Sprintf("Batch { Id: %s, Vault: %s, Seq: %d, Status: %s }",
		common.Shorten(b.Id.Hex(), 6), common.Shorten(b.Vault.Hex(), 6), b.Seq, b.Status)
}
