package receiver

import (
	"errors"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/turingcapitalgroup/kam-go/ktoken"
)

var ErrReceiverExists = errors.New("receiver already deployed for batch")

// Factory allocates one isolated escrow per batch, the stand-in for the
// minimal-proxy clone the on-chain system deploys.
type Factory struct {
	mu        sync.Mutex
	tokens    ktoken.Ledger
	receivers map[ethcommon.Hash]*BatchReceiver
}

func NewFactory(tokens ktoken.Ledger) *Factory {
	return &Factory{
		tokens:    tokens,
		receivers: make(map[ethcommon.Hash]*BatchReceiver),
	}
}

// Deploy creates and initializes the receiver for a batch. One per batch.
func (f *Factory) Deploy(owner ethcommon.Address, batchId ethcommon.Hash, asset ethcommon.Address) (*BatchReceiver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.receivers[batchId]; ok {
		return nil, ErrReceiverExists
	}

	br := newBatchReceiver(owner, f.tokens)
	if err := br.Initialize(batchId, asset); err != nil {
		return nil, err
	}

	f.receivers[batchId] = br
	return br, nil
}

func (f *Factory) ByBatch(batchId ethcommon.Hash) (*BatchReceiver, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	br, ok := f.receivers[batchId]
	return br, ok
}
