package request

import (
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/turingcapitalgroup/kam-go/common"
)

type RequestKind string

const (
	KindStake   RequestKind = "stake"
	KindUnstake RequestKind = "unstake"
	KindBurn    RequestKind = "burn"
)

type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusClaimed   RequestStatus = "claimed"
	StatusCancelled RequestStatus = "cancelled"
)

var (
	ErrRequestNotFound   = errors.New("request not found")
	ErrRequestNotPending = errors.New("request is not pending")
	ErrNotBeneficiary    = errors.New("caller is not the request beneficiary")
	ErrNotRequester      = errors.New("caller is not the request owner")
)

// Request is one pending mint/burn (minter side) or stake/unstake (vault
// side) intent, tied to the batch open at creation time. Amount holds
// assets for stake/burn requests and shares for unstake requests.
type Request struct {
	Id        ethcommon.Hash
	Kind      RequestKind
	User      ethcommon.Address
	Recipient ethcommon.Address
	Vault     ethcommon.Address
	Asset     ethcommon.Address
	Amount    *big.Int
	BatchId   ethcommon.Hash
	Status    RequestStatus
	CreatedAt int64
}

func (r *Request) String() string {
	return fmt.Sprintf("Request { Id: %s, Kind: %s, User: %s, Amount: %v, Status: %s }",
		common.Shorten(r.Id.Hex(), 6), r.Kind, common.Shorten(r.User.Hex(), 6), r.Amount, r.Status)
}
