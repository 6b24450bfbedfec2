// This is a http type of reporter.
// It fetches data from the batch ledger, the asset router and the request
// ledger and publishes it read-only on http routes. No mutating endpoint
// exists here; all state changes go through the typed APIs.

package reporter

import (
	"net/http"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/turingcapitalgroup/kam-go/batch"
	"github.com/turingcapitalgroup/kam-go/request"
	"github.com/turingcapitalgroup/kam-go/router"
)

const (
	ROUTE_HEALTH    = "/health"
	ROUTE_BATCH     = "/batch"
	ROUTE_PROPOSAL  = "/proposal"
	ROUTE_PROPOSALS = "/proposals"
	ROUTE_REQUEST   = "/request"
	ROUTE_BALANCES  = "/balances"
)

type HttpReporter struct {
	serverIP   string // listen ip
	serverPort string // listen port

	// upstream data sources
	batches  *batch.Ledger
	rt       *router.Router
	requests *request.RequestDB
}

func NewHttpReporter(serverIP, serverPort string, batches *batch.Ledger, rt *router.Router, requests *request.RequestDB) *HttpReporter {
	return &HttpReporter{
		serverIP:   serverIP,
		serverPort: serverPort,
		batches:    batches,
		rt:         rt,
		requests:   requests,
	}
}

// Hook up routes & handlers
func (h *HttpReporter) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.GET(ROUTE_HEALTH, Health)
	r.GET(ROUTE_BATCH, h.Batch)
	r.GET(ROUTE_PROPOSAL, h.Proposal)
	r.GET(ROUTE_PROPOSALS, h.Proposals)
	r.GET(ROUTE_REQUEST, h.Request)
	r.GET(ROUTE_BALANCES, h.Balances)

	return r
}

// Hook up router & ip:port
func (h *HttpReporter) Run() {
	r := h.SetupRouter()
	address := h.serverIP + ":" + h.serverPort
	if err := r.Run(address); err != nil {
		panic(err)
	}
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func batchJSON(b *batch.Batch) gin.H {
	out := gin.H{
		"id":        b.Id.Hex(),
		"vault":     b.Vault.Hex(),
		"seq":       b.Seq,
		"status":    string(b.Status),
		"createdAt": b.CreatedAt,
	}
	if b.IsSettled() {
		out["sharePrice"] = b.SharePrice.String()
		out["settledTotalAssets"] = b.SettledTotalAssets.String()
		out["settledAt"] = b.SettledAt
	}
	return out
}

// Fetch one batch by id, or a vault's current open batch.
func (h *HttpReporter) Batch(c *gin.Context) {
	id := c.Query("id")
	vault := c.Query("vault")

	if id == "" && vault == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either id or vault must be provided"})
		return
	}

	var batchId ethcommon.Hash
	if id != "" {
		batchId = ethcommon.HexToHash(id)
	} else {
		current, err := h.batches.CurrentBatch(ethcommon.HexToAddress(vault))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		batchId = current
	}

	b, ok, err := h.batches.GetBatch(batchId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No batch found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": batchJSON(b)})
}

func proposalJSON(p *router.SettlementProposal) gin.H {
	return gin.H{
		"id":           p.Id.Hex(),
		"asset":        p.Asset.Hex(),
		"vault":        p.Vault.Hex(),
		"batchId":      p.BatchId.Hex(),
		"totalAssets":  p.TotalAssets.String(),
		"netted":       p.Netted.String(),
		"yield":        p.Yield.String(),
		"executeAfter": p.ExecuteAfter,
		"executed":     p.Executed,
		"cancelled":    p.Cancelled,
	}
}

// Fetch one settlement proposal by id, with its executability verdict.
func (h *HttpReporter) Proposal(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be provided"})
		return
	}

	proposalId := ethcommon.HexToHash(id)
	p, ok, err := h.rt.GetProposal(proposalId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No proposal found"})
		return
	}

	canExec, reason, err := h.rt.CanExecuteProposal(proposalId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data := proposalJSON(p)
	data["canExecute"] = canExec
	if reason != "" {
		data["reason"] = reason
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// List every still-active settlement proposal.
func (h *HttpReporter) Proposals(c *gin.Context) {
	proposals, err := h.rt.PendingProposals()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data := make([]gin.H, 0, len(proposals))
	for _, p := range proposals {
		data = append(data, proposalJSON(p))
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func requestJSON(r *request.Request) gin.H {
	return gin.H{
		"id":        r.Id.Hex(),
		"kind":      string(r.Kind),
		"user":      r.User.Hex(),
		"recipient": r.Recipient.Hex(),
		"vault":     r.Vault.Hex(),
		"asset":     r.Asset.Hex(),
		"amount":    r.Amount.String(),
		"batchId":   r.BatchId.Hex(),
		"status":    string(r.Status),
		"createdAt": r.CreatedAt,
	}
}

// Fetch requests by id, user or batch.
func (h *HttpReporter) Request(c *gin.Context) {
	id := c.Query("id")
	user := c.Query("user")
	batchId := c.Query("batch_id")

	if id == "" && user == "" && batchId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either id, user or batch_id must be provided"})
		return
	}

	if id != "" {
		r, ok, err := h.requests.Get(ethcommon.HexToHash(id))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "No request found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": requestJSON(r)})
		return
	}

	var (
		rs  []*request.Request
		err error
	)
	if user != "" {
		rs, err = h.requests.GetByUser(ethcommon.HexToAddress(user))
	} else {
		rs, err = h.requests.GetByBatch(ethcommon.HexToHash(batchId))
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(rs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No request found"})
		return
	}

	data := make([]gin.H, 0, len(rs))
	for _, r := range rs {
		data = append(data, requestJSON(r))
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// Fetch the flow counters of one (vault, batch) pair.
func (h *HttpReporter) Balances(c *gin.Context) {
	vault := c.Query("vault")
	batchId := c.Query("batch_id")

	if vault == "" || batchId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Both vault and batch_id must be provided"})
		return
	}

	bal, err := h.rt.GetBatchBalances(ethcommon.HexToAddress(vault), ethcommon.HexToHash(batchId))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"vault":           bal.Vault.Hex(),
		"batchId":         bal.BatchId.Hex(),
		"deposited":       bal.Deposited.String(),
		"requested":       bal.Requested.String(),
		"sharesRequested": bal.SharesRequested.String(),
	}})
}
