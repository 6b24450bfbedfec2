package router

import (
	"database/sql"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/turingcapitalgroup/kam-go/common"
	"github.com/turingcapitalgroup/kam-go/database"
)

type RouterDB struct {
	stmtCache *database.StmtCache
}

func NewRouterDB(db *sql.DB) (*RouterDB, error) {
	if _, err := db.Exec(balancesTable + proposalTable + activeProposalTable); err != nil {
		return nil, err
	}

	return &RouterDB{stmtCache: database.NewStmtCache(db)}, nil
}

func (rdb *RouterDB) Close() {
	rdb.stmtCache.Clear()
}

func addrHex(a ethcommon.Address) string {
	return common.ByteSliceToPureHexStr(a.Bytes())
}

func hashHex(h ethcommon.Hash) string {
	return h.String()[2:]
}

// GetBalances returns the counters for (vault, batchId), zero-valued when
// no flow has been recorded yet.
func (rdb *RouterDB) GetBalances(vault ethcommon.Address, batchId ethcommon.Hash) (*BatchBalances, error) {
	query := `SELECT deposited, requested, sharesRequested FROM batchbalances WHERE vault = ? AND batchId = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	b := &BatchBalances{
		Vault:           vault,
		BatchId:         batchId,
		Deposited:       new(big.Int),
		Requested:       new(big.Int),
		SharesRequested: new(big.Int),
	}

	var deposited, requested, sharesRequested string
	if err := stmt.QueryRow(addrHex(vault), hashHex(batchId)).Scan(&deposited, &requested, &sharesRequested); err != nil {
		if err == sql.ErrNoRows {
			return b, nil
		}
		return nil, err
	}

	b.Deposited = common.DecStrToBigInt(deposited)
	b.Requested = common.DecStrToBigInt(requested)
	b.SharesRequested = common.DecStrToBigInt(sharesRequested)
	return b, nil
}

func (rdb *RouterDB) putBalances(b *BatchBalances) error {
	query := `INSERT OR REPLACE INTO batchbalances (vault, batchId, deposited, requested, sharesRequested)
		VALUES (?, ?, ?, ?, ?)`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		addrHex(b.Vault),
		hashHex(b.BatchId),
		b.Deposited.Text(10),
		b.Requested.Text(10),
		b.SharesRequested.Text(10),
	)
	return err
}

func (rdb *RouterDB) AddDeposited(vault ethcommon.Address, batchId ethcommon.Hash, amount *big.Int) error {
	b, err := rdb.GetBalances(vault, batchId)
	if err != nil {
		return err
	}
	b.Deposited.Add(b.Deposited, amount)
	return rdb.putBalances(b)
}

func (rdb *RouterDB) AddRequested(vault ethcommon.Address, batchId ethcommon.Hash, amount *big.Int) error {
	b, err := rdb.GetBalances(vault, batchId)
	if err != nil {
		return err
	}
	b.Requested.Add(b.Requested, amount)
	return rdb.putBalances(b)
}

// SubRequested backs out a rescinded redemption request, never below zero.
func (rdb *RouterDB) SubRequested(vault ethcommon.Address, batchId ethcommon.Hash, amount *big.Int) error {
	b, err := rdb.GetBalances(vault, batchId)
	if err != nil {
		return err
	}
	next := new(big.Int).Sub(b.Requested, amount)
	if next.Sign() < 0 {
		return ErrRequestedUnderflow
	}
	b.Requested = next
	return rdb.putBalances(b)
}

// AddSharesRequested accepts a negative delta for the symmetric pull but
// never lets the counter go below zero.
func (rdb *RouterDB) AddSharesRequested(vault ethcommon.Address, batchId ethcommon.Hash, delta *big.Int) error {
	b, err := rdb.GetBalances(vault, batchId)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(b.SharesRequested, delta)
	if next.Sign() < 0 {
		return ErrSharesUnderflow
	}
	b.SharesRequested = next
	return rdb.putBalances(b)
}

func (rdb *RouterDB) InsertProposal(p *SettlementProposal) error {
	query := `INSERT INTO proposal (id, asset, vault, batchId, totalAssets, netted, yield, executeAfter, executed, cancelled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		hashHex(p.Id),
		addrHex(p.Asset),
		addrHex(p.Vault),
		hashHex(p.BatchId),
		p.TotalAssets.Text(10),
		p.Netted.Text(10),
		p.Yield.Text(10),
		p.ExecuteAfter,
	)
	return err
}

func (rdb *RouterDB) GetProposal(id ethcommon.Hash) (*SettlementProposal, bool, error) {
	query := `SELECT id, asset, vault, batchId, totalAssets, netted, yield, executeAfter, executed, cancelled
		FROM proposal WHERE id = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var (
		p                                   SettlementProposal
		idHex, assetHex, vaultHex, batchHex string
		totalAssets, netted, yield          string
	)
	row := stmt.QueryRow(hashHex(id))
	if err := row.Scan(&idHex, &assetHex, &vaultHex, &batchHex, &totalAssets, &netted, &yield, &p.ExecuteAfter, &p.Executed, &p.Cancelled); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	p.Id = ethcommon.Hash(common.HexStrToBytes32(idHex))
	p.Asset = ethcommon.HexToAddress(assetHex)
	p.Vault = ethcommon.HexToAddress(vaultHex)
	p.BatchId = ethcommon.Hash(common.HexStrToBytes32(batchHex))
	p.TotalAssets = common.DecStrToBigInt(totalAssets)
	p.Netted = common.DecStrToBigInt(netted)
	p.Yield = common.DecStrToBigInt(yield)

	return &p, true, nil
}

func (rdb *RouterDB) MarkExecuted(id ethcommon.Hash) error {
	query := `UPDATE proposal SET executed = 1 WHERE id = ? AND executed = 0 AND cancelled = 0`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	res, err := stmt.Exec(hashHex(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProposalNotFound
	}
	return nil
}

func (rdb *RouterDB) MarkCancelled(id ethcommon.Hash) error {
	query := `UPDATE proposal SET cancelled = 1 WHERE id = ? AND executed = 0 AND cancelled = 0`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	res, err := stmt.Exec(hashHex(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProposalNotFound
	}
	return nil
}

// HasExecutedProposalForBatch guards against stale re-proposals of a batch
// that already settled.
func (rdb *RouterDB) HasExecutedProposalForBatch(batchId ethcommon.Hash) (bool, error) {
	query := `SELECT 1 FROM proposal WHERE batchId = ? AND executed = 1 LIMIT 1`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return false, err
	}

	var one int
	if err := stmt.QueryRow(hashHex(batchId)).Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetActiveProposal returns the vault's single active proposal slot.
func (rdb *RouterDB) GetActiveProposal(vault ethcommon.Address) (ethcommon.Hash, bool, error) {
	query := `SELECT proposalId FROM activeproposal WHERE vault = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return ethcommon.Hash{}, false, err
	}

	var idHex string
	if err := stmt.QueryRow(addrHex(vault)).Scan(&idHex); err != nil {
		if err == sql.ErrNoRows {
			return ethcommon.Hash{}, false, nil
		}
		return ethcommon.Hash{}, false, err
	}
	return ethcommon.Hash(common.HexStrToBytes32(idHex)), true, nil
}

func (rdb *RouterDB) SetActiveProposal(vault ethcommon.Address, id ethcommon.Hash) error {
	query := `INSERT OR REPLACE INTO activeproposal (vault, proposalId) VALUES (?, ?)`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(addrHex(vault), hashHex(id))
	return err
}

func (rdb *RouterDB) ClearActiveProposal(vault ethcommon.Address) error {
	query := `DELETE FROM activeproposal WHERE vault = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(addrHex(vault))
	return err
}

// PendingProposals lists every active proposal, for the reporter.
func (rdb *RouterDB) PendingProposals() ([]*SettlementProposal, error) {
	query := `SELECT id FROM proposal WHERE executed = 0 AND cancelled = 0`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []ethcommon.Hash
	for rows.Next() {
		var idHex string
		if err := rows.Scan(&idHex); err != nil {
			return nil, err
		}
		ids = append(ids, ethcommon.Hash(common.HexStrToBytes32(idHex)))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var proposals []*SettlementProposal
	for _, id := range ids {
		p, ok, err := rdb.GetProposal(id)
		if err != nil {
			return nil, err
		}
		if ok {
			proposals = append(proposals, p)
		}
	}
	return proposals, nil
}
