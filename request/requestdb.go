// Append-only ledger of pending mint/burn and stake/unstake requests.
// Requests never get deleted; claim and cancel flip the status exactly
// once.

package request

import (
	"database/sql"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/turingcapitalgroup/kam-go/common"
	"github.com/turingcapitalgroup/kam-go/database"
)

type RequestDB struct {
	stmtCache *database.StmtCache
}

func NewRequestDB(db *sql.DB) (*RequestDB, error) {
	if _, err := db.Exec(requestTable); err != nil {
		return nil, err
	}

	return &RequestDB{stmtCache: database.NewStmtCache(db)}, nil
}

func (rdb *RequestDB) Close() {
	rdb.stmtCache.Clear()
}

// NextSeq feeds the request id derivation; the value only has to be
// distinct per insert, not dense.
func (rdb *RequestDB) NextSeq() (uint64, error) {
	query := `SELECT COALESCE(MAX(rowid), 0) + 1 FROM request`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return 0, err
	}

	var seq uint64
	if err := stmt.QueryRow().Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (rdb *RequestDB) Insert(r *Request) error {
	query := `INSERT INTO request (id, kind, user, recipient, vault, asset, amount, batchId, status, createdAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		r.Id.String()[2:],
		string(r.Kind),
		common.ByteSliceToPureHexStr(r.User.Bytes()),
		common.ByteSliceToPureHexStr(r.Recipient.Bytes()),
		common.ByteSliceToPureHexStr(r.Vault.Bytes()),
		common.ByteSliceToPureHexStr(r.Asset.Bytes()),
		r.Amount.Text(10),
		r.BatchId.String()[2:],
		string(r.Status),
		r.CreatedAt,
	)
	return err
}

func (rdb *RequestDB) scanRequest(row interface{ Scan(...interface{}) error }) (*Request, error) {
	var (
		r                                      Request
		idHex, kind, userHex, recipientHex     string
		vaultHex, assetHex, amount, batchIdHex string
		status                                 string
	)
	if err := row.Scan(&idHex, &kind, &userHex, &recipientHex, &vaultHex, &assetHex, &amount, &batchIdHex, &status, &r.CreatedAt); err != nil {
		return nil, err
	}

	r.Id = ethcommon.Hash(common.HexStrToBytes32(idHex))
	r.Kind = RequestKind(kind)
	r.User = ethcommon.HexToAddress(userHex)
	r.Recipient = ethcommon.HexToAddress(recipientHex)
	r.Vault = ethcommon.HexToAddress(vaultHex)
	r.Asset = ethcommon.HexToAddress(assetHex)
	r.Amount = common.DecStrToBigInt(amount)
	r.BatchId = ethcommon.Hash(common.HexStrToBytes32(batchIdHex))
	r.Status = RequestStatus(status)

	return &r, nil
}

func (rdb *RequestDB) Get(id ethcommon.Hash) (*Request, bool, error) {
	query := `SELECT id, kind, user, recipient, vault, asset, amount, batchId, status, createdAt
		FROM request WHERE id = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	r, err := rdb.scanRequest(stmt.QueryRow(id.String()[2:]))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return r, true, nil
}

func (rdb *RequestDB) GetByBatch(batchId ethcommon.Hash) ([]*Request, error) {
	query := `SELECT id, kind, user, recipient, vault, asset, amount, batchId, status, createdAt
		FROM request WHERE batchId = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(batchId.String()[2:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		r, err := rdb.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (rdb *RequestDB) GetByUser(user ethcommon.Address) ([]*Request, error) {
	query := `SELECT id, kind, user, recipient, vault, asset, amount, batchId, status, createdAt
		FROM request WHERE user = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(common.ByteSliceToPureHexStr(user.Bytes()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		r, err := rdb.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// setStatus flips pending -> status exactly once. The WHERE guard makes a
// replayed claim or cancel report ErrRequestNotPending with no effect.
func (rdb *RequestDB) setStatus(id ethcommon.Hash, status RequestStatus) error {
	query := `UPDATE request SET status = ? WHERE id = ? AND status = 'pending'`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	res, err := stmt.Exec(string(status), id.String()[2:])
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRequestNotPending
	}
	return nil
}

func (rdb *RequestDB) MarkClaimed(id ethcommon.Hash) error {
	return rdb.setStatus(id, StatusClaimed)
}

func (rdb *RequestDB) MarkCancelled(id ethcommon.Hash) error {
	return rdb.setStatus(id, StatusCancelled)
}
