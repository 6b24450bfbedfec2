package batch

import (
	"database/sql"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/turingcapitalgroup/kam-go/common"
	"github.com/turingcapitalgroup/kam-go/database"
)

type BatchDB struct {
	stmtCache *database.StmtCache
}

func NewBatchDB(db *sql.DB) (*BatchDB, error) {
	if _, err := db.Exec(batchTable); err != nil {
		return nil, err
	}

	return &BatchDB{stmtCache: database.NewStmtCache(db)}, nil
}

func (bdb *BatchDB) Close() {
	bdb.stmtCache.Clear()
}

func (bdb *BatchDB) Insert(b *Batch) error {
	query := `INSERT INTO batch (id, vault, seq, createdAt, status) VALUES (?, ?, ?, ?, ?)`
	stmt, err := bdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		b.Id.String()[2:],
		common.ByteSliceToPureHexStr(b.Vault.Bytes()),
		b.Seq,
		b.CreatedAt,
		string(b.Status),
	)
	return err
}

func (bdb *BatchDB) Get(id ethcommon.Hash) (*Batch, bool, error) {
	query := `SELECT id, vault, seq, createdAt, status, sharePrice, settledTotalAssets, settledAt
		FROM batch WHERE id = ?`
	stmt, err := bdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var (
		b                        Batch
		idHex, vaultHex, status  string
		sharePrice, totalAssets  sql.NullString
		settledAt                sql.NullInt64
	)
	row := stmt.QueryRow(id.String()[2:])
	if err := row.Scan(&idHex, &vaultHex, &b.Seq, &b.CreatedAt, &status, &sharePrice, &totalAssets, &settledAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	b.Id = ethcommon.Hash(common.HexStrToBytes32(idHex))
	b.Vault = ethcommon.HexToAddress(vaultHex)
	b.Status = BatchStatus(status)
	if sharePrice.Valid {
		b.SharePrice = common.DecStrToBigInt(sharePrice.String)
	}
	if totalAssets.Valid {
		b.SettledTotalAssets = common.DecStrToBigInt(totalAssets.String)
	}
	if settledAt.Valid {
		b.SettledAt = settledAt.Int64
	}

	return &b, true, nil
}

// GetOpen returns the vault's currently open batch, if any. The code layer
// guarantees at most one open batch per vault.
func (bdb *BatchDB) GetOpen(vault ethcommon.Address) (*Batch, bool, error) {
	query := `SELECT id FROM batch WHERE vault = ? AND status = 'open'`
	stmt, err := bdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var idHex string
	if err := stmt.QueryRow(common.ByteSliceToPureHexStr(vault.Bytes())).Scan(&idHex); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	return bdb.Get(ethcommon.Hash(common.HexStrToBytes32(idHex)))
}

// NextSeq returns the vault's next monotonic batch counter value.
func (bdb *BatchDB) NextSeq(vault ethcommon.Address) (uint64, error) {
	query := `SELECT COALESCE(MAX(seq), 0) + 1 FROM batch WHERE vault = ?`
	stmt, err := bdb.stmtCache.Prepare(query)
	if err != nil {
		return 0, err
	}

	var seq uint64
	if err := stmt.QueryRow(common.ByteSliceToPureHexStr(vault.Bytes())).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (bdb *BatchDB) UpdateClosed(id ethcommon.Hash) error {
	query := `UPDATE batch SET status = 'closed' WHERE id = ? AND status = 'open'`
	stmt, err := bdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	res, err := stmt.Exec(id.String()[2:])
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBatchNotOpen
	}
	return nil
}

func (bdb *BatchDB) UpdateSettled(id ethcommon.Hash, sharePrice, totalAssets string, settledAt int64) error {
	query := `UPDATE batch SET status = 'settled', sharePrice = ?, settledTotalAssets = ?, settledAt = ?
		WHERE id = ? AND status = 'closed'`
	stmt, err := bdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	res, err := stmt.Exec(sharePrice, totalAssets, settledAt, id.String()[2:])
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBatchNotClosed
	}
	return nil
}

// LastSettledTotalAssets returns the totalAssets figure stamped on the
// vault's most recently settled batch. false when nothing settled yet.
func (bdb *BatchDB) LastSettledTotalAssets(vault ethcommon.Address) (*Batch, bool, error) {
	query := `SELECT id FROM batch WHERE vault = ? AND status = 'settled' ORDER BY seq DESC LIMIT 1`
	stmt, err := bdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var idHex string
	if err := stmt.QueryRow(common.ByteSliceToPureHexStr(vault.Bytes())).Scan(&idHex); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	return bdb.Get(ethcommon.Hash(common.HexStrToBytes32(idHex)))
}
