package ktoken

import (
	"database/sql"
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/turingcapitalgroup/kam-go/common"
	"github.com/turingcapitalgroup/kam-go/database"
)

// TokenDB is the sqlite-backed Ledger the settlement daemon runs on. The
// mutex serializes read-modify-write pairs; sqlite alone cannot order
// them.
type TokenDB struct {
	mu        sync.Mutex
	stmtCache *database.StmtCache
}

func NewTokenDB(db *sql.DB) (*TokenDB, error) {
	if _, err := db.Exec(balanceTable + supplyTable); err != nil {
		return nil, err
	}

	return &TokenDB{stmtCache: database.NewStmtCache(db)}, nil
}

func (tdb *TokenDB) Close() {
	tdb.stmtCache.Clear()
}

func addrHex(a ethcommon.Address) string {
	return common.ByteSliceToPureHexStr(a.Bytes())
}

func (tdb *TokenDB) balance(token, account ethcommon.Address) (*big.Int, error) {
	query := `SELECT amount FROM balance WHERE token = ? AND account = ?`
	stmt, err := tdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	var amount string
	if err := stmt.QueryRow(addrHex(token), addrHex(account)).Scan(&amount); err != nil {
		if err == sql.ErrNoRows {
			return new(big.Int), nil
		}
		return nil, err
	}
	return common.DecStrToBigInt(amount), nil
}

func (tdb *TokenDB) putBalance(token, account ethcommon.Address, amount *big.Int) error {
	query := `INSERT OR REPLACE INTO balance (token, account, amount) VALUES (?, ?, ?)`
	stmt, err := tdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(addrHex(token), addrHex(account), amount.Text(10))
	return err
}

func (tdb *TokenDB) supply(token ethcommon.Address) (*big.Int, error) {
	query := `SELECT amount FROM supply WHERE token = ?`
	stmt, err := tdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	var amount string
	if err := stmt.QueryRow(addrHex(token)).Scan(&amount); err != nil {
		if err == sql.ErrNoRows {
			return new(big.Int), nil
		}
		return nil, err
	}
	return common.DecStrToBigInt(amount), nil
}

func (tdb *TokenDB) putSupply(token ethcommon.Address, amount *big.Int) error {
	query := `INSERT OR REPLACE INTO supply (token, amount) VALUES (?, ?)`
	stmt, err := tdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(addrHex(token), amount.Text(10))
	return err
}

func (tdb *TokenDB) Mint(token, to ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroTokenAmount
	}

	tdb.mu.Lock()
	defer tdb.mu.Unlock()

	b, err := tdb.balance(token, to)
	if err != nil {
		return err
	}
	s, err := tdb.supply(token)
	if err != nil {
		return err
	}

	if err := tdb.putBalance(token, to, new(big.Int).Add(b, amount)); err != nil {
		return err
	}
	return tdb.putSupply(token, new(big.Int).Add(s, amount))
}

func (tdb *TokenDB) Burn(token, from ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroTokenAmount
	}

	tdb.mu.Lock()
	defer tdb.mu.Unlock()

	b, err := tdb.balance(token, from)
	if err != nil {
		return err
	}
	if b.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	s, err := tdb.supply(token)
	if err != nil {
		return err
	}

	if err := tdb.putBalance(token, from, new(big.Int).Sub(b, amount)); err != nil {
		return err
	}
	return tdb.putSupply(token, new(big.Int).Sub(s, amount))
}

func (tdb *TokenDB) Transfer(token, from, to ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroTokenAmount
	}

	tdb.mu.Lock()
	defer tdb.mu.Unlock()

	fromBal, err := tdb.balance(token, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := tdb.balance(token, to)
	if err != nil {
		return err
	}

	if err := tdb.putBalance(token, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return tdb.putBalance(token, to, new(big.Int).Add(toBal, amount))
}

func (tdb *TokenDB) BalanceOf(token, account ethcommon.Address) *big.Int {
	tdb.mu.Lock()
	defer tdb.mu.Unlock()

	b, err := tdb.balance(token, account)
	if err != nil {
		return new(big.Int)
	}
	return b
}

func (tdb *TokenDB) TotalSupply(token ethcommon.Address) *big.Int {
	tdb.mu.Lock()
	defer tdb.mu.Unlock()

	s, err := tdb.supply(token)
	if err != nil {
		return new(big.Int)
	}
	return s
}
