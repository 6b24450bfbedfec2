package registry

import (
	"database/sql"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/turingcapitalgroup/kam-go/common"
	"github.com/turingcapitalgroup/kam-go/database"
)

type RegistryDB struct {
	stmtCache *database.StmtCache
}

func NewRegistryDB(db *sql.DB) (*RegistryDB, error) {
	if _, err := db.Exec(assetTable + vaultTable + adapterTable); err != nil {
		return nil, err
	}

	return &RegistryDB{stmtCache: database.NewStmtCache(db)}, nil
}

func (rdb *RegistryDB) Close() {
	rdb.stmtCache.Clear()
}

func addrHex(a ethcommon.Address) string {
	return common.ByteSliceToPureHexStr(a.Bytes())
}

func hexAddr(s string) ethcommon.Address {
	return ethcommon.HexToAddress(s)
}

func (rdb *RegistryDB) InsertAsset(a *Asset) error {
	query := `INSERT INTO asset (asset, name, symbol, decimals, syntheticToken, mintCeiling, redeemCeiling, hurdleRateBps, feeRecipient)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		addrHex(a.Asset),
		a.Name,
		a.Symbol,
		a.Decimals,
		addrHex(a.SyntheticToken),
		a.MintCeiling.Text(10),
		a.RedeemCeiling.Text(10),
		a.HurdleRateBps,
		addrHex(a.FeeRecipient),
	)
	return err
}

func (rdb *RegistryDB) GetAsset(asset ethcommon.Address) (*Asset, bool, error) {
	query := `SELECT asset, name, symbol, decimals, syntheticToken, mintCeiling, redeemCeiling, hurdleRateBps, feeRecipient
		FROM asset WHERE asset = ?`

	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var (
		a                          Asset
		assetHex, tokenHex, feeHex string
		mintCeiling, redeemCeiling string
	)
	row := stmt.QueryRow(addrHex(asset))
	if err := row.Scan(
		&assetHex,
		&a.Name,
		&a.Symbol,
		&a.Decimals,
		&tokenHex,
		&mintCeiling,
		&redeemCeiling,
		&a.HurdleRateBps,
		&feeHex,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	a.Asset = hexAddr(assetHex)
	a.SyntheticToken = hexAddr(tokenHex)
	a.MintCeiling = common.DecStrToBigInt(mintCeiling)
	a.RedeemCeiling = common.DecStrToBigInt(redeemCeiling)
	a.FeeRecipient = hexAddr(feeHex)

	return &a, true, nil
}

func (rdb *RegistryDB) HasAsset(asset ethcommon.Address) (bool, error) {
	query := `SELECT 1 FROM asset WHERE asset = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return false, err
	}

	var one int
	if err := stmt.QueryRow(addrHex(asset)).Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// HasSyntheticToken reports whether any registered asset maps to this
// synthetic token address. Used by the router's rescue guard.
func (rdb *RegistryDB) HasSyntheticToken(token ethcommon.Address) (bool, error) {
	query := `SELECT 1 FROM asset WHERE syntheticToken = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return false, err
	}

	var one int
	if err := stmt.QueryRow(addrHex(token)).Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (rdb *RegistryDB) UpdateCeilings(asset ethcommon.Address, mintCeiling, redeemCeiling string) error {
	query := `UPDATE asset SET mintCeiling = ?, redeemCeiling = ? WHERE asset = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(mintCeiling, redeemCeiling, addrHex(asset))
	return err
}

func (rdb *RegistryDB) UpdateHurdleRate(asset ethcommon.Address, hurdleRateBps uint16) error {
	query := `UPDATE asset SET hurdleRateBps = ? WHERE asset = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(hurdleRateBps, addrHex(asset))
	return err
}

func (rdb *RegistryDB) DeleteAsset(asset ethcommon.Address) error {
	query := `DELETE FROM asset WHERE asset = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(addrHex(asset))
	return err
}

func (rdb *RegistryDB) InsertVault(v *Vault) error {
	query := `INSERT INTO vault (vault, vaultType, asset) VALUES (?, ?, ?)`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(addrHex(v.Vault), string(v.Type), addrHex(v.Asset))
	return err
}

func (rdb *RegistryDB) GetVault(vault ethcommon.Address) (*Vault, bool, error) {
	query := `SELECT vault, vaultType, asset FROM vault WHERE vault = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var vaultHex, vaultType, assetHex string
	if err := stmt.QueryRow(addrHex(vault)).Scan(&vaultHex, &vaultType, &assetHex); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &Vault{
		Vault: hexAddr(vaultHex),
		Type:  VaultType(vaultType),
		Asset: hexAddr(assetHex),
	}, true, nil
}

func (rdb *RegistryDB) GetVaultByType(asset ethcommon.Address, vtype VaultType) (*Vault, bool, error) {
	query := `SELECT vault, vaultType, asset FROM vault WHERE asset = ? AND vaultType = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var vaultHex, vaultType, assetHex string
	if err := stmt.QueryRow(addrHex(asset), string(vtype)).Scan(&vaultHex, &vaultType, &assetHex); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &Vault{
		Vault: hexAddr(vaultHex),
		Type:  VaultType(vaultType),
		Asset: hexAddr(assetHex),
	}, true, nil
}

func (rdb *RegistryDB) CountVaultsByAsset(asset ethcommon.Address) (int, error) {
	query := `SELECT COUNT(*) FROM vault WHERE asset = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return 0, err
	}

	var n int
	if err := stmt.QueryRow(addrHex(asset)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (rdb *RegistryDB) DeleteVault(vault ethcommon.Address) error {
	// The vault's adapter bindings go with it.
	return database.WithTx(rdb.stmtCache.DB(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM adapter WHERE vault = ?`, addrHex(vault)); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM vault WHERE vault = ?`, addrHex(vault))
		return err
	})
}

func (rdb *RegistryDB) InsertAdapter(vault, asset, adapterAddr ethcommon.Address) error {
	query := `INSERT INTO adapter (vault, asset, adapter) VALUES (?, ?, ?)`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(addrHex(vault), addrHex(asset), addrHex(adapterAddr))
	return err
}

func (rdb *RegistryDB) GetAdapter(vault, asset ethcommon.Address) (ethcommon.Address, bool, error) {
	query := `SELECT adapter FROM adapter WHERE vault = ? AND asset = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return ethcommon.Address{}, false, err
	}

	var adapterHex string
	if err := stmt.QueryRow(addrHex(vault), addrHex(asset)).Scan(&adapterHex); err != nil {
		if err == sql.ErrNoRows {
			return ethcommon.Address{}, false, nil
		}
		return ethcommon.Address{}, false, err
	}
	return hexAddr(adapterHex), true, nil
}

func (rdb *RegistryDB) DeleteAdapter(vault, asset ethcommon.Address) error {
	query := `DELETE FROM adapter WHERE vault = ? AND asset = ?`
	stmt, err := rdb.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(addrHex(vault), addrHex(asset))
	return err
}
