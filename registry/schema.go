package registry

import "strings"

var (
	strZeroBytes20 = strings.Repeat("0", 40)

	// Amount columns hold base-10 strings; amounts routinely exceed the
	// range of sqlite integers.
	assetTable = `CREATE TABLE IF NOT EXISTS asset (
		asset CHAR(40) PRIMARY KEY NOT NULL,
		name VARCHAR(64) NOT NULL,
		symbol VARCHAR(16) NOT NULL,
		decimals INTEGER NOT NULL,
		syntheticToken CHAR(40) NOT NULL,
		mintCeiling VARCHAR(78) NOT NULL,
		redeemCeiling VARCHAR(78) NOT NULL,
		hurdleRateBps INTEGER NOT NULL DEFAULT 0,
		feeRecipient CHAR(40) NOT NULL,
		CONSTRAINT chk_asset CHECK (asset != '` + strZeroBytes20 + `'),
		CONSTRAINT chk_name CHECK (name != ''),
		CONSTRAINT chk_symbol CHECK (symbol != ''),
		CONSTRAINT chk_decimals CHECK (decimals BETWEEN 0 AND 18)
	);`

	vaultTable = `CREATE TABLE IF NOT EXISTS vault (
		vault CHAR(40) PRIMARY KEY NOT NULL,
		vaultType VARCHAR(10) NOT NULL,
		asset CHAR(40) NOT NULL,
		CONSTRAINT chk_vault CHECK (vault != '` + strZeroBytes20 + `'),
		CONSTRAINT chk_vaultType CHECK (vaultType IN ('minter', 'dn', 'alpha', 'beta', 'gamma')),
		CONSTRAINT uniq_slot UNIQUE (asset, vaultType)
	);`

	adapterTable = `CREATE TABLE IF NOT EXISTS adapter (
		vault CHAR(40) NOT NULL,
		asset CHAR(40) NOT NULL,
		adapter CHAR(40) NOT NULL,
		PRIMARY KEY (vault, asset),
		CONSTRAINT chk_adapter CHECK (adapter != '` + strZeroBytes20 + `')
	);`
)
