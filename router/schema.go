package router

import "strings"

var (
	strZeroBytes32 = strings.Repeat("0", 64)
	strZeroBytes20 = strings.Repeat("0", 40)

	// gross flow counters per (vault, batchId); base-10 strings
	balancesTable = `CREATE TABLE IF NOT EXISTS batchbalances (
		vault CHAR(40) NOT NULL,
		batchId CHAR(64) NOT NULL,
		deposited VARCHAR(78) NOT NULL DEFAULT '0',
		requested VARCHAR(78) NOT NULL DEFAULT '0',
		sharesRequested VARCHAR(78) NOT NULL DEFAULT '0',
		PRIMARY KEY (vault, batchId),
		CONSTRAINT chk_vault CHECK (vault != '` + strZeroBytes20 + `'),
		CONSTRAINT chk_batchId CHECK (batchId != '` + strZeroBytes32 + `')
	);`

	// yield/netted may be negative, hence VARCHAR with an optional sign
	proposalTable = `CREATE TABLE IF NOT EXISTS proposal (
		id CHAR(64) PRIMARY KEY NOT NULL,
		asset CHAR(40) NOT NULL,
		vault CHAR(40) NOT NULL,
		batchId CHAR(64) NOT NULL,
		totalAssets VARCHAR(78) NOT NULL,
		netted VARCHAR(79) NOT NULL,
		yield VARCHAR(79) NOT NULL,
		executeAfter BIGINT NOT NULL,
		executed BOOLEAN NOT NULL DEFAULT 0,
		cancelled BOOLEAN NOT NULL DEFAULT 0,
		CONSTRAINT chk_id CHECK (id != '` + strZeroBytes32 + `')
	);`

	// single active-proposal slot per vault
	activeProposalTable = `CREATE TABLE IF NOT EXISTS activeproposal (
		vault CHAR(40) PRIMARY KEY NOT NULL,
		proposalId CHAR(64) NOT NULL
	);`
)
