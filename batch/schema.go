package batch

import "strings"

var (
	strZeroBytes32 = strings.Repeat("0", 64)
	strZeroBytes20 = strings.Repeat("0", 40)

	// life cycle of a batch; sharePrice/settledTotalAssets are base-10
	// strings, written once at settlement
	batchTable = `CREATE TABLE IF NOT EXISTS batch (
		id CHAR(64) PRIMARY KEY NOT NULL,
		vault CHAR(40) NOT NULL,
		seq BIGINT UNSIGNED NOT NULL,
		createdAt BIGINT NOT NULL,
		status VARCHAR(10) NOT NULL,
		sharePrice VARCHAR(78),
		settledTotalAssets VARCHAR(78),
		settledAt BIGINT,
		CONSTRAINT chk_status CHECK (status IN ('open', 'closed', 'settled')),
		CONSTRAINT chk_id CHECK (id != '` + strZeroBytes32 + `'),
		CONSTRAINT chk_vault CHECK (vault != '` + strZeroBytes20 + `'),
		CONSTRAINT uniq_seq UNIQUE (vault, seq)
	);`
)
