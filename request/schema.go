package request

import "strings"

var (
	strZeroBytes32 = strings.Repeat("0", 64)
	strZeroBytes20 = strings.Repeat("0", 40)

	requestTable = `CREATE TABLE IF NOT EXISTS request (
		id CHAR(64) PRIMARY KEY NOT NULL,
		kind VARCHAR(10) NOT NULL,
		user CHAR(40) NOT NULL,
		recipient CHAR(40) NOT NULL,
		vault CHAR(40) NOT NULL,
		asset CHAR(40) NOT NULL,
		amount VARCHAR(78) NOT NULL,
		batchId CHAR(64) NOT NULL,
		status VARCHAR(10) NOT NULL,
		createdAt BIGINT NOT NULL,
		CONSTRAINT chk_kind CHECK (kind IN ('stake', 'unstake', 'burn')),
		CONSTRAINT chk_status CHECK (status IN ('pending', 'claimed', 'cancelled')),
		CONSTRAINT chk_id CHECK (id != '` + strZeroBytes32 + `'),
		CONSTRAINT chk_user CHECK (user != '` + strZeroBytes20 + `'),
		CONSTRAINT chk_recipient CHECK (recipient != '` + strZeroBytes20 + `'),
		CONSTRAINT chk_batchId CHECK (batchId != '` + strZeroBytes32 + `')
	);`
)
