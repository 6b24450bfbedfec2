package ktoken

// Addresses are stored as unprefixed lower-case hex; amounts as base-10
// strings wide enough for a uint256.
const balanceTable = `CREATE TABLE IF NOT EXISTS balance (
	token CHAR(40) NOT NULL CHECK (token != '` + zeroAddressHex + `'),
	account CHAR(40) NOT NULL,
	amount VARCHAR(78) NOT NULL,
	PRIMARY KEY (token, account)
);`

const supplyTable = `CREATE TABLE IF NOT EXISTS supply (
	token CHAR(40) NOT NULL PRIMARY KEY CHECK (token != '` + zeroAddressHex + `'),
	amount VARCHAR(78) NOT NULL
);`

const zeroAddressHex = "0000000000000000000000000000000000000000"
