package batch

import (
	"database/sql"

	logger "github.com/sirupsen/logrus"
)

func getMemoryDB() *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		logger.Fatal(err)
	}
	return db
}
