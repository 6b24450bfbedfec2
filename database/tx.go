package database

import "database/sql"

// WithTx runs fn inside a transaction. A non-nil error from fn rolls the
// transaction back, so multi-row mutations either land fully or not at all.
func WithTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
