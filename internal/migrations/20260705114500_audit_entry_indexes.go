package migrations

import (
	"github.com/jmoiron/sqlx"
)

func init() {
	m.addMigration(&migration{
		version: "20260705114500",
		up:      mig_20260705114500_audit_entry_indexes_up,
		down:    mig_20260705114500_audit_entry_indexes_down,
	})
}

func mig_20260705114500_audit_entry_indexes_up(tx *sqlx.Tx) error {
	_, err := tx.Exec(`
        CREATE INDEX IF NOT EXISTS idx_audit_entries_user_id ON audit_entries(user_id);
    `)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
        CREATE INDEX IF NOT EXISTS idx_audit_entries_action ON audit_entries(action);
    `)
	return err
}

func mig_20260705114500_audit_entry_indexes_down(tx *sqlx.Tx) error {
	_, err := tx.Exec(`DROP INDEX IF EXISTS idx_audit_entries_action;`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`DROP INDEX IF EXISTS idx_audit_entries_user_id;`)
	return err
}
