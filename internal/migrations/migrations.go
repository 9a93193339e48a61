// package migrations applies an append only list of schema statements to a database.
package migrations

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"esovm.org/esovm/internal/dbutil"
)

// State is a database schema, described by the statements which produce it.
// States are immutable, ApplyStmt returns a new State.
type State struct {
	stmts []string
}

func InitialState() *State {
	return &State{}
}

// ApplyStmt returns the State after stmt
func (s *State) ApplyStmt(stmt string) *State {
	stmts := make([]string, len(s.stmts), len(s.stmts)+1)
	copy(stmts, s.stmts)
	return &State{stmts: append(stmts, stmt)}
}

// Version is the number of statements applied
func (s *State) Version() int {
	return len(s.stmts)
}

// Migrate brings db up to target, applying only the statements it has not seen.
func Migrate(ctx context.Context, db *sqlx.DB, target *State) error {
	return dbutil.DoTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`); err != nil {
			return err
		}
		var versions []int
		if err := tx.SelectContext(ctx, &versions, `SELECT version FROM schema_version`); err != nil {
			return err
		}
		current := 0
		if len(versions) > 0 {
			current = versions[0]
		}
		if current > target.Version() {
			return fmt.Errorf("database schema version %d is newer than %d", current, target.Version())
		}
		for i := current; i < target.Version(); i++ {
			if _, err := tx.ExecContext(ctx, target.stmts[i]); err != nil {
				return fmt.Errorf("applying migration %d: %w", i, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, target.Version())
		return err
	})
}
