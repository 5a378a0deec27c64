// Package database provides the SQLite connection used by the state
// history module.
//
// This package manages:
//   - The connection, with WAL mode and a busy timeout set through the DSN
//   - Versioned schema migrations read from an fs.FS
//   - Health checks and lifecycle
//
// All queries use parameterised statements. The database file is created
// with mode 0600.
//
// Usage:
//
//	db, err := database.Open(cfg)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a
// default, and each .up.sql has a matching .down.sql.
package database
