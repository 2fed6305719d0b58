// Package database provides SQLite connectivity for the gateway's local
// history: telemetry samples, the command log and device alerts.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Versioned up/down migrations read from an fs.FS
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
