// Package database opens the SQLite file behind the command journal and
// applies its schema.
//
// The handle is capped at one connection: the journal writer is the only
// writer and the status API reads are short. With WAL enabled, Checkpoint
// truncates the write-ahead log, which the journal calls after pruning so
// the data partition gets its space back.
//
// Migrations are YYYYMMDD_HHMMSS_name.up.sql files, optionally paired with
// a .down.sql, read from any fs.FS:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
