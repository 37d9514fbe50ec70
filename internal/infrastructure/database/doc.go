// Package database is DeskPilot's SQLite store.
//
// It holds the persistent part of the global name table (name_values) and
// the schema_migrations bookkeeping. Migration files are named
// YYYYMMDD_HHMMSS_description.{up,down}.sql, registered by the top-level
// migrations package, and applied oldest first, one transaction each.
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
