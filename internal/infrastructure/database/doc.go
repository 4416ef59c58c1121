// Package database provides SQLite connectivity for the Dirigera bridge.
//
// The bridge stores the entities it has registered and a log of discovery
// attempts. On restart the entity table seeds the discovery coordinator's
// known-device set, so devices are not registered twice.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations read from an fs.FS (see the migrations package)
//   - Connection pooling and lifecycle management
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
