// Package storage provides SQLite-based persistence for recorded job runs.
//
// Each run is stored once per (job name, slurm id) pair together with the
// command that ran, its observed memory and runtime, and every extracted
// feature. Feature values are stored as JSON so lists from file parsers
// round trip unchanged.
//
// # Database Schema
//
// Tables:
//   - jobs: one row per run, unique on (job_name, slurm_id)
//   - features: feature key, kind (numerical or categorical) and JSON value
//   - schema_version: applied migrations, compared with semver
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("jobfeat.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	job, err := db.RecordJob(ctx, data)
//
//	// Runs of the same job with identical categorical features
//	similar, err := db.QueryJobs(ctx, data)
//
// # Transactions
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	for _, data := range batch {
//	    if _, err := tx.RecordJob(ctx, data); err != nil {
//	        return err
//	    }
//	}
//	return tx.Commit()
//
// # Build Tags
//
// The default build uses modernc.org/sqlite and needs no C compiler. Building
// with the sqlite_cgo tag switches to github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...
package storage
