package tinysql

import (
	"context"
	"sync"

	"github.com/nvx-labs/litesql/internal/engine"
	"github.com/nvx-labs/litesql/internal/storage"
)

// Database is a shared database instance connections attach to. Open one
// per file (or one per process for an in-memory database) and call Connect
// for each session.
type Database struct {
	host *engine.Host

	schedMu   sync.Mutex
	scheduler *storage.Scheduler
}

// Connection is a single-threaded session: it prepares statements, steps
// them, and owns the optional active transaction.
type Connection = engine.Conn

// Stmt is a prepared statement. Step it until Done, read rows with Row or
// RowMap between steps, Reset to run again, Finalize to release.
type Stmt = engine.Stmt

// StepResult reports the outcome of one Stmt.Step call.
type StepResult = engine.StepResult

// Step outcomes. Row means a result row is ready; Done means execution
// finished; Busy means the write lock is contended and the caller should
// retry; Interrupt means the connection's interrupt flag was raised.
const (
	StepRow       = engine.StepRow
	StepDone      = engine.StepDone
	StepIO        = engine.StepIO
	StepInterrupt = engine.StepInterrupt
	StepBusy      = engine.StepBusy
)

// Open opens (or creates) a disk-backed database at path, using the paged
// single-file format with WAL crash recovery.
func Open(path string) (*Database, error) {
	db, err := storage.OpenDB(storage.StorageConfig{Mode: storage.ModePaged, Path: path})
	if err != nil {
		return nil, err
	}
	return &Database{host: engine.NewHost(db)}, nil
}

// OpenMemory creates a fresh in-memory database.
func OpenMemory() *Database {
	return &Database{host: engine.NewHost(storage.NewDB())}
}

// OpenWith wraps an already-opened DB (any storage mode) for connection
// access.
func OpenWith(db *storage.DB) *Database {
	return &Database{host: engine.NewHost(db)}
}

// Connect opens a new session on the default tenant.
func (d *Database) Connect() *Connection { return d.host.Connect("default") }

// ConnectTenant opens a new session scoped to the named tenant.
func (d *Database) ConnectTenant(tenant string) *Connection {
	return d.host.Connect(tenant)
}

// DB exposes the underlying storage handle for import/export helpers.
func (d *Database) DB() *storage.DB { return d.host.DB() }

// Close flushes and closes the underlying storage.
func (d *Database) Close() error { return d.host.DB().Close() }

// ExecuteSQL is a convenience that connects, runs one statement to
// completion, and returns its rows.
func (d *Database) ExecuteSQL(ctx context.Context, sql string) (*ResultSet, error) {
	return d.Connect().ExecuteSQL(ctx, sql)
}

// jobRunner adapts a Connection to the storage.JobExecutor seam so catalog
// jobs execute their SQL through the same session layer as everything else.
type jobRunner struct {
	conn *Connection
}

func (r jobRunner) ExecuteSQL(ctx context.Context, sql string) (any, error) {
	return r.conn.ExecuteSQL(ctx, sql)
}

// StartJobScheduler starts the catalog job scheduler (CREATE JOB / ALTER
// JOB / DROP JOB) against this database, running job SQL on a dedicated
// connection. Returns the scheduler so the caller can Stop it; a second
// call returns the same instance.
func (d *Database) StartJobScheduler() (*storage.Scheduler, error) {
	d.schedMu.Lock()
	defer d.schedMu.Unlock()
	if d.scheduler != nil {
		return d.scheduler, nil
	}
	s := storage.NewScheduler(d.host.DB(), jobRunner{conn: d.Connect()})
	if err := s.Start(); err != nil {
		return nil, err
	}
	d.scheduler = s
	return s, nil
}

// StopJobScheduler halts the job scheduler if one was started.
func (d *Database) StopJobScheduler() {
	d.schedMu.Lock()
	defer d.schedMu.Unlock()
	if d.scheduler != nil {
		d.scheduler.Stop()
		d.scheduler = nil
	}
}
