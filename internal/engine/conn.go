// Package engine - connections and prepared statements
//
// What: The session layer: a Host shares one storage.DB between
//      connections; each Conn prepares statements, steps them row by row,
//      and brackets writes in explicit or implicit transactions.
// How: Writes run against a shadow clone of the database and commit by
//      folding the written tables back into the shared catalog, so readers
//      on other connections keep a consistent snapshot until the fold. The
//      write lock is try-only: contention surfaces as Busy, never as
//      blocking.
// Why: Prepared statements need a suspension-friendly surface (Step returns
//      Row/Done/Busy/Interrupt) that the one-shot Execute entry point
//      cannot give, and transactions need a single owner for rollback.
package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nvx-labs/litesql/internal/dberr"
	"github.com/nvx-labs/litesql/internal/storage"
	"github.com/nvx-labs/litesql/internal/vdbe"
)

// StepResult re-exports the VM's step outcome for callers that never touch
// the vdbe package directly.
type StepResult = vdbe.StepResult

// Step outcomes.
const (
	StepRow       = vdbe.StepRow
	StepDone      = vdbe.StepDone
	StepIO        = vdbe.StepIO
	StepInterrupt = vdbe.StepInterrupt
	StepBusy      = vdbe.StepBusy
)

// Host owns the shared database state one or more connections operate on.
type Host struct {
	mu        sync.RWMutex
	db        *storage.DB
	writeBusy atomic.Bool
}

// NewHost wraps db for connection access.
func NewHost(db *storage.DB) *Host { return &Host{db: db} }

// DB returns the current shared database snapshot.
func (h *Host) DB() *storage.DB {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.db
}

// tryWriteLock acquires the single-writer lock without blocking.
func (h *Host) tryWriteLock() bool { return h.writeBusy.CompareAndSwap(false, true) }

func (h *Host) writeUnlock() { h.writeBusy.Store(false) }

// Connect opens a new session on the host for the given tenant.
func (h *Host) Connect(tenant string) *Conn {
	if tenant == "" {
		tenant = "default"
	}
	return &Conn{
		host:   h,
		tenant: tenant,
		id:     uuid.NewString(),
		cache:  NewQueryCache(256),
	}
}

// Conn is a single-threaded session: prepared statements, the optional
// active transaction, and the interrupt flag live here.
type Conn struct {
	host   *Host
	tenant string
	id     string // diagnostic identity, surfaced in error messages
	cache  *QueryCache

	interrupted atomic.Bool

	mu         sync.Mutex
	inTx       bool
	txReadOnly bool
	shadow     *storage.DB
	writeSet   map[string]int // table -> Version at shadow creation
	autoShadow *storage.DB    // implicit-transaction shadow during one Step
}

// ID returns the connection's diagnostic identity.
func (c *Conn) ID() string { return c.id }

// Interrupt raises the interrupt flag. The flag is polled between VM
// instructions; the active statement returns StepInterrupt and any open
// transaction rolls back.
func (c *Conn) Interrupt() { c.interrupted.Store(true) }

// ClearInterrupt lowers the flag so the connection is usable again.
func (c *Conn) ClearInterrupt() { c.interrupted.Store(false) }

// execDB returns the database statements should run against right now:
// the explicit-transaction shadow, an in-flight implicit shadow, or the
// shared database.
func (c *Conn) execDB() *storage.DB {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inTx && c.shadow != nil {
		return c.shadow
	}
	if c.autoShadow != nil {
		return c.autoShadow
	}
	return c.host.DB()
}

// stmtKind classifies how a prepared statement executes.
type stmtKind int

const (
	kindProgram     stmtKind = iota // compiled at prepare time
	kindMaterialize                 // tree-walk at first Step, then scan
	kindBegin
	kindCommit
	kindRollback
)

// Stmt is a prepared statement: an immutable compiled program (or a recipe
// for building one) plus the VM running it. Owned by its connection.
type Stmt struct {
	c    *Conn
	sql  string
	ast  Statement
	kind stmtKind

	prog *vdbe.Program
	vm   *vdbe.VM

	writes    bool
	meta      bool   // catalog-only statement: runs against the shared DB
	target    string // table written by a DML statement, if known
	row       []any
	cols      []string
	done      bool
	finalized bool
}

// Prepare parses sql (through the statement cache) and compiles it.
func (c *Conn) Prepare(ctx context.Context, sql string) (*Stmt, error) {
	cq, err := c.cache.Compile(sql)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeParse, err, "prepare")
	}
	st := &Stmt{c: c, sql: sql, ast: cq.Statement}

	src := dbSource(c.execDB)
	envFn := func() ExecEnv {
		return ExecEnv{ctx: context.Background(), tenant: c.tenant, db: c.execDB()}
	}

	switch s := cq.Statement.(type) {
	case *BeginTxn:
		st.kind = kindBegin
	case *CommitTxn:
		st.kind = kindCommit
	case *RollbackTxn:
		st.kind = kindRollback
	case *Select:
		if canCompileSelect(s) {
			prog, err := emitSelectScan(src, c.tenant, sql, s, envFn)
			if err == nil {
				st.kind = kindProgram
				st.prog = prog
				break
			}
		}
		st.kind = kindMaterialize
	case *Insert:
		st.writes = true
		st.target = s.Table
		if prog, err := emitInsertValues(src, c.tenant, sql, s, envFn); err == nil {
			st.kind = kindProgram
			st.prog = prog
		} else {
			st.kind = kindMaterialize
		}
	case *Update:
		st.writes = true
		st.target = s.Table
		prog, err := emitUpdate(src, c.tenant, sql, s, envFn)
		if err != nil {
			return nil, err
		}
		st.kind = kindProgram
		st.prog = prog
	case *Delete:
		st.writes = true
		st.target = s.Table
		prog, err := emitDelete(src, c.tenant, sql, s, envFn)
		if err != nil {
			return nil, err
		}
		st.kind = kindProgram
		st.prog = prog
	default:
		st.kind = kindMaterialize
		st.writes = statementWrites(cq.Statement)
		st.meta = statementIsMeta(cq.Statement)
		st.target = writeTarget(cq.Statement)
	}
	return st, nil
}

// statementIsMeta reports whether st writes only catalog or session
// metadata — jobs, indexes, views, settable PRAGMAs. These run against the
// shared database directly: a transaction shadow's catalog is discarded at
// commit, so routing them through it would silently drop the change.
func statementIsMeta(st Statement) bool {
	switch s := st.(type) {
	case *CreateJob, *AlterJob, *DropJob, *CreateIndex, *DropIndex,
		*CreateView, *DropView:
		return true
	case *Pragma:
		return s.Set
	}
	return false
}

// statementWrites reports whether st mutates the database.
func statementWrites(st Statement) bool {
	switch s := st.(type) {
	case *Insert, *Update, *Delete, *CreateTable, *DropTable, *CreateIndex,
		*DropIndex, *CreateView, *DropView, *AlterTable, *CreateJob,
		*AlterJob, *DropJob:
		return true
	case *Pragma:
		return s.Set
	}
	return false
}

func writeTarget(st Statement) string {
	switch s := st.(type) {
	case *Insert:
		return s.Table
	case *Update:
		return s.Table
	case *Delete:
		return s.Table
	case *CreateTable:
		return s.Name
	case *DropTable:
		return s.Name
	case *AlterTable:
		return s.Table
	}
	return ""
}

// SQL returns the original statement text.
func (s *Stmt) SQL() string { return s.sql }

// Cols returns the result column names, available after the first Step for
// materialized statements and immediately for compiled scans.
func (s *Stmt) Cols() []string {
	if s.prog != nil {
		return s.prog.ResultCols
	}
	return s.cols
}

// Row returns the current result row's values in column order. Valid until
// the next Step.
func (s *Stmt) Row() []any { return s.row }

// RowMap returns the current row keyed by column name.
func (s *Stmt) RowMap() Row {
	m := Row{}
	for i, c := range s.Cols() {
		if i < len(s.row) {
			m[c] = s.row[i]
		}
	}
	return m
}

// Step advances the statement: it returns StepRow with a row ready,
// StepDone when execution finished, StepBusy when the write lock is
// contended, or StepInterrupt when the connection was interrupted.
func (s *Stmt) Step(ctx context.Context) (StepResult, error) {
	if s.finalized {
		return StepDone, dberr.New(dberr.CodeInternal, "step on finalized statement")
	}
	if s.c.interrupted.Load() {
		s.c.rollbackOnInterrupt()
		return StepInterrupt, dberr.New(dberr.CodeInterrupt, "connection %s interrupted", s.c.id)
	}
	if s.done {
		return StepDone, nil
	}

	switch s.kind {
	case kindBegin:
		s.done = true
		if err := s.c.Begin(false); err != nil {
			return StepDone, err
		}
		return StepDone, nil
	case kindCommit:
		s.done = true
		if err := s.c.Commit(); err != nil {
			return StepDone, err
		}
		return StepDone, nil
	case kindRollback:
		s.done = true
		if err := s.c.Rollback(); err != nil {
			return StepDone, err
		}
		return StepDone, nil
	}

	if s.writes {
		if s.meta {
			return s.stepMeta(ctx)
		}
		return s.stepWrite(ctx)
	}
	return s.stepRead(ctx)
}

// stepMeta applies a catalog-only statement to the shared database under
// the write lock, bypassing any transaction shadow. Like most engines'
// DDL, these changes are not transactional: they take effect immediately
// and survive a surrounding ROLLBACK.
func (s *Stmt) stepMeta(ctx context.Context) (StepResult, error) {
	c := s.c
	if !c.host.tryWriteLock() {
		return StepBusy, dberr.New(dberr.CodeBusy, "write lock busy (connection %s)", c.id)
	}
	defer c.host.writeUnlock()

	if s.vm == nil {
		rs, err := Execute(ctx, c.host.DB(), c.tenant, s.ast)
		if err != nil {
			return StepDone, classifyExecError(err)
		}
		prog, err := emitResultScan(s.sql, rs)
		if err != nil {
			return StepDone, err
		}
		if rs != nil {
			s.cols = rs.Cols
		}
		s.prog = prog
		s.vm = vdbe.NewVM(ctx, prog)
	}
	res, err := s.vm.Step()
	return s.deliver(res, err)
}

func (s *Stmt) stepRead(ctx context.Context) (StepResult, error) {
	if err := s.ensureVM(ctx); err != nil {
		return StepDone, err
	}
	res, err := s.vm.Step()
	return s.deliver(res, err)
}

// stepWrite runs the whole program inside one Step call: DML yields no rows,
// so the first VM step runs to Done. Outside an explicit transaction the
// write gets an implicit one: shadow, run, publish, with errors discarding
// the shadow untouched.
func (s *Stmt) stepWrite(ctx context.Context) (StepResult, error) {
	c := s.c
	c.mu.Lock()
	inTx := c.inTx
	readOnly := c.txReadOnly
	c.mu.Unlock()

	if inTx {
		if readOnly {
			return StepDone, dberr.New(dberr.CodeInternal, "write in a read-only transaction")
		}
		c.faultInTxTable(s.target)
		if err := s.ensureVM(ctx); err != nil {
			return StepDone, err
		}
		res, err := s.vm.Step()
		if err == nil && s.target != "" {
			c.noteWrite(s.target)
		}
		return s.deliver(res, err)
	}

	// Implicit transaction.
	if !c.host.tryWriteLock() {
		return StepBusy, dberr.New(dberr.CodeBusy, "write lock busy (connection %s)", c.id)
	}
	defer c.host.writeUnlock()

	shared := c.host.DB()
	var shadow *storage.DB
	if s.target != "" {
		// Force lazily-stored tables into memory so the clone sees them.
		_, _ = shared.Get(c.tenant, s.target)
		shadow = shared.ShallowCloneForTable(c.tenant, s.target)
	} else {
		shadow = shared.DeepClone()
	}
	c.mu.Lock()
	c.autoShadow = shadow
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.autoShadow = nil
		c.mu.Unlock()
	}()

	if err := s.ensureVM(ctx); err != nil {
		return StepDone, err
	}
	res, err := s.vm.Step()
	if err != nil {
		s.done = true
		return StepDone, err // shadow discarded; shared db untouched
	}
	c.publish(shared, shadow, s.target)
	return s.deliver(res, nil)
}

// publish folds the written table from the shadow back into the shared
// database and logs the delta to the row-level WAL when one is attached.
// The shared DB keeps its backend, catalog, and MVCC manager; only table
// contents move. Caller holds the write lock.
func (c *Conn) publish(shared, shadow *storage.DB, target string) {
	changes := storage.CollectWALChanges(shared, shadow)
	if wal := shared.WAL(); wal != nil && len(changes) > 0 {
		if needCP, err := wal.LogTransaction(changes); err == nil && needCP {
			_ = wal.Checkpoint(shadow)
		}
	}
	if target != "" {
		c.mergeTable(shared, shadow, target)
		return
	}
	// No single target (DDL batches, settable PRAGMAs): fold every table
	// the statement created or whose version moved in the shadow, and drop
	// the ones that disappeared. Pointer identity is useless here because
	// the clone fresh-allocates every table.
	for _, t := range shadow.ListTables(c.tenant) {
		if cur, err := shared.Get(c.tenant, t.Name); err != nil || cur.Version != t.Version {
			c.mergeTable(shared, shadow, t.Name)
		}
	}
	for _, t := range shared.ListTables(c.tenant) {
		if _, err := shadow.Get(c.tenant, t.Name); err != nil {
			_ = shared.Drop(c.tenant, t.Name)
		}
	}
}

// mergeTable moves one table from shadow into shared, bumping its version
// for commit-time conflict detection. A table missing from the shadow was
// dropped.
func (c *Conn) mergeTable(shared, shadow *storage.DB, table string) {
	t, err := shadow.Get(c.tenant, table)
	if err != nil {
		_ = shared.Drop(c.tenant, table)
		return
	}
	t.Version++
	_ = shared.Replace(c.tenant, t)
}

func (s *Stmt) deliver(res StepResult, err error) (StepResult, error) {
	if err != nil {
		s.done = true
		return StepDone, err
	}
	switch res {
	case StepRow:
		vals := s.vm.Row()
		s.row = make([]any, len(vals))
		for i, v := range vals {
			s.row[i] = v.Any()
		}
		return StepRow, nil
	case StepDone:
		s.done = true
		return StepDone, nil
	case StepBusy:
		return StepBusy, nil
	case StepInterrupt:
		s.c.rollbackOnInterrupt()
		s.done = true
		return StepInterrupt, dberr.New(dberr.CodeInterrupt, "connection %s interrupted", s.c.id)
	}
	return res, nil
}

// ensureVM builds the program (materializing through the tree-walking
// evaluator when needed) and the VM on first use.
func (s *Stmt) ensureVM(ctx context.Context) error {
	if s.vm != nil {
		return nil
	}
	if s.prog == nil {
		rs, err := Execute(ctx, s.c.execDB(), s.c.tenant, s.ast)
		if err != nil {
			return classifyExecError(err)
		}
		prog, err := emitResultScan(s.sql, rs)
		if err != nil {
			return err
		}
		if rs != nil {
			s.cols = rs.Cols
		}
		if s.kind == kindMaterialize && s.writes {
			// The tree-walker already applied the side effect during
			// materialization; the scan program only reports rows.
			if s.target != "" {
				s.c.noteWrite(s.target)
			}
		}
		s.prog = prog
	}
	s.vm = vdbe.NewVM(ctx, s.prog)
	return nil
}

func classifyExecError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unknown table") || strings.Contains(msg, "unknown column") ||
		strings.Contains(msg, "no such table"):
		return dberr.Wrap(dberr.CodeSchema, err, "execute")
	case strings.Contains(msg, "division by zero"):
		return dberr.Wrap(dberr.CodeConstraint, err, "execute")
	default:
		return err
	}
}

// Reset rewinds the statement so it can run again. Materialized statements
// re-materialize on the next Step.
func (s *Stmt) Reset() {
	s.vm = nil
	s.row = nil
	s.done = false
	if s.kind == kindMaterialize {
		s.prog = nil
		s.cols = nil
	}
}

// Finalize releases the statement. Further Steps fail.
func (s *Stmt) Finalize() {
	s.finalized = true
	s.vm = nil
	s.prog = nil
}

// ── Transactions ──────────────────────────────────────────────────────────

// Begin opens an explicit transaction backed by a shadow clone of the
// shared database. Reads and writes inside the transaction see the shadow.
func (c *Conn) Begin(readOnly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inTx {
		return dberr.New(dberr.CodeInternal, "transaction already active on connection %s", c.id)
	}
	shared := c.host.DB()
	c.shadow = shared.DeepClone()
	c.inTx = true
	c.txReadOnly = readOnly
	c.writeSet = map[string]int{}
	return nil
}

// noteWrite records the pre-transaction version of a written table, for
// first-committer-wins conflict detection at commit.
func (c *Conn) noteWrite(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inTx || c.writeSet == nil {
		return
	}
	key := strings.ToLower(table)
	if _, seen := c.writeSet[key]; seen {
		return
	}
	ver := 0
	if t, err := c.host.DB().Get(c.tenant, table); err == nil {
		ver = t.Version
	}
	c.writeSet[key] = ver
}

// Commit publishes the transaction's shadow. If another connection
// committed a write to any table this transaction also wrote, the commit
// fails with WriteConflict and the transaction rolls back.
func (c *Conn) Commit() error {
	c.mu.Lock()
	if !c.inTx {
		c.mu.Unlock()
		return dberr.New(dberr.CodeInternal, "commit without active transaction")
	}
	shadow := c.shadow
	writeSet := c.writeSet
	c.mu.Unlock()

	if !c.host.tryWriteLock() {
		return dberr.New(dberr.CodeBusy, "write lock busy (connection %s)", c.id)
	}
	defer c.host.writeUnlock()

	shared := c.host.DB()
	for table, baseVer := range writeSet {
		if t, err := shared.Get(c.tenant, table); err == nil && t.Version != baseVer {
			c.Rollback()
			return dberr.New(dberr.CodeWriteConflict, "table %s modified since transaction start", table)
		}
	}

	if len(writeSet) > 0 {
		changes := storage.CollectWALChanges(shared, shadow)
		if wal := shared.WAL(); wal != nil && len(changes) > 0 {
			if needCP, err := wal.LogTransaction(changes); err == nil && needCP {
				_ = wal.Checkpoint(shadow)
			}
		}
		// Fold only the tables this transaction wrote; everything else
		// in the shadow is a stale snapshot that must not clobber
		// concurrent commits.
		for table := range writeSet {
			c.mergeTable(shared, shadow, table)
		}
	}

	c.mu.Lock()
	c.inTx = false
	c.shadow = nil
	c.writeSet = nil
	c.txReadOnly = false
	c.mu.Unlock()
	return nil
}

// Rollback discards the transaction's shadow.
func (c *Conn) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inTx = false
	c.shadow = nil
	c.writeSet = nil
	c.txReadOnly = false
	return nil
}

// faultInTxTable copies a lazily-stored table into the transaction shadow
// when the shadow was cloned before the table was ever loaded.
func (c *Conn) faultInTxTable(table string) {
	if table == "" {
		return
	}
	c.mu.Lock()
	shadow := c.shadow
	c.mu.Unlock()
	if shadow == nil {
		return
	}
	if _, err := shadow.Get(c.tenant, table); err == nil {
		return
	}
	if t, err := c.host.DB().Get(c.tenant, table); err == nil {
		_ = shadow.Replace(c.tenant, t.Clone())
	}
}

func (c *Conn) rollbackOnInterrupt() {
	c.mu.Lock()
	active := c.inTx
	c.mu.Unlock()
	if active {
		_ = c.Rollback()
	}
}

// InTx reports whether an explicit transaction is active.
func (c *Conn) InTx() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inTx
}

// ── Convenience execution ─────────────────────────────────────────────────

// ExecuteSQL prepares sql and steps it to completion, collecting any rows.
func (c *Conn) ExecuteSQL(ctx context.Context, sql string) (*ResultSet, error) {
	st, err := c.Prepare(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer st.Finalize()

	rs := &ResultSet{}
	for {
		res, err := st.Step(ctx)
		if err != nil {
			return nil, err
		}
		switch res {
		case StepRow:
			rs.Cols = st.Cols()
			rs.Rows = append(rs.Rows, st.RowMap())
		case StepDone:
			if rs.Cols == nil {
				rs.Cols = st.Cols()
			}
			return rs, nil
		case StepBusy:
			return nil, dberr.New(dberr.CodeBusy, "write lock busy (connection %s)", c.id)
		case StepInterrupt:
			return nil, dberr.New(dberr.CodeInterrupt, "connection %s interrupted", c.id)
		}
	}
}
