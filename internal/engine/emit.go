// Package engine - bytecode emission
//
// What: Translates parsed statements into vdbe.Programs: a cursor-driven
//      scan loop for single-table SELECTs, a coroutine producer/consumer
//      pair for multi-row INSERTs, and predicate-filtered write loops for
//      UPDATE and DELETE.
// How: Simple statements compile to direct cursor opcodes. Statements that
//      need joins, grouping, set operations, or CTEs are routed through the
//      tree-walking evaluator and their materialized result is scanned by a
//      trivial program, so every statement is ultimately delivered through
//      the same Step loop.
// Why: A register machine gives prepared statements a stable suspension
//      model (step, yield a row, step again) that the tree-walking evaluator
//      alone cannot offer, without duplicating its expression semantics.
package engine

import (
	"fmt"
	"strings"

	"github.com/nvx-labs/litesql/internal/dberr"
	"github.com/nvx-labs/litesql/internal/storage"
	"github.com/nvx-labs/litesql/internal/vdbe"
)

// dbSource supplies the database a program should run against. Programs
// resolve it at execution time so a statement prepared before a transaction
// began still sees the transaction's shadow database.
type dbSource func() *storage.DB

// cursorBox carries the live cursor from its opener to the row-callback
// closures compiled into the same program. The opener fills it when
// OpenRead/OpenWrite executes.
type cursorBox struct {
	mem  *memTableCursor
	tbl  *storage.Table
	cols []string // lower-cased column names in table order
}

func (cb *cursorBox) currentRow() Row {
	row := Row{}
	if cb.mem == nil || !cb.mem.Valid() {
		return row
	}
	raw := cb.tbl.Rows[cb.mem.pos]
	for i, name := range cb.cols {
		if i < len(raw) {
			row[name] = raw[i]
			row[strings.ToLower(cb.tbl.Name)+"."+name] = raw[i]
		}
	}
	return row
}

func tableColNames(t *storage.Table) []string {
	names := make([]string, len(t.Cols))
	for i, c := range t.Cols {
		names[i] = strings.ToLower(c.Name)
	}
	return names
}

// canCompileSelect reports whether s is a plain single-table scan the
// emitter handles directly. Anything richer is materialized by the
// tree-walking evaluator instead.
func canCompileSelect(s *Select) bool {
	if s.Distinct || len(s.Joins) > 0 || len(s.GroupBy) > 0 || s.Having != nil ||
		len(s.OrderBy) > 0 || s.Limit != nil || s.Offset != nil ||
		s.Union != nil || len(s.CTEs) > 0 {
		return false
	}
	if s.From.Table == "" || strings.Contains(s.From.Table, "(") {
		return false
	}
	for _, p := range s.Projs {
		if p.Star {
			continue
		}
		if containsAggregate(p.Expr) {
			return false
		}
	}
	return true
}

func containsAggregate(e Expr) bool {
	switch x := e.(type) {
	case *FuncCall:
		switch strings.ToUpper(x.Name) {
		case "COUNT", "SUM", "AVG", "MIN", "MAX":
			return true
		}
		for _, a := range x.Args {
			if containsAggregate(a) {
				return true
			}
		}
	case *Unary:
		return containsAggregate(x.Expr)
	case *Binary:
		return containsAggregate(x.Left) || containsAggregate(x.Right)
	case *IsNull:
		return containsAggregate(x.Expr)
	}
	return false
}

// emitSelectScan compiles a single-table SELECT into a scan loop:
//
//	Init -> start
//	start: Transaction(read); OpenRead cur
//	Rewind cur -> done
//	loop: [predicate -> skip]; Column...; ResultRow
//	skip: Next cur -> loop
//	done: Close; Halt
func emitSelectScan(src dbSource, tenant, sql string, s *Select, ctxEnv func() ExecEnv) (*vdbe.Program, error) {
	b := vdbe.NewBuilder()
	box := &cursorBox{}
	table := s.From.Table

	opener := vdbe.CursorOpener(func() (vdbe.Cursor, int, error) {
		t, err := src().Get(tenant, table)
		if err != nil {
			return nil, 0, dberr.Wrap(dberr.CodeSchema, err, "open %s", table)
		}
		box.mem = newMemTableCursor(t)
		box.tbl = t
		box.cols = tableColNames(t)
		return box.mem, len(t.Cols), nil
	})

	// Resolve the projection list. Star expands at execution time via
	// column callbacks; explicit projections bind here.
	type proj struct {
		name   string
		colIdx int // >= 0: direct Column fetch
		expr   Expr
	}
	var projs []proj
	star := false
	for _, item := range s.Projs {
		if item.Star {
			star = true
			continue
		}
		name := item.Alias
		if name == "" {
			if v, ok := item.Expr.(*VarRef); ok {
				name = v.Name
			} else {
				name = exprDisplayName(item.Expr)
			}
		}
		projs = append(projs, proj{name: strings.ToLower(name), colIdx: -1, expr: item.Expr})
	}
	if star && len(projs) > 0 {
		return nil, dberr.New(dberr.CodeParse, "mixed * and explicit projections are not compiled; use one or the other")
	}

	// Star projections need the table schema, which is only known at open
	// time; pre-resolve against the current schema for register sizing.
	// A star scan re-resolves nothing: column order is table order.
	t, err := src().Get(tenant, table)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeSchema, err, "prepare %s", table)
	}
	if star {
		for _, c := range t.Cols {
			projs = append(projs, proj{name: strings.ToLower(c.Name), colIdx: -1})
		}
		for i := range projs {
			projs[i].colIdx = i
		}
	} else {
		for i := range projs {
			if v, ok := projs[i].expr.(*VarRef); ok {
				if idx := columnIndex(t, v.Name); idx >= 0 {
					projs[i].colIdx = idx
				}
			}
		}
	}

	cur := b.AllocCursor()
	out := b.AllocReg(len(projs))
	predReg := b.AllocReg(1)
	cols := make([]string, len(projs))
	for i, p := range projs {
		cols[i] = p.name
	}

	init := b.Emit(vdbe.Instruction{Op: vdbe.OpInit, Comment: "jump to start"})
	b.JumpToLabel(init, "start", false)
	b.Label("start")
	b.Emit(vdbe.Instruction{Op: vdbe.OpTransaction, P1: 0, Comment: "read tx"})
	b.Emit(vdbe.Instruction{Op: vdbe.OpOpenRead, P1: cur, P2: len(projs), P4: opener, Comment: "open " + table})
	rew := b.Emit(vdbe.Instruction{Op: vdbe.OpRewind, P1: cur, Comment: "scan " + table})
	b.JumpToLabel(rew, "done", false)

	b.Label("loop")
	if s.Where != nil {
		where := s.Where
		b.Emit(vdbe.Instruction{Op: vdbe.OpFunction, P3: predReg, P4: vdbe.FuncCall(func(vm *vdbe.VM) (vdbe.Value, error) {
			v, err := evalExpr(ctxEnv(), where, box.currentRow())
			if err != nil {
				return vdbe.Value{}, err
			}
			if truthy(v) {
				return vdbe.Value{Kind: vdbe.KindInteger, I: 1}, nil
			}
			return vdbe.Value{Kind: vdbe.KindInteger, I: 0}, nil
		}), Comment: "where"})
		ifz := b.Emit(vdbe.Instruction{Op: vdbe.OpIfZero, P1: predReg, Comment: "skip row"})
		b.JumpToLabel(ifz, "skip", false)
	}
	for i, p := range projs {
		if p.colIdx >= 0 {
			b.Emit(vdbe.Instruction{Op: vdbe.OpColumn, P1: cur, P2: p.colIdx, P3: out + i, Comment: p.name})
		} else {
			expr := p.expr
			b.Emit(vdbe.Instruction{Op: vdbe.OpFunction, P3: out + i, P4: vdbe.FuncCall(func(vm *vdbe.VM) (vdbe.Value, error) {
				v, err := evalExpr(ctxEnv(), expr, box.currentRow())
				if err != nil {
					return vdbe.Value{}, err
				}
				return vdbe.FromAnyPreserveFloat(v), nil
			}), Comment: p.name})
		}
	}
	b.Emit(vdbe.Instruction{Op: vdbe.OpResultRow, P1: out, P2: len(projs)})
	b.Label("skip")
	next := b.Emit(vdbe.Instruction{Op: vdbe.OpNext, P1: cur})
	b.JumpToLabel(next, "loop", false)
	b.Label("done")
	b.Emit(vdbe.Instruction{Op: vdbe.OpClose, P1: cur})
	b.Emit(vdbe.Instruction{Op: vdbe.OpHalt})

	return b.Finish(sql, cols)
}

func columnIndex(t *storage.Table, name string) int {
	name = strings.ToLower(name)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	for i, c := range t.Cols {
		if strings.ToLower(c.Name) == name {
			return i
		}
	}
	return -1
}

func exprDisplayName(e Expr) string {
	switch x := e.(type) {
	case *VarRef:
		return x.Name
	case *FuncCall:
		return strings.ToLower(x.Name)
	default:
		return "expr"
	}
}

// emitInsertValues compiles a literal multi-row INSERT as a coroutine: the
// producer evaluates one row of VALUES per activation and yields; the
// consumer inserts the yielded registers and re-enters the producer until
// the row counter runs out.
//
//	Init -> start
//	start: Transaction(write); OpenWrite cur
//	InitCoroutine yld -> producer
//	consume: Yield yld            (transfers to producer)
//	         Insert cur           (producer yielded a row)
//	         DecrJumpPos rows -> consume
//	         Goto done
//	producer: Function(evaluate row i) ...; Yield yld
//	done: Close; Halt
func emitInsertValues(src dbSource, tenant, sql string, s *Insert, ctxEnv func() ExecEnv) (*vdbe.Program, error) {
	b := vdbe.NewBuilder()
	box := &cursorBox{}
	table := s.Table

	opener := vdbe.CursorOpener(func() (vdbe.Cursor, int, error) {
		t, err := src().Get(tenant, table)
		if err != nil {
			return nil, 0, dberr.Wrap(dberr.CodeSchema, err, "open %s", table)
		}
		box.mem = newMemTableCursor(t)
		box.tbl = t
		box.cols = tableColNames(t)
		return box.mem, len(t.Cols), nil
	})

	t, err := src().Get(tenant, table)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeSchema, err, "prepare insert into %s", table)
	}
	nCols := len(t.Cols)

	// Map VALUES positions onto table column order.
	colOrder := make([]int, 0, nCols)
	if len(s.Cols) == 0 {
		for i := 0; i < nCols; i++ {
			colOrder = append(colOrder, i)
		}
	} else {
		for _, name := range s.Cols {
			idx := columnIndex(t, name)
			if idx < 0 {
				return nil, dberr.New(dberr.CodeSchema, "unknown column %q in insert into %s", name, table)
			}
			colOrder = append(colOrder, idx)
		}
	}
	for _, row := range s.Rows {
		if len(row) != len(colOrder) {
			return nil, dberr.New(dberr.CodeParse, "insert into %s: %d values for %d columns", table, len(row), len(colOrder))
		}
	}

	cur := b.AllocCursor()
	rowRegs := b.AllocReg(nCols)
	rowidReg := b.AllocReg(1)
	counterReg := b.AllocReg(1)
	yieldReg := b.AllocReg(1)

	rows := s.Rows
	rowIdx := 0 // producer closure state, reset when the program re-runs

	init := b.Emit(vdbe.Instruction{Op: vdbe.OpInit, Comment: "jump to start"})
	b.JumpToLabel(init, "start", false)
	b.Label("start")
	b.Emit(vdbe.Instruction{Op: vdbe.OpTransaction, P1: 1, Comment: "write tx"})
	b.Emit(vdbe.Instruction{Op: vdbe.OpOpenWrite, P1: cur, P2: nCols, P4: opener, Comment: "open " + table})
	b.Emit(vdbe.Instruction{Op: vdbe.OpInteger, P1: len(rows), P2: counterReg, Comment: "row count"})
	b.Emit(vdbe.Instruction{Op: vdbe.OpFunction, P3: rowidReg, P4: vdbe.FuncCall(func(vm *vdbe.VM) (vdbe.Value, error) {
		rowIdx = 0
		return vdbe.Value{Kind: vdbe.KindInteger, I: -1}, nil
	}), Comment: "reset producer"})
	initco := b.Emit(vdbe.Instruction{Op: vdbe.OpInitCoroutine, P1: yieldReg, Comment: "values producer"})
	b.JumpToLabel(initco, "producer", false)

	b.Label("consume")
	b.Emit(vdbe.Instruction{Op: vdbe.OpYield, P1: yieldReg, Comment: "next values row"})
	b.Emit(vdbe.Instruction{Op: vdbe.OpInsert, P1: cur, P2: rowidReg, P3: rowRegs, P4: nCols, Comment: "append row"})
	decr := b.Emit(vdbe.Instruction{Op: vdbe.OpIfPos, P1: counterReg, P3: 1, Comment: "more rows?"})
	b.JumpToLabel(decr, "consume", false)
	gotoDone := b.Emit(vdbe.Instruction{Op: vdbe.OpGoto})
	b.JumpToLabel(gotoDone, "done", false)

	b.Label("producer")
	b.Emit(vdbe.Instruction{Op: vdbe.OpFunction, P3: rowidReg, P4: vdbe.FuncCall(func(vm *vdbe.VM) (vdbe.Value, error) {
		if rowIdx >= len(rows) {
			return vdbe.Value{Kind: vdbe.KindInteger, I: -1}, nil
		}
		exprs := rows[rowIdx]
		rowIdx++
		vals := make([]vdbe.Value, nCols)
		for i := range vals {
			vals[i] = vdbe.Value{Kind: vdbe.KindNull}
		}
		for pos, e := range exprs {
			v, err := evalExpr(ctxEnv(), e, Row{})
			if err != nil {
				return vdbe.Value{}, err
			}
			vals[colOrder[pos]] = vdbe.FromAnyPreserveFloat(v)
		}
		for i, v := range vals {
			vm.SetReg(rowRegs+i, v)
		}
		return vdbe.Value{Kind: vdbe.KindInteger, I: -1}, nil
	}), Comment: "evaluate values row"})
	b.Emit(vdbe.Instruction{Op: vdbe.OpYield, P1: yieldReg, Comment: "hand row to consumer"})
	loopBack := b.Emit(vdbe.Instruction{Op: vdbe.OpGoto})
	b.JumpToLabel(loopBack, "producer", false)

	b.Label("done")
	b.Emit(vdbe.Instruction{Op: vdbe.OpClose, P1: cur})
	b.Emit(vdbe.Instruction{Op: vdbe.OpHalt})

	return b.Finish(sql, nil)
}

// emitDelete compiles DELETE as a predicate-filtered scan. After OpDelete
// the cursor already rests on the successor row, so the loop re-enters at
// the predicate via IfValid instead of advancing.
func emitDelete(src dbSource, tenant, sql string, s *Delete, ctxEnv func() ExecEnv) (*vdbe.Program, error) {
	b := vdbe.NewBuilder()
	box := &cursorBox{}
	table := s.Table

	opener := vdbe.CursorOpener(func() (vdbe.Cursor, int, error) {
		t, err := src().Get(tenant, table)
		if err != nil {
			return nil, 0, dberr.Wrap(dberr.CodeSchema, err, "open %s", table)
		}
		box.mem = newMemTableCursor(t)
		box.tbl = t
		box.cols = tableColNames(t)
		return box.mem, len(t.Cols), nil
	})

	cur := b.AllocCursor()
	predReg := b.AllocReg(1)

	init := b.Emit(vdbe.Instruction{Op: vdbe.OpInit})
	b.JumpToLabel(init, "start", false)
	b.Label("start")
	b.Emit(vdbe.Instruction{Op: vdbe.OpTransaction, P1: 1, Comment: "write tx"})
	b.Emit(vdbe.Instruction{Op: vdbe.OpOpenWrite, P1: cur, P4: opener, Comment: "open " + table})
	rew := b.Emit(vdbe.Instruction{Op: vdbe.OpRewind, P1: cur})
	b.JumpToLabel(rew, "done", false)

	b.Label("loop")
	if s.Where != nil {
		where := s.Where
		b.Emit(vdbe.Instruction{Op: vdbe.OpFunction, P3: predReg, P4: vdbe.FuncCall(func(vm *vdbe.VM) (vdbe.Value, error) {
			v, err := evalExpr(ctxEnv(), where, box.currentRow())
			if err != nil {
				return vdbe.Value{}, err
			}
			if truthy(v) {
				return vdbe.Value{Kind: vdbe.KindInteger, I: 1}, nil
			}
			return vdbe.Value{Kind: vdbe.KindInteger, I: 0}, nil
		}), Comment: "where"})
		ifz := b.Emit(vdbe.Instruction{Op: vdbe.OpIfZero, P1: predReg, Comment: "keep row"})
		b.JumpToLabel(ifz, "skip", false)
	}
	b.Emit(vdbe.Instruction{Op: vdbe.OpDelete, P1: cur, Comment: "remove row"})
	// The deleted row's successor slid under the cursor; loop without Next.
	iv := b.Emit(vdbe.Instruction{Op: vdbe.OpIfValid, P1: cur})
	b.JumpToLabel(iv, "loop", false)
	g := b.Emit(vdbe.Instruction{Op: vdbe.OpGoto})
	b.JumpToLabel(g, "done", false)

	b.Label("skip")
	next := b.Emit(vdbe.Instruction{Op: vdbe.OpNext, P1: cur})
	b.JumpToLabel(next, "loop", false)
	b.Label("done")
	b.Emit(vdbe.Instruction{Op: vdbe.OpClose, P1: cur})
	b.Emit(vdbe.Instruction{Op: vdbe.OpHalt})

	return b.Finish(sql, nil)
}

// emitUpdate compiles UPDATE as a scan whose body re-evaluates the SET list
// against the current row and overwrites in place.
func emitUpdate(src dbSource, tenant, sql string, s *Update, ctxEnv func() ExecEnv) (*vdbe.Program, error) {
	b := vdbe.NewBuilder()
	box := &cursorBox{}
	table := s.Table

	opener := vdbe.CursorOpener(func() (vdbe.Cursor, int, error) {
		t, err := src().Get(tenant, table)
		if err != nil {
			return nil, 0, dberr.Wrap(dberr.CodeSchema, err, "open %s", table)
		}
		box.mem = newMemTableCursor(t)
		box.tbl = t
		box.cols = tableColNames(t)
		return box.mem, len(t.Cols), nil
	})

	cur := b.AllocCursor()
	predReg := b.AllocReg(1)
	applyReg := b.AllocReg(1)

	init := b.Emit(vdbe.Instruction{Op: vdbe.OpInit})
	b.JumpToLabel(init, "start", false)
	b.Label("start")
	b.Emit(vdbe.Instruction{Op: vdbe.OpTransaction, P1: 1, Comment: "write tx"})
	b.Emit(vdbe.Instruction{Op: vdbe.OpOpenWrite, P1: cur, P4: opener, Comment: "open " + table})
	rew := b.Emit(vdbe.Instruction{Op: vdbe.OpRewind, P1: cur})
	b.JumpToLabel(rew, "done", false)

	b.Label("loop")
	if s.Where != nil {
		where := s.Where
		b.Emit(vdbe.Instruction{Op: vdbe.OpFunction, P3: predReg, P4: vdbe.FuncCall(func(vm *vdbe.VM) (vdbe.Value, error) {
			v, err := evalExpr(ctxEnv(), where, box.currentRow())
			if err != nil {
				return vdbe.Value{}, err
			}
			if truthy(v) {
				return vdbe.Value{Kind: vdbe.KindInteger, I: 1}, nil
			}
			return vdbe.Value{Kind: vdbe.KindInteger, I: 0}, nil
		}), Comment: "where"})
		ifz := b.Emit(vdbe.Instruction{Op: vdbe.OpIfZero, P1: predReg, Comment: "keep row"})
		b.JumpToLabel(ifz, "skip", false)
	}
	sets := s.Sets
	b.Emit(vdbe.Instruction{Op: vdbe.OpFunction, P3: applyReg, P4: vdbe.FuncCall(func(vm *vdbe.VM) (vdbe.Value, error) {
		row := box.currentRow()
		raw := box.tbl.Rows[box.mem.pos]
		newVals := make([]vdbe.Value, len(raw))
		for i, v := range raw {
			newVals[i] = vdbe.FromAnyPreserveFloat(v)
		}
		for name, e := range sets {
			idx := columnIndex(box.tbl, name)
			if idx < 0 {
				return vdbe.Value{}, dberr.New(dberr.CodeSchema, "unknown column %q in update %s", name, box.tbl.Name)
			}
			v, err := evalExpr(ctxEnv(), e, row)
			if err != nil {
				return vdbe.Value{}, err
			}
			newVals[idx] = vdbe.FromAnyPreserveFloat(v)
		}
		if err := box.mem.Update(newVals); err != nil {
			return vdbe.Value{}, err
		}
		return vdbe.Value{Kind: vdbe.KindInteger, I: 1}, nil
	}), Comment: "apply sets"})

	b.Label("skip")
	next := b.Emit(vdbe.Instruction{Op: vdbe.OpNext, P1: cur})
	b.JumpToLabel(next, "loop", false)
	b.Label("done")
	b.Emit(vdbe.Instruction{Op: vdbe.OpClose, P1: cur})
	b.Emit(vdbe.Instruction{Op: vdbe.OpHalt})

	return b.Finish(sql, nil)
}

// emitResultScan wraps an already-materialized ResultSet in a trivial scan
// program. Complex SELECTs, PRAGMAs, and anything else the direct emitters
// skip are delivered this way so every statement steps through the VM.
func emitResultScan(sql string, rs *ResultSet) (*vdbe.Program, error) {
	b := vdbe.NewBuilder()
	if rs == nil {
		rs = &ResultSet{}
	}
	nCols := len(rs.Cols)
	cur := b.AllocCursor()
	out := b.AllocReg(maxInt(nCols, 1))

	rc := newResultCursor(rs)
	init := b.Emit(vdbe.Instruction{Op: vdbe.OpInit})
	b.JumpToLabel(init, "start", false)
	b.Label("start")
	b.Emit(vdbe.Instruction{Op: vdbe.OpOpenRead, P1: cur, P2: nCols, P4: vdbe.Cursor(rc), Comment: "materialized result"})
	rew := b.Emit(vdbe.Instruction{Op: vdbe.OpRewind, P1: cur})
	b.JumpToLabel(rew, "done", false)
	b.Label("loop")
	for i := 0; i < nCols; i++ {
		b.Emit(vdbe.Instruction{Op: vdbe.OpColumn, P1: cur, P2: i, P3: out + i, Comment: rs.Cols[i]})
	}
	b.Emit(vdbe.Instruction{Op: vdbe.OpResultRow, P1: out, P2: nCols})
	next := b.Emit(vdbe.Instruction{Op: vdbe.OpNext, P1: cur})
	b.JumpToLabel(next, "loop", false)
	b.Label("done")
	b.Emit(vdbe.Instruction{Op: vdbe.OpClose, P1: cur})
	b.Emit(vdbe.Instruction{Op: vdbe.OpHalt})

	cols := make([]string, nCols)
	copy(cols, rs.Cols)
	return b.Finish(sql, cols)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Explain renders a compiled program one instruction per line, the shape
// EXPLAIN output takes.
func Explain(p *vdbe.Program) string {
	var sb strings.Builder
	for i, insn := range p.Insns {
		fmt.Fprintf(&sb, "%3d  %-14s %4d %4d %4d  %s\n", i, opName(insn.Op), insn.P1, insn.P2, insn.P3, insn.Comment)
	}
	return sb.String()
}

func opName(op vdbe.Opcode) string {
	names := map[vdbe.Opcode]string{
		vdbe.OpInit: "Init", vdbe.OpGoto: "Goto", vdbe.OpHalt: "Halt",
		vdbe.OpTransaction: "Transaction", vdbe.OpCommit: "Commit", vdbe.OpRollback: "Rollback",
		vdbe.OpIfPos: "IfPos", vdbe.OpIfZero: "IfZero",
		vdbe.OpInitCoroutine: "InitCoroutine", vdbe.OpYield: "Yield", vdbe.OpEndCoroutine: "EndCoroutine",
		vdbe.OpOpenRead: "OpenRead", vdbe.OpOpenWrite: "OpenWrite", vdbe.OpClose: "Close",
		vdbe.OpRewind: "Rewind", vdbe.OpLast: "Last", vdbe.OpNext: "Next", vdbe.OpPrev: "Prev",
		vdbe.OpSeekGE: "SeekGE", vdbe.OpSeekGT: "SeekGT", vdbe.OpSeekLE: "SeekLE",
		vdbe.OpSeekLT: "SeekLT", vdbe.OpSeekEQ: "SeekEQ",
		vdbe.OpIfValid: "IfValid", vdbe.OpColumn: "Column", vdbe.OpRowID: "RowID",
		vdbe.OpInsert: "Insert", vdbe.OpDelete: "Delete",
		vdbe.OpFunction: "Function", vdbe.OpResultRow: "ResultRow",
		vdbe.OpInteger: "Integer", vdbe.OpString: "String", vdbe.OpReal: "Real",
		vdbe.OpNull: "Null", vdbe.OpCopy: "Copy",
	}
	if n, ok := names[op]; ok {
		return n
	}
	return fmt.Sprintf("Op(%d)", int(op))
}
