// Package vdbe implements a register-oriented bytecode virtual machine, the
// execution engine that drives cursors, evaluates expressions, and
// accumulates query results for prepared statements.
//
// What: a flat array of Instructions plus a register file of tagged Values.
// Step() advances the program counter by one instruction at a time (unless
// the instruction branches) and returns a StepResult telling the caller
// whether a row is ready, the program is done, the VM parked on I/O, or
// execution was interrupted.
// How: cursors are integer slots bound to a Cursor implementation (an
// in-memory table scan today, a pager B-tree cursor when disk-backed);
// opcodes move values between registers, cursors, and the result row.
// Why: separating "what to run" (Program, built once by the planner) from
// "how far did we get" (VM, one per execution) lets a prepared Statement be
// stepped, reset, and re-run without recompiling.
package vdbe

import (
	"context"
	"fmt"
)

// Kind tags the variant a Value currently holds.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindInteger
	KindFloat
	KindText
	KindBlob
)

// Value is a single tagged register slot.
type Value struct {
	Kind Kind
	I    int64
	F    float64
	S    string
	B    []byte
}

func (v Value) String() string {
	switch v.Kind {
	case KindUndefined:
		return "<undefined>"
	case KindNull:
		return "NULL"
	case KindInteger:
		return fmt.Sprintf("%d", v.I)
	case KindFloat:
		return fmt.Sprintf("%v", v.F)
	case KindText:
		return v.S
	case KindBlob:
		return fmt.Sprintf("%x", v.B)
	}
	return "?"
}

// Any converts a Value to a plain Go value (nil/int64/float64/string/[]byte),
// the shape the rest of the engine's expression evaluator and record codec
// already expect.
func (v Value) Any() any {
	switch v.Kind {
	case KindNull, KindUndefined:
		return nil
	case KindInteger:
		return v.I
	case KindFloat:
		return v.F
	case KindText:
		return v.S
	case KindBlob:
		return v.B
	}
	return nil
}

// FromAny lifts a plain Go value into a tagged Value.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{Kind: KindNull}
	case bool:
		if x {
			return Value{Kind: KindInteger, I: 1}
		}
		return Value{Kind: KindInteger, I: 0}
	case int:
		return Value{Kind: KindInteger, I: int64(x)}
	case int64:
		return Value{Kind: KindInteger, I: x}
	case float64:
		return Value{Kind: KindInteger, I: int64(x)} // engine stores ints as float64; normalize below
	case string:
		return Value{Kind: KindText, S: x}
	case []byte:
		return Value{Kind: KindBlob, B: x}
	default:
		return Value{Kind: KindText, S: fmt.Sprint(x)}
	}
}

// FromAnyPreserveFloat is FromAny but keeps float64 inputs as KindFloat.
// The adapted expression evaluator represents both SQL INTEGER and REAL as
// Go float64, so callers that need to tell them apart pass throughKind.
func FromAnyPreserveFloat(v any) Value {
	if f, ok := v.(float64); ok {
		return Value{Kind: KindFloat, F: f}
	}
	return FromAny(v)
}

// StepResult is the outcome of one Step call.
type StepResult int

const (
	StepRow StepResult = iota
	StepDone
	StepIO
	StepInterrupt
	StepBusy
)

func (r StepResult) String() string {
	switch r {
	case StepRow:
		return "Row"
	case StepDone:
		return "Done"
	case StepIO:
		return "IO"
	case StepInterrupt:
		return "Interrupt"
	case StepBusy:
		return "Busy"
	}
	return "Unknown"
}

// Cursor is the interface the VM's cursor opcodes drive. Implementations
// wrap either an in-memory table scan or a pager B-tree.
type Cursor interface {
	Rewind() error
	Last() error
	Next() error
	Prev() error
	Seek(key Value, op SeekOp) error
	Valid() bool
	RowID() int64
	Column(idx int) (Value, error)
	Insert(rowID int64, cols []Value) error
	Delete() error
}

// CursorOpener defers cursor construction to execution time. OpenRead and
// OpenWrite accept either a ready Cursor or a CursorOpener in P4; the opener
// runs when the instruction executes, so the cursor sees the table as of the
// current statement, not as of prepare time. It returns the cursor and its
// column count.
type CursorOpener func() (Cursor, int, error)

// SeekOp mirrors pager.SeekOp for cursor opcodes that don't want to import
// the pager package directly.
type SeekOp int

const (
	SeekEQ SeekOp = iota
	SeekGE
	SeekGT
	SeekLE
	SeekLT
)

// cursorSlot binds a cursor number to its live Cursor and column count.
type cursorSlot struct {
	cur     Cursor
	nCols   int
	isWrite bool
}

// FuncCall is the signature the Function opcode invokes: it evaluates a
// planner-supplied callback against the VM's current row registers. This is
// the seam where the adapted tree-walking expression evaluator plugs in
// (see internal/engine's planner), rather than every scalar/string/math
// builtin being reimplemented as a flat opcode.
type FuncCall func(vm *VM) (Value, error)

// VM executes a single Program. One VM per active Statement execution;
// Reset() rewinds it to run again without recompiling.
type VM struct {
	Prog     *Program
	pc       int
	regs     []Value
	cursors  []*cursorSlot
	resultAt int
	resultN  int
	halted   bool
	haltErr  error
	ctx      context.Context

	// Coroutine state: yieldReg maps a coroutine's yield register to the
	// PC it should resume at. Subqueries compiled as coroutines use this
	// instead of a host-language goroutine, so the VM itself is the
	// scheduler and a parked subquery costs one map entry.
	coroResume map[int]int
}

// NewVM creates a VM bound to prog, sized for its declared register and
// cursor counts.
func NewVM(ctx context.Context, prog *Program) *VM {
	return &VM{
		Prog:       prog,
		regs:       make([]Value, prog.NumRegs),
		cursors:    make([]*cursorSlot, prog.NumCursors),
		ctx:        ctx,
		coroResume: map[int]int{},
	}
}

// Reset rewinds the VM to instruction 0 with a fresh register file, so the
// same compiled Program can be stepped again without recompiling.
func (vm *VM) Reset() {
	vm.pc = 0
	vm.regs = make([]Value, vm.Prog.NumRegs)
	vm.cursors = make([]*cursorSlot, vm.Prog.NumCursors)
	vm.halted = false
	vm.haltErr = nil
	vm.resultAt, vm.resultN = 0, 0
}

// Reg reads register i.
func (vm *VM) Reg(i int) Value { return vm.regs[i] }

// SetReg writes register i.
func (vm *VM) SetReg(i int, v Value) { vm.regs[i] = v }

// OpenCursor binds cursor slot i to cur, used by OpenRead/OpenWrite.
func (vm *VM) OpenCursor(i int, cur Cursor, nCols int, write bool) {
	vm.cursors[i] = &cursorSlot{cur: cur, nCols: nCols, isWrite: write}
}

func (vm *VM) cursorAt(i int) (*cursorSlot, error) {
	if i < 0 || i >= len(vm.cursors) || vm.cursors[i] == nil {
		return nil, fmt.Errorf("vdbe: cursor %d not open", i)
	}
	return vm.cursors[i], nil
}

// Row returns the current result row's registers (set by the most recent
// ResultRow instruction), valid until the next Step call.
func (vm *VM) Row() []Value {
	return vm.regs[vm.resultAt : vm.resultAt+vm.resultN]
}

// Step executes instructions until a ResultRow is produced, the program
// halts, the context is cancelled, or a cursor op signals Busy. Between two
// Step returns the VM never suspends except on an I/O miss:
// cursor reads that hit the pager's synchronous ReadPage surface as an
// ordinary (possibly slow) call in this implementation, since the pager
// backing this VM performs its own blocking disk I/O rather than exposing
// asynchronous completions to the VM directly — see internal/dbio for the
// completion abstraction the pager is built on.
func (vm *VM) Step() (StepResult, error) {
	if vm.halted {
		return StepDone, vm.haltErr
	}
	for {
		if vm.ctx != nil {
			select {
			case <-vm.ctx.Done():
				vm.halted = true
				return StepInterrupt, vm.ctx.Err()
			default:
			}
		}
		if vm.pc < 0 || vm.pc >= len(vm.Prog.Insns) {
			vm.halted = true
			return StepDone, nil
		}
		insn := vm.Prog.Insns[vm.pc]
		res, jumped, err := vm.exec(insn)
		if err != nil {
			vm.halted = true
			vm.haltErr = err
			return StepDone, err
		}
		if !jumped {
			vm.pc++
		}
		switch res {
		case StepRow:
			return StepRow, nil
		case StepDone:
			vm.halted = true
			return StepDone, nil
		case StepBusy:
			return StepBusy, nil
		}
		// StepIO/continue: loop to next instruction. A real async pager
		// would return StepIO here and expect the caller to drive
		// RunOnce before calling Step again; this
		// synchronous pager resolves the read inline and continues.
	}
}
