package engine

import (
	"fmt"

	"github.com/nvx-labs/litesql/internal/storage"
	"github.com/nvx-labs/litesql/internal/vdbe"
)

// memTableCursor is a vdbe.Cursor backed by a storage.Table's in-memory row
// slice. It is the default cursor the planner opens for tables that live in
// ModeMemory; a disk-backed table opens a pager.Cursor instead (see
// internal/driver's cursor wiring), but both satisfy the same vdbe.Cursor
// contract so the bytecode layer above never knows which it has.
type memTableCursor struct {
	table *storage.Table
	pos   int
	valid bool
}

func newMemTableCursor(t *storage.Table) *memTableCursor {
	return &memTableCursor{table: t}
}

func (c *memTableCursor) Rewind() error {
	c.pos = 0
	c.valid = len(c.table.Rows) > 0
	return nil
}

func (c *memTableCursor) Last() error {
	c.pos = len(c.table.Rows) - 1
	c.valid = c.pos >= 0
	return nil
}

func (c *memTableCursor) Next() error {
	if !c.valid {
		return nil
	}
	c.pos++
	c.valid = c.pos < len(c.table.Rows)
	return nil
}

func (c *memTableCursor) Prev() error {
	if !c.valid {
		return nil
	}
	c.pos--
	c.valid = c.pos >= 0
	return nil
}

// Seek performs a linear scan for the first rowid satisfying op, since the
// in-memory table has no key ordering of its own. Index-assisted seek
// bounds apply to the B-tree-backed path; this is the ModeMemory fallback.
func (c *memTableCursor) Seek(key vdbe.Value, op vdbe.SeekOp) error {
	target := key.I
	for i, row := range c.table.Rows {
		rowid := int64(i)
		_ = row
		match := false
		switch op {
		case vdbe.SeekEQ:
			match = rowid == target
		case vdbe.SeekGE:
			match = rowid >= target
		case vdbe.SeekGT:
			match = rowid > target
		case vdbe.SeekLE:
			match = rowid <= target
		case vdbe.SeekLT:
			match = rowid < target
		}
		if match {
			c.pos = i
			c.valid = true
			return nil
		}
	}
	c.valid = false
	return nil
}

func (c *memTableCursor) Valid() bool { return c.valid && c.pos >= 0 && c.pos < len(c.table.Rows) }

func (c *memTableCursor) RowID() int64 {
	if !c.Valid() {
		return -1
	}
	return int64(c.pos)
}

func (c *memTableCursor) Column(idx int) (vdbe.Value, error) {
	if !c.Valid() {
		return vdbe.Value{Kind: vdbe.KindNull}, nil
	}
	row := c.table.Rows[c.pos]
	if idx < 0 || idx >= len(row) {
		return vdbe.Value{}, fmt.Errorf("memcursor: column index %d out of range", idx)
	}
	return vdbe.FromAnyPreserveFloat(row[idx]), nil
}

// Insert appends a new row. rowID is advisory (the in-memory table is
// positionally ordered); it is accepted for interface symmetry with the
// B-tree-backed cursor, which does honor it.
func (c *memTableCursor) Insert(rowID int64, cols []vdbe.Value) error {
	row := make([]any, len(cols))
	for i, v := range cols {
		row[i] = v.Any()
	}
	c.table.Rows = append(c.table.Rows, row)
	c.table.MarkDirtyFrom(len(c.table.Rows) - 1)
	c.table.Version++
	return nil
}

// Delete removes the row currently under the cursor.
func (c *memTableCursor) Delete() error {
	if !c.Valid() {
		return nil
	}
	c.table.Rows = append(c.table.Rows[:c.pos], c.table.Rows[c.pos+1:]...)
	c.table.MarkDirtyFrom(-1)
	c.table.Version++
	c.valid = c.pos < len(c.table.Rows)
	return nil
}

// Update overwrites the row currently under the cursor in place. It sits
// outside the vdbe.Cursor interface: the disk path runs UPDATE as
// delete+reinsert through index maintenance, but a positional in-memory
// table can just overwrite.
func (c *memTableCursor) Update(cols []vdbe.Value) error {
	if !c.Valid() {
		return fmt.Errorf("memcursor: update on invalid cursor")
	}
	row := make([]any, len(cols))
	for i, v := range cols {
		row[i] = v.Any()
	}
	c.table.Rows[c.pos] = row
	c.table.MarkDirtyFrom(-1)
	c.table.Version++
	return nil
}
