package engine

import (
	"fmt"
	"strings"

	"github.com/nvx-labs/litesql/internal/vdbe"
)

// resultCursor adapts an already-materialized ResultSet (produced by the
// tree-walking evaluator for joins, aggregates, GROUP BY/ORDER BY without a
// covering index, set operations, and subqueries — see compileSelect) into
// a vdbe.Cursor, so the VDBE's ordinary Rewind/Next/Column/ResultRow loop
// drives both simple and complex SELECTs the same way. It is read-only.
type resultCursor struct {
	cols []string
	rows []Row
	pos  int
}

func newResultCursor(rs *ResultSet) *resultCursor {
	return &resultCursor{cols: rs.Cols, rows: rs.Rows}
}

func (c *resultCursor) Rewind() error {
	c.pos = 0
	return nil
}

func (c *resultCursor) Last() error {
	c.pos = len(c.rows) - 1
	return nil
}

func (c *resultCursor) Next() error {
	c.pos++
	return nil
}

func (c *resultCursor) Prev() error {
	c.pos--
	return nil
}

func (c *resultCursor) Seek(vdbe.Value, vdbe.SeekOp) error {
	return fmt.Errorf("resultcursor: seek not supported on a materialized result")
}

func (c *resultCursor) Valid() bool { return c.pos >= 0 && c.pos < len(c.rows) }

func (c *resultCursor) RowID() int64 { return int64(c.pos) }

func (c *resultCursor) Column(idx int) (vdbe.Value, error) {
	if !c.Valid() || idx < 0 || idx >= len(c.cols) {
		return vdbe.Value{Kind: vdbe.KindNull}, nil
	}
	row := c.rows[c.pos]
	v, ok := row[c.cols[idx]]
	if !ok {
		// Result rows key columns by lower-cased name; Cols keeps the
		// display casing.
		v = row[strings.ToLower(c.cols[idx])]
	}
	return vdbe.FromAnyPreserveFloat(v), nil
}

func (c *resultCursor) Insert(int64, []vdbe.Value) error {
	return fmt.Errorf("resultcursor: read-only")
}

func (c *resultCursor) Delete() error {
	return fmt.Errorf("resultcursor: read-only")
}
