package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/nvx-labs/litesql/internal/storage"
)

// DDL statements beyond CREATE/DROP TABLE: indexes, views, schema
// alteration, and scheduled jobs. Grammar entry points hang off parseCreate,
// parseDrop, and parseAlter.

// CreateIndex represents CREATE [UNIQUE] INDEX [IF NOT EXISTS] name ON
// table (col, ...).
type CreateIndex struct {
	Name        string
	Table       string
	Columns     []string
	Unique      bool
	IfNotExists bool
}

// DropIndex represents DROP INDEX [IF EXISTS] name.
type DropIndex struct {
	Name     string
	IfExists bool
}

// CreateView represents CREATE [OR REPLACE] VIEW [IF NOT EXISTS] name AS
// select.
type CreateView struct {
	Name        string
	Select      *Select
	IfNotExists bool
	OrReplace   bool
}

// DropView represents DROP VIEW [IF EXISTS] name.
type DropView struct {
	Name     string
	IfExists bool
}

// AlterTable represents ALTER TABLE t ADD [COLUMN] name type.
type AlterTable struct {
	Table     string
	AddColumn *storage.Column
}

// CreateJob represents CREATE JOB name SCHEDULE ... AS 'sql'. The schedule
// is one of CRON 'expr', EVERY n <unit>, or ONCE AT 'timestamp'.
type CreateJob struct {
	Name         string
	SQLText      string
	ScheduleType string // "CRON", "INTERVAL", "ONCE"
	CronExpr     string
	IntervalMs   int64
	RunAt        *time.Time
	Timezone     string
	Enabled      bool
	NoOverlap    bool
	CatchUp      bool
	MaxRuntimeMs int64
}

// AlterJob represents ALTER JOB name ENABLE|DISABLE.
type AlterJob struct {
	Name   string
	Enable *bool
}

// DropJob represents DROP JOB name.
type DropJob struct{ Name string }

// identIs reports whether the current token is the given bare word. Job and
// schedule vocabulary is not in the keyword table, so it arrives as an
// identifier with its original casing.
func (p *Parser) identIs(word string) bool {
	return (p.cur.Typ == tIdent || p.cur.Typ == tKeyword) &&
		strings.EqualFold(p.cur.Val, word)
}

// acceptIdent consumes the current token when it equals word.
func (p *Parser) acceptIdent(word string) bool {
	if p.identIs(word) {
		p.next()
		return true
	}
	return false
}

// parseIfNotExists consumes an optional IF NOT EXISTS.
func (p *Parser) parseIfNotExists() (bool, error) {
	if p.cur.Typ != tKeyword || p.cur.Val != "IF" {
		return false, nil
	}
	p.next()
	if err := p.expectKeyword("NOT"); err != nil {
		return false, err
	}
	if err := p.expectKeyword("EXISTS"); err != nil {
		return false, err
	}
	return true, nil
}

// parseIfExists consumes an optional IF EXISTS.
func (p *Parser) parseIfExists() (bool, error) {
	if p.cur.Typ != tKeyword || p.cur.Val != "IF" {
		return false, nil
	}
	p.next()
	if err := p.expectKeyword("EXISTS"); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Parser) parseCreateIndex(unique bool) (Statement, error) {
	if err := p.expectKeyword("INDEX"); err != nil {
		return nil, err
	}
	ifNotExists, err := p.parseIfNotExists()
	if err != nil {
		return nil, err
	}
	name := p.parseIdentLike()
	if name == "" {
		return nil, p.errf("expected index name")
	}
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	table := p.parseIdentLike()
	if table == "" {
		return nil, p.errf("expected table name")
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var cols []string
	for {
		col := p.parseIdentLike()
		if col == "" {
			return nil, p.errf("expected column name in index definition")
		}
		cols = append(cols, col)
		if p.cur.Typ == tSymbol && p.cur.Val == "," {
			p.next()
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &CreateIndex{
		Name: name, Table: table, Columns: cols,
		Unique: unique, IfNotExists: ifNotExists,
	}, nil
}

func (p *Parser) parseCreateView(orReplace bool) (Statement, error) {
	if err := p.expectKeyword("VIEW"); err != nil {
		return nil, err
	}
	ifNotExists, err := p.parseIfNotExists()
	if err != nil {
		return nil, err
	}
	name := p.parseIdentLike()
	if name == "" {
		return nil, p.errf("expected view name")
	}
	if err := p.expectKeyword("AS"); err != nil {
		return nil, err
	}
	sel, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	return &CreateView{Name: name, Select: sel, IfNotExists: ifNotExists, OrReplace: orReplace}, nil
}

// parseCreateJob parses
//
//	CREATE JOB name SCHEDULE CRON 'expr' [TIMEZONE 'tz'] [opts] AS 'sql'
//	CREATE JOB name SCHEDULE EVERY n (MS|SECONDS|MINUTES|HOURS) [opts] AS 'sql'
//	CREATE JOB name SCHEDULE ONCE AT 'timestamp' [opts] AS 'sql'
//
// with opts drawn from DISABLED, NO_OVERLAP, CATCH_UP, MAX_RUNTIME n MS.
func (p *Parser) parseCreateJob() (Statement, error) {
	p.next() // consume JOB
	name := p.parseIdentLike()
	if name == "" {
		return nil, p.errf("expected job name")
	}
	if !p.acceptIdent("SCHEDULE") {
		return nil, p.errf("expected SCHEDULE")
	}

	job := &CreateJob{Name: name, Enabled: true}
	switch {
	case p.acceptIdent("CRON"):
		if p.cur.Typ != tString {
			return nil, p.errf("expected cron expression string")
		}
		job.ScheduleType = "CRON"
		job.CronExpr = p.cur.Val
		p.next()
		if p.acceptIdent("TIMEZONE") {
			if p.cur.Typ != tString {
				return nil, p.errf("expected timezone string")
			}
			job.Timezone = p.cur.Val
			p.next()
		}
	case p.acceptIdent("EVERY"):
		if p.cur.Typ != tNumber {
			return nil, p.errf("expected interval count")
		}
		n, err := strconv.ParseInt(p.cur.Val, 10, 64)
		if err != nil || n <= 0 {
			return nil, p.errf("invalid interval %q", p.cur.Val)
		}
		p.next()
		job.ScheduleType = "INTERVAL"
		switch {
		case p.acceptIdent("MS"), p.acceptIdent("MILLISECONDS"):
			job.IntervalMs = n
		case p.acceptIdent("SECONDS"), p.acceptIdent("SECOND"):
			job.IntervalMs = n * 1000
		case p.acceptIdent("MINUTES"), p.acceptIdent("MINUTE"):
			job.IntervalMs = n * 60 * 1000
		case p.acceptIdent("HOURS"), p.acceptIdent("HOUR"):
			job.IntervalMs = n * 60 * 60 * 1000
		default:
			job.IntervalMs = n * 1000 // bare count means seconds
		}
	case p.acceptIdent("ONCE"):
		if !p.acceptIdent("AT") {
			return nil, p.errf("expected AT after ONCE")
		}
		if p.cur.Typ != tString {
			return nil, p.errf("expected timestamp string")
		}
		at, err := parseJobTime(p.cur.Val)
		if err != nil {
			return nil, p.errf("invalid timestamp %q", p.cur.Val)
		}
		p.next()
		job.ScheduleType = "ONCE"
		job.RunAt = &at
	default:
		return nil, p.errf("expected CRON, EVERY, or ONCE")
	}

	for {
		switch {
		case p.acceptIdent("DISABLED"):
			job.Enabled = false
		case p.acceptIdent("NO_OVERLAP"):
			job.NoOverlap = true
		case p.acceptIdent("CATCH_UP"):
			job.CatchUp = true
		case p.acceptIdent("MAX_RUNTIME"):
			if p.cur.Typ != tNumber {
				return nil, p.errf("expected max runtime count")
			}
			n, err := strconv.ParseInt(p.cur.Val, 10, 64)
			if err != nil || n <= 0 {
				return nil, p.errf("invalid max runtime %q", p.cur.Val)
			}
			p.next()
			p.acceptIdent("MS")
			job.MaxRuntimeMs = n
		default:
			if err := p.expectKeyword("AS"); err != nil {
				return nil, err
			}
			if p.cur.Typ != tString {
				return nil, p.errf("expected job SQL string")
			}
			job.SQLText = p.cur.Val
			p.next()
			return job, nil
		}
	}
}

func parseJobTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}

// parseAlter parses ALTER TABLE t ADD [COLUMN] name type and
// ALTER JOB name ENABLE|DISABLE.
func (p *Parser) parseAlter() (Statement, error) {
	p.next() // consume ALTER
	switch {
	case p.cur.Typ == tKeyword && p.cur.Val == "TABLE":
		p.next()
		table := p.parseIdentLike()
		if table == "" {
			return nil, p.errf("expected table name")
		}
		if err := p.expectKeyword("ADD"); err != nil {
			return nil, err
		}
		if p.cur.Typ == tKeyword && p.cur.Val == "COLUMN" {
			p.next()
		}
		colName := p.parseIdentLike()
		if colName == "" {
			return nil, p.errf("expected column name")
		}
		colType := p.parseType()
		if colType < 0 {
			return nil, p.errf("expected column type")
		}
		return &AlterTable{
			Table:     table,
			AddColumn: &storage.Column{Name: colName, Type: colType},
		}, nil
	case p.identIs("JOB"):
		p.next()
		name := p.parseIdentLike()
		if name == "" {
			return nil, p.errf("expected job name")
		}
		var enable bool
		switch {
		case p.acceptIdent("ENABLE"):
			enable = true
		case p.acceptIdent("DISABLE"):
			enable = false
		default:
			return nil, p.errf("expected ENABLE or DISABLE")
		}
		return &AlterJob{Name: name, Enable: &enable}, nil
	}
	return nil, p.errf("expected TABLE or JOB after ALTER")
}
