package engine

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/nvx-labs/litesql/internal/storage"
)

// pageCounter is implemented by storage backends that track on-disk page
// usage (the pager-backed one); backends without a notion of pages (the pure
// in-memory default) simply don't satisfy it.
type pageCounter interface {
	PageCountPragma() int
}

// cacheSizer is implemented by backends whose page cache can be resized at
// runtime.
type cacheSizer interface {
	SetCacheSize(n int)
}

// connState holds the per-connection PRAGMA values that aren't backed by the
// storage layer itself (cache_size, user_version when running in-memory,
// journal_mode). Kept process-wide and tenant-scoped since the engine
// package has no single Connection type of its own (see internal/driver).
var (
	connStateMu sync.Mutex
	cacheSizes  = map[string]int{}
	userVers    = map[string]int64{}
)

const defaultCacheSizePages = -2000 // negative: cache size in KiB rather than pages

// executePragma dispatches the supported read-only and settable PRAGMAs:
// table_info, table_list, pragma_list, page_count, cache_size, journal_mode,
// user_version, and wal_checkpoint.
func executePragma(env ExecEnv, s *Pragma) (*ResultSet, error) {
	switch s.Name {
	case "table_info":
		return pragmaTableInfo(env, s.Arg)
	case "table_list":
		return pragmaTableList(env)
	case "pragma_list":
		return pragmaList()
	case "page_count":
		return pragmaPageCount(env)
	case "cache_size":
		return pragmaCacheSize(env, s)
	case "journal_mode":
		return pragmaJournalMode(env, s)
	case "user_version":
		return pragmaUserVersion(env, s)
	case "wal_checkpoint":
		return pragmaWALCheckpoint(env)
	default:
		// Unknown PRAGMAs are no-ops, per SQLite convention, rather than errors.
		return nil, nil
	}
}

func pragmaTableInfo(env ExecEnv, table string) (*ResultSet, error) {
	t, err := env.db.Get(env.tenant, table)
	if err != nil {
		return nil, err
	}
	rs := &ResultSet{Cols: []string{"cid", "name", "type", "notnull", "dflt_value", "pk"}}
	for i, c := range t.Cols {
		pk := 0
		if c.Constraint == storage.PrimaryKey {
			pk = 1
		}
		rs.Rows = append(rs.Rows, Row{
			"cid":        i,
			"name":       c.Name,
			"type":       declaredTypeName(c.Type),
			"notnull":    0,
			"dflt_value": nil,
			"pk":         pk,
		})
	}
	return rs, nil
}

// declaredTypeName renders a column type the way the reference engine spells
// declared types in table_info output.
func declaredTypeName(t storage.ColType) string {
	switch t {
	case storage.IntType, storage.Int64Type:
		return "INTEGER"
	case storage.Float64Type, storage.FloatType:
		return "REAL"
	case storage.TextType, storage.StringType:
		return "TEXT"
	case storage.SliceType:
		return "BLOB"
	default:
		return t.String()
	}
}

func pragmaTableList(env ExecEnv) (*ResultSet, error) {
	rs := &ResultSet{Cols: []string{"name"}}
	for _, t := range env.db.ListTables(env.tenant) {
		rs.Rows = append(rs.Rows, Row{"name": t.Name})
	}
	return rs, nil
}

func pragmaList() (*ResultSet, error) {
	rs := &ResultSet{Cols: []string{"name"}}
	for _, n := range []string{"table_info", "table_list", "pragma_list", "page_count", "cache_size", "journal_mode", "user_version", "wal_checkpoint"} {
		rs.Rows = append(rs.Rows, Row{"name": n})
	}
	return rs, nil
}

func pragmaPageCount(env ExecEnv) (*ResultSet, error) {
	n := 1 // an empty in-memory database reports a single header page
	if pc, ok := env.db.Backend().(pageCounter); ok {
		n = pc.PageCountPragma()
	}
	return &ResultSet{Cols: []string{"page_count"}, Rows: []Row{{"page_count": n}}}, nil
}

func pragmaCacheSize(env ExecEnv, s *Pragma) (*ResultSet, error) {
	connStateMu.Lock()
	defer connStateMu.Unlock()
	if s.Set {
		n, err := strconv.Atoi(strings.TrimSpace(s.Arg))
		if err != nil {
			return nil, fmt.Errorf("pragma cache_size: %w", err)
		}
		cacheSizes[env.tenant] = n
		if cs, ok := env.db.Backend().(cacheSizer); ok {
			cs.SetCacheSize(n)
		}
		return nil, nil
	}
	n, ok := cacheSizes[env.tenant]
	if !ok {
		n = defaultCacheSizePages
	}
	return &ResultSet{Cols: []string{"cache_size"}, Rows: []Row{{"cache_size": n}}}, nil
}

func pragmaJournalMode(env ExecEnv, s *Pragma) (*ResultSet, error) {
	mode := "memory"
	if env.db.StorageMode() != storage.ModeMemory {
		mode = "wal"
	}
	return &ResultSet{Cols: []string{"journal_mode"}, Rows: []Row{{"journal_mode": mode}}}, nil
}

func pragmaUserVersion(env ExecEnv, s *Pragma) (*ResultSet, error) {
	connStateMu.Lock()
	defer connStateMu.Unlock()
	if s.Set {
		n, err := strconv.ParseInt(strings.TrimSpace(s.Arg), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("pragma user_version: %w", err)
		}
		userVers[env.tenant] = n
		return nil, nil
	}
	return &ResultSet{Cols: []string{"user_version"}, Rows: []Row{{"user_version": userVers[env.tenant]}}}, nil
}

func pragmaWALCheckpoint(env ExecEnv) (*ResultSet, error) {
	if err := env.db.Sync(); err != nil {
		return nil, err
	}
	return &ResultSet{Cols: []string{"busy", "log", "checkpointed"}, Rows: []Row{{"busy": 0, "log": 0, "checkpointed": 0}}}, nil
}
