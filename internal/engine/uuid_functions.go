package engine

import (
	"fmt"

	"github.com/nvx-labs/litesql/internal/storage"
)

// UUID scalar functions, modeled on the reference engine's uuid extension:
// UUID() mints a fresh random id, UUID_STR normalizes text or a 16-byte
// blob to canonical text, UUID_BLOB converts either form to 16 raw bytes.

func evalUUIDFunc(env ExecEnv, ex *FuncCall, row Row) (any, error) {
	if len(ex.Args) != 0 {
		return nil, fmt.Errorf("UUID takes no arguments")
	}
	return storage.NewUUIDString(), nil
}

func uuidArg(env ExecEnv, ex *FuncCall, row Row) (any, error) {
	if len(ex.Args) != 1 {
		return nil, fmt.Errorf("%s takes exactly one argument", ex.Name)
	}
	return evalExpr(env, ex.Args[0], row)
}

func evalUUIDStrFunc(env ExecEnv, ex *FuncCall, row Row) (any, error) {
	v, err := uuidArg(env, ex, row)
	if err != nil || v == nil {
		return nil, err
	}
	switch x := v.(type) {
	case string:
		u, err := storage.ParseUUID(x)
		if err != nil {
			return nil, fmt.Errorf("UUID_STR: %w", err)
		}
		return u.String(), nil
	case []byte:
		u, err := storage.UUIDFromBytes(x)
		if err != nil {
			return nil, fmt.Errorf("UUID_STR: %w", err)
		}
		return u.String(), nil
	default:
		return nil, fmt.Errorf("UUID_STR: cannot convert %T", v)
	}
}

func evalUUIDBlobFunc(env ExecEnv, ex *FuncCall, row Row) (any, error) {
	v, err := uuidArg(env, ex, row)
	if err != nil || v == nil {
		return nil, err
	}
	switch x := v.(type) {
	case string:
		u, err := storage.ParseUUID(x)
		if err != nil {
			return nil, fmt.Errorf("UUID_BLOB: %w", err)
		}
		return storage.UUIDToBytes(u), nil
	case []byte:
		if _, err := storage.UUIDFromBytes(x); err != nil {
			return nil, fmt.Errorf("UUID_BLOB: %w", err)
		}
		return x, nil
	default:
		return nil, fmt.Errorf("UUID_BLOB: cannot convert %T", v)
	}
}
