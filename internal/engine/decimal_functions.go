package engine

import (
	"fmt"

	"github.com/nvx-labs/litesql/internal/storage"
)

// Exact decimal scalar functions. Values are carried as TEXT (a decimal or
// rational literal) and computed over math/big rationals, so money-style
// arithmetic avoids float64 drift: DECIMAL normalizes, DEC_ADD/DEC_SUB/
// DEC_MUL combine, DEC_CMP orders.

func decimalArgs(env ExecEnv, ex *FuncCall, row Row, n int) ([]any, error) {
	if len(ex.Args) != n {
		return nil, fmt.Errorf("%s takes exactly %d arguments", ex.Name, n)
	}
	out := make([]any, n)
	for i, a := range ex.Args {
		v, err := evalExpr(env, a, row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func evalDecimalFunc(env ExecEnv, ex *FuncCall, row Row) (any, error) {
	args, err := decimalArgs(env, ex, row, 1)
	if err != nil {
		return nil, err
	}
	if args[0] == nil {
		return nil, nil
	}
	r, ok := storage.DecimalFromAny(args[0])
	if !ok {
		return nil, fmt.Errorf("DECIMAL: cannot convert %T", args[0])
	}
	return storage.DecimalToString(r), nil
}

func evalDecAddFunc(env ExecEnv, ex *FuncCall, row Row) (any, error) {
	args, err := decimalArgs(env, ex, row, 2)
	if err != nil {
		return nil, err
	}
	if args[0] == nil || args[1] == nil {
		return nil, nil
	}
	r, err := storage.DecimalAdd(args[0], args[1])
	if err != nil {
		return nil, fmt.Errorf("DEC_ADD: %w", err)
	}
	return storage.DecimalToString(r), nil
}

func evalDecSubFunc(env ExecEnv, ex *FuncCall, row Row) (any, error) {
	args, err := decimalArgs(env, ex, row, 2)
	if err != nil {
		return nil, err
	}
	if args[0] == nil || args[1] == nil {
		return nil, nil
	}
	r, err := storage.DecimalSub(args[0], args[1])
	if err != nil {
		return nil, fmt.Errorf("DEC_SUB: %w", err)
	}
	return storage.DecimalToString(r), nil
}

func evalDecMulFunc(env ExecEnv, ex *FuncCall, row Row) (any, error) {
	args, err := decimalArgs(env, ex, row, 2)
	if err != nil {
		return nil, err
	}
	if args[0] == nil || args[1] == nil {
		return nil, nil
	}
	r, err := storage.DecimalMul(args[0], args[1])
	if err != nil {
		return nil, fmt.Errorf("DEC_MUL: %w", err)
	}
	return storage.DecimalToString(r), nil
}

func evalDecCmpFunc(env ExecEnv, ex *FuncCall, row Row) (any, error) {
	args, err := decimalArgs(env, ex, row, 2)
	if err != nil {
		return nil, err
	}
	if args[0] == nil || args[1] == nil {
		return nil, nil
	}
	c, err := storage.DecimalCmp(args[0], args[1])
	if err != nil {
		return nil, fmt.Errorf("DEC_CMP: %w", err)
	}
	return c, nil
}
