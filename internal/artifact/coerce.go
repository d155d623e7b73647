package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CoerceArgs converts loosely typed configuration values (strings, JSON numbers,
// YAML ints) into the Go types the ABI encoder expects for each input.
func CoerceArgs(inputs abi.Arguments, values []any) ([]any, error) {
	if len(inputs) != len(values) {
		return nil, fmt.Errorf("argument count mismatch: expected %d, got %d", len(inputs), len(values))
	}

	out := make([]any, len(values))
	for i, in := range inputs {
		v, err := coerce(in.Type, values[i])
		if err != nil {
			name := in.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("argument %s (%s): %w", name, in.Type.String(), err)
		}
		out[i] = v
	}
	return out, nil
}

// PackConstructor ABI-encodes constructor arguments, without the bytecode prefix.
func (a *Artifact) PackConstructor(args ...any) ([]byte, error) {
	coerced, err := CoerceArgs(a.ABI.Constructor.Inputs, args)
	if err != nil {
		return nil, err
	}
	return a.ABI.Pack("", coerced...)
}

func coerce(typ abi.Type, v any) (any, error) {
	switch typ.T {
	case abi.AddressTy:
		switch val := v.(type) {
		case common.Address:
			return val, nil
		case string:
			if !common.IsHexAddress(val) {
				return nil, fmt.Errorf("invalid address %q", val)
			}
			return common.HexToAddress(val), nil
		}
	case abi.IntTy, abi.UintTy:
		n, err := toBig(v)
		if err != nil {
			return nil, err
		}
		return fitInt(typ, n)
	case abi.StringTy:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case abi.BoolTy:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case abi.BytesTy:
		switch val := v.(type) {
		case []byte:
			return val, nil
		case string:
			return hexutil.Decode(val)
		}
	case abi.FixedBytesTy:
		var raw []byte
		switch val := v.(type) {
		case []byte:
			raw = val
		case string:
			decoded, err := hexutil.Decode(val)
			if err != nil {
				return nil, err
			}
			raw = decoded
		default:
			return nil, fmt.Errorf("cannot use %T as bytes%d", v, typ.Size)
		}
		if len(raw) > typ.Size {
			return nil, fmt.Errorf("value has %d bytes, want at most %d", len(raw), typ.Size)
		}
		arr := reflect.New(typ.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(raw))
		return arr.Interface(), nil
	case abi.SliceTy, abi.ArrayTy:
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("cannot use %T as %s", v, typ.String())
		}
		if typ.T == abi.ArrayTy && len(items) != typ.Size {
			return nil, fmt.Errorf("want %d elements, got %d", typ.Size, len(items))
		}
		var out reflect.Value
		if typ.T == abi.SliceTy {
			out = reflect.MakeSlice(typ.GetType(), len(items), len(items))
		} else {
			out = reflect.New(typ.GetType()).Elem()
		}
		for i, item := range items {
			c, err := coerce(*typ.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(c))
		}
		return out.Interface(), nil
	default:
		return v, nil
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, typ.String())
}

func toBig(v any) (*big.Int, error) {
	switch val := v.(type) {
	case *big.Int:
		return new(big.Int).Set(val), nil
	case int:
		return big.NewInt(int64(val)), nil
	case int8:
		return big.NewInt(int64(val)), nil
	case int16:
		return big.NewInt(int64(val)), nil
	case int32:
		return big.NewInt(int64(val)), nil
	case int64:
		return big.NewInt(val), nil
	case uint:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(val)), nil
	case uint64:
		return new(big.Int).SetUint64(val), nil
	case float64:
		if val != math.Trunc(val) {
			return nil, fmt.Errorf("non-integer number %v", val)
		}
		n, _ := big.NewFloat(val).Int(nil)
		return n, nil
	case json.Number:
		return parseBig(val.String())
	case string:
		return parseBig(val)
	}
	return nil, fmt.Errorf("cannot use %T as integer", v)
}

func parseBig(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

// fitInt range-checks n against the ABI type and returns the exact Go type the
// encoder wants: sized ints up to 64 bits, *big.Int beyond.
func fitInt(typ abi.Type, n *big.Int) (any, error) {
	if typ.T == abi.UintTy && n.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s for unsigned type", n)
	}
	bits, limit := n.BitLen(), typ.Size
	if typ.T == abi.IntTy {
		limit--
		if n.Sign() < 0 {
			bits = new(big.Int).Add(n, big.NewInt(1)).BitLen()
		}
	}
	if bits > limit {
		return nil, fmt.Errorf("value %s overflows %s", n, typ.String())
	}

	goType := typ.GetType()
	if goType.Kind() == reflect.Ptr {
		return n, nil
	}
	var rv reflect.Value
	if typ.T == abi.UintTy {
		rv = reflect.ValueOf(n.Uint64())
	} else {
		rv = reflect.ValueOf(n.Int64())
	}
	return rv.Convert(goType).Interface(), nil
}
