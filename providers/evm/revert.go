package evm

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RevertError is a revert raised by a contract, decoded against its ABI. Name is
// the custom error name, or "Error" for a require message.
type RevertError struct {
	Name string
	Args []any
}

func (e *RevertError) Error() string {
	if len(e.Args) == 0 {
		return fmt.Sprintf("reverted with %s()", e.Name)
	}
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = fmt.Sprint(a)
	}
	return fmt.Sprintf("reverted with %s(%s)", e.Name, strings.Join(args, ", "))
}

// decodeRevert extracts revert data carried by a node error and matches its
// selector against the errors declared in contract. It returns nil when err
// carries no data it can decode.
func decodeRevert(contract abi.ABI, err error) *RevertError {
	var de rpc.DataError
	if err == nil || !errors.As(err, &de) {
		return nil
	}
	raw, ok := de.ErrorData().(string)
	if !ok {
		return nil
	}
	data, derr := hexutil.Decode(raw)
	if derr != nil || len(data) < 4 {
		return nil
	}

	for name, e := range contract.Errors {
		if !bytes.Equal(e.ID[:4], data[:4]) {
			continue
		}
		args, uerr := e.Inputs.Unpack(data[4:])
		if uerr != nil {
			return nil
		}
		return &RevertError{Name: name, Args: args}
	}

	if reason, uerr := abi.UnpackRevert(data); uerr == nil {
		return &RevertError{Name: "Error", Args: []any{reason}}
	}
	return nil
}
