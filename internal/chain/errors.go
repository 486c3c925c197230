package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// NotConnectedError is returned when no signer is configured. It is raised
// before any network call.
type NotConnectedError struct{}

func (e *NotConnectedError) Error() string {
	return "no signing wallet is connected"
}

// SigningError reports a failure to sign a transaction
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("failed to sign transaction: %v", e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// NetworkError reports a failure reaching the node or a node-side rejection
// that says nothing about the call itself
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("chain %s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ContractRevertError reports that the contract or the node rejected the call
// itself. Retrying the same call will not help.
type ContractRevertError struct {
	Reason string
	Err    error
}

func (e *ContractRevertError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("contract call rejected: %s", e.Reason)
	}
	return fmt.Sprintf("contract call rejected: %v", e.Err)
}

func (e *ContractRevertError) Unwrap() error { return e.Err }

var rejectionMarkers = []string{
	"execution reverted",
	"insufficient funds",
	"intrinsic gas too low",
	"gas required exceeds allowance",
	"exceeds block gas limit",
	"nonce too low",
}

// classify turns an RPC failure into a typed error
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return &ContractRevertError{Reason: revertReason(dataErr), Err: err}
	}

	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		msg := strings.ToLower(err.Error())
		for _, marker := range rejectionMarkers {
			if strings.Contains(msg, marker) {
				return &ContractRevertError{Reason: err.Error(), Err: err}
			}
		}
	}

	return &NetworkError{Op: op, Err: err}
}

func revertReason(dataErr rpc.DataError) string {
	if data, ok := dataErr.ErrorData().(string); ok && data != "" {
		return fmt.Sprintf("%s (%s)", dataErr.Error(), data)
	}
	return dataErr.Error()
}

// isAlreadyKnown reports whether the node already holds the transaction
func isAlreadyKnown(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}
