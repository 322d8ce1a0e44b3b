// Package cellkit adapts github.com/xssnick/tonutils-go/tvm/cell's
// content-addressed cell DAG and BOC codec to the usage-tree-driven
// pruning model this service needs. Callers outside this package never
// touch the underlying library directly, the same way pkg/kvdb keeps
// every consumer of CometBFT's dbm.DB behind its own Store type.
package cellkit

import "fmt"

// Kind classifies a cellkit error the way §7 of the proof-chain spec
// describes: a small, closed taxonomy that every pure transform in
// pkg/cellproof returns instead of panicking on malformed input.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidData
	KindInvalidTag
	KindCellUnderflow
	KindIntOverflow
	KindCancelled
	KindTransport
	KindTimeout
	KindEmptyProof
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidData:
		return "invalid_data"
	case KindInvalidTag:
		return "invalid_tag"
	case KindCellUnderflow:
		return "cell_underflow"
	case KindIntOverflow:
		return "int_overflow"
	case KindCancelled:
		return "cancelled"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindEmptyProof:
		return "empty_proof"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every function in cellproof and
// cellkit. Op names the failing transform (e.g. "make_pruned_block")
// so logs read the same way across the ingest and build-proof paths.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a tagged error. Passing a nil err is valid when the kind
// alone is the signal (e.g. KindCancelled).
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or anything it wraps) is a cellkit error of
// the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
