package cluster

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// ErrNotFound is returned by LastID when the collection holds no documents.
var ErrNotFound = errors.New("collection is empty")

// ConnectionError is a transient failure (network, failover, timeout) that
// persisted through every retry.
type ConnectionError struct {
	Cluster string
	Op      string
	cause   error
}

func (ce *ConnectionError) Error() string {
	return fmt.Sprintf("%s cluster unreachable during %s: %v", ce.Cluster, ce.Op, ce.cause)
}

func (ce *ConnectionError) Unwrap() error {
	return ce.cause
}

// OperationError is a non-transient failure such as an authorization error
// or a malformed query. It is not retried.
type OperationError struct {
	Cluster string
	Op      string
	cause   error
}

func (oe *OperationError) Error() string {
	return fmt.Sprintf("%s cluster failed %s: %v", oe.Cluster, oe.Op, oe.cause)
}

func (oe *OperationError) Unwrap() error {
	return oe.cause
}

// TimeoutError means that a single page fetch exceeded its server-side time
// budget. It is transient; once retries run out it surfaces inside a
// ConnectionError.
type TimeoutError struct {
	Op    string
	Limit time.Duration
	cause error
}

func (te *TimeoutError) Error() string {
	return fmt.Sprintf("%s exceeded its %s time limit: %v", te.Op, te.Limit, te.cause)
}

func (te *TimeoutError) Unwrap() error {
	return te.cause
}

// UnsupportedIDError means a listed document's `_id` is not of a kind that
// the checker can walk. Doc holds the offending document's `_id` projection.
type UnsupportedIDError struct {
	Namespace Namespace
	Doc       bson.Raw
	cause     error
}

func (ue *UnsupportedIDError) Error() string {
	return fmt.Sprintf("%s holds document %s: %v", ue.Namespace, ue.Doc, ue.cause)
}

func (ue *UnsupportedIDError) Unwrap() error {
	return ue.cause
}
