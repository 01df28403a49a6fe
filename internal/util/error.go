package util

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// Server error codes that the checker inspects directly.
const (
	MaxTimeMSExpired = 50
	Unauthorized     = 13
)

// ConfigError indicates invalid configuration or a request that violates a
// hard limit. It is never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (ce *ConfigError) Error() string {
	if ce.Field == "" {
		return "invalid configuration: " + ce.Reason
	}

	return fmt.Sprintf("invalid configuration (%s): %s", ce.Field, ce.Reason)
}

// NewConfigError returns a ConfigError for the given field.
func NewConfigError(field string, reason string, args ...any) *ConfigError {
	return &ConfigError{
		Field:  field,
		Reason: fmt.Sprintf(reason, args...),
	}
}

// IsContextCanceledError returns true if this is a Context Canceled error.
func IsContextCanceledError(err error) bool {
	return errors.Is(err, context.Canceled) ||
		strings.Contains(err.Error(), context.Canceled.Error())
}

// IsMaxTimeMSExpiredError returns true if the server aborted the operation
// for exceeding its maxTimeMS.
func IsMaxTimeMSExpiredError(err error) bool {
	return GetErrorCode(err) == MaxTimeMSExpired || errorHasCode(err, MaxTimeMSExpired)
}

func isRetryablePoolError(err error) bool {
	var rerr driver.RetryablePoolError
	return errors.As(err, &rerr) && rerr.Retryable()
}

func isServerSelectionError(err error) bool {
	var sse topology.ServerSelectionError
	return errors.As(err, &sse)
}

func isConnectionError(err error) bool {
	var connErr topology.ConnectionError
	if errors.As(err, &connErr) {
		// Network errors are usually wrapped inside ConnectionError instead of being at top-level.
		return connErr.Wrapped != nil && isNetworkError(connErr.Wrapped)
	}

	return false
}

// IsTransientError returns true if this is an error that is reconnectable and can be retried.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if IsContextCanceledError(err) {
		return false
	}

	// Retry on network errors, e.g. no reachable servers,
	// connection reset by peer, operation timed out, etc.
	if isNetworkError(errors.Cause(err)) {
		return true
	}

	return isConnectionError(err) ||
		hasTransientErrorCode(err) ||
		hasTransientErrorLabel(err) ||
		isRetryablePoolError(err) ||
		isServerSelectionError(err)
}

// isNetworkError returns true if this is a NetworkError.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	// Connection errors from syscalls, connection reset by peer, etc.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return true
	}

	switch err.Error() {
	case "no reachable servers", "Closed explicitly", "connection closed":
		return true
	}

	// Network errors from the driver
	return mongo.IsNetworkError(err)
}

// Read-path subset of the server's retryable codes.
var transientErrorCodes = mapset.NewSet(
	6,  // HostUnreachable
	7,  // HostNotFound
	43, // CursorNotFound

	MaxTimeMSExpired,

	89,    // NetworkTimeout
	91,    // ShutdownInProgress
	133,   // FailedToSatisfyReadPreference
	134,   // ReadConcernMajorityNotAvailableYet
	175,   // QueryPlanKilled
	189,   // PrimarySteppedDown
	202,   // NetworkInterfaceExceededTimeLimit
	262,   // ExceededTimeLimit
	317,   // ConnectionPoolExpired
	365,   // TemporarilyUnavailable
	384,   // ConnectionError
	402,   // ResourceExhausted
	407,   // PooledConnectionAcquisitionExceededTimeLimit
	9001,  // SocketException
	10107, // NotWritablePrimary
	11600, // InterruptedAtShutdown
	11602, // InterruptedDueToReplStateChange
	13435, // NotPrimaryNoSecondaryOk
	13436, // NotPrimaryOrSecondary
)

// hasTransientErrorCode returns true if the error has one of a set of known-to-be-transient
// Mongo server error codes.
func hasTransientErrorCode(err error) bool {
	if GetErrorCode(err) == 0 {
		// The server may send "not master" without an error code.
		if strings.Contains(err.Error(), "not master") {
			return true
		}
	}

	for code := range transientErrorCodes.Iter() {
		if errorHasCode(err, code) {
			return true
		}
	}

	return false
}

var transientErrorLabels = [2]string{
	"RetryableWriteError",
	"TransientTransactionError",
}

func hasTransientErrorLabel(err error) bool {
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		for _, l := range transientErrorLabels {
			if serverErr.HasErrorLabel(l) {
				return true
			}
		}
	}
	return false
}

func errorHasCode(err error, code int) bool {
	var serverErr mongo.ServerError

	return errors.As(err, &serverErr) && serverErr.HasErrorCode(code)
}

// GetErrorCode returns the provided error’s top-level error code.
// It returns 0 if the error is nil or not one of the supported error types.
func GetErrorCode(err error) int {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return int(cmdErr.Code)
	}

	var drvErr driver.Error
	if errors.As(err, &drvErr) {
		return int(drvErr.Code)
	}

	return 0
}
