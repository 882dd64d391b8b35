//go:build linux && cgo

package ze

/*
#include "ze_minimal.h"
*/
import "C"
import (
	"fmt"

	"github.com/pkg/errors"
)

// Result is a Level Zero ze_result_t.
type Result uint32

const (
	ResultSuccess                      Result = 0
	ResultNotReady                     Result = 0x1
	ResultErrorDeviceLost              Result = 0x70000001
	ResultErrorOutOfHostMemory         Result = 0x70000002
	ResultErrorOutOfDeviceMemory       Result = 0x70000003
	ResultErrorModuleBuildFailure      Result = 0x70000004
	ResultErrorModuleLinkFailure       Result = 0x70000005
	ResultErrorDeviceRequiresReset     Result = 0x70000006
	ResultErrorDeviceInLowPowerState   Result = 0x70000007
	ResultErrorInsufficientPermissions Result = 0x70010000
	ResultErrorNotAvailable            Result = 0x70010001
	ResultErrorDependencyUnavailable   Result = 0x70020000
	ResultErrorUninitialized           Result = 0x78000001
	ResultErrorUnsupportedVersion      Result = 0x78000002
	ResultErrorUnsupportedFeature      Result = 0x78000003
	ResultErrorInvalidArgument         Result = 0x78000004
	ResultErrorInvalidNullHandle       Result = 0x78000005
	ResultErrorHandleObjectInUse       Result = 0x78000006
	ResultErrorInvalidNullPointer      Result = 0x78000007
	ResultErrorInvalidSize             Result = 0x78000008
	ResultErrorUnsupportedSize         Result = 0x78000009
	ResultErrorUnsupportedAlignment    Result = 0x7800000a
	ResultErrorInvalidSynchronization  Result = 0x7800000b
	ResultErrorInvalidEnumeration      Result = 0x7800000c
	ResultErrorUnsupportedEnumeration  Result = 0x7800000d
	ResultErrorUnknown                 Result = 0x7ffffffe
)

var resultNames = map[Result]string{
	ResultSuccess:                      "ZE_RESULT_SUCCESS",
	ResultNotReady:                     "ZE_RESULT_NOT_READY",
	ResultErrorDeviceLost:              "ZE_RESULT_ERROR_DEVICE_LOST",
	ResultErrorOutOfHostMemory:         "ZE_RESULT_ERROR_OUT_OF_HOST_MEMORY",
	ResultErrorOutOfDeviceMemory:       "ZE_RESULT_ERROR_OUT_OF_DEVICE_MEMORY",
	ResultErrorModuleBuildFailure:      "ZE_RESULT_ERROR_MODULE_BUILD_FAILURE",
	ResultErrorModuleLinkFailure:       "ZE_RESULT_ERROR_MODULE_LINK_FAILURE",
	ResultErrorDeviceRequiresReset:     "ZE_RESULT_ERROR_DEVICE_REQUIRES_RESET",
	ResultErrorDeviceInLowPowerState:   "ZE_RESULT_ERROR_DEVICE_IN_LOW_POWER_STATE",
	ResultErrorInsufficientPermissions: "ZE_RESULT_ERROR_INSUFFICIENT_PERMISSIONS",
	ResultErrorNotAvailable:            "ZE_RESULT_ERROR_NOT_AVAILABLE",
	ResultErrorDependencyUnavailable:   "ZE_RESULT_ERROR_DEPENDENCY_UNAVAILABLE",
	ResultErrorUninitialized:           "ZE_RESULT_ERROR_UNINITIALIZED",
	ResultErrorUnsupportedVersion:      "ZE_RESULT_ERROR_UNSUPPORTED_VERSION",
	ResultErrorUnsupportedFeature:      "ZE_RESULT_ERROR_UNSUPPORTED_FEATURE",
	ResultErrorInvalidArgument:         "ZE_RESULT_ERROR_INVALID_ARGUMENT",
	ResultErrorInvalidNullHandle:       "ZE_RESULT_ERROR_INVALID_NULL_HANDLE",
	ResultErrorHandleObjectInUse:       "ZE_RESULT_ERROR_HANDLE_OBJECT_IN_USE",
	ResultErrorInvalidNullPointer:      "ZE_RESULT_ERROR_INVALID_NULL_POINTER",
	ResultErrorInvalidSize:             "ZE_RESULT_ERROR_INVALID_SIZE",
	ResultErrorUnsupportedSize:         "ZE_RESULT_ERROR_UNSUPPORTED_SIZE",
	ResultErrorUnsupportedAlignment:    "ZE_RESULT_ERROR_UNSUPPORTED_ALIGNMENT",
	ResultErrorInvalidSynchronization:  "ZE_RESULT_ERROR_INVALID_SYNCHRONIZATION_OBJECT",
	ResultErrorInvalidEnumeration:      "ZE_RESULT_ERROR_INVALID_ENUMERATION",
	ResultErrorUnsupportedEnumeration:  "ZE_RESULT_ERROR_UNSUPPORTED_ENUMERATION",
	ResultErrorUnknown:                 "ZE_RESULT_ERROR_UNKNOWN",
}

// String implements fmt.Stringer.
func (r Result) String() string {
	if name, found := resultNames[r]; found {
		return name
	}
	return fmt.Sprintf("ze_result_t(0x%x)", uint32(r))
}

// Error is returned by every call whose ze_result_t is not ZE_RESULT_SUCCESS.
type Error struct {
	// Call is the name of the Level Zero entry point that failed, e.g. "zeMemOpenIpcHandle".
	Call   string
	Result Result
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("Level Zero error: %s returned %s", e.Call, e.Result)
}

// toError converts a ze_result_t to a Go error with a stack trace (see github.com/pkg/errors package).
// It returns nil for ZE_RESULT_SUCCESS.
func toError(call string, result C.ze_result_t) error {
	if result == 0 {
		return nil
	}
	return errors.WithStack(&Error{Call: call, Result: Result(result)})
}

// ResultOf returns the Result carried by err, if it (or any error it wraps) is an *Error.
func ResultOf(err error) (Result, bool) {
	var zeErr *Error
	if errors.As(err, &zeErr) {
		return zeErr.Result, true
	}
	return ResultSuccess, false
}
