// Package main provides the FFI bridge for mobile platforms.
// Build as a shared library: libdamagelog.so (Android) / damagelog.framework (iOS).
//
// Functions returning *C.char hand ownership to the caller, who must release
// the string with FreeString. Functions returning int32 use -1 for failure;
// GetLastError then describes it.
package main

/*
#cgo CFLAGS: -Wall -Wextra
#include <stdlib.h>
*/
import "C"
import (
	"unsafe"
)

//export Init
// Init opens the local queue under dataDir and starts background sync.
// online is the reachability the host observed at launch (0 or 1).
func Init(dataDir *C.char, online int32) int32 {
	if core.record(core.init(C.GoString(dataDir), online != 0)) != nil {
		return -1
	}
	return 0
}

//export Cleanup
// Cleanup stops background sync and closes the local queue.
func Cleanup() {
	core.cleanup()
}

//export GetLastError
// GetLastError returns the message of the last failed call, or "".
func GetLastError() *C.char {
	return C.CString(core.lastError())
}

//export Enqueue
// Enqueue stores a report. request is JSON:
// {"fields": {...}, "images": [{"content_type", "data"}], "voice": {...}}
// with base64 attachment data. Returns the receipt JSON or NULL.
func Enqueue(request *C.char) *C.char {
	receipt, err := core.enqueue(C.GoString(request))
	if core.record(err) != nil {
		return nil
	}
	return C.CString(receipt)
}

//export PendingCount
// PendingCount returns the number of reports waiting to sync, or -1.
func PendingCount() int32 {
	n, err := core.pendingCount()
	if core.record(err) != nil {
		return -1
	}
	return int32(n)
}

//export IsSyncing
// IsSyncing returns 1 while a drain is running.
func IsSyncing() int32 {
	if core.isSyncing() {
		return 1
	}
	return 0
}

//export TriggerSync
// TriggerSync starts a drain in the background.
func TriggerSync() int32 {
	if core.record(core.triggerSync()) != nil {
		return -1
	}
	return 0
}

//export SetOnline
// SetOnline forwards an OS reachability change (0 or 1). Going online starts
// a drain.
func SetOnline(online int32) int32 {
	if core.record(core.setOnline(online != 0)) != nil {
		return -1
	}
	return 0
}

//export FreeString
// FreeString releases a string returned by this library.
func FreeString(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}

func main() {
	// Required for c-shared build mode, never run.
}
