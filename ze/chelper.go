//go:build linux && cgo

package ze

/*
#include <stdlib.h>
#include <string.h>
*/
import "C"
import (
	"reflect"
	"unsafe"
)

// CGO helper utilities: out-parameters and descriptors passed to Level Zero are allocated in
// the C heap, so no Go pointer is ever handed to the driver.

// cFree calls C.free() on the unsafe.Pointer version of data.
func cFree[T any](data *T) {
	C.free(unsafe.Pointer(data))
}

// cSizeOf returns the size of the given type in bytes. Notice some structures may be padded, and this will
// include that space.
func cSizeOf[T any]() C.size_t {
	var ptr *T
	return C.size_t(reflect.TypeOf(ptr).Elem().Size())
}

// cMalloc allocates a T in the C heap and initializes it to zero.
// It must be manually freed with cFree() by the user.
func cMalloc[T any]() (ptr *T) {
	size := cSizeOf[T]()
	cPtr := (*T)(C.calloc(1, size))
	return cPtr
}

// cMallocArray allocates space to hold n copies of T in the C heap and initializes it to zero.
// It must be manually freed with cFree() by the user.
func cMallocArray[T any](n int) (ptr *T) {
	size := cSizeOf[T]()
	cPtr := (*T)(C.calloc(C.size_t(max(n, 1)), size))
	return cPtr
}

// cDataToSlice converts a C pointer to C allocated array of type T with count elements and return an unsafe
// slice to the data.
func cDataToSlice[T any](data unsafe.Pointer, count int) (result []T) {
	return unsafe.Slice((*T)(data), count)
}

// cCharArrayToString converts a fixed-size, NUL padded C char array to a Go string.
func cCharArrayToString(data []C.char) string {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), len(data))
	for ii, b := range buf {
		if b == 0 {
			return string(buf[:ii])
		}
	}
	return string(buf)
}
