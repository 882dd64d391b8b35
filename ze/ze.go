// Package ze implements a Go wrapper for the subset of the Level Zero core API needed to share device
// memory between processes: driver and device enumeration, contexts, command lists and queues, device,
// host and virtual memory, and IPC memory handles.
//
// The Level Zero loader (libze_loader.so) is opened at run time with dlopen, so building this package
// requires neither the Level Zero headers nor the library. See Load and ZE_LOADER_LIBRARY_PATH.
//
// The package requires Linux and cgo: without them it is empty.
package ze
