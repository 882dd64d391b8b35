// Package levelzero implements backends.Backend using the Level Zero driver, through package ze.
//
// It registers itself as "levelzero". The optional configuration is the name or the absolute path of the
// Level Zero loader library, e.g. "levelzero:/opt/intel/lib/libze_loader.so.1". See ze.Load.
//
// The implementation requires Linux and cgo: without them the package is empty, and the backend is not
// registered.
package levelzero
