//go:build linux && cgo

/*
 *	Copyright 2024 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package ze

/*
#include "ze_minimal.h"
*/
import "C"
import (
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// This file holds the search and caching of the Level Zero loader library. The OS specific
// part (dlopen) lives in dynamiclib_linux.go.

const (
	// LoaderPathsEnv is the name of the environment variable that defines the search paths for the loader.
	// It can be a ":" separated list of directories, or the absolute path of the library itself.
	LoaderPathsEnv = "ZE_LOADER_LIBRARY_PATH"
)

var (
	// LoaderNames are the file names tried, in order, when searching for the loader library.
	LoaderNames = []string{"libze_loader.so.1", "libze_loader.so"}

	// loaderSearchPaths is set during initialization from LoaderPathsEnv, or from the system defaults.
	loaderSearchPaths []string

	// loadedLoaders caches the loaders already opened, by path. Protected by muLoaders.
	loadedLoaders = make(map[string]*Loader)
	muLoaders     sync.Mutex
)

func init() {
	zePaths, found := os.LookupEnv(LoaderPathsEnv)
	if !found {
		loaderSearchPaths = osDefaultLibraryPaths()
	} else {
		loaderSearchPaths = slices.DeleteFunc(strings.Split(zePaths, ":"), func(p string) bool {
			return p == "" // Remove empty paths.
		})
	}
}

// loadNamedLoader opens (or returns the cached) loader library.
//
// An empty name searches LoaderNames in the search paths and, as a last resort, asks the dynamic linker
// for the first of LoaderNames. An absolute path is opened as is.
//
// It uses a mutex to serialize calls from different goroutines.
func loadNamedLoader(name string) (*Loader, error) {
	muLoaders.Lock()
	defer muLoaders.Unlock()

	libPath := name
	if !path.IsAbs(libPath) {
		candidates := LoaderNames
		if name != "" {
			candidates = []string{name}
		}
		var found bool
		libPath, found = searchLibrary(candidates)
		if !found {
			// Let the dynamic linker (ld.so.cache) resolve the bare name.
			libPath = candidates[0]
			klog.V(1).Infof("Level Zero loader %q not found in %v, falling back to the dynamic linker", libPath, loaderSearchPaths)
		}
	}
	if loader, found := loadedLoaders[libPath]; found {
		return loader, nil
	}

	klog.V(1).Infof("attempting to load Level Zero loader from %s", libPath)
	handle, err := loadLibrary(libPath)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load Level Zero loader %q: set %s to the directory holding %s",
			libPath, LoaderPathsEnv, LoaderNames[0])
	}
	api := cMalloc[C.zeApi]()
	if missing := C.ze_load_api(handle.Handle, api); missing != nil {
		symbol := C.GoString(missing)
		cFree(api)
		if err2 := handle.Close(); err2 != nil {
			klog.Warningf("Failed to close dynamic library %q: %v", libPath, err2)
		}
		return nil, errors.Errorf("Level Zero loader %q does not export %q", libPath, symbol)
	}
	loader := &Loader{
		name: name,
		path: libPath,
		dll:  handle,
		api:  api,
	}
	loadedLoaders[libPath] = loader
	return loader, nil
}

// AvailableLoaders returns the paths of the loader libraries found in the search paths, in search order.
//
// The search paths are taken from ZE_LOADER_LIBRARY_PATH, or if it is not set, from LD_LIBRARY_PATH,
// /etc/ld.so.conf and the standard library directories.
func AvailableLoaders() []string {
	var found []string
	for _, dir := range loaderSearchPaths {
		if !isDir(dir) {
			if isFile(dir) && !slices.Contains(found, dir) {
				found = append(found, dir)
			}
			continue
		}
		for _, name := range LoaderNames {
			candidate := filepath.Join(dir, name)
			if isFile(candidate) && !slices.Contains(found, candidate) {
				found = append(found, candidate)
			}
		}
	}
	return found
}

// searchLibrary returns the first existing file with one of the names in the search paths.
// Search paths that are files themselves (an absolute path given in ZE_LOADER_LIBRARY_PATH) match directly.
func searchLibrary(names []string) (string, bool) {
	for _, dir := range loaderSearchPaths {
		if isFile(dir) {
			return dir, true
		}
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if isFile(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
