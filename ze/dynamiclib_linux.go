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

// This file handles loading the loader dynamic library on linux.
//
// It implements:
//
//	osDefaultLibraryPaths() []string
//	loadLibrary(path string) (*linuxDLLHandle, error)
//
// Modified version of https://github.com/coreos/pkg/blob/main/dlopen/dlopen.go, licenced with Apache 2.0 license
// https://github.com/coreos/pkg/blob/main/LICENSE

// #cgo LDFLAGS: -ldl
/*
#include <stdlib.h>
#include <dlfcn.h>
*/
import "C"
import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	reLdConfInclude = regexp.MustCompile(`^\s*include\s*(.*)$`)
	reLdConfComment = regexp.MustCompile(`^\s*#`)
	reLdConfPath    = regexp.MustCompile(`^\s*(.+?)\s*$`)
)

// osDefaultLibraryPaths is called during initialization to set the default search paths:
// LD_LIBRARY_PATH, the entries of /etc/ld.so.conf and the standard system directories.
func osDefaultLibraryPaths() []string {
	var paths []string
	for _, ldPath := range strings.Split(os.Getenv("LD_LIBRARY_PATH"), ":") {
		if ldPath == "" || !path.IsAbs(ldPath) {
			// No empty or relative paths.
			continue
		}
		paths = append(paths, ldPath)
	}
	paths = loadLibraryPaths(paths, "/etc/ld.so.conf")
	return append(paths, "/usr/local/lib", "/usr/lib/x86_64-linux-gnu", "/usr/lib64", "/usr/lib")
}

func loadLibraryPaths(paths []string, fileWithIncludes string) []string {
	klog.V(2).Infof("Loading paths for libraries from %q", fileWithIncludes)
	file, err := os.Open(fileWithIncludes)
	if err != nil {
		klog.V(1).Infof("Failed to load paths for libraries from %q: %v", fileWithIncludes, err)
		return paths
	}
	defer func() { _ = file.Close() }()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if parts := reLdConfInclude.FindStringSubmatch(line); len(parts) > 0 {
			klog.V(2).Infof("loadLibraryPaths: include %q", parts[1])
			files, err := filepath.Glob(parts[1])
			if err != nil {
				klog.Errorf("Failed to load paths for libraries while expanding include entry %q: %v", parts[1], err)
				continue
			}
			for _, includeFile := range files {
				paths = loadLibraryPaths(paths, includeFile)
			}

		} else if reLdConfComment.MatchString(line) {
			continue

		} else if parts := reLdConfPath.FindStringSubmatch(line); len(parts) > 0 {
			klog.V(2).Infof("loadLibraryPaths: path %q", parts[1])
			paths = append(paths, parts[1])
		}
	}
	if err := scanner.Err(); err != nil {
		klog.Errorf("Error while loading paths for libraries from %q: %v", fileWithIncludes, err)
	}
	return paths
}

// loadLibrary dlopens the library. libPath can be absolute, or a bare name resolved by the dynamic linker.
func loadLibrary(libPath string) (*linuxDLLHandle, error) {
	if path.IsAbs(libPath) {
		info, err := os.Stat(libPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to stat %q", libPath)
		}
		if info.IsDir() {
			return nil, errors.Errorf("library path %q is a directory!?", libPath)
		}
	}

	nameC := C.CString(libPath)
	klog.V(2).Infof("trying to load library %s", libPath)
	handle := C.dlopen(nameC, C.RTLD_NOW|C.RTLD_LOCAL)
	cFree(nameC)
	if handle == nil {
		msg := C.GoString(C.dlerror())
		return nil, errors.Errorf("failed to dynamically load %q: %q -- check with `ldd %s` in case there are missing required libraries",
			libPath, msg, libPath)
	}
	klog.V(1).Infof("loaded library %s", libPath)
	return &linuxDLLHandle{Handle: handle, Name: libPath}, nil
}

// linuxDLLHandle represents an open handle to a library (.so)
type linuxDLLHandle struct {
	Handle unsafe.Pointer
	Name   string
}

// Close closes a LibHandle.
func (l *linuxDLLHandle) Close() error {
	C.dlerror()
	C.dlclose(l.Handle)
	e := C.dlerror()
	if e != nil {
		return errors.Errorf("error closing %v: %v", l.Name, errors.New(C.GoString(e)))
	}
	return nil
}
