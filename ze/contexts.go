//go:build linux && cgo

package ze

/*
#include "ze_minimal.h"
*/
import "C"
import (
	"runtime"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Context is a ze_context_handle_t: it owns memory allocations, command lists and queues created with it.
type Context struct {
	driver *Driver
	c      C.ze_context_handle_t
}

// NewContext calls zeContextCreate.
//
// The context is destroyed when garbage collected, but it's better to call Destroy explicitly, after
// everything created with it is released.
func (d *Driver) NewContext() (*Context, error) {
	desc := cMalloc[C.ze_context_desc_t]()
	defer cFree(desc)
	desc.stype = C.ZE_STRUCTURE_TYPE_CONTEXT_DESC
	cContext := cMalloc[C.ze_context_handle_t]()
	defer cFree(cContext)
	if err := toError("zeContextCreate", C.call_zeContextCreate(d.loader.api, d.c, desc, cContext)); err != nil {
		return nil, err
	}
	ctx := &Context{driver: d, c: *cContext}
	runtime.SetFinalizer(ctx, func(ctx *Context) {
		if err := ctx.Destroy(); err != nil {
			klog.Errorf("Context.Destroy failed: %v", err)
		}
	})
	return ctx, nil
}

// Destroy calls zeContextDestroy. The context is no longer valid afterwards; calling it again is a no-op.
func (ctx *Context) Destroy() error {
	if ctx == nil || ctx.c == nil {
		return nil
	}
	defer runtime.KeepAlive(ctx)
	err := toError("zeContextDestroy", C.call_zeContextDestroy(ctx.api(), ctx.c))
	ctx.c = nil
	return err
}

// Driver returns the driver the context was created from.
func (ctx *Context) Driver() *Driver {
	return ctx.driver
}

func (ctx *Context) api() *C.zeApi {
	return ctx.driver.loader.api
}

// checkValid returns an error if the context has already been destroyed.
func (ctx *Context) checkValid() error {
	if ctx == nil || ctx.c == nil {
		return errors.New("ze.Context is nil or has already been destroyed")
	}
	return nil
}
