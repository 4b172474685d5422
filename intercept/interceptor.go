// Package intercept decorates a resource.Resource so that callbacks run
// immediately before and after one of its operations.
package intercept

import (
	"github.com/sarchlab/resmon/hooking"
	"github.com/sarchlab/resmon/resource"
)

// HookPosBeforeOperation triggers right before the intercepted operation.
var HookPosBeforeOperation = &hooking.HookPos{Name: "BeforeOperation"}

// HookPosAfterOperation triggers right after the intercepted operation.
var HookPosAfterOperation = &hooking.HookPos{Name: "AfterOperation"}

// BeforeFunc runs before the operation. Its return value is handed to the
// matching AfterFunc.
type BeforeFunc func(r resource.Resource, op resource.Operation) interface{}

// AfterFunc runs after the operation with the context returned by BeforeFunc.
type AfterFunc func(r resource.Resource, op resource.Operation, ctx interface{})

// An Interceptor is a resource.Resource that forwards every call to the
// resource it wraps, surrounding one operation with callbacks.
type Interceptor struct {
	hooking.HookableBase
	resource.Resource

	op     resource.Operation
	before BeforeFunc
	after  AfterFunc
}

// Intercept wraps r so that before and after surround every call of op.
// Either callback may be nil. Interceptors of different operations compose by
// wrapping one another.
func Intercept(
	r resource.Resource,
	op resource.Operation,
	before BeforeFunc,
	after AfterFunc,
) *Interceptor {
	return &Interceptor{
		Resource: r,
		op:       op,
		before:   before,
		after:    after,
	}
}

// Operation returns the intercepted operation.
func (i *Interceptor) Operation() resource.Operation {
	return i.op
}

// Unwrap returns the wrapped resource.
func (i *Interceptor) Unwrap() resource.Resource {
	return i.Resource
}

// Request forwards to the wrapped resource.
func (i *Interceptor) Request(
	owner string,
	onGrant resource.GrantFunc,
) *resource.Request {
	if i.op != resource.OpRequest {
		return i.Resource.Request(owner, onGrant)
	}

	ctx := i.enter()
	req := i.Resource.Request(owner, onGrant)
	i.exit(ctx)

	return req
}

// Release forwards to the wrapped resource. The after callback runs even when
// the release is rejected, since the call itself completed.
func (i *Interceptor) Release(req *resource.Request) error {
	if i.op != resource.OpRelease {
		return i.Resource.Release(req)
	}

	ctx := i.enter()
	err := i.Resource.Release(req)
	i.exit(ctx)

	return err
}

func (i *Interceptor) enter() interface{} {
	var ctx interface{}
	if i.before != nil {
		ctx = i.before(i.Resource, i.op)
	}

	if i.NumHooks() > 0 {
		i.InvokeHook(hooking.HookCtx{
			Domain: i,
			Pos:    HookPosBeforeOperation,
			Item:   i.op,
			Detail: ctx,
		})
	}

	return ctx
}

func (i *Interceptor) exit(ctx interface{}) {
	if i.after != nil {
		i.after(i.Resource, i.op, ctx)
	}

	if i.NumHooks() > 0 {
		i.InvokeHook(hooking.HookCtx{
			Domain: i,
			Pos:    HookPosAfterOperation,
			Item:   i.op,
			Detail: ctx,
		})
	}
}

// AcceptHookAll registers hook on every Interceptor in the chain that wraps
// r, from the outermost inwards.
func AcceptHookAll(r resource.Resource, hook hooking.Hook) {
	for {
		i, ok := r.(*Interceptor)
		if !ok {
			return
		}

		i.AcceptHook(hook)
		r = i.Unwrap()
	}
}
