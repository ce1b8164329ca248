//go:build js && wasm

// Package browser adapts the browser's localStorage/sessionStorage to the
// storage.KV contract, for applications compiled to WASM that want their
// persisted cells and query cache to survive a page reload without any
// server-side storage. It is the "platform-native" option storage.go (§4.B)
// leaves open, and is adapted directly from the teacher's state.Storage and
// storage.localStorage/sessionStorage wrappers, which bound the same two
// browser APIs to the same Get/Set/Remove/Clear shape.
//
// It implements only storage.KV, not storage.RecordStore: localStorage has
// no notion of a named collection, so granular per-record updates (§6,
// granularUpdates) are not available under this backend. Callers that need
// RecordStore in a WASM build should pair browser.KV with an HTTP-backed
// RecordStore implementation instead.
package browser

import (
	"context"
	"syscall/js"

	"github.com/dougbarrett/reactivequery/storage"
)

// KV backs storage.KV with one of the browser's Storage objects.
type KV struct {
	area js.Value
}

// Local returns a KV backed by window.localStorage.
func Local() *KV {
	return &KV{area: js.Global().Get("localStorage")}
}

// Session returns a KV backed by window.sessionStorage.
func Session() *KV {
	return &KV{area: js.Global().Get("sessionStorage")}
}

var _ storage.KV = (*KV)(nil)

func (k *KV) Init(ctx context.Context) error {
	return ctx.Err()
}

func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	val := k.area.Call("getItem", key)
	if val.IsNull() || val.IsUndefined() {
		return "", false, nil
	}
	return val.String(), true, nil
}

func (k *KV) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.area.Call("setItem", key, value)
	return nil
}

func (k *KV) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.area.Call("removeItem", key)
	return nil
}

func (k *KV) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.area.Call("clear")
	return nil
}
