package track

import (
	"context"
	"sync/atomic"
)

// owner identifies a holder of a manager lock. Calls sharing a context
// that carries the same owner may re-enter the lock.
type owner struct {
	id uint64
}

var ownerSeq atomic.Uint64

// ownerKey is the context key for the lock owner.
type ownerKey struct{}

// withOwner returns ctx carrying an owner, creating one if ctx has none.
func withOwner(ctx context.Context) (context.Context, *owner) {
	if o := getOwner(ctx); o != nil {
		return ctx, o
	}
	o := &owner{id: ownerSeq.Add(1)}
	return context.WithValue(ctx, ownerKey{}, o), o
}

// getOwner returns the owner from ctx, or nil if not set.
func getOwner(ctx context.Context) *owner {
	if o, ok := ctx.Value(ownerKey{}).(*owner); ok {
		return o
	}
	return nil
}
