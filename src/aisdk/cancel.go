package aisdk

import (
	"context"
	"sync"
)

// CancelToken pairs a context with the knowledge of who owns it. A token
// created with NewOwnedToken can be cancelled by its holder; a borrowed token
// wraps a caller's context and Release never touches it.
type CancelToken struct {
	ctx    context.Context
	cancel context.CancelFunc
	owned  bool
	once   sync.Once
}

// NewOwnedToken derives a cancellable child of parent owned by the caller.
func NewOwnedToken(parent context.Context) *CancelToken {
	ctx, cancel := context.WithCancel(parent)
	return &CancelToken{ctx: ctx, cancel: cancel, owned: true}
}

// BorrowToken wraps a context owned by someone else.
func BorrowToken(ctx context.Context) *CancelToken {
	return &CancelToken{ctx: ctx}
}

// Context returns the token's context.
func (t *CancelToken) Context() context.Context { return t.ctx }

// Owned reports whether Cancel and Release act on the context.
func (t *CancelToken) Owned() bool { return t.owned }

// Cancel aborts an owned token. It is a no-op on borrowed tokens.
func (t *CancelToken) Cancel() {
	if t.owned {
		t.cancel()
	}
}

// Release disposes of an owned token once the work it guarded is done.
func (t *CancelToken) Release() {
	t.once.Do(func() {
		if t.owned {
			t.cancel()
		}
	})
}
