// Package binding tracks which (database, transaction) pair is current for
// an execution context. Every Push returns a context carrying a new frame
// that points at the frames already visible to its parent, so the stack is
// persistent: nested work and sibling goroutines each extend it without
// writing to anything their parent or siblings can see.
//
// Contexts passed to a Link must not be nil.
package binding

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dd0wney/cluso-graphtx/pkg/errcode"
	"github.com/dd0wney/cluso-graphtx/pkg/graph"
	"github.com/dd0wney/cluso-graphtx/pkg/registry"
	"github.com/google/uuid"
)

var (
	// ErrUnbalancedPop is returned when Pop or Release finds nothing to
	// remove. It always indicates a push/pop mismatch in the caller.
	ErrUnbalancedPop = errors.New("binding: pop without matching push")

	// ErrOutOfOrder is returned by Release when entries pushed after the
	// released one are still bound. The entry is removed regardless.
	ErrOutOfOrder = fmt.Errorf("%w: entries pushed later are still bound", ErrUnbalancedPop)
)

// Entry is one bound (database, transaction) pair
type Entry struct {
	Database *registry.Handle
	Tx       graph.Transaction
}

// frame is one pushed entry. Everything but popped is immutable once the
// frame is attached to a context.
type frame struct {
	entry  Entry
	parent *frame
	scope  uuid.UUID
	popped atomic.Bool
}

type linkKey struct{ _ byte }

// Link is a binding stack namespace. Contexts carry one stack per Link.
type Link struct {
	key *linkKey
}

// NewLink creates a link whose stacks are invisible to every other link
func NewLink() *Link {
	return &Link{key: &linkKey{}}
}

// top returns the innermost frame still bound on ctx
func (l *Link) top(ctx context.Context) *frame {
	f, _ := ctx.Value(l.key).(*frame)
	for f != nil && f.popped.Load() {
		f = f.parent
	}
	return f
}

// Push binds tx on top of the stack visible from ctx and returns the
// context carrying it. Everything running inside the transaction must use
// the returned context; ctx itself is left unchanged.
func (l *Link) Push(ctx context.Context, db *registry.Handle, tx graph.Transaction) context.Context {
	parent := l.top(ctx)
	f := &frame{
		entry:  Entry{Database: db, Tx: tx},
		parent: parent,
	}
	if parent != nil {
		f.scope = parent.scope
	} else {
		f.scope = uuid.New()
	}
	return context.WithValue(ctx, l.key, f)
}

// Pop removes the innermost entry visible from ctx
func (l *Link) Pop(ctx context.Context) error {
	for {
		f := l.top(ctx)
		if f == nil {
			return ErrUnbalancedPop
		}
		if f.popped.CompareAndSwap(false, true) {
			return nil
		}
	}
}

// Release removes the entry binding tx from the stack visible from ctx,
// wherever it sits. It returns ErrUnbalancedPop when tx is not bound there
// and ErrOutOfOrder when it was found below the top.
func (l *Link) Release(ctx context.Context, tx graph.Transaction) error {
	above := 0
	for f := l.top(ctx); f != nil; f = f.parent {
		if f.popped.Load() {
			continue
		}
		if f.entry.Tx != tx {
			above++
			continue
		}
		if !f.popped.CompareAndSwap(false, true) {
			return ErrUnbalancedPop
		}
		if above > 0 {
			return fmt.Errorf("%d later entries still bound: %w", above, ErrOutOfOrder)
		}
		return nil
	}
	return ErrUnbalancedPop
}

// Current returns the top entry, or ErrAccessOutsideTransaction when the
// stack is empty.
func (l *Link) Current(ctx context.Context) (Entry, error) {
	f := l.top(ctx)
	if f == nil {
		return Entry{}, errcode.ErrAccessOutsideTransaction
	}
	return f.entry, nil
}

// CurrentTransaction returns the transaction on top of the stack, if any
func (l *Link) CurrentTransaction(ctx context.Context) (graph.Transaction, bool) {
	entry, err := l.Current(ctx)
	if err != nil {
		return nil, false
	}
	return entry.Tx, true
}

// Depth returns the number of bound entries visible from ctx
func (l *Link) Depth(ctx context.Context) int {
	n := 0
	for f := l.top(ctx); f != nil; f = f.parent {
		if !f.popped.Load() {
			n++
		}
	}
	return n
}

// ScopeID identifies the chain of bindings visible from ctx. Nested pushes
// share the identity of the outermost one.
func (l *Link) ScopeID(ctx context.Context) (uuid.UUID, bool) {
	if f := l.top(ctx); f != nil {
		return f.scope, true
	}
	return uuid.Nil, false
}

// Detach returns a context with no bindings for this link
func (l *Link) Detach(ctx context.Context) context.Context {
	if l.top(ctx) == nil {
		return ctx
	}
	return context.WithValue(ctx, l.key, (*frame)(nil))
}
