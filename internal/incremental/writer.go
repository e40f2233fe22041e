package incremental

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bolasblack/syncx/internal/delta"
)

var tracer = otel.Tracer("github.com/bolasblack/syncx/internal/incremental")

// Writer publishes one participant's deltas to a shared store.
type Writer struct {
	id     string
	store  Store
	logger *slog.Logger

	mu sync.Mutex
	// latest is the newest store delta the writer's copy reflects. Deltas
	// the writer appends while behind do not move it, since the copy still
	// lacks the remote deltas they were merged past.
	latest *Signature
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterID sets the writer identity. The default is a random UUID.
func WithWriterID(id string) WriterOption {
	return func(w *Writer) { w.id = id }
}

// WithLastKnown sets the signature of the last store delta the writer has
// seen, for writers resuming from saved state.
func WithLastKnown(sig *Signature) WriterOption {
	return func(w *Writer) { w.latest = cloneSignature(sig) }
}

// WithWriterLogger sets the logger. The default is slog.Default().
func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) { w.logger = logger }
}

// NewWriter returns a writer publishing to store.
func NewWriter(store Store, opts ...WriterOption) *Writer {
	w := &Writer{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	if w.id == "" {
		w.id = uuid.NewString()
	}
	return w
}

// ID returns the writer identity.
func (w *Writer) ID() string { return w.id }

// LastKnown returns the signature of the last store delta the writer has
// seen, or nil.
func (w *Writer) LastKnown() *Signature {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneSignature(w.latest)
}

// Initial returns the store's accumulated object and marks the writer as
// up to date with it.
func (w *Writer) Initial(ctx context.Context) (any, error) {
	c, err := w.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	obj, err := c.Accumulated()
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.latest = cloneSignature(c.Latest)
	w.mu.Unlock()
	return obj, nil
}

// Put appends local, which turned the writer's copy into localObject. If
// the store moved on since the writer last saw it, local is appended only
// when it commutes with the remote changes; otherwise a *ConflictError is
// returned and nothing is stored.
func (w *Writer) Put(ctx context.Context, local delta.Delta, localObject any) (err error) {
	if len(local) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "syncx.incremental.put", trace.WithAttributes(
		attribute.String("writer", w.id),
		attribute.Int("ops", len(local)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	w.mu.Lock()
	defer w.mu.Unlock()

	var appended Signature
	var current bool
	err = w.store.Update(ctx, func(c *Content) error {
		current = SameSignature(c.Latest, w.latest)
		if !current {
			ok, remote, err := commutes(c, w.latest, w.id, local, localObject)
			if err != nil || !ok {
				conflicts := Conflicts(local, remote, time.Now())
				if err != nil {
					w.logger.Debug("conflict check failed", "writer", w.id, "error", err)
				}
				return &ConflictError{Writer: w.id, Conflicts: conflicts}
			}
			w.logger.Debug("merged behind store", "writer", w.id, "known", signatureString(w.latest), "latest", signatureString(c.Latest))
		}

		sig, err := Sign(c.Latest, local)
		if err != nil {
			return err
		}
		c.Append(SignedDelta{Signature: sig, Writer: w.id, Delta: local})
		appended = sig
		return nil
	})
	if err != nil {
		var conflictErr *ConflictError
		if errors.As(err, &conflictErr) {
			recordPut("conflict", len(conflictErr.Conflicts))
			w.logger.Warn("delta rejected", "writer", w.id, "conflicts", len(conflictErr.Conflicts))
			return err
		}
		recordPut("error", 0)
		return fmt.Errorf("failed to publish delta: %w", err)
	}

	recordPut("appended", 0)
	if current {
		w.latest = &appended
	}
	w.logger.Debug("delta appended", "writer", w.id, "signature", appended.String(), "current", current)
	return nil
}

// Sync publishes d. It lets a Writer persist a tracked tree.
func (w *Writer) Sync(ctx context.Context, root any, d delta.Delta) error {
	return w.Put(ctx, d, root)
}

// Compact folds the store's queue into its base object.
func (w *Writer) Compact(ctx context.Context) error {
	return w.store.Update(ctx, func(c *Content) error {
		return c.Compact()
	})
}

func cloneSignature(sig *Signature) *Signature {
	if sig == nil {
		return nil
	}
	s := *sig
	return &s
}

func signatureString(sig *Signature) string {
	if sig == nil {
		return "<none>"
	}
	return sig.String()
}
