package logging

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// DefaultRingSize is how many records a Ring keeps when no size is given.
const DefaultRingSize = 50

// Entry is one recorded log line.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

type ringStore struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func (s *ringStore) add(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[s.next] = e
	s.next = (s.next + 1) % len(s.entries)
	if s.next == 0 {
		s.full = true
	}
}

// Ring is a slog.Handler that remembers the most recent records and passes
// every record on to an inner handler. Handlers derived with WithAttrs and
// WithGroup share the same history.
type Ring struct {
	inner  slog.Handler
	store  *ringStore
	attrs  []slog.Attr
	groups []string
}

// NewRing wraps inner, keeping the last size records. A nil inner only
// records.
func NewRing(inner slog.Handler, size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{
		inner: inner,
		store: &ringStore{entries: make([]Entry, size)},
	}
}

// Enabled implements slog.Handler. The ring records everything at info and
// above even if the inner handler is quieter.
func (r *Ring) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= slog.LevelInfo {
		return true
	}
	return r.inner != nil && r.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (r *Ring) Handle(ctx context.Context, rec slog.Record) error {
	if rec.Level >= slog.LevelInfo {
		e := Entry{
			Time:    rec.Time,
			Level:   rec.Level.String(),
			Message: rec.Message,
		}
		if len(r.attrs) > 0 || rec.NumAttrs() > 0 {
			e.Attrs = make(map[string]any, len(r.attrs)+rec.NumAttrs())
			for _, a := range r.attrs {
				e.Attrs[a.Key] = attrValue(a.Value)
			}
			rec.Attrs(func(a slog.Attr) bool {
				e.Attrs[r.key(a.Key)] = attrValue(a.Value)
				return true
			})
		}
		r.store.add(e)
	}

	if r.inner != nil && r.inner.Enabled(ctx, rec.Level) {
		return r.inner.Handle(ctx, rec)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (r *Ring) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := r.clone()
	for _, a := range attrs {
		a.Key = r.key(a.Key)
		next.attrs = append(next.attrs, a)
	}
	if r.inner != nil {
		next.inner = r.inner.WithAttrs(attrs)
	}
	return next
}

// WithGroup implements slog.Handler.
func (r *Ring) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}
	next := r.clone()
	next.groups = append(next.groups, name)
	if r.inner != nil {
		next.inner = r.inner.WithGroup(name)
	}
	return next
}

// Recent returns up to limit records, oldest first. A limit of zero or less
// returns all of them.
func (r *Ring) Recent(limit int) []Entry {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	if s.full {
		out = append(out, s.entries[s.next:]...)
	}
	out = append(out, s.entries[:s.next]...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (r *Ring) clone() *Ring {
	return &Ring{
		inner:  r.inner,
		store:  r.store,
		attrs:  slices.Clone(r.attrs),
		groups: slices.Clone(r.groups),
	}
}

func (r *Ring) key(k string) string {
	for i := len(r.groups) - 1; i >= 0; i-- {
		k = r.groups[i] + "." + k
	}
	return k
}

func attrValue(v slog.Value) any {
	v = v.Resolve()
	if v.Kind() == slog.KindAny {
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}
