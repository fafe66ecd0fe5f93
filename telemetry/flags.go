// Package telemetry merges compute unit reports into aggregate throughput,
// keeps a rolling chart of it, and derives diagnostic flags.
package telemetry

// Diagnostic flags derived on every aggregation tick.
const (
	FlagWorkersBelowRequested = "workers below requested count"
	FlagGraphicsUnavailable   = "graphics load unavailable"
	FlagNotApplyingLoad       = "not applying load correctly"
)

// FlagSet is an insertion-ordered set of diagnostic strings.
type FlagSet struct {
	order []string
	seen  map[string]struct{}
}

// NewFlagSet returns an empty set.
func NewFlagSet() *FlagSet {
	return &FlagSet{seen: make(map[string]struct{})}
}

// Add inserts msg and reports whether it was new.
func (f *FlagSet) Add(msg string) bool {
	if _, ok := f.seen[msg]; ok {
		return false
	}
	f.seen[msg] = struct{}{}
	f.order = append(f.order, msg)
	return true
}

// Has reports whether msg is present.
func (f *FlagSet) Has(msg string) bool {
	_, ok := f.seen[msg]
	return ok
}

// Len returns the number of distinct flags.
func (f *FlagSet) Len() int { return len(f.order) }

// List returns the flags in insertion order.
func (f *FlagSet) List() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Reset empties the set.
func (f *FlagSet) Reset() {
	f.order = nil
	f.seen = make(map[string]struct{})
}
