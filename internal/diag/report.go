package diag

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Report collects diagnostics for one run. It is safe for concurrent use.
type Report struct {
	mu      sync.Mutex
	entries []Located
}

// Add records diagnostics. Nil entries are ignored.
func (r *Report) Add(ds ...Located) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range ds {
		if d != nil {
			r.entries = append(r.entries, d)
		}
	}
}

// Entries returns all diagnostics sorted by file, line, offset and kind.
func (r *Report) Entries() []Located {
	r.mu.Lock()
	out := make([]Located, len(r.entries))
	copy(out, r.entries)
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Pos(), out[j].Pos()
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Offset != b.Offset {
			return a.Offset < b.Offset
		}
		return out[i].Kind() < out[j].Kind()
	})
	return out
}

// Warnings returns the number of entries that count as warnings.
func (r *Report) Warnings() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.entries {
		if IsWarning(d) {
			n++
		}
	}
	return n
}

// Print writes the warning summary. Informational entries are omitted.
func (r *Report) Print(w io.Writer) {
	var warnings []Located
	for _, d := range r.Entries() {
		if IsWarning(d) {
			warnings = append(warnings, d)
		}
	}
	if len(warnings) == 0 {
		return
	}

	noun := "warnings"
	if len(warnings) == 1 {
		noun = "warning"
	}
	_, _ = fmt.Fprintf(w, "%d %s:\n", len(warnings), noun)
	for _, d := range warnings {
		_, _ = fmt.Fprintf(w, "  %s: [%s] %s\n", d.Pos(), d.Kind(), Summary(d))
	}
}
