package diag

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a.hpp:3", Position{File: "a.hpp", Line: 3, Offset: 40}.String())
	assert.Equal(t, "a.hpp@40", Position{File: "a.hpp", Offset: 40}.String())
	assert.Equal(t, "a.hpp", Position{File: "a.hpp"}.String())
}

func TestSummaryDropsPosition(t *testing.T) {
	t.Parallel()

	d := &OrphanFieldError{Position: Position{File: "a.hpp", Line: 2}, Type: "S", Member: "x"}
	assert.Equal(t, "a.hpp:2: field S::x has no serializable type S in this file", d.Error())
	assert.Equal(t, "field S::x has no serializable type S in this file", Summary(d))
}

func TestErrorsAs(t *testing.T) {
	t.Parallel()

	var err error = fmt.Errorf("generate: %w", &UnsupportedFieldTypeError{Type: "A", Member: "p", Reason: "pointers are not serialized"})
	var target *UnsupportedFieldTypeError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "p", target.Member)
	assert.Contains(t, target.Error(), "of type <unknown> skipped")
}

func TestReportSortsAndCounts(t *testing.T) {
	t.Parallel()

	r := &Report{}
	r.Add(
		&OrphanFieldError{Position: Position{File: "b.hpp", Line: 1}, Type: "S", Member: "x"},
		nil,
		&ForwardReferenceError{Position: Position{File: "a.hpp", Line: 9}, Type: "T", Member: "y"},
		&MalformedMarkerError{Position: Position{File: "a.hpp", Line: 2}, Marker: "FIELD", Reason: "empty"},
	)

	var files []string
	for _, d := range r.Entries() {
		files = append(files, d.Pos().String())
	}
	assert.Equal(t, []string{"a.hpp:2", "a.hpp:9", "b.hpp:1"}, files)
	assert.Equal(t, 2, r.Warnings())
	assert.Equal(t, KindForwardReference, r.Entries()[1].Kind())
	assert.False(t, IsWarning(&ForwardReferenceError{}))
}

func TestReportPrint(t *testing.T) {
	t.Parallel()

	r := &Report{}
	var buf bytes.Buffer
	r.Print(&buf)
	assert.Empty(t, buf.String())

	r.Add(
		&ForwardReferenceError{Position: Position{File: "a.hpp", Line: 9}, Type: "T", Member: "y"},
		&OrphanFieldError{Position: Position{File: "b.hpp", Line: 1}, Type: "S", Member: "x"},
	)
	r.Print(&buf)
	assert.Equal(t, "1 warning:\n  b.hpp:1: [orphan-field] field S::x has no serializable type S in this file\n", buf.String())
}

func TestReportConcurrentAdd(t *testing.T) {
	t.Parallel()

	r := &Report{}
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Add(&DuplicateTypeError{Position: Position{File: "x.hpp", Line: i + 1}, Type: "T"})
		}()
	}
	wg.Wait()
	assert.Len(t, r.Entries(), 20)
	assert.Equal(t, 20, r.Warnings())
}
