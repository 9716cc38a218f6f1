// Package emit writes the translation catalog: one entry per distinct
// (message, disambiguation) pair, sorted, with every call site that
// produced it.
package emit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"

	"github.com/phobologic/srcindex/internal/model"
	"github.com/phobologic/srcindex/internal/toon"
	"github.com/phobologic/srcindex/pkg/tr"
)

// Format names a catalog serialization.
type Format string

const (
	Auto Format = "auto"
	YAML Format = "yaml"
	TOML Format = "toml"
	JSON Format = "json"
	TOON Format = "toon"
)

// Entry is one catalog entry. The empty disambiguation is written out: it
// is a value of its own, not an absent one.
type Entry struct {
	Message        string                 `json:"message" yaml:"message" toml:"message"`
	Disambiguation string                 `json:"disambiguation" yaml:"disambiguation" toml:"disambiguation"`
	Placeholders   []string               `json:"placeholders,omitempty" yaml:"placeholders,omitempty" toml:"placeholders,omitempty"`
	Locations      []model.SourceLocation `json:"locations" yaml:"locations" toml:"locations"`
}

// Document is the serialized catalog.
type Document struct {
	Entries []Entry `json:"entries" yaml:"entries" toml:"entry"`
}

type encoder func(doc Document) ([]byte, error)

var encoders = map[Format]encoder{
	YAML: encodeYAML,
	TOML: encodeTOML,
	JSON: encodeJSON,
	TOON: encodeTOON,
}

// Formats returns the concrete format names, sorted.
func Formats() []string {
	names := make([]string, 0, len(encoders))
	for f := range encoders {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// ParseFormat accepts a format name, or "yml" for YAML.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", Auto:
		return Auto, nil
	case "yml":
		return YAML, nil
	default:
		if _, ok := encoders[f]; ok {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported catalog format %q (want auto, %s)", s, strings.Join(Formats(), ", "))
}

// Resolve picks the concrete format for a catalog path: an explicit
// format wins, auto follows the extension and falls back to YAML.
func Resolve(f Format, path string) Format {
	if f != Auto && f != "" {
		return f
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML
	case ".json":
		return JSON
	case ".toon":
		return TOON
	}
	return YAML
}

// Entries builds the catalog entries from the run's records, sorted by
// (message, disambiguation), locations sorted by file, line, then column.
func Entries(records []model.TranslationRecord) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		locs := append([]model.SourceLocation(nil), r.Locations...)
		sort.Slice(locs, func(i, j int) bool { return locs[i].Less(locs[j]) })
		entries = append(entries, Entry{
			Message:        r.Message,
			Disambiguation: r.Disambiguation,
			Placeholders:   tr.Placeholders(r.Message),
			Locations:      locs,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Message != entries[j].Message {
			return entries[i].Message < entries[j].Message
		}
		return entries[i].Disambiguation < entries[j].Disambiguation
	})
	return entries
}

// Marshal serializes the catalog of records in a concrete format.
func Marshal(f Format, records []model.TranslationRecord) ([]byte, error) {
	enc, ok := encoders[f]
	if !ok {
		return nil, fmt.Errorf("unsupported catalog format %q", f)
	}
	data, err := enc(Document{Entries: Entries(records)})
	if err != nil {
		return nil, fmt.Errorf("encode %s catalog: %w", f, err)
	}
	return data, nil
}

func encodeYAML(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeTOML(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Order(toml.OrderPreserve).Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeJSON(doc Document) ([]byte, error) {
	if doc.Entries == nil {
		doc.Entries = []Entry{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// encodeTOON flattens the catalog into two tables: entries, and the
// locations of each entry referenced by its index.
func encodeTOON(doc Document) ([]byte, error) {
	entries := toon.Table{Name: "entries", Columns: []string{"id", "message", "disambiguation", "placeholders"}}
	locations := toon.Table{Name: "locations", Columns: []string{"entry", "file", "line", "column"}}
	for i, e := range doc.Entries {
		entries.Rows = append(entries.Rows, []any{i, e.Message, e.Disambiguation, strings.Join(e.Placeholders, " ")})
		for _, l := range e.Locations {
			locations.Rows = append(locations.Rows, []any{i, l.File, l.Line, l.Column})
		}
	}
	return []byte(toon.Encode(nil, []toon.Table{entries, locations}) + "\n"), nil
}
