package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/phobologic/srcindex/internal/extract"
)

const (
	sentinelStart = "// srcindex:start"
	sentinelEnd   = "// srcindex:end"
)

// InitCmd writes (or updates) the marker declarations in a header. The
// block is wrapped in sentinel comments so later runs replace it in place
// without touching surrounding content.
type InitCmd struct {
	MarkerFlags `embed:""`

	Path   string `arg:"" optional:"" default:"srcindex.h" help:"Header to write or update."`
	DryRun bool   `help:"Print what would be written without modifying the file."`
}

func (c *InitCmd) Run(logger *slog.Logger, con *console) error {
	markers, err := c.markers()
	if err != nil {
		return err
	}
	section := generateSection(markers)

	existing, _ := os.ReadFile(c.Path)
	updated := applySection(string(existing), section)

	if c.DryRun {
		_, _ = fmt.Fprint(con.Out, updated)
		return nil
	}

	if err := os.WriteFile(c.Path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", c.Path, err)
	}
	logger.Info("wrote marker declarations", "path", c.Path)
	return nil
}

// generateSection returns the sentinel-wrapped header block. The markers
// expand to nothing for the compiler; _TR builds a TranslationRecord from
// a message and an optional disambiguation.
func generateSection(m extract.Markers) string {
	var b strings.Builder
	w := func(format string, args ...any) { fmt.Fprintf(&b, format+"\n", args...) }

	w("%s", sentinelStart)
	w("// Generated by srcindex init. Edits between the srcindex markers are")
	w("// overwritten on the next run.")
	w("#ifndef %s", m.Serializable)
	w("#define %s(type)", m.Serializable)
	w("#endif")
	w("#ifndef %s", m.Field)
	w("#define %s(member)", m.Field)
	w("#endif")
	w("")
	w("#ifdef __cplusplus")
	w("#include <string_view>")
	w("")
	w("struct TranslationRecord")
	w("{")
	w("\tstd::string_view message;")
	w("\tstd::string_view disambiguation;")
	w("\tstd::string_view file;")
	w("};")
	w("")
	w("#define SRCINDEX_TR_1(message) TranslationRecord{ message, \"\", __FILE__ }")
	w("#define SRCINDEX_TR_2(message, disambiguation) TranslationRecord{ message, disambiguation, __FILE__ }")
	w("#define SRCINDEX_TR_SELECT(_1, _2, NAME, ...) NAME")
	w("#ifndef %s", m.Translate)
	w("#define %s(...) SRCINDEX_TR_SELECT(__VA_ARGS__, SRCINDEX_TR_2, SRCINDEX_TR_1, )(__VA_ARGS__)", m.Translate)
	w("#endif")
	w("#endif")
	b.WriteString(sentinelEnd)

	return b.String()
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if len(content) > 0 {
		content += "\n"
	}
	return content + section + "\n"
}
