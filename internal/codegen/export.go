package codegen

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Export renders the unit's model (types, field encodings, forward
// declarations and dependencies) as indented JSON.
func Export(u *Unit) ([]byte, error) {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", u.Source, err)
	}
	return append(data, '\n'), nil
}

// IsGenerated reports whether data is a rendered unit or an exported unit
// model. Anything else in the output directory belongs to the user.
func IsGenerated(data []byte) bool {
	if bytes.HasPrefix(data, []byte(banner)) {
		return true
	}
	var head struct {
		Source string          `json:"source"`
		Output string          `json:"output"`
		Types  json.RawMessage `json:"types"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return false
	}
	return head.Source != "" && head.Output != "" && head.Types != nil
}
