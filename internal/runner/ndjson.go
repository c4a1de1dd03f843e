package runner

import (
	"bytes"
	"encoding/json"
)

// ParseLastFrame scans stdout from the end for the last line that decodes
// as a JSON object, tolerating trailing blank lines and non-JSON noise
// lines interspersed by the backend (spec.md §4.5). It returns ok=false if
// no such line exists anywhere in stdout.
func ParseLastFrame(stdout []byte) (map[string]any, bool) {
	lines := bytes.Split(stdout, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' {
			continue
		}
		var frame map[string]any
		if err := json.Unmarshal(line, &frame); err != nil {
			continue
		}
		return frame, true
	}
	return nil, false
}
