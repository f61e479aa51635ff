package report

import (
	"encoding/json"
)

// renderJSON marshals the report view with indentation for readability.
func renderJSON(view *runReport) ([]byte, error) {
	return json.MarshalIndent(view, "", "  ")
}
