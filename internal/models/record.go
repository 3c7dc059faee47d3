package models

import (
	"encoding/json"
	"strconv"
)

// Record represents a generic record-store entity (a contact, account, etc.)
// as returned by the remote API: arbitrary fields keyed by name.
type Record map[string]interface{}

// ID returns the record's identifier, tolerating numeric and string forms.
func (r Record) ID() string {
	switch id := r["id"].(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	case json.Number:
		return id.String()
	}
	return ""
}
