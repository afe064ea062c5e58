package ir

import (
	"fmt"
	"strings"
)

// Tag field names usable as primary key fields.
const (
	FieldEPC  = "epc"
	FieldTID  = "tid"
	FieldUser = "user"
	FieldPC   = "pc"
)

// DefaultPrimaryKeyFields groups tags by EPC.
var DefaultPrimaryKeyFields = []string{FieldEPC}

// ValidPrimaryKeyFields defines allowed primary key fields.
var ValidPrimaryKeyFields = map[string]bool{
	FieldEPC:  true,
	FieldTID:  true,
	FieldUser: true,
	FieldPC:   true,
}

// Tag is one sighting of a transponder as delivered by a reader.
// Memory banks are hex strings.
type Tag struct {
	EPC     string `json:"epc"`
	TID     string `json:"tid,omitempty"`
	User    string `json:"user,omitempty"`
	PC      string `json:"pc,omitempty"`
	Antenna int    `json:"antenna,omitempty"`
	RSSI    int    `json:"rssi,omitempty"`
}

// field returns the value of a primary key field.
func (t Tag) field(name string) string {
	switch name {
	case FieldEPC:
		return t.EPC
	case FieldTID:
		return t.TID
	case FieldUser:
		return t.User
	case FieldPC:
		return t.PC
	default:
		return ""
	}
}

// PrimaryKey identifies a logical tag within a cycle. Repeated sightings
// of the same logical tag produce the same key.
type PrimaryKey string

// PrimaryKeyOf derives the primary key of tag from the given fields
// (DefaultPrimaryKeyFields when empty). Hex values are compared
// case-insensitively.
func PrimaryKeyOf(tag Tag, fields []string) PrimaryKey {
	if len(fields) == 0 {
		fields = DefaultPrimaryKeyFields
	}
	obj := make(map[string]any, len(fields))
	for _, f := range fields {
		obj[f] = strings.ToLower(tag.field(f))
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		// Only strings are marshaled, so this cannot happen.
		panic(fmt.Sprintf("primary key: %v", err))
	}
	return PrimaryKey(hashWithDomain(DomainPrimaryKey, canonical))
}

// ValidatePrimaryKeyFields checks field names against ValidPrimaryKeyFields.
func ValidatePrimaryKeyFields(fields []string) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !ValidPrimaryKeyFields[f] {
			return NewValidationError("unknown primary key field %q", f)
		}
		if seen[f] {
			return NewValidationError("duplicate primary key field %q", f)
		}
		seen[f] = true
	}
	return nil
}
