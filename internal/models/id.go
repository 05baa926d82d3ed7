package models

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ID is an opaque 24-hex-char identifier shared by users, groups and channels.
type ID string

// NewID allocates a fresh identifier.
func NewID() ID {
	return ID(primitive.NewObjectID().Hex())
}

// ParseID validates raw input coming from outside the core.
func ParseID(raw string) (ID, error) {
	oid, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return ID(oid.Hex()), nil
}

func (id ID) String() string {
	return string(id)
}

// IDs is an unordered set of identifiers persisted as a JSON array.
type IDs []ID

func (s IDs) Contains(id ID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add inserts id unless present and reports whether the set changed.
func (s *IDs) Add(id ID) bool {
	if s.Contains(id) {
		return false
	}
	*s = append(*s, id)
	return true
}

// Remove deletes id and reports whether the set changed.
func (s *IDs) Remove(id ID) bool {
	out := (*s)[:0]
	removed := false
	for _, v := range *s {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	*s = out
	return removed
}
