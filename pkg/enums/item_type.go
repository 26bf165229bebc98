package enums

import (
	"fmt"
	"strings"
)

// ItemType identifies what a cart line, order line or entitlement refers to.
type ItemType string

const (
	ItemTypeSong        ItemType = "SONG"
	ItemTypeAlbum       ItemType = "ALBUM"
	ItemTypeMerchandise ItemType = "MERCHANDISE"
)

var validItemTypes = []ItemType{
	ItemTypeSong,
	ItemTypeAlbum,
	ItemTypeMerchandise,
}

// String implements fmt.Stringer.
func (t ItemType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known ItemType.
func (t ItemType) IsValid() bool {
	for _, candidate := range validItemTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsDigital reports whether the item is a non-stackable digital good.
func (t ItemType) IsDigital() bool {
	return t == ItemTypeSong || t == ItemTypeAlbum
}

// ParseItemType converts raw input into an ItemType. Matching is case-insensitive.
func ParseItemType(value string) (ItemType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validItemTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item type %q", value)
}
