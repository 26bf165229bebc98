package enums

import (
	"fmt"
	"strings"
)

// RatingEntityType lists what users can rate.
type RatingEntityType string

const (
	RatingEntitySong     RatingEntityType = "SONG"
	RatingEntityAlbum    RatingEntityType = "ALBUM"
	RatingEntityArtist   RatingEntityType = "ARTIST"
	RatingEntityPlaylist RatingEntityType = "PLAYLIST"
)

var validRatingEntityTypes = []RatingEntityType{
	RatingEntitySong,
	RatingEntityAlbum,
	RatingEntityArtist,
	RatingEntityPlaylist,
}

// String implements fmt.Stringer.
func (r RatingEntityType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RatingEntityType.
func (r RatingEntityType) IsValid() bool {
	for _, candidate := range validRatingEntityTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// PurchasableItemType returns the matching ItemType for entities that must be bought before rating.
func (r RatingEntityType) PurchasableItemType() (ItemType, bool) {
	switch r {
	case RatingEntitySong:
		return ItemTypeSong, true
	case RatingEntityAlbum:
		return ItemTypeAlbum, true
	default:
		return "", false
	}
}

// ParseRatingEntityType converts raw input into a RatingEntityType.
func ParseRatingEntityType(value string) (RatingEntityType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validRatingEntityTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rating entity type %q", value)
}
