package transform

import (
	"sort"
)

const DefaultMediaType = "image"

type MediaItem struct {
	ID           string         `json:"id"`
	URL          string         `json:"url"`
	ThumbnailURL string         `json:"thumbnail_url"`
	MediaType    string         `json:"media_type"`
	AltText      string         `json:"alt_text"`
	SortOrder    int            `json:"sort_order"`
	IsPrimary    bool           `json:"is_primary"`
	Extra        map[string]any `json:"extra,omitempty"`
}

var mediaKeys = keys("id", "url", "thumbnail_url", "media_type", "alt_text", "sort_order", "is_primary")

// MediaFromBackend never falls back from thumbnail to url; an empty
// thumbnail stays empty.
func MediaFromBackend(raw Record) MediaItem {
	m := MediaItem{
		ID:           readString(raw["id"]),
		URL:          readString(raw["url"]),
		ThumbnailURL: readString(raw["thumbnail_url"]),
		MediaType:    readString(raw["media_type"]),
		AltText:      readString(raw["alt_text"]),
		SortOrder:    readInt(raw["sort_order"], 0),
		IsPrimary:    readBool(raw["is_primary"], false),
		Extra:        extraFrom(raw, mediaKeys),
	}
	if m.MediaType == "" {
		m.MediaType = DefaultMediaType
	}
	return m
}

func MediaToBackend(m MediaItem) Record {
	out := Record{
		"url":           m.URL,
		"thumbnail_url": m.ThumbnailURL,
		"media_type":    m.MediaType,
		"alt_text":      m.AltText,
		"sort_order":    m.SortOrder,
		"is_primary":    m.IsPrimary,
	}
	if m.ID != "" {
		out["id"] = m.ID
	}
	if m.MediaType == "" {
		out["media_type"] = DefaultMediaType
	}
	mergeExtra(out, m.Extra)
	return out
}

// MediaListFromBackend converts and orders by sort_order; ties keep backend
// order.
func MediaListFromBackend(raw []Record) []MediaItem {
	out := make([]MediaItem, 0, len(raw))
	for _, r := range raw {
		out = append(out, MediaFromBackend(r))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

// MoveMedia moves the item at from to position to and renumbers sort_order
// from zero. Out-of-range positions are clamped. items is not modified.
func MoveMedia(items []MediaItem, from, to int) []MediaItem {
	out := make([]MediaItem, len(items))
	copy(out, items)
	if len(out) == 0 {
		return out
	}
	from = clamp(from, 0, len(out)-1)
	to = clamp(to, 0, len(out)-1)
	if from != to {
		moved := out[from]
		if from < to {
			copy(out[from:to], out[from+1:to+1])
		} else {
			copy(out[to+1:from+1], out[to:from])
		}
		out[to] = moved
	}
	for i := range out {
		out[i].SortOrder = i
	}
	return out
}

// Primary returns the primary item, or the first one if none is flagged.
func Primary(items []MediaItem) (MediaItem, bool) {
	for _, m := range items {
		if m.IsPrimary {
			return m, true
		}
	}
	if len(items) > 0 {
		return items[0], true
	}
	return MediaItem{}, false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
