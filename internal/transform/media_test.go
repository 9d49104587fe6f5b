package transform

import (
	"reflect"
	"testing"
)

func TestMediaRoundTrip(t *testing.T) {
	m := MediaItem{
		ID:           "m-1",
		URL:          "https://cdn.example.com/a.jpg",
		ThumbnailURL: "",
		MediaType:    "video",
		AltText:      "Harbour at dusk",
		SortOrder:    2,
		IsPrimary:    true,
		Extra:        map[string]any{"width": 1920},
	}
	got := MediaFromBackend(MediaToBackend(m))
	if !reflect.DeepEqual(got, m) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, m)
	}
}

func TestMediaDefaults(t *testing.T) {
	m := MediaFromBackend(Record{"url": "https://cdn.example.com/b.jpg"})
	if m.MediaType != DefaultMediaType {
		t.Fatalf("media type: %q", m.MediaType)
	}
	if m.ThumbnailURL != "" {
		t.Fatalf("thumbnail should not fall back to url")
	}
	if m.IsPrimary || m.SortOrder != 0 || m.Extra != nil {
		t.Fatalf("defaults: %+v", m)
	}
}

func TestMediaListSorted(t *testing.T) {
	items := MediaListFromBackend([]Record{
		{"id": "c", "sort_order": 2.0},
		{"id": "a", "sort_order": 0.0},
		{"id": "b", "sort_order": 0.0},
	})
	ids := []string{items[0].ID, items[1].ID, items[2].ID}
	if !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
		t.Fatalf("order: %v", ids)
	}
}

func TestMoveMedia(t *testing.T) {
	items := []MediaItem{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	cases := []struct {
		from, to int
		want     []string
	}{
		{0, 2, []string{"b", "c", "a", "d"}},
		{3, 0, []string{"d", "a", "b", "c"}},
		{1, 1, []string{"a", "b", "c", "d"}},
		{9, -4, []string{"d", "a", "b", "c"}},
	}
	for _, tc := range cases {
		got := MoveMedia(items, tc.from, tc.to)
		for i, m := range got {
			if m.ID != tc.want[i] || m.SortOrder != i {
				t.Fatalf("move %d->%d: got %+v want %v", tc.from, tc.to, got, tc.want)
			}
		}
	}
	if items[0].ID != "a" || items[0].SortOrder != 0 {
		t.Fatalf("input mutated")
	}
	if got := MoveMedia(nil, 0, 1); len(got) != 0 {
		t.Fatalf("empty move: %v", got)
	}
}

func TestPrimary(t *testing.T) {
	if _, ok := Primary(nil); ok {
		t.Fatalf("no primary for empty list")
	}
	m, _ := Primary([]MediaItem{{ID: "a"}, {ID: "b", IsPrimary: true}})
	if m.ID != "b" {
		t.Fatalf("primary: %s", m.ID)
	}
}
