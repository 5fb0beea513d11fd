package store

import (
	"reflect"
	"testing"
)

func TestChunkIDs(t *testing.T) {
	tests := []struct {
		name string
		ids  []int64
		size int
		want [][]int64
	}{
		{name: "empty input", ids: nil, size: 3, want: nil},
		{name: "non-positive size", ids: []int64{1, 2}, size: 0, want: nil},
		{name: "single short chunk", ids: []int64{1, 2}, size: 3, want: [][]int64{{1, 2}}},
		{name: "exact multiple", ids: []int64{1, 2, 3, 4}, size: 2, want: [][]int64{{1, 2}, {3, 4}}},
		{name: "trailing remainder", ids: []int64{1, 2, 3, 4, 5}, size: 2, want: [][]int64{{1, 2}, {3, 4}, {5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkIDs(tt.ids, tt.size)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ChunkIDs(%v, %d) = %v, want %v", tt.ids, tt.size, got, tt.want)
			}
		})
	}
}

func TestDedupeStrings(t *testing.T) {
	got := DedupeStrings([]string{"taco", "barbacoa", "taco", "", "barbacoa"})
	want := []string{"taco", "barbacoa", ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DedupeStrings() = %v, want %v", got, want)
	}
}
