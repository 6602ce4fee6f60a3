package ride

import (
	"math"
	"testing"
)

func TestListFilterOffset(t *testing.T) {
	cases := []struct {
		page, limit int
		want        int
	}{
		{1, 20, 0},
		{0, 20, 0},
		{3, 20, 40},
		{461168601842738792, 20, math.MaxInt},
		{math.MaxInt, 100, math.MaxInt},
	}
	for _, tc := range cases {
		f := ListFilter{Page: tc.page, Limit: tc.limit}
		if got := f.Offset(); got != tc.want {
			t.Errorf("Offset(page=%d, limit=%d) = %d, want %d", tc.page, tc.limit, got, tc.want)
		}
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 20, 41)
	if p.Pages != 3 || p.Total != 41 || p.Page != 2 || p.Limit != 20 {
		t.Errorf("pagination = %+v", p)
	}
}
