package inference

import (
	"reflect"
	"testing"
)

func TestTokenRingAlwaysFull(t *testing.T) {
	r := NewTokenRing(4)
	if got := len(r.Tokens()); got != 4 {
		t.Fatalf("fresh ring length = %d, want 4", got)
	}
	for i := 1; i <= 10; i++ {
		r.Push(i)
		if got := len(r.Tokens()); got != 4 {
			t.Fatalf("ring length after %d pushes = %d, want 4", i, got)
		}
	}
}

func TestTokenRingOrder(t *testing.T) {
	r := NewTokenRing(4)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}
	want := []int{3, 4, 5, 6}
	if got := r.Tokens(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokens() = %v, want %v", got, want)
	}
}

func TestTokenRingLast(t *testing.T) {
	r := NewTokenRing(5)
	for i := 1; i <= 7; i++ {
		r.Push(i)
	}
	cases := []struct {
		n    int
		want []int
	}{
		{n: 2, want: []int{6, 7}},
		{n: 5, want: []int{3, 4, 5, 6, 7}},
		{n: 9, want: []int{3, 4, 5, 6, 7}},
		{n: 0, want: []int{}},
	}
	for _, tc := range cases {
		if got := r.Last(tc.n); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Last(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
}

func TestTokenRingReset(t *testing.T) {
	r := NewTokenRing(3)
	r.Push(9)
	r.Push(9)
	r.Reset()
	if got := r.Tokens(); !reflect.DeepEqual(got, []int{0, 0, 0}) {
		t.Fatalf("Tokens() after Reset = %v, want zeros", got)
	}
}
