package inference

import "testing"

func TestStopDetectorTextHit(t *testing.T) {
	d := newStopDetector("STOP", []int{4, 5})
	cases := []struct {
		decoded string
		want    bool
	}{
		{decoded: "hello STOP", want: true},
		{decoded: "STOP", want: true},
		{decoded: "STOP and more", want: false},
		{decoded: "hello", want: false},
		{decoded: "", want: false},
	}
	for _, tc := range cases {
		if got := d.textHit(tc.decoded); got != tc.want {
			t.Errorf("textHit(%q) = %v, want %v", tc.decoded, got, tc.want)
		}
	}
}

func TestStopDetectorNoStopConfigured(t *testing.T) {
	d := newStopDetector("", nil)
	if d.textHit("anything") {
		t.Fatal("textHit should never fire without a stop string")
	}
	stop, tentative := d.observe([]int{1, 2})
	if stop || tentative {
		t.Fatal("observe should never fire without stop tokens")
	}
}

func TestStopDetectorObserve(t *testing.T) {
	d := newStopDetector("STOP", []int{4, 5, 6})
	cases := []struct {
		name          string
		pending       []int
		wantStop      bool
		wantTentative bool
	}{
		{name: "empty", pending: nil, wantStop: false, wantTentative: true},
		{name: "prefix-one", pending: []int{4}, wantStop: false, wantTentative: true},
		{name: "prefix-two", pending: []int{4, 5}, wantStop: false, wantTentative: true},
		{name: "full-match", pending: []int{4, 5, 6}, wantStop: true, wantTentative: false},
		{name: "mismatch", pending: []int{4, 9}, wantStop: false, wantTentative: false},
		{name: "too-long", pending: []int{4, 5, 6, 7}, wantStop: false, wantTentative: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stop, tentative := d.observe(tc.pending)
			if stop != tc.wantStop || tentative != tc.wantTentative {
				t.Fatalf("observe(%v) = (%v,%v), want (%v,%v)",
					tc.pending, stop, tentative, tc.wantStop, tc.wantTentative)
			}
		})
	}
}
