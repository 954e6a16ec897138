package stats

import "testing"

func TestLevelForPoints_Boundaries(t *testing.T) {
	tests := []struct {
		points int
		want   string
	}{
		{0, "New"},
		{499, "New"},
		{500, "Beginner"},
		{999, "Beginner"},
		{1000, "Amateur"},
		{1999, "Amateur"},
		{2000, "Casual"},
		{4999, "Casual"},
		{5000, "Regular"},
		{9999, "Regular"},
		{10000, "Skilled"},
		{19999, "Skilled"},
		{20000, "Expert"},
		{49999, "Expert"},
		{50000, "Semipro"},
		{79999, "Semipro"},
		{80000, "Pro"},
		{119999, "Pro"},
		{120000, "Master"},
		{179999, "Master"},
		{180000, "Legend"},
		{1000000, "Legend"},
	}

	for _, tt := range tests {
		if got := LevelForPoints(tt.points); got != tt.want {
			t.Errorf("LevelForPoints(%d) = %q, want %q", tt.points, got, tt.want)
		}
	}
}

// レベルはポイントに対して単調非減少であることを検証
func TestLevelForPoints_Monotonic(t *testing.T) {
	rank := func(label string) int {
		for i, b := range levelBands {
			if b.label == label {
				return len(levelBands) - i
			}
		}
		t.Fatalf("unknown label %q", label)
		return 0
	}

	prev := rank(LevelForPoints(0))
	for points := 1; points <= 200000; points += 97 {
		cur := rank(LevelForPoints(points))
		if cur < prev {
			t.Fatalf("level decreased at points=%d", points)
		}
		prev = cur
	}
}

// 負のポイントは最下位バンドとして扱われることを検証
func TestLevelForPoints_NegativeIsLowestBand(t *testing.T) {
	if got := LevelForPoints(-1); got != "New" {
		t.Errorf("LevelForPoints(-1) = %q, want New", got)
	}
}
