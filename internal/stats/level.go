package stats

// levelBand はポイント閾値とレベル名の対応を表す。
type levelBand struct {
	threshold int
	label     string
}

// levelBands はポイントからレベル名への段階テーブル。
// 閾値の降順に並べ、最初に到達した行を採用する。順序が意味を持つ。
var levelBands = []levelBand{
	{180000, "Legend"},
	{120000, "Master"},
	{80000, "Pro"},
	{50000, "Semipro"},
	{20000, "Expert"},
	{10000, "Skilled"},
	{5000, "Regular"},
	{2000, "Casual"},
	{1000, "Amateur"},
	{500, "Beginner"},
	{0, "New"},
}

// LevelForPoints は合計ポイントからレベル名を導出する。
// ポイントに対して単調非減少であり、閾値ちょうどの値は上のバンドに入る。
func LevelForPoints(points int) string {
	for _, band := range levelBands {
		if points >= band.threshold {
			return band.label
		}
	}
	// 負のポイントは最下位バンドとして扱う
	return levelBands[len(levelBands)-1].label
}
