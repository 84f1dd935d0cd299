package source

// NormalizeScore maps a raw popularity number to 0-100 based on the
// platform's scale.
func NormalizeScore(score int, sourceType SourceType) int {
	// - Reddit: 1-100k+ upvotes (1000 is high for news subs)
	// - HN: 1-5000+ points (500 is high)
	// News, RSS and scraped headlines carry no native score; see RankScore.
	thresholds := map[SourceType]float64{
		SourceReddit:     1000,
		SourceHackerNews: 500,
	}

	threshold, ok := thresholds[sourceType]
	if !ok || threshold == 0 || score <= 0 {
		return 0
	}

	ratio := float64(score) / threshold
	if ratio > 1 {
		return 100
	}
	return int(ratio * 100)
}

// RankScore derives a 0-100 score from a headline's position in a list of
// n, top of the list scoring highest.
func RankScore(index, n int) int {
	if n <= 0 || index < 0 || index >= n {
		return 0
	}
	// Keep the floor at 30 so listed headlines never read as "not trending".
	return 100 - (index*70)/n
}
