package topic

import "strings"

type categoryTable struct {
	name     string
	keywords []string
}

// categoryTables are checked in order; the first table with a matching
// keyword wins. Entries containing a space match as substrings, all
// others must match a whole word.
var categoryTables = []categoryTable{
	{"Technology", []string{
		"ai", "artificial intelligence", "tech", "technology", "software", "app", "apps",
		"robot", "robots", "computer", "internet", "digital", "cyber", "smartphone",
		"iphone", "android", "google", "apple", "microsoft", "openai", "chatgpt",
		"chip", "chips", "semiconductor", "crypto", "bitcoin", "blockchain",
		"social media", "algorithm", "data", "online", "startup",
	}},
	{"Politics", []string{
		"election", "elections", "vote", "voting", "president", "congress", "senate",
		"government", "policy", "law", "laws", "minister", "parliament", "democrat",
		"democrats", "republican", "republicans", "campaign", "supreme court",
		"governor", "mayor", "council", "bill", "tariff", "tariffs", "ban", "banning",
	}},
	{"Health", []string{
		"health", "medical", "doctor", "doctors", "hospital", "disease", "vaccine",
		"vaccines", "covid", "cancer", "mental", "diet", "fitness", "drug", "drugs",
		"virus", "outbreak", "nutrition", "therapy",
	}},
	{"Science", []string{
		"science", "research", "study", "scientists", "space", "nasa", "planet",
		"physics", "discovery", "mars", "moon", "telescope", "asteroid", "genetic",
	}},
	{"Business", []string{
		"economy", "market", "markets", "stock", "stocks", "business", "company",
		"companies", "jobs", "inflation", "trade", "bank", "banks", "price", "prices",
		"work", "workers", "salary", "wages", "billion", "ceo", "layoffs",
		"remote work", "income",
	}},
	{"Sports", []string{
		"sports", "football", "soccer", "nba", "nfl", "olympics", "championship",
		"league", "player", "players", "team", "coach", "tennis", "cricket",
		"world cup",
	}},
	{"Entertainment", []string{
		"movie", "movies", "film", "music", "celebrity", "netflix", "streaming",
		"album", "concert", "oscars", "show", "series", "gaming", "tv", "actor",
		"singer",
	}},
	{"Environment", []string{
		"climate", "environment", "carbon", "emissions", "pollution", "renewable",
		"solar", "wildlife", "plastic", "recycling", "electric vehicle", "weather",
		"storm", "wildfire", "ocean", "gas powered", "gas-powered",
	}},
}

// Categories returns the category names in match order.
func Categories() []string {
	names := make([]string, 0, len(categoryTables))
	for _, t := range categoryTables {
		names = append(names, t.name)
	}
	return names
}

// Categorize returns the first category whose table matches text.
func Categorize(text string) string {
	lower := strings.ToLower(text)
	words := make(map[string]bool)
	for _, w := range tokenize(lower) {
		words[w] = true
	}

	for _, table := range categoryTables {
		for _, kw := range table.keywords {
			if strings.ContainsAny(kw, " -") {
				if strings.Contains(lower, kw) {
					return table.name
				}
				continue
			}
			if words[kw] {
				return table.name
			}
		}
	}
	return DefaultCategory
}
