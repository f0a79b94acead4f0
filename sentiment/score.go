// Package sentiment scores post text against a word lexicon.
package sentiment

import (
	"strings"

	"github.com/pevans/threadmood/lexicon"
	"github.com/pevans/threadmood/postdate"
	"github.com/pevans/threadmood/report"
)

// Tokens splits text on whitespace. No stemming or case folding is applied.
func Tokens(text string) []string {
	return strings.Fields(text)
}

// Score sums the lexicon weight of every token in text. Tokens that are not
// in the lexicon contribute nothing.
func Score(text string, lex *lexicon.Lexicon) float64 {
	total := 0.0
	for _, token := range Tokens(text) {
		if weight, ok := lex.Weight(token); ok {
			total += weight
		}
	}
	return total
}

// ScorePost builds the record for a single post dated d.
func ScorePost(text string, d postdate.Date, lex *lexicon.Lexicon) report.Record {
	return report.Record{
		Date:  d,
		Score: Score(text, lex),
		Posts: 1,
	}
}
