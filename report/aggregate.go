// Package report groups scored posts by date and serializes the result.
package report

import (
	"fmt"
	"sort"

	"github.com/pevans/threadmood/postdate"
)

// Record is the scoring-relevant part of one post.
type Record struct {
	Date  postdate.Date `json:"date"`
	Score float64       `json:"score"`
	Posts int           `json:"posts"` // Always 1 for a single post
}

// Row is the summed score and post count for one date.
type Row struct {
	Date  postdate.Date `json:"date"`
	Score float64       `json:"score"`
	Posts int           `json:"posts"`
}

// SortOrder selects how aggregated rows are ordered.
type SortOrder string

const (
	// Chronological orders rows by calendar date.
	Chronological SortOrder = "chronological"
	// Lexical orders rows by their MM-DD-YYYY text, so 01-05-2016 sorts
	// before 12-30-2015. This matches reports produced by older tooling.
	Lexical SortOrder = "lexical"
)

// ParseSortOrder validates a sort order name. An empty name means
// Chronological.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "", Chronological:
		return Chronological, nil
	case Lexical:
		return Lexical, nil
	default:
		return "", fmt.Errorf("invalid sort order %q: must be chronological or lexical", s)
	}
}

// Aggregate groups records by date and sums their scores and post counts.
// The result holds one row per distinct date in the requested order and
// does not depend on the order of records.
func Aggregate(records []Record, order SortOrder) []Row {
	byDate := make(map[postdate.Date]*Row)
	for _, rec := range records {
		row, ok := byDate[rec.Date]
		if !ok {
			row = &Row{Date: rec.Date}
			byDate[rec.Date] = row
		}
		row.Score += rec.Score
		row.Posts += rec.Posts
	}

	rows := make([]Row, 0, len(byDate))
	for _, row := range byDate {
		rows = append(rows, *row)
	}

	Sort(rows, order)
	return rows
}

// Sort orders rows in place.
func Sort(rows []Row, order SortOrder) {
	if order == Lexical {
		sort.Slice(rows, func(i, j int) bool {
			return rows[i].Date.String() < rows[j].Date.String()
		})
		return
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Date.Before(rows[j].Date)
	})
}

// TotalPosts sums the post counts of rows.
func TotalPosts(rows []Row) int {
	total := 0
	for _, row := range rows {
		total += row.Posts
	}
	return total
}
