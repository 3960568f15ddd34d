package db

import (
	"fmt"
	"strings"
)

// SearchResult represents a search result
type SearchResult struct {
	Report  *Report
	Snippet string
}

const snippetRadius = 32

// SearchReports finds archived reports whose content contains query
func (db *DB) SearchReports(query string, limit int) ([]*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	rows, err := db.conn.Query(
		"SELECT "+reportColumns+" FROM reports WHERE content LIKE ? ESCAPE '\\' ORDER BY generated_at DESC, id DESC LIMIT ?",
		"%"+escapeLike(query)+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search reports: %w", err)
	}
	defer rows.Close()

	var results []*SearchResult
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, &SearchResult{Report: r, Snippet: snippet(r.Content, query)})
	}
	return results, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// snippet cuts a window of runes around the first case-insensitive match and marks it
func snippet(content, query string) string {
	runes, q := []rune(content), []rune(query)
	idx := indexFold(runes, q)
	if idx < 0 {
		return ""
	}

	before := runes[:idx]
	match := runes[idx : idx+len(q)]
	after := runes[idx+len(q):]

	prefix, suffix := "", ""
	if len(before) > snippetRadius {
		before = before[len(before)-snippetRadius:]
		prefix = "..."
	}
	if len(after) > snippetRadius {
		after = after[:snippetRadius]
		suffix = "..."
	}

	return prefix + string(before) + "<mark>" + string(match) + "</mark>" + string(after) + suffix
}

// indexFold returns the rune offset of the first window of s equal to q under simple case folding
func indexFold(s, q []rune) int {
	if len(q) == 0 {
		return -1
	}
	for i := 0; i+len(q) <= len(s); i++ {
		if strings.EqualFold(string(s[i:i+len(q)]), string(q)) {
			return i
		}
	}
	return -1
}
