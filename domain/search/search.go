package search

import (
	"strconv"
	"strings"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Query represents the structured parameters of a message search.
// It decouples the raw input from what the index engine needs.
type Query struct {
	RawInput string // The original input
	Terms    string // Free text matched against message content
	ChatID   int    // Restrict to one channel, 0 means every channel
	AppID    int    // Restrict to one application, 0 means every application
	Language string // ISO 639-1 code, empty means any
	Limit    int    // Number of results
}

// NewSearchQuery parses a raw string to extract command-line style arguments.
// Example: refund invoice --chat 7 --lang en --limit 5
func NewSearchQuery(input string) Query {
	query := Query{
		RawInput: input,
		Limit:    DefaultLimit,
	}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		// Handle flags like --chat 7 or --lang en
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			key := strings.TrimPrefix(part, "--")
			val := parts[i+1]

			switch key {
			case "chat":
				if id, err := strconv.Atoi(val); err == nil && id > 0 {
					query.ChatID = id
				}
			case "app":
				if id, err := strconv.Atoi(val); err == nil && id > 0 {
					query.AppID = id
				}
			case "lang":
				query.Language = strings.ToLower(val)
			case "limit":
				if limit, err := strconv.Atoi(val); err == nil && limit > 0 {
					query.Limit = min(limit, MaxLimit)
				}
			}
			i++ // Skip the value part in next iteration
			continue
		}

		// If it's not a flag, it's a search term
		if !strings.HasPrefix(part, "/") {
			textTerms = append(textTerms, part)
		}
	}

	query.Terms = strings.Join(textTerms, " ")
	return query
}
