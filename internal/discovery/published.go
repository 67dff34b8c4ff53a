package discovery

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidPublishedAfter = errors.New("publishedAfter must be an RFC 3339 timestamp or a YYYY-MM-DD date")

// ParsePublishedAfter accepts an RFC 3339 timestamp or a bare date (UTC
// midnight). Blank input means no lower bound.
func ParsePublishedAfter(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed, nil
		}
	}
	return nil, ErrInvalidPublishedAfter
}
