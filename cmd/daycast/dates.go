package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/daycast/syncengine/internal/offline/schema"
)

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDate resolves a --date value to a yyyy-MM-dd string. It accepts the
// canonical form, "today", "yesterday" and natural phrases such as
// "last friday" or "3 days ago". An empty value means today.
func parseDate(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return schema.FormatDate(now), nil
	}
	if schema.ValidDate(s) {
		return s, nil
	}

	switch strings.ToLower(s) {
	case "today":
		return schema.FormatDate(now), nil
	case "yesterday":
		return schema.FormatDate(now.AddDate(0, 0, -1)), nil
	}

	r, err := dateParser.Parse(s, now)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	if r == nil {
		return "", fmt.Errorf("invalid date %q (use yyyy-MM-dd or a phrase like \"yesterday\")", s)
	}
	return schema.FormatDate(r.Time), nil
}

// recentDates returns the last n dates ending today, newest first.
func recentDates(now time.Time, n int) []string {
	dates := make([]string, 0, n)
	for i := 0; i < n; i++ {
		dates = append(dates, schema.FormatDate(now.AddDate(0, 0, -i)))
	}
	return dates
}

// dateFlag resolves a --date value, exiting on error.
func dateFlag(value string) string {
	date, err := parseDate(value, time.Now())
	if err != nil {
		fatal("%v", err)
	}
	return date
}
