package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// compactAgoPattern matches "3d", "2w": that many days or weeks before now.
var compactAgoPattern = regexp.MustCompile(`^(\d+)([dw])$`)

// ParseAsOf resolves the reference day. Accepted forms, tried in order:
// empty (today), an ISO date, a compact "Nd"/"Nw" offset into the past, and
// natural language such as "yesterday" or "last friday".
func ParseAsOf(s string, now time.Time) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.DateOf(now), nil
	}

	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}

	if m := compactAgoPattern.FindStringSubmatch(strings.ToLower(s)); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return civil.Date{}, fmt.Errorf("invalid offset %q: %w", s, err)
		}
		if m[2] == "w" {
			n *= 7
		}
		return civil.DateOf(now).AddDays(-n), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	if r == nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD, Nd, Nw or a phrase like \"yesterday\"", s)
	}
	return civil.DateOf(r.Time), nil
}
