// Package refdate turns the date argument of the API and CLI into a
// reference time. It accepts RFC 3339 timestamps, plain YYYY-MM-DD dates
// and English phrases such as "next friday".
package refdate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ErrUnparsable is returned for input no layout or rule understands.
var ErrUnparsable = errors.New("unrecognised date")

// Parser is safe for concurrent use once built.
type Parser struct {
	when *when.Parser
}

func New() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{when: w}
}

// Parse resolves s relative to now. An empty string means now. The result
// is always expressed in loc.
func (p *Parser) Parse(s string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)

	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}

	r, err := p.when.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %w", ErrUnparsable, s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrUnparsable, s)
	}
	return r.Time.In(loc), nil
}
