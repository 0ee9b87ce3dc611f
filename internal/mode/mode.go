// Package mode derives the UI mode of the shell from the navigation context.
package mode

import (
	"net/url"
	"strconv"
	"strings"
)

// Mode is a coarse device classification that selects the active plugin set.
type Mode string

const (
	Desktop  Mode = "desktop"
	Mobile   Mode = "mobile"
	Embedded Mode = "embedded"
)

// Viewport carries the ambient signal reported by the browser.
type Viewport struct {
	Mobile bool
}

// Parse returns the mode named by raw. Unknown values report false.
func Parse(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case Desktop:
		return Desktop, true
	case Mobile:
		return Mobile, true
	case Embedded:
		return Embedded, true
	default:
		return "", false
	}
}

// Resolve picks the mode for a request. An explicit "mode" query value wins,
// then the "mobile" flag, then the viewport. Desktop is the default.
func Resolve(query url.Values, v Viewport) Mode {
	if m, ok := Parse(query.Get("mode")); ok {
		return m
	}
	if flagSet(query, "mobile") {
		return Mobile
	}
	if v.Mobile {
		return Mobile
	}
	return Desktop
}

func flagSet(query url.Values, key string) bool {
	values, ok := query[key]
	if !ok {
		return false
	}
	if len(values) == 0 {
		return true
	}
	raw := strings.TrimSpace(values[0])
	if raw == "" {
		return true
	}
	if strings.EqualFold(raw, "yes") {
		return true
	}
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}
