// Package template fills {{placeholder}} markers in message templates.
// Rendering is pure: no I/O, deterministic for a given (template, context).
package template

import (
	"regexp"
	"strings"

	"coachreach/internal/common/errors"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// Render substitutes every {{name}} marker in tmpl with ctx[name]. A marker
// with no context entry fails with MISSING_PLACEHOLDER; partially rendered
// text is never returned, so callers can safely hand the result to a gateway.
func Render(tmpl string, ctx map[string]string) (string, error) {
	var missing string

	result := placeholderPattern.ReplaceAllStringFunc(tmpl, func(marker string) string {
		name := placeholderPattern.FindStringSubmatch(marker)[1]
		value, ok := ctx[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return marker
		}
		return value
	})

	if missing != "" {
		return "", errors.NewMissingPlaceholderError(missing)
	}
	return result, nil
}

// Placeholders lists the distinct marker names in tmpl, in order of first
// appearance. Used to pre-validate templates at campaign creation.
func Placeholders(tmpl string) []string {
	seen := map[string]bool{}
	var names []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Validate reports whether tmpl is renderable against the given context keys
// without consuming actual values.
func Validate(tmpl string, keys []string) error {
	available := map[string]bool{}
	for _, k := range keys {
		available[k] = true
	}
	for _, name := range Placeholders(tmpl) {
		if !available[name] {
			return errors.NewMissingPlaceholderError(name)
		}
	}
	return nil
}

// HasMarkers reports whether any unfilled marker remains in text.
func HasMarkers(text string) bool {
	return strings.Contains(text, "{{") && placeholderPattern.MatchString(text)
}
