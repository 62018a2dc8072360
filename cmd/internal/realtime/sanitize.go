package realtime

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// newSanitizer strips all markup from chat text. The policy is safe for concurrent use.
func newSanitizer() func(string) string {
	p := bluemonday.StrictPolicy()
	return func(s string) string {
		return strings.TrimSpace(p.Sanitize(s))
	}
}
