package browser

import (
	"regexp"
	"strconv"
	"strings"
)

// ariaRolePattern matches recorder ARIA selectors of the form Name[role="x"].
var ariaRolePattern = regexp.MustCompile(`^(.*)\[role="([^"]+)"\]$`)

// TranslateSelector converts a recorded selector chain into a Playwright
// selector. Chain parts are joined with " >> ".
//
// Recorder prefixes map as follows:
//
//	aria/Name[role="button"]  → role=button[name="Name"]
//	aria/Name                 → text=Name
//	xpath//html/body/div      → xpath=/html/body/div
//	text/Sign in              → text=Sign in
//	pierce/#host .inner       → css=#host .inner
//
// Anything else is passed through as CSS.
func TranslateSelector(chain Selector) string {
	parts := make([]string, 0, len(chain))
	for _, part := range chain {
		parts = append(parts, translatePart(part))
	}
	return strings.Join(parts, " >> ")
}

func translatePart(s string) string {
	switch {
	case strings.HasPrefix(s, "aria/"):
		name := strings.TrimPrefix(s, "aria/")
		if m := ariaRolePattern.FindStringSubmatch(name); m != nil {
			return "role=" + m[2] + "[name=" + strconv.Quote(m[1]) + "]"
		}
		return "text=" + name
	case strings.HasPrefix(s, "xpath/"):
		return "xpath=" + strings.TrimPrefix(s, "xpath/")
	case strings.HasPrefix(s, "text/"):
		return "text=" + strings.TrimPrefix(s, "text/")
	case strings.HasPrefix(s, "pierce/"):
		// Playwright CSS already pierces open shadow roots.
		return "css=" + strings.TrimPrefix(s, "pierce/")
	default:
		return s
	}
}
