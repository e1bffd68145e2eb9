package api

import (
	"net/http"
	"regexp"
	"strings"
)

var (
	// linkPattern matches one "<url>; params" entry of a Link header.
	// The URL is delimited by angle brackets, so commas inside it are safe.
	linkPattern = regexp.MustCompile(`<([^>]*)>([^<]*)`)

	// relPattern matches the rel parameter, quoted or not.
	relPattern = regexp.MustCompile(`rel\s*=\s*"?([^";,]+)"?`)
)

// ParseLinks parses an RFC 8288 Link header into relation -> URL.
// A rel with several space-separated values maps each of them.
func ParseLinks(header string) map[string]string {
	links := make(map[string]string)
	for _, m := range linkPattern.FindAllStringSubmatch(header, -1) {
		rel := relPattern.FindStringSubmatch(m[2])
		if rel == nil {
			continue
		}
		for _, name := range strings.Fields(rel[1]) {
			links[name] = m[1]
		}
	}
	return links
}

// NextPageURL returns the "next" relation of the response's Link header.
func NextPageURL(headers http.Header) (string, bool) {
	link := headers.Get("Link")
	if link == "" {
		return "", false
	}
	next, ok := ParseLinks(link)["next"]
	return next, ok && next != ""
}
