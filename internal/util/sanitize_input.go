package util

import (
	"html"
	"strings"
)

var lineBreaks = strings.NewReplacer("\r\n", "<br>", "\n", "<br>", "\r", "<br>")

// SanitizeContent turns untrusted free text into an HTML fragment safe to embed
// in an email body. Markup characters are escaped exactly once, so existing
// entities such as "&lt;" come out as literal text, and line breaks become <br>.
func SanitizeContent(s string) string {
	return lineBreaks.Replace(html.EscapeString(s))
}
