package ui

import (
	"regexp"
	"strconv"
	"strings"
)

// Policy messages use angle-bracket tags such as <red>, <bold> and
// <#ff8800>, closed with </red> or <reset>. Markup converts the tags it
// knows to ANSI escapes and drops them when color is disabled. Unknown tags
// are left as written.

var tagPattern = regexp.MustCompile(`<(/?)([a-z_]+|#[0-9a-fA-F]{6})>`)

var namedColors = map[string]int{
	"black":        0,
	"dark_blue":    19,
	"dark_green":   34,
	"dark_aqua":    37,
	"dark_red":     124,
	"dark_purple":  127,
	"gold":         214,
	"gray":         colorMuted,
	"grey":         colorMuted,
	"dark_gray":    240,
	"dark_grey":    240,
	"blue":         63,
	"green":        colorOpen,
	"aqua":         87,
	"red":          colorClosed,
	"light_purple": 207,
	"yellow":       colorWarn,
	"white":        15,
}

var decorations = map[string]string{
	"bold":          "1",
	"b":             "1",
	"italic":        "3",
	"i":             "3",
	"em":            "3",
	"underlined":    "4",
	"u":             "4",
	"strikethrough": "9",
	"st":            "9",
}

// Markup renders the tags in s for the terminal.
func Markup(s string) string {
	return renderMarkup(s, !noColor)
}

// StripMarkup removes every known tag from s.
func StripMarkup(s string) string {
	return renderMarkup(s, false)
}

func renderMarkup(s string, color bool) string {
	var b strings.Builder
	open := false
	last := 0
	for _, m := range tagPattern.FindAllStringSubmatchIndex(s, -1) {
		closing := m[3] > m[2]
		name := s[m[4]:m[5]]
		seq, ok := tagSequence(name, closing)
		if !ok {
			continue
		}
		b.WriteString(s[last:m[0]])
		last = m[1]
		if !color {
			continue
		}
		b.WriteString(seq)
		open = seq != "\x1b[0m"
	}
	b.WriteString(s[last:])
	if open {
		b.WriteString("\x1b[0m")
	}
	return b.String()
}

// tagSequence returns the escape for a tag. Any closing tag resets all
// styling.
func tagSequence(name string, closing bool) (string, bool) {
	known := name == "reset"
	if code, ok := namedColors[name]; ok {
		known = true
		if !closing {
			return "\x1b[38;5;" + strconv.Itoa(code) + "m", true
		}
	}
	if d, ok := decorations[name]; ok {
		known = true
		if !closing {
			return "\x1b[" + d + "m", true
		}
	}
	if strings.HasPrefix(name, "#") {
		known = true
		if !closing {
			r, _ := strconv.ParseUint(name[1:3], 16, 8)
			g, _ := strconv.ParseUint(name[3:5], 16, 8)
			bl, _ := strconv.ParseUint(name[5:7], 16, 8)
			return "\x1b[38;2;" + strconv.FormatUint(r, 10) + ";" + strconv.FormatUint(g, 10) + ";" + strconv.FormatUint(bl, 10) + "m", true
		}
	}
	if !known {
		return "", false
	}
	return "\x1b[0m", true
}
