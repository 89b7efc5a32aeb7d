package ui

import "testing"

func TestRenderMarkup(t *testing.T) {
	for _, tc := range []struct {
		name  string
		in    string
		color bool
		want  string
	}{
		{"Plain", "server is open", true, "server is open"},
		{"StripNamed", "<red>closed</red> for the night", false, "closed for the night"},
		{"StripNested", "<bold><gold>10</gold></bold> minutes", false, "10 minutes"},
		{"UnknownKept", "a <sometag> b", false, "a <sometag> b"},
		{"NotATag", "1 < 2 and 3 > 2", false, "1 < 2 and 3 > 2"},
		{"Named", "<red>closed", true, "\x1b[38;5;203mclosed\x1b[0m"},
		{"Closed", "<red>closed</red>!", true, "\x1b[38;5;203mclosed\x1b[0m!"},
		{"Bold", "<b>x</b>", true, "\x1b[1mx\x1b[0m"},
		{"Hex", "<#ff8800>warm", true, "\x1b[38;2;255;136;0mwarm\x1b[0m"},
		{"Reset", "<green>a<reset>b", true, "\x1b[38;5;114ma\x1b[0mb"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := renderMarkup(tc.in, tc.color); got != tc.want {
				t.Fatalf("renderMarkup(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestStripMarkup(t *testing.T) {
	if got := StripMarkup("<yellow>closing in 5 minutes</yellow>"); got != "closing in 5 minutes" {
		t.Fatalf("StripMarkup = %q", got)
	}
}
