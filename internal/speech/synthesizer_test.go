package speech

import "testing"

func TestFormatText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"bold becomes strong emphasis",
			"I am **vengeance**",
			`I am <emphasis level="strong">vengeance</emphasis>`,
		},
		{
			"italic becomes moderate emphasis",
			"whisper *quietly* now",
			`whisper <emphasis level="moderate">quietly</emphasis> now`,
		},
		{
			"arrow is spoken",
			"level 1 → level 2",
			"level 1 to level 2",
		},
		{
			"quotes are stripped",
			`the "Riddler" strikes`,
			"the Riddler strikes",
		},
		{
			"surrounding whitespace trimmed",
			"  riddle me this  ",
			"riddle me this",
		},
		{
			"plain text unchanged",
			"riddle me this",
			"riddle me this",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatText(tt.in); got != tt.want {
				t.Errorf("FormatText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
