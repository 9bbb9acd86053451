package score

import "testing"

func TestPitchNameRoundTrip(t *testing.T) {
	for p := 0; p <= 127; p++ {
		name := PitchName(uint8(p))
		got, err := ParsePitch(name)
		if err != nil {
			t.Fatalf("ParsePitch(%q) returned error: %v", name, err)
		}
		if got != uint8(p) {
			t.Errorf("round trip %d -> %q -> %d", p, name, got)
		}
	}
}

func TestParsePitch(t *testing.T) {
	tests := []struct {
		name    string
		want    uint8
		wantErr bool
	}{
		{"C4", 60, false},
		{"c4", 60, false},
		{"C-1", 0, false},
		{"G9", 127, false},
		{"F#3", 54, false},
		{"Bb3", 58, false},
		{"Cb4", 59, false},
		{"E#4", 65, false},
		{"C##4", 62, false},
		{"Cx4", 62, false},
		{"Dbb4", 60, false},
		{"A0", 21, false},
		{"H4", 0, true},
		{"C", 0, true},
		{"C#", 0, true},
		{"G#9", 0, true}, // 128, out of range
		{"Cb-1", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePitch(tt.name)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePitch(%q) = %d, want error", tt.name, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePitch(%q) returned error: %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("ParsePitch(%q) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestPitchName(t *testing.T) {
	tests := []struct {
		pitch uint8
		want  string
	}{
		{0, "C-1"},
		{21, "A0"},
		{60, "C4"},
		{61, "C#4"},
		{69, "A4"},
		{127, "G9"},
	}

	for _, tt := range tests {
		if got := PitchName(tt.pitch); got != tt.want {
			t.Errorf("PitchName(%d) = %q, want %q", tt.pitch, got, tt.want)
		}
	}
}
