package classification

import "testing"

func TestLevel_Ordering(t *testing.T) {
	levels := AllLevels()
	for i := 1; i < len(levels); i++ {
		if !levels[i].Exceeds(levels[i-1]) {
			t.Errorf("%v should exceed %v", levels[i], levels[i-1])
		}
	}

	if Unknown.Exceeds(Public) {
		t.Error("Unknown must sort below Public")
	}
	if Sensitive.AtMost(Restricted) {
		t.Error("Sensitive must not fit under a Restricted ceiling")
	}
	if !Restricted.AtMost(Sensitive) {
		t.Error("Restricted must fit under a Sensitive ceiling")
	}
}

func TestFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"PUBLIC", Public},
		{"public", Public},
		{"Restricted", Restricted},
		{"SENSITIVE", Sensitive},
		{"SECRET", Secret},
		{"TOP_SECRET", TopSecret},
		{"Top Secret", TopSecret},
		{" sensitive ", Sensitive},
		{"confidential", Unknown},
		{"", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := FromString(tt.input); got != tt.expected {
				t.Errorf("FromString(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLevel_RoundTrip(t *testing.T) {
	for _, l := range AllLevels() {
		if got := FromString(l.String()); got != l {
			t.Errorf("FromString(%q) = %v, want %v", l.String(), got, l)
		}
	}
}

func TestLevel_TextMarshal(t *testing.T) {
	b, err := Sensitive.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(b) != "SENSITIVE" {
		t.Errorf("MarshalText = %q, want SENSITIVE", b)
	}

	var l Level
	if err := l.UnmarshalText([]byte("RESTRICTED")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if l != Restricted {
		t.Errorf("UnmarshalText = %v, want Restricted", l)
	}
}

func TestMax(t *testing.T) {
	if got := Max(Public, Secret); got != Secret {
		t.Errorf("Max(Public, Secret) = %v, want Secret", got)
	}
	if got := Max(TopSecret, Sensitive); got != TopSecret {
		t.Errorf("Max(TopSecret, Sensitive) = %v, want TopSecret", got)
	}
}
