package severity

import "testing"

func TestLevel_Priority(t *testing.T) {
	tests := []struct {
		level    Level
		expected int
	}{
		{Critical, 5},
		{High, 4},
		{Medium, 3},
		{Low, 2},
		{Info, 1},
		{Unknown, 0},
		{Level("invalid"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			if got := tt.level.Priority(); got != tt.expected {
				t.Errorf("Level.Priority() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"Very High", Critical},
		{"CRITICAL", Critical},
		{"High", High},
		{"error", High},
		{"Medium", Medium},
		{"WARNING", Medium},
		{"Low", Low},
		{"Very Low", Low},
		{"Info", Info},
		{"note", Info},
		{"  high  ", High},
		{"garbage", Unknown},
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

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Level
		expected int
	}{
		{"critical vs high", Critical, High, 1},
		{"low vs medium", Low, Medium, -1},
		{"equal", High, High, 0},
		{"unknown vs info", Unknown, Info, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.expected {
				t.Errorf("Compare(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestMaxMin(t *testing.T) {
	if got := Max(Low, High); got != High {
		t.Errorf("Max(Low, High) = %v, want %v", got, High)
	}
	if got := Min(Low, High); got != Low {
		t.Errorf("Min(Low, High) = %v, want %v", got, Low)
	}
	if got := Max(Medium, Medium); got != Medium {
		t.Errorf("Max(Medium, Medium) = %v, want %v", got, Medium)
	}
}

func TestCountBySeverity(t *testing.T) {
	var c CountBySeverity
	for _, l := range []Level{Critical, High, High, Medium, Info, Level("odd")} {
		c.Increment(l)
	}

	if c.Total != 6 {
		t.Errorf("Total = %d, want 6", c.Total)
	}
	if c.Critical != 1 || c.High != 2 || c.Medium != 1 || c.Info != 1 || c.Unknown != 1 {
		t.Errorf("unexpected counts: %+v", c)
	}
	if got := c.HighestSeverity(); got != Critical {
		t.Errorf("HighestSeverity() = %v, want %v", got, Critical)
	}

	empty := CountBySeverity{}
	if got := empty.HighestSeverity(); got != Unknown {
		t.Errorf("HighestSeverity() on empty = %v, want %v", got, Unknown)
	}
}
