package report

import "testing"

func TestRoundHalfUp(t *testing.T) {
	tests := map[float64]int{
		7.49: 7,
		7.5:  8,
		8.75: 9,
		9.25: 9,
		-0.5: 0,
	}

	for input, expected := range tests {
		if got := RoundHalfUp(input); got != expected {
			t.Errorf("RoundHalfUp(%v) = %d; expected %d", input, got, expected)
		}
	}
}

func TestClampScore(t *testing.T) {
	tests := map[int]int{
		-4: 1,
		0:  1,
		1:  1,
		7:  7,
		10: 10,
		13: 10,
	}

	for input, expected := range tests {
		if got := ClampScore(input); got != expected {
			t.Errorf("ClampScore(%d) = %d; expected %d", input, got, expected)
		}
	}
}

func TestPenaltyScore(t *testing.T) {
	weights := map[Severity]float64{SeverityHigh: 2, SeverityMedium: 1, SeverityLow: 0.25}

	tests := []struct {
		name       string
		severities []Severity
		expected   int
	}{
		{"no findings", nil, 10},
		{"one high", []Severity{SeverityHigh}, 8},
		{"two lows round up", []Severity{SeverityLow, SeverityLow}, 10},
		{"medium and low", []Severity{SeverityMedium, SeverityLow, SeverityLow}, 9},
		{"clamped", []Severity{SeverityHigh, SeverityHigh, SeverityHigh, SeverityHigh, SeverityHigh}, 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var findings []Finding
			for _, severity := range test.severities {
				findings = append(findings, Finding{Severity: severity})
			}
			if got := PenaltyScore(findings, weights); got != test.expected {
				t.Errorf("Expected %d, got %d", test.expected, got)
			}
		})
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		score    int
		expected string
	}{
		{10, "A"},
		{9, "A"},
		{8, "B"},
		{7, "C"},
		{6, "D"},
		{5, "F"},
		{1, "F"},
	}

	for _, test := range tests {
		if grade := Grade(test.score); grade != test.expected {
			t.Errorf("For score %d, expected grade %s, got %s", test.score, test.expected, grade)
		}
	}
}

func TestParseSeverity(t *testing.T) {
	for _, name := range []string{"low", "medium", "high"} {
		if _, ok := ParseSeverity(name); !ok {
			t.Errorf("Expected %s to parse", name)
		}
	}
	if _, ok := ParseSeverity("critical"); ok {
		t.Error("Expected critical to be rejected")
	}
	if SeverityHigh.Rank() <= SeverityMedium.Rank() || SeverityMedium.Rank() <= SeverityLow.Rank() {
		t.Error("Expected severities to rank low < medium < high")
	}
}
