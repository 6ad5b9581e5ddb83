package version

import (
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		input string
		major uint16
		minor uint16
	}{
		{"1.0", 1, 0},
		{"1.1", 1, 1},
		{"2.0", 2, 0},
		{"10.23", 10, 23},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if v.Major != tt.major || v.Minor != tt.minor {
				t.Errorf("Parse(%q) = %v, want %d.%d", tt.input, v, tt.major, tt.minor)
			}
			if v.String() != tt.input {
				t.Errorf("String() = %q, want %q", v.String(), tt.input)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"", "1", "abc", "1.0.0", "1.x", "-1.0", ".1", "1.", "70000.0"} {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse(input); err == nil {
				t.Errorf("Parse(%q) should return error", input)
			}
		})
	}
}

func TestCompatible(t *testing.T) {
	v10, _ := Parse("1.0")
	v13, _ := Parse("1.3")
	v20, _ := Parse("2.0")

	if !v10.Compatible(v13) {
		t.Error("1.0 should be compatible with 1.3")
	}
	if v10.Compatible(v20) {
		t.Error("1.0 should not be compatible with 2.0")
	}
}

func TestSubprotocol(t *testing.T) {
	if got := Subprotocol(1); got != "fanlink/1" {
		t.Errorf("Subprotocol(1) = %q", got)
	}

	major, err := MajorFromSubprotocol("fanlink/7")
	if err != nil || major != 7 {
		t.Errorf("MajorFromSubprotocol(fanlink/7) = %d, %v", major, err)
	}

	for _, bad := range []string{"fanlink/", "fanlink/x", ""} {
		if _, err := MajorFromSubprotocol(bad); err == nil {
			t.Errorf("MajorFromSubprotocol(%q) should fail", bad)
		}
	}

	supported := SupportedSubprotocols()
	if len(supported) != 1 || supported[0] != "fanlink/1" {
		t.Errorf("SupportedSubprotocols() = %v", supported)
	}
}
