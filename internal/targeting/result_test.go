package targeting

import "testing"

func TestResultNegate(t *testing.T) {
	tests := []struct {
		name string
		in   Result
		want Result
	}{
		{"true inverts to false", True, False},
		{"false inverts to true", False, True},
		{"indeterminate stays indeterminate", Indeterminate, Indeterminate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Negate(); got != tt.want {
				t.Errorf("Negate(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestResultString(t *testing.T) {
	tests := []struct {
		in   Result
		want string
	}{
		{True, "true"},
		{False, "false"},
		{Indeterminate, "indeterminate"},
		{Result(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", int(tt.in), got, tt.want)
		}
	}
}

func TestResultOf(t *testing.T) {
	if resultOf(true) != True {
		t.Error("resultOf(true) != True")
	}
	if resultOf(false) != False {
		t.Error("resultOf(false) != False")
	}
}
