package python

import (
	"errors"
	"testing"
)

func TestSelectVersion(t *testing.T) {
	versions := []string{"1.0", "1.5", "1.10.0", "2.0rc1", "not-a-version", "0.9"}

	tests := []struct {
		name      string
		specifier string
		want      string
		wantErr   bool
	}{
		{"any", "", "1.10.0", false},
		{"lower bound", ">=1.0", "1.10.0", false},
		{"upper bound", "<1.10", "1.5", false},
		{"compatible", "~=1.0", "1.10.0", false},
		{"exact", "==0.9", "0.9", false},
		{"pre-release only", ">=2.0rc1", "2.0rc1", false},
		{"no match", ">=3", "", true},
		{"invalid", "foo", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectVersion(versions, tt.specifier)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SelectVersion(%q) error = %v, wantErr %v", tt.specifier, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SelectVersion(%q) = %q, want %q", tt.specifier, got, tt.want)
			}
		})
	}
}

func TestSelectVersion_Empty(t *testing.T) {
	if _, err := SelectVersion(nil, ""); !errors.Is(err, ErrNoMatchingVersion) {
		t.Errorf("error = %v, want ErrNoMatchingVersion", err)
	}
}
