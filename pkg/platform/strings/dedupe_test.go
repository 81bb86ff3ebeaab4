package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil stays nil", input: nil, expected: nil},
		{name: "empty stays empty", input: []string{}, expected: []string{}},
		{name: "territory list with padding", input: []string{" US", "CA ", " MX "}, expected: []string{"US", "CA", "MX"}},
		{name: "repeated record ids keep first position", input: []string{"rec-2", "rec-1", "rec-2"}, expected: []string{"rec-2", "rec-1"}},
		{name: "blank entries from trailing commas", input: []string{"DE", "", "  "}, expected: []string{"DE"}},
		{name: "case is significant", input: []string{"eu", "EU"}, expected: []string{"eu", "EU"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}
