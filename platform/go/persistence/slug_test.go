package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       string
		expectSlug  string
		expectError bool
	}{
		{
			name:       "already normalized",
			input:      "acme-mx",
			expectSlug: "acme-mx",
		},
		{
			name:       "trims whitespace and lowercases",
			input:      "  Grupo-Norte ",
			expectSlug: "grupo-norte",
		},
		{
			name:        "empty string",
			input:       "   ",
			expectError: true,
		},
		{
			name:        "invalid characters",
			input:       "acme_mx",
			expectError: true,
		},
		{
			name:        "leading hyphen",
			input:       "-bad-slug",
			expectError: true,
		},
		{
			name:        "trailing hyphen",
			input:       "bad-slug-",
			expectError: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			slug, err := NormalizeSlug(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.expectSlug, slug)
		})
	}
}
