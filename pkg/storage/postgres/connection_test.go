package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestParseReplicaURLs tests replica URL parsing
func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "empty string",
			input: "",
			want:  nil,
		},
		{
			name:  "single URL",
			input: "postgres://replica-1/plumbline",
			want:  []string{"postgres://replica-1/plumbline"},
		},
		{
			name:  "multiple URLs with whitespace",
			input: "postgres://replica-1/plumbline , postgres://replica-2/plumbline",
			want:  []string{"postgres://replica-1/plumbline", "postgres://replica-2/plumbline"},
		},
		{
			name:  "trailing comma",
			input: "postgres://replica-1/plumbline,",
			want:  []string{"postgres://replica-1/plumbline"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseReplicaURLs(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestMigrationsOrdered verifies migration versions are unique and ascending
func TestMigrationsOrdered(t *testing.T) {
	migrations := GetMigrations()
	assert.NotEmpty(t, migrations)

	seen := make(map[int]bool)
	prev := 0
	for _, m := range migrations {
		assert.False(t, seen[m.Version], "duplicate migration version %d", m.Version)
		assert.Greater(t, m.Version, prev, "migration versions must ascend")
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
		seen[m.Version] = true
		prev = m.Version
	}
}
