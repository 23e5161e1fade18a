package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestSuffixedSlug(t *testing.T) {
	tests := []struct {
		slug string
		n    int
		want string
	}{
		{"anchor-line", 2, "anchor-line-2"},
		{"anchor-line", 3, "anchor-line-3"},
		{"plow-anchor-10kg", 2, "plow-anchor-10kg-2"},
	}

	for _, tt := range tests {
		if got := SuffixedSlug(tt.slug, tt.n); got != tt.want {
			t.Errorf("SuffixedSlug(%q, %d) = %q, want %q", tt.slug, tt.n, got, tt.want)
		}
	}
}

func TestIsSlugViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "slug unique violation",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "products_slug_key"},
			want: true,
		},
		{
			name: "wrapped slug violation",
			err:  fmt.Errorf("upsert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "products_slug_key"}),
			want: true,
		},
		{
			name: "external id violation is not recoverable via suffix",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "products_external_id_key"},
			want: false,
		},
		{
			name: "other pg error code",
			err:  &pgconn.PgError{Code: "23503", ConstraintName: "products_slug_key"},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("connection refused"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSlugViolation(tt.err); got != tt.want {
				t.Errorf("isSlugViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}
