// Package remote talks to the hosted backend that owns the statements and their view rows.
package remote

import (
	"context"
	"fmt"
	"regexp"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/domain"
)

// Service is the remote content-and-persistence backend.
type Service interface {
	// ExistingItems returns the subset of ids that currently exist.
	ExistingItems(ctx context.Context, ids []string) ([]string, error)
	// UpsertViews inserts records, ignoring rows that collide on
	// (statement_id, ip_address, user_agent, view_date).
	UpsertViews(ctx context.Context, records []domain.ViewRecord) error
}

// Default table names in the hosted schema.
const (
	DefaultItemsTable = "statements"
	DefaultViewsTable = "statement_views"
)

// ConflictColumns is the uniqueness key of the views table.
const ConflictColumns = "statement_id,ip_address,user_agent,view_date"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Tables names the relations used by a Service.
type Tables struct {
	Items string `env:"REMOTE_ITEMS_TABLE" yaml:"items_table"`
	Views string `env:"REMOTE_VIEWS_TABLE" yaml:"views_table"`
}

// SetDefaults fills blank table names.
func (t *Tables) SetDefaults() {
	if t.Items == "" {
		t.Items = DefaultItemsTable
	}
	if t.Views == "" {
		t.Views = DefaultViewsTable
	}
}

// Validate rejects anything that is not a plain (optionally schema-qualified) identifier.
func (t Tables) Validate() error {
	for _, name := range []string{t.Items, t.Views} {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}
