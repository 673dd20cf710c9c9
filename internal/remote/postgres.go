package remote

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/domain"
)

const (
	// columnsPerRow is the number of columns inserted per view row.
	columnsPerRow = 5

	// insertBatchSize is the maximum number of rows per INSERT statement.
	insertBatchSize = 50
)

// PostgresService reads and writes the backend tables directly.
type PostgresService struct {
	db     *sql.DB
	tables Tables
}

// NewPostgresService returns a service over db. Table names must already be validated.
func NewPostgresService(db *sql.DB, tables Tables) *PostgresService {
	tables.SetDefaults()
	return &PostgresService{db: db, tables: tables}
}

// ExistingItems runs a single ANY($1) lookup. The array parameter takes the
// type of the id column, so the primary-key index is used.
func (s *PostgresService) ExistingItems(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT id::text FROM %s WHERE id = ANY($1)", quoteTable(s.tables.Items))
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query existing items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	existing := make([]string, 0, len(ids))
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("scan item id: %w", scanErr)
		}
		existing = append(existing, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item ids: %w", err)
	}

	return existing, nil
}

// UpsertViews writes every record in one transaction, insertBatchSize rows per statement.
func (s *PostgresService) UpsertViews(ctx context.Context, records []domain.ViewRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	for start := 0; start < len(records); start += insertBatchSize {
		end := min(start+insertBatchSize, len(records))
		if err = s.batchInsert(ctx, tx, records[start:end]); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit views: %w", err)
	}
	return nil
}

// batchInsert builds and executes a single INSERT statement with multiple value tuples.
func (s *PostgresService) batchInsert(ctx context.Context, tx *sql.Tx, records []domain.ViewRecord) error {
	args := make([]any, 0, len(records)*columnsPerRow)
	var sb strings.Builder

	sb.WriteString("INSERT INTO ")
	sb.WriteString(quoteTable(s.tables.Views))
	sb.WriteString(" (statement_id, ip_address, user_agent, viewed_at, view_date) VALUES ")

	for i := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeValueTuple(&sb, i)

		args = append(args,
			records[i].ItemID, records[i].IPAddress, records[i].UserAgent,
			records[i].ViewedAt, records[i].Date,
		)
	}
	sb.WriteString(" ON CONFLICT (statement_id, ip_address, user_agent, view_date) DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("exec batch upsert: %w", err)
	}
	return nil
}

// writeValueTuple writes a ($1, ..., $5) placeholder tuple offset by the row index.
func writeValueTuple(sb *strings.Builder, rowIndex int) {
	base := rowIndex * columnsPerRow
	fmt.Fprintf(sb, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
}

func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
