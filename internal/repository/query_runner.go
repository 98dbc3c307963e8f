package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// QueryResult is the tabular output of a read statement.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// QueryRunner executes operator-supplied SQL. Read statements return their
// rows; DDL and DML return a nil result.
type QueryRunner interface {
	Run(ctx context.Context, sql string) (*QueryResult, error)
}

type GormQueryRunner struct {
	db *gorm.DB
}

func NewGormQueryRunner(db *gorm.DB) *GormQueryRunner {
	return &GormQueryRunner{db: db}
}

func (r *GormQueryRunner) Run(ctx context.Context, sql string) (*QueryResult, error) {
	statement := strings.TrimSpace(sql)
	if statement == "" {
		return nil, fmt.Errorf("query is required")
	}

	if !returnsRows(statement) {
		if err := r.db.WithContext(ctx).Exec(statement).Error; err != nil {
			return nil, fmt.Errorf("failed to execute statement: %w", err)
		}
		return nil, nil
	}

	rows, err := r.db.WithContext(ctx).Raw(statement).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := &QueryResult{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return result, nil
}

func returnsRows(statement string) bool {
	fields := strings.Fields(strings.TrimLeft(statement, "("))
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "SHOW", "EXPLAIN", "VALUES", "TABLE", "PRAGMA":
		return true
	}
	return false
}
