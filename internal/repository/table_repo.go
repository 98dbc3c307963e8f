package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kursadbilgin/stock-console/internal/domain"
	"gorm.io/gorm"
)

// TableRepository reads and edits the tables described by the catalog.
// Column names always come from the TableSpec, never from callers directly.
type TableRepository interface {
	Rows(ctx context.Context, spec domain.TableSpec, filters map[string][]string, limit int) ([]domain.Row, error)
	DistinctValues(ctx context.Context, spec domain.TableSpec, column string) ([]string, error)
	Append(ctx context.Context, spec domain.TableSpec, row domain.Row) error
	Update(ctx context.Context, spec domain.TableSpec, row domain.Row) error
	Delete(ctx context.Context, spec domain.TableSpec, row domain.Row) error
}

type GormTableRepo struct {
	db *gorm.DB
}

func NewGormTableRepo(db *gorm.DB) *GormTableRepo {
	return &GormTableRepo{db: db}
}

// Rows returns rows matching every filter (values within a column are OR'd).
// A limit of zero or less returns all rows.
func (r *GormTableRepo) Rows(
	ctx context.Context,
	spec domain.TableSpec,
	filters map[string][]string,
	limit int,
) ([]domain.Row, error) {
	query := r.db.WithContext(ctx).Table(spec.Name).Select(spec.ColumnNames())

	columns := make([]string, 0, len(filters))
	for column := range filters {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	for _, column := range columns {
		values := filters[column]
		if len(values) == 0 {
			continue
		}
		if !spec.IsFilterColumn(column) {
			return nil, fmt.Errorf("%w: %q is not a filter column of %s", domain.ErrValidation, column, spec.Name)
		}

		typed := make([]any, 0, len(values))
		for _, v := range values {
			converted, err := coerceValue(spec, column, v)
			if err != nil {
				return nil, err
			}
			typed = append(typed, converted)
		}
		query = query.Where(quoteColumn(column)+" IN ?", typed)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}

	var results []map[string]any
	if err := query.Order("id").Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to load rows from %s: %w", spec.Name, err)
	}

	rows := make([]domain.Row, 0, len(results))
	for _, result := range results {
		row := make(domain.Row, len(result))
		for k, v := range result {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[k] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// DistinctValues returns the sorted non-empty values of column.
func (r *GormTableRepo) DistinctValues(ctx context.Context, spec domain.TableSpec, column string) ([]string, error) {
	if !spec.HasColumn(column) {
		return nil, fmt.Errorf("%w: unknown column %q in %s", domain.ErrValidation, column, spec.Name)
	}

	var values []string
	err := r.db.WithContext(ctx).
		Table(spec.Name).
		Distinct(column).
		Where(quoteColumn(column)+" IS NOT NULL").
		Pluck(column, &values).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load distinct %s from %s: %w", column, spec.Name, err)
	}

	out := values[:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *GormTableRepo) Append(ctx context.Context, spec domain.TableSpec, row domain.Row) error {
	values, err := rowValues(spec, row, spec.ColumnNames())
	if err != nil {
		return err
	}
	if err := requireKeys(spec, values); err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Table(spec.Name).Create(values).Error; err != nil {
		if isUniqueViolationError(err) {
			return fmt.Errorf("%w: %s row already exists", domain.ErrConflict, spec.Name)
		}
		return fmt.Errorf("failed to append to %s: %w", spec.Name, err)
	}
	return nil
}

// Update locates the row by the "<key>_old" values and overwrites the
// columns present in row.
func (r *GormTableRepo) Update(ctx context.Context, spec domain.TableSpec, row domain.Row) error {
	query := r.db.WithContext(ctx).Table(spec.Name)
	for _, key := range spec.NecessaryColumns {
		old, ok := row[domain.OldColumn(key)]
		if !ok {
			return fmt.Errorf("%w: %s is required for update", domain.ErrValidation, domain.OldColumn(key))
		}
		converted, err := coerceValue(spec, key, old)
		if err != nil {
			return err
		}
		if converted == nil {
			return fmt.Errorf("%w: %s must not be empty", domain.ErrValidation, domain.OldColumn(key))
		}
		query = query.Where(quoteColumn(key)+" = ?", converted)
	}

	present := make([]string, 0, len(row))
	for _, column := range spec.ColumnNames() {
		if _, ok := row[column]; ok {
			present = append(present, column)
		}
	}
	values, err := rowValues(spec, row, present)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: update carries no columns of %s", domain.ErrValidation, spec.Name)
	}
	if err := requireKeys(spec, values); err != nil {
		return err
	}

	result := query.Updates(values)
	if result.Error != nil {
		if isUniqueViolationError(result.Error) {
			return fmt.Errorf("%w: %s update collides with an existing row", domain.ErrConflict, spec.Name)
		}
		return fmt.Errorf("failed to update %s: %w", spec.Name, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormTableRepo) Delete(ctx context.Context, spec domain.TableSpec, row domain.Row) error {
	query := r.db.WithContext(ctx).Table(spec.Name)
	for _, key := range spec.NecessaryColumns {
		converted, err := coerceValue(spec, key, row[key])
		if err != nil {
			return err
		}
		if converted == nil {
			return fmt.Errorf("%w: %s is required for delete", domain.ErrValidation, key)
		}
		query = query.Where(quoteColumn(key)+" = ?", converted)
	}

	model, err := modelFor(spec.Name)
	if err != nil {
		return err
	}

	result := query.Delete(model)
	if result.Error != nil {
		return fmt.Errorf("failed to delete from %s: %w", spec.Name, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func rowValues(spec domain.TableSpec, row domain.Row, columns []string) (map[string]any, error) {
	values := make(map[string]any, len(columns))
	for _, column := range columns {
		raw, ok := row[column]
		if !ok {
			continue
		}
		converted, err := coerceValue(spec, column, raw)
		if err != nil {
			return nil, err
		}
		values[column] = converted
	}
	return values, nil
}

func requireKeys(spec domain.TableSpec, values map[string]any) error {
	for _, key := range spec.NecessaryColumns {
		if values[key] == nil {
			return fmt.Errorf("%w: %s is required", domain.ErrValidation, key)
		}
	}
	return nil
}

// coerceValue converts uploaded cell text into the column's type. Empty
// strings become NULL.
func coerceValue(spec domain.TableSpec, column string, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	s, isString := raw.(string)
	if !isString {
		return raw, nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	switch spec.ColumnType(column) {
	case domain.ColumnInteger:
		n, err := strconv.ParseInt(strings.TrimSuffix(s, ".0"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer (got %q)", domain.ErrValidation, column, s)
		}
		return n, nil
	case domain.ColumnDecimal:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a number (got %q)", domain.ErrValidation, column, s)
		}
		return f, nil
	default:
		return s, nil
	}
}

func quoteColumn(column string) string {
	return `"` + strings.ReplaceAll(column, `"`, `""`) + `"`
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
