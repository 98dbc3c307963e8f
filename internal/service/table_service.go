package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/export"
	"github.com/kursadbilgin/stock-console/internal/observability"
	"github.com/kursadbilgin/stock-console/internal/repository"
	"github.com/kursadbilgin/stock-console/internal/session"
	"go.uber.org/zap"
)

// DefaultRowLimit is how many rows the viewer shows unless asked otherwise.
const DefaultRowLimit = 10

// EditReport summarises an applied bulk edit.
type EditReport struct {
	Table string          `json:"table"`
	Type  domain.EditType `json:"type"`
	Edits int             `json:"numberOfEdits"`
}

// TableExport is a zip of xlsx workbooks produced by the table viewer.
type TableExport struct {
	FileName string
	Files    []string
	Data     []byte
}

type TableService struct {
	repo    repository.TableRepository
	catalog domain.TableCatalog
	actions *ActionLogger
	logger  *zap.Logger
}

func NewTableService(
	repo repository.TableRepository,
	catalog domain.TableCatalog,
	actions *ActionLogger,
	logger *zap.Logger,
) (*TableService, error) {
	if repo == nil {
		return nil, fmt.Errorf("table repository is required")
	}
	if len(catalog) == 0 {
		catalog = domain.DefaultCatalog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TableService{repo: repo, catalog: catalog, actions: actions, logger: logger}, nil
}

// Catalog returns the managed tables sorted by name.
func (s *TableService) Catalog() []domain.TableSpec {
	names := s.catalog.Names()
	specs := make([]domain.TableSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, s.catalog[name])
	}
	return specs
}

// Options returns the sorted distinct values of the table's partition column.
func (s *TableService) Options(ctx context.Context, table string) (string, []string, error) {
	spec, err := s.catalog.Lookup(table)
	if err != nil {
		return "", nil, err
	}
	values, err := s.repo.DistinctValues(ctx, spec, spec.PartitionColumn)
	if err != nil {
		return "", nil, err
	}
	return spec.PartitionColumn, values, nil
}

// AddFilter selects table on sess and adds values for one of its filter
// columns. Integer columns only accept whole numbers.
func (s *TableService) AddFilter(sess *session.Session, table, column string, values []string) error {
	spec, err := s.catalog.Lookup(table)
	if err != nil {
		return err
	}
	if !spec.IsFilterColumn(column) {
		return fmt.Errorf("%w: %q is not a filter column of %s", domain.ErrValidation, column, spec.Name)
	}

	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if spec.ColumnType(column) == domain.ColumnInteger {
			n, err := parseWhole(v)
			if err != nil {
				return fmt.Errorf("%w: filter %s: %v", domain.ErrValidation, column, err)
			}
			v = strconv.FormatInt(n, 10)
		}
		cleaned = append(cleaned, v)
	}
	if len(cleaned) == 0 {
		return fmt.Errorf("%w: no filter values given for %s", domain.ErrValidation, column)
	}

	sess.SelectTable(spec.Name)
	sess.AddFilter(column, cleaned...)
	return nil
}

// ClearFilters drops every filter of table on sess.
func (s *TableService) ClearFilters(sess *session.Session, table string) error {
	spec, err := s.catalog.Lookup(table)
	if err != nil {
		return err
	}
	sess.SelectTable(spec.Name)
	sess.ClearFilters()
	return nil
}

// Rows selects table on sess and returns up to limit rows matching the
// session's filters. Zero means all rows.
func (s *TableService) Rows(ctx context.Context, sess *session.Session, table string, limit int) ([]domain.Row, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must be >= 0", domain.ErrValidation)
	}
	spec, err := s.catalog.Lookup(table)
	if err != nil {
		return nil, err
	}

	if sess.SelectTable(spec.Name) {
		observability.WithContextLogger(s.logger, ctx).Debug("table selection changed, filters reset",
			zap.String("table", spec.Name),
		)
	}
	return s.repo.Rows(ctx, spec, sess.FiltersCopy(), limit)
}

// Export renders every filtered row of table as xlsx workbooks in a zip,
// one per value of splitBy when it is set.
func (s *TableService) Export(ctx context.Context, sess *session.Session, table, splitBy string) (*TableExport, error) {
	spec, err := s.catalog.Lookup(table)
	if err != nil {
		return nil, err
	}
	splitBy = strings.TrimSpace(splitBy)
	if splitBy != "" && !spec.IsFilterColumn(splitBy) {
		return nil, fmt.Errorf("%w: cannot split %s by %q", domain.ErrValidation, spec.Name, splitBy)
	}

	rows, err := s.Rows(ctx, sess, spec.Name, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no results found", domain.ErrNotFound)
	}

	records := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		records = append(records, map[string]any(row))
	}
	full := export.FromRecords(spec.Name, spec.ColumnNames(), records)

	tables := []export.Table{full}
	if splitBy != "" {
		tables, err = full.SplitBy(splitBy)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
	}

	data, err := export.ZipWorkbooks(tables)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(tables))
	for _, t := range tables {
		files = append(files, t.Name+".xlsx")
	}
	return &TableExport{FileName: "excel_files.zip", Files: files, Data: data}, nil
}

// ApplyEdits applies every row of upload to table, one at a time and in
// order. The first failing row stops the run; rows before it stay applied.
func (s *TableService) ApplyEdits(
	ctx context.Context,
	user string,
	table string,
	edit domain.EditType,
	upload export.Table,
) (*EditReport, error) {
	if !edit.IsValid() {
		return nil, fmt.Errorf("%w: invalid edit type %q", domain.ErrValidation, edit)
	}
	spec, err := s.catalog.Lookup(table)
	if err != nil {
		return nil, err
	}
	if missing := upload.MissingColumns(spec.RequiredEditColumns(edit)); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing necessary columns: %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	if len(upload.Rows) == 0 {
		return nil, fmt.Errorf("%w: edit file has no rows", domain.ErrValidation)
	}

	logger := observability.WithContextLogger(s.logger, ctx)
	applied := 0
	for i, record := range upload.Records() {
		row := editRow(spec, record)

		switch edit {
		case domain.EditAppend:
			err = s.repo.Append(ctx, spec, row)
		case domain.EditUpdate:
			err = s.repo.Update(ctx, spec, row)
		case domain.EditDelete:
			err = s.repo.Delete(ctx, spec, row)
		}
		if err != nil {
			logger.Warn("bulk edit stopped",
				zap.String("table", spec.Name),
				zap.String("type", edit.String()),
				zap.Int("applied", applied),
				zap.Error(err),
			)
			return nil, fmt.Errorf("row %d (%d applied before it): %w", i+1, applied, err)
		}
		applied++
	}

	report := &EditReport{Table: spec.Name, Type: edit, Edits: applied}
	if s.actions != nil {
		action := fmt.Sprintf("%s | table=%s | number_of_edits=%d", edit, spec.Name, applied)
		if err := s.actions.Log(ctx, DefaultActionSource, action, user); err != nil {
			logger.Warn("failed to log bulk edit", zap.Error(err))
		}
	}
	return report, nil
}

// FilterValuesFromUpload returns the distinct non-empty values of column in
// an uploaded sheet, in order of appearance.
func FilterValuesFromUpload(upload export.Table, column string) ([]string, error) {
	if missing := upload.MissingColumns([]string{column}); len(missing) > 0 {
		return nil, fmt.Errorf("%w: uploaded file has no column %q", domain.ErrValidation, column)
	}

	seen := make(map[string]struct{})
	var values []string
	for _, record := range upload.Records() {
		v := strings.TrimSpace(record[column])
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return values, nil
}

// editRow keeps the table's columns and their "_old" counterparts.
func editRow(spec domain.TableSpec, record map[string]string) domain.Row {
	row := make(domain.Row, len(record))
	for col, v := range record {
		if spec.HasColumn(col) {
			row[col] = v
			continue
		}
		if base, ok := strings.CutSuffix(col, "_old"); ok && spec.HasColumn(base) {
			row[col] = v
		}
	}
	return row
}
