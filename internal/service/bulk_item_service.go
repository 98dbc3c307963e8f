package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/export"
	"github.com/kursadbilgin/stock-console/internal/observability"
	"github.com/kursadbilgin/stock-console/internal/storage"
	"go.uber.org/zap"
)

const actionBulkItemUploaded = "BULK_ITEM_UPLOADED"

var bulkItemKeyColumns = []string{"item_id", "supplier", "ebay_store"}

// ItemGroupResult is the outcome for one (supplier, ebay_store) group.
type ItemGroupResult struct {
	Supplier  string `json:"supplier"`
	EbayStore string `json:"ebayStore"`
	Key       string `json:"key"`
	Added     int    `json:"added"`
	Total     int    `json:"total"`
	Created   bool   `json:"created"`
	Error     string `json:"error,omitempty"`

	err error
}

// BulkItemReport lists the groups of an item upload in order of first
// appearance in the file.
type BulkItemReport struct {
	Groups []ItemGroupResult `json:"groups"`
}

// BulkItemService merges uploaded store items into the per-supplier objects
// the backend reads from.
type BulkItemService struct {
	store   storage.ObjectStore
	actions *ActionLogger
	bucket  string
	logger  *zap.Logger
}

func NewBulkItemService(store storage.ObjectStore, actions *ActionLogger, bucket string, logger *zap.Logger) (*BulkItemService, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("project bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BulkItemService{store: store, actions: actions, bucket: bucket, logger: logger}, nil
}

// Upload groups upload by supplier and eBay store and appends each group to
// its stored object, creating it when missing. A group that would end up
// with a repeated item_id is rejected and left untouched; the other groups
// still go through. When no group could be written the first group error is
// returned along with the report.
func (s *BulkItemService) Upload(ctx context.Context, user string, upload export.Table) (*BulkItemReport, error) {
	if missing := upload.MissingColumns(bulkItemKeyColumns); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns: %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	if len(upload.Rows) == 0 {
		return nil, fmt.Errorf("%w: item file has no rows", domain.ErrValidation)
	}

	type group struct {
		supplier, ebayStore string
		table               export.Table
	}

	var order []string
	groups := make(map[string]*group)
	for i, record := range upload.Records() {
		supplier := strings.TrimSpace(record["supplier"])
		ebayStore := strings.TrimSpace(record["ebay_store"])
		if strings.TrimSpace(record["item_id"]) == "" {
			return nil, fmt.Errorf("%w: row %d has no item_id", domain.ErrValidation, i+1)
		}
		if !validPartitionValue(supplier) || !validPartitionValue(ebayStore) {
			return nil, fmt.Errorf("%w: row %d needs a supplier and an ebay_store without '/'", domain.ErrValidation, i+1)
		}

		id := ebayStore + "\x00" + supplier
		g, ok := groups[id]
		if !ok {
			g = &group{
				supplier:  supplier,
				ebayStore: ebayStore,
				table:     export.Table{Name: id, Columns: upload.Columns},
			}
			groups[id] = g
			order = append(order, id)
		}
		g.table.Rows = append(g.table.Rows, upload.Rows[i])
	}

	report := &BulkItemReport{Groups: make([]ItemGroupResult, 0, len(order))}
	written := 0
	for _, id := range order {
		g := groups[id]
		result := s.uploadGroup(ctx, user, g.supplier, g.ebayStore, g.table)
		if result.err == nil {
			written++
		}
		report.Groups = append(report.Groups, result)
	}

	if written == 0 {
		return report, report.Groups[0].err
	}
	return report, nil
}

func (s *BulkItemService) uploadGroup(ctx context.Context, user, supplier, ebayStore string, items export.Table) ItemGroupResult {
	logger := observability.WithContextLogger(s.logger, ctx)
	key := storage.StoreItemsKey(ebayStore, supplier)
	result := ItemGroupResult{Supplier: supplier, EbayStore: ebayStore, Key: key, Added: len(items.Rows)}

	fail := func(err error) ItemGroupResult {
		result.err = err
		result.Error = err.Error()
		logger.Warn("bulk item group rejected",
			zap.String("key", key),
			zap.Error(err),
		)
		return result
	}

	existing := export.Table{Name: key}
	data, err := s.store.Get(ctx, s.bucket, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		result.Created = true
	case err != nil:
		return fail(fmt.Errorf("failed to read %s: %w", key, err))
	default:
		existing, err = export.DecodeCSV(key, data)
		if err != nil {
			return fail(fmt.Errorf("failed to parse %s: %w", key, err))
		}
	}

	merged := mergeTables(existing, items)
	if dup, ok := duplicateItemID(merged); ok {
		return fail(fmt.Errorf("%w: duplicated item_id %s in %s", domain.ErrConflict, dup, key))
	}

	body, err := export.EncodeCSV(merged)
	if err != nil {
		return fail(err)
	}
	if err := s.store.Put(ctx, s.bucket, key, body, storage.ContentTypeCSV); err != nil {
		return fail(fmt.Errorf("failed to write %s: %w", key, err))
	}
	result.Total = len(merged.Rows)

	logger.Info("bulk item group uploaded",
		zap.String("key", key),
		zap.Int("added", result.Added),
		zap.Int("total", result.Total),
		zap.Bool("created", result.Created),
	)
	if s.actions != nil {
		action := fmt.Sprintf("%s | file_path=%s", actionBulkItemUploaded, key)
		if err := s.actions.Log(ctx, DefaultActionSource, action, user); err != nil {
			logger.Warn("failed to log bulk item upload", zap.Error(err))
		}
	}
	return result
}

// mergeTables appends next to base. Columns missing on either side are
// left empty.
func mergeTables(base, next export.Table) export.Table {
	if len(base.Columns) == 0 {
		return export.Table{Name: base.Name, Columns: next.Columns, Rows: next.Rows}
	}

	columns := append([]string(nil), base.Columns...)
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		seen[col] = struct{}{}
	}
	for _, col := range next.Columns {
		if _, ok := seen[col]; !ok {
			seen[col] = struct{}{}
			columns = append(columns, col)
		}
	}

	merged := export.Table{Name: base.Name, Columns: columns}
	for _, src := range []export.Table{base, next} {
		for _, record := range src.Records() {
			row := make([]any, len(columns))
			for i, col := range columns {
				row[i] = record[col]
			}
			merged.Rows = append(merged.Rows, row)
		}
	}
	return merged
}

func duplicateItemID(t export.Table) (string, bool) {
	seen := make(map[string]struct{}, len(t.Rows))
	for _, record := range t.Records() {
		id := normalizeItemID(record["item_id"])
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			return id, true
		}
		seen[id] = struct{}{}
	}
	return "", false
}

func normalizeItemID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if n, err := parseWhole(raw); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return raw
}

func validPartitionValue(v string) bool {
	return v != "" && !strings.ContainsAny(v, `/\`)
}
