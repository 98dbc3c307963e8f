package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kursadbilgin/stock-console/internal/completion"
	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/export"
	"github.com/kursadbilgin/stock-console/internal/observability"
	"github.com/kursadbilgin/stock-console/internal/provider"
	"github.com/kursadbilgin/stock-console/internal/storage"
	"go.uber.org/zap"
)

const (
	GenerateEbayTableEvent = "RtgAutomotiveGenerateEbayTable"
	EbayTableMarker        = "Ebay table generated"
	EbayArchiveName        = "ebay_upload_files.zip"

	actionEbayFilesGenerated = "EBAY_UPLOAD_FILES_GENERATED"

	ebayTablePrefix    = "ebay/table/"
	ebayZipPrefix      = "ebay/zip_folders/"
	ebayFolderLayout   = "2006-01-02T15:04:05"
	ebaySummarySubject = "Ebay upload files"
	ebayStoreColumn    = "Store"
)

var ebayUploadColumns = []string{"Action", "ItemID", "SiteID", "Currency", "Quantity", ebayStoreColumn}

// EbayArchive is a generated set of per-store eBay revise files.
type EbayArchive struct {
	Key      string        `json:"key"`
	FileName string        `json:"fileName"`
	Stores   []string      `json:"stores"`
	Rows     int           `json:"rows"`
	Summary  string        `json:"summary"`
	Elapsed  time.Duration `json:"elapsedNs"`
	Data     []byte        `json:"-"`
}

type EbayExportService struct {
	store       storage.ObjectStore
	runner      CompletionRunner
	trigger     provider.JobTrigger
	triggerKind string
	actions     *ActionLogger
	bucket      string
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewEbayExportService(
	store storage.ObjectStore,
	runner CompletionRunner,
	trigger provider.JobTrigger,
	triggerKind string,
	actions *ActionLogger,
	bucket string,
	logger *zap.Logger,
) (*EbayExportService, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("completion runner is required")
	}
	if trigger == nil {
		return nil, fmt.Errorf("job trigger is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("project bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EbayExportService{
		store:       store,
		runner:      runner,
		trigger:     trigger,
		triggerKind: triggerKind,
		actions:     actions,
		bucket:      bucket,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (s *EbayExportService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Generate asks the backend to rebuild the eBay table, waits for it to say
// so, then turns the newest table into one revise CSV per store, zipped and
// stored under ebay/zip_folders/<timestamp>/.
func (s *EbayExportService) Generate(ctx context.Context, user string) (*EbayArchive, error) {
	logger := observability.WithContextLogger(s.logger, ctx)

	fire := func(ctx context.Context) error {
		req := provider.NewJobRequest(GenerateEbayTableEvent, user, s.now())
		resp, err := s.trigger.Trigger(ctx, req)
		if err != nil {
			s.metrics.IncJobTrigger(s.triggerKind, "failed")
			logger.Error("ebay table trigger failed",
				zap.String("triggerId", req.TriggerID),
				zap.Bool("transient", provider.IsTransient(err)),
				zap.Error(err),
			)
			return err
		}
		s.metrics.IncJobTrigger(s.triggerKind, "sent")
		logger.Info("ebay table generation triggered",
			zap.String("triggerId", req.TriggerID),
			zap.String("messageId", resp.MessageID),
		)
		return nil
	}

	result, err := s.runner.Run(ctx, domain.MarkerSignal(EbayTableMarker), fire)
	if err != nil {
		return nil, err
	}

	table, err := s.LoadLatestTable(ctx)
	if err != nil {
		return nil, err
	}

	upload, err := BuildEbayUpload(table)
	if err != nil {
		return nil, err
	}

	perStore, stores, err := splitByStore(upload)
	if err != nil {
		return nil, err
	}

	data, err := export.ZipCSV(perStore)
	if err != nil {
		return nil, err
	}

	key := ebayZipPrefix + s.now().Format(ebayFolderLayout) + "/" + EbayArchiveName
	if err := s.store.Put(ctx, s.bucket, key, data, storage.ContentTypeZip); err != nil {
		return nil, fmt.Errorf("failed to store ebay upload files: %w", err)
	}

	if s.actions != nil {
		if err := s.actions.Log(ctx, DefaultActionSource, actionEbayFilesGenerated, user); err != nil {
			logger.Warn("failed to log ebay upload file generation", zap.Error(err))
		}
	}

	logger.Info("ebay upload files generated",
		zap.String("key", key),
		zap.Int("stores", len(stores)),
		zap.Int("rows", len(upload.Rows)),
		zap.Duration("elapsed", result.Elapsed),
	)

	return &EbayArchive{
		Key:      key,
		FileName: EbayArchiveName,
		Stores:   stores,
		Rows:     len(upload.Rows),
		Summary:  completion.SignalSummary(ebaySummarySubject, result.Elapsed),
		Elapsed:  result.Elapsed,
		Data:     data,
	}, nil
}

// LoadLatestTable concatenates the CSV files of the newest timestamped
// folder under ebay/table/. With no such file it returns
// domain.ErrMissingArtifact.
func (s *EbayExportService) LoadLatestTable(ctx context.Context) (export.Table, error) {
	objects, err := s.store.List(ctx, s.bucket, ebayTablePrefix)
	if err != nil {
		return export.Table{}, fmt.Errorf("failed to list ebay tables: %w", err)
	}

	byFolder := make(map[string][]string)
	for _, obj := range objects {
		if strings.ToLower(path.Ext(obj.Key)) != ".csv" {
			continue
		}
		folder := path.Base(path.Dir(obj.Key))
		if len(folder) != len(ebayFolderLayout) {
			continue
		}
		byFolder[folder] = append(byFolder[folder], obj.Key)
	}
	if len(byFolder) == 0 {
		return export.Table{}, fmt.Errorf("%w: no CSV files found under %s", domain.ErrMissingArtifact, ebayTablePrefix)
	}

	latest := ""
	for folder := range byFolder {
		if folder > latest {
			latest = folder
		}
	}
	keys := byFolder[latest]
	sort.Strings(keys)

	var combined export.Table
	for _, key := range keys {
		data, err := s.store.Get(ctx, s.bucket, key)
		if err != nil {
			return export.Table{}, fmt.Errorf("failed to read ebay table %s: %w", key, err)
		}
		part, err := export.DecodeCSV(key, data)
		if err != nil {
			return export.Table{}, fmt.Errorf("failed to parse ebay table %s: %w", key, err)
		}
		combined = appendTable(combined, part)
	}
	combined.Name = latest

	return combined, nil
}

// ListArchives returns the stored upload archives, newest first.
func (s *EbayExportService) ListArchives(ctx context.Context) ([]storage.ObjectInfo, error) {
	objects, err := s.store.List(ctx, s.bucket, ebayZipPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list ebay upload archives: %w", err)
	}

	archives := make([]storage.ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if path.Base(obj.Key) == EbayArchiveName {
			archives = append(archives, obj)
		}
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].Key > archives[j].Key })
	return archives, nil
}

// GetArchive downloads the archive stored in the given timestamp folder.
func (s *EbayExportService) GetArchive(ctx context.Context, folder string) ([]byte, error) {
	folder = strings.Trim(folder, "/")
	if len(folder) != len(ebayFolderLayout) || strings.Contains(folder, "/") {
		return nil, fmt.Errorf("%w: archive folder must look like %s", domain.ErrValidation, ebayFolderLayout)
	}

	data, err := s.store.Get(ctx, s.bucket, ebayZipPrefix+folder+"/"+EbayArchiveName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read ebay upload archive: %w", err)
	}
	return data, nil
}

// BuildEbayUpload maps the generated table to eBay revise rows. Rows with a
// zero quantity_delta or no item_id are skipped.
func BuildEbayUpload(table export.Table) (export.Table, error) {
	required := []string{"item_id", "ebay_store", "quantity", "quantity_delta"}
	if missing := table.MissingColumns(required); len(missing) > 0 {
		return export.Table{}, fmt.Errorf("%w: ebay table is missing columns %s",
			domain.ErrValidation, strings.Join(missing, ", "))
	}

	out := export.Table{Name: "ebay_upload", Columns: ebayUploadColumns}
	for i, record := range table.Records() {
		if delta, ok := parseNumber(record["quantity_delta"]); ok && delta == 0 {
			continue
		}
		if strings.TrimSpace(record["item_id"]) == "" {
			continue
		}

		itemID, err := parseWhole(record["item_id"])
		if err != nil {
			return export.Table{}, fmt.Errorf("%w: row %d: item_id %v", domain.ErrValidation, i+1, err)
		}
		quantity, err := parseWhole(record["quantity"])
		if err != nil {
			return export.Table{}, fmt.Errorf("%w: row %d: quantity %v", domain.ErrValidation, i+1, err)
		}

		out.Rows = append(out.Rows, []any{
			"Revise",
			itemID,
			"UK",
			"GBP",
			quantity,
			record["ebay_store"],
		})
	}

	return out, nil
}

// splitByStore returns one table per store, in order of first appearance,
// named after the store and without the Store column.
func splitByStore(upload export.Table) ([]export.Table, []string, error) {
	storeIdx := len(ebayUploadColumns) - 1
	columns := ebayUploadColumns[:storeIdx]

	var stores []string
	groups := make(map[string][][]any)
	for _, row := range upload.Rows {
		store := export.CellString(row[storeIdx])
		if _, ok := groups[store]; !ok {
			stores = append(stores, store)
		}
		groups[store] = append(groups[store], row[:storeIdx])
	}

	tables := make([]export.Table, 0, len(stores))
	for _, store := range stores {
		if strings.TrimSpace(store) == "" || strings.ContainsAny(store, `/\`) {
			return nil, nil, fmt.Errorf("%w: invalid ebay store name %q", domain.ErrValidation, store)
		}
		tables = append(tables, export.Table{Name: store, Columns: columns, Rows: groups[store]})
	}
	return tables, stores, nil
}

// appendTable adds the rows of next to base, aligning columns by name.
func appendTable(base, next export.Table) export.Table {
	if len(base.Columns) == 0 {
		return next
	}
	for _, record := range next.Records() {
		row := make([]any, len(base.Columns))
		for i, col := range base.Columns {
			row[i] = record[col]
		}
		base.Rows = append(base.Rows, row)
	}
	return base
}

func parseNumber(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseWhole accepts integers written either plainly or as "123.0".
func parseWhole(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	return int64(f), nil
}
