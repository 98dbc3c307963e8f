package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/kursadbilgin/stock-console/internal/completion"
	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/observability"
	"github.com/kursadbilgin/stock-console/internal/storage"
	"go.uber.org/zap"
)

const actionStockFeedUploaded = "STOCK_FEED_UPLOADED"

// CompletionRunner runs one drain, trigger and poll cycle.
type CompletionRunner interface {
	Run(ctx context.Context, signal domain.CompletionSignal, trigger completion.Trigger) (*completion.Result, error)
}

// FileResult is the per-file outcome of an upload batch.
type FileResult struct {
	FileName string `json:"fileName"`
	Key      string `json:"key,omitempty"`
	Uploaded bool   `json:"uploaded"`
	Error    string `json:"error,omitempty"`
}

// UploadReport is what the operator sees after submitting a batch.
type UploadReport struct {
	Date     string            `json:"date"`
	Files    []FileResult      `json:"files"`
	Messages []completion.Line `json:"messages"`
	Elapsed  time.Duration     `json:"elapsedNs"`
}

type StockFeedService struct {
	store   storage.ObjectStore
	runner  CompletionRunner
	actions *ActionLogger
	bucket  string
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewStockFeedService(
	store storage.ObjectStore,
	runner CompletionRunner,
	actions *ActionLogger,
	bucket string,
	logger *zap.Logger,
) (*StockFeedService, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("completion runner is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("stock feed bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StockFeedService{
		store:   store,
		runner:  runner,
		actions: actions,
		bucket:  bucket,
		logger:  logger,
	}, nil
}

func (s *StockFeedService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Upload stores every file of batch under its date partition and waits for
// one notification per submitted file. A failed file is reported inline and
// does not stop the others. When no file could be stored the batch fails
// without polling.
func (s *StockFeedService) Upload(ctx context.Context, user string, batch domain.UploadBatch) (*UploadReport, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	logger := observability.WithContextLogger(s.logger, ctx)
	outcomes := make([]domain.UploadOutcome, 0, len(batch.Files))

	upload := func(ctx context.Context) error {
		for _, file := range batch.Files {
			key := storage.PartitionKey(storage.StockFeedRoot, batch.Date, file.Name)
			err := s.store.Put(ctx, s.bucket, key, file.Content, contentTypeFor(file.Name))
			if err != nil {
				s.metrics.IncUpload("failed")
				logger.Warn("stock feed file upload failed",
					zap.String("file", file.Name),
					zap.String("key", key),
					zap.Error(err),
				)
			} else {
				s.metrics.IncUpload("uploaded")
				logger.Info("stock feed file uploaded",
					zap.String("file", file.Name),
					zap.String("key", key),
				)
			}
			outcomes = append(outcomes, domain.UploadOutcome{FileName: file.Name, Key: key, Err: err})
		}

		for _, o := range outcomes {
			if o.Succeeded() {
				return nil
			}
		}
		return fmt.Errorf("no file of the batch could be uploaded: %w", outcomes[0].Err)
	}

	result, err := s.runner.Run(ctx, domain.CountSignal(len(batch.Files)), upload)
	if err != nil {
		return nil, err
	}

	report := &UploadReport{
		Date:     batch.Date.Format(time.DateOnly),
		Files:    make([]FileResult, 0, len(outcomes)),
		Messages: result.Lines,
		Elapsed:  result.Elapsed,
	}
	for _, o := range outcomes {
		fr := FileResult{FileName: o.FileName, Key: o.Key, Uploaded: o.Succeeded()}
		if o.Err != nil {
			fr.Error = o.Err.Error()
		}
		report.Files = append(report.Files, fr)
	}

	if s.actions != nil {
		action := fmt.Sprintf("%s | date=%s | files=%d", actionStockFeedUploaded, report.Date, len(batch.Files))
		if err := s.actions.Log(ctx, DefaultActionSource, action, user); err != nil {
			logger.Warn("failed to log stock feed upload", zap.Error(err))
		}
	}

	return report, nil
}

// ListUploads returns the objects stored under the partition of date.
func (s *StockFeedService) ListUploads(ctx context.Context, date time.Time) ([]storage.ObjectInfo, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", domain.ErrValidation)
	}
	objects, err := s.store.List(ctx, s.bucket, storage.DatePrefix(storage.StockFeedRoot, date))
	if err != nil {
		return nil, fmt.Errorf("failed to list stock feed uploads: %w", err)
	}
	return objects, nil
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return storage.ContentTypeXLSX
	case ".csv":
		return storage.ContentTypeCSV
	case ".json":
		return storage.ContentTypeJSON
	case ".zip":
		return storage.ContentTypeZip
	default:
		return storage.ContentTypeBinary
	}
}
