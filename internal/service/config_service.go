package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/observability"
	"github.com/kursadbilgin/stock-console/internal/storage"
	"go.uber.org/zap"
)

const (
	StockFeedConfigKey = "config/process_stock_feed_config.json"

	actionConfigUpdated = "STOCK_FEED_CONFIG_UPDATED"
)

// TransformFunction documents a value transform the stock feed config can
// reference by name.
type TransformFunction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var transformFunctions = []TransformFunction{
	{
		Name:        "set_value_to_10_if_labelled_yes",
		Description: "Returns 10 if 'yes' is found in the input string, otherwise returns 0.",
	},
	{
		Name:        "get_value_if_less_than_10_else_0",
		Description: "Returns the input value if it's less than or equal to 10, otherwise returns 0.",
	},
	{
		Name:        "set_value_to_10_if_labelled_in_stock",
		Description: "Returns 10 if the input is 'in stock', otherwise returns 0.",
	},
	{
		Name:        "set_value_to_10_if_product_in_list",
		Description: "Always returns 10 regardless of input.",
	},
}

// ConfigService reads and replaces the stock feed processing config.
type ConfigService struct {
	store   storage.ObjectStore
	actions *ActionLogger
	bucket  string
	logger  *zap.Logger
}

func NewConfigService(store storage.ObjectStore, actions *ActionLogger, bucket string, logger *zap.Logger) (*ConfigService, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("project bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ConfigService{store: store, actions: actions, bucket: bucket, logger: logger}, nil
}

func (s *ConfigService) Get(ctx context.Context) (json.RawMessage, error) {
	data, err := s.store.Get(ctx, s.bucket, StockFeedConfigKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, StockFeedConfigKey)
		}
		return nil, fmt.Errorf("failed to read stock feed config: %w", err)
	}
	return json.RawMessage(data), nil
}

// Update replaces the config with raw after checking it is valid JSON.
// Invalid input writes nothing.
func (s *ConfigService) Update(ctx context.Context, user string, raw []byte) (json.RawMessage, error) {
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid JSON format", domain.ErrValidation)
	}

	var formatted bytes.Buffer
	if err := json.Indent(&formatted, bytes.TrimSpace(raw), "", "    "); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON format", domain.ErrValidation)
	}

	if err := s.store.Put(ctx, s.bucket, StockFeedConfigKey, formatted.Bytes(), storage.ContentTypeJSON); err != nil {
		return nil, fmt.Errorf("failed to write stock feed config: %w", err)
	}

	logger := observability.WithContextLogger(s.logger, ctx)
	logger.Info("stock feed config updated", zap.String("user", user), zap.Int("bytes", formatted.Len()))

	if s.actions != nil {
		if err := s.actions.Log(ctx, DefaultActionSource, actionConfigUpdated, user); err != nil {
			logger.Warn("failed to log config update", zap.Error(err))
		}
	}

	return json.RawMessage(formatted.Bytes()), nil
}

// Functions lists the transforms the config may reference.
func (s *ConfigService) Functions() []TransformFunction {
	out := make([]TransformFunction, len(transformFunctions))
	copy(out, transformFunctions)
	return out
}
