package handler

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/service"
	"github.com/kursadbilgin/stock-console/internal/storage"
)

const headerCompletionSummary = "X-Completion-Summary"

type StockFeedService interface {
	Upload(ctx context.Context, user string, batch domain.UploadBatch) (*service.UploadReport, error)
	ListUploads(ctx context.Context, date time.Time) ([]storage.ObjectInfo, error)
}

type EbayService interface {
	Generate(ctx context.Context, user string) (*service.EbayArchive, error)
	ListArchives(ctx context.Context) ([]storage.ObjectInfo, error)
	GetArchive(ctx context.Context, folder string) ([]byte, error)
}

type StockFeedHandler struct {
	stockFeed StockFeedService
	ebay      EbayService
	location  *time.Location
	now       func() time.Time
}

func NewStockFeedHandler(stockFeed StockFeedService, ebay EbayService) (*StockFeedHandler, error) {
	if stockFeed == nil {
		return nil, fmt.Errorf("stock feed service is required")
	}
	if ebay == nil {
		return nil, fmt.Errorf("ebay service is required")
	}
	// A missing zone database leaves the UTC fallback in place.
	location, _ := domain.OperatorLocation()
	return &StockFeedHandler{stockFeed: stockFeed, ebay: ebay, location: location, now: time.Now}, nil
}

func (h *StockFeedHandler) today() time.Time {
	return domain.BatchDateAt(h.now(), h.location)
}

type objectResponse struct {
	Key          string            `json:"key"`
	Name         string            `json:"name"`
	Partitions   map[string]string `json:"partitions,omitempty"`
	Size         int64             `json:"size"`
	LastModified time.Time         `json:"lastModified,omitempty"`
}

func (h *StockFeedHandler) Upload(c *fiber.Ctx) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}

	files, err := uploadedFiles(c)
	if err != nil {
		return toHTTPError(err)
	}

	date := h.today()
	if raw := c.FormValue("date"); raw != "" {
		date, err = domain.ParseBatchDate(raw)
		if err != nil {
			return toHTTPError(err)
		}
	}

	report, err := h.stockFeed.Upload(c.UserContext(), sess.User, domain.UploadBatch{Files: files, Date: date})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

func (h *StockFeedHandler) ListUploads(c *fiber.Ctx) error {
	date, err := domain.ParseBatchDate(c.Query("date", h.today().Format(time.DateOnly)))
	if err != nil {
		return toHTTPError(err)
	}

	objects, err := h.stockFeed.ListUploads(c.UserContext(), date)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"date": date.Format(time.DateOnly), "data": toObjectResponses(objects)})
}

// GenerateEbayFiles blocks until the backend reports the eBay table and
// answers with the zip of revise files.
func (h *StockFeedHandler) GenerateEbayFiles(c *fiber.Ctx) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}

	archive, err := h.ebay.Generate(c.UserContext(), sess.User)
	if err != nil {
		return toHTTPError(err)
	}

	c.Set(headerCompletionSummary, archive.Summary)
	c.Set("X-Archive-Key", archive.Key)
	return sendAttachment(c, archive.FileName, storage.ContentTypeZip, archive.Data)
}

func (h *StockFeedHandler) ListEbayArchives(c *fiber.Ctx) error {
	objects, err := h.ebay.ListArchives(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"data": toObjectResponses(objects)})
}

func (h *StockFeedHandler) DownloadEbayArchive(c *fiber.Ctx) error {
	data, err := h.ebay.GetArchive(c.UserContext(), c.Params("folder"))
	if err != nil {
		return toHTTPError(err)
	}
	return sendAttachment(c, service.EbayArchiveName, storage.ContentTypeZip, data)
}

func toObjectResponses(objects []storage.ObjectInfo) []objectResponse {
	out := make([]objectResponse, 0, len(objects))
	for _, obj := range objects {
		parsed := storage.ParsePartitionedKey(obj.Key)
		name := parsed.FileName
		if name == "" {
			name = path.Base(obj.Key)
		}
		out = append(out, objectResponse{
			Key:          obj.Key,
			Name:         name,
			Partitions:   parsed.Partitions,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return out
}
