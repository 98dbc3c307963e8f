package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/export"
)

const maxUploadFileSize = 32 << 20

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm)
}

// uploadedFiles reads every file sent under "files" or "files[]".
func uploadedFiles(c *fiber.Ctx) ([]domain.UploadFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: expected a multipart form", domain.ErrValidation)
	}

	headers := append([]*multipart.FileHeader(nil), form.File["files"]...)
	headers = append(headers, form.File["files[]"]...)

	files := make([]domain.UploadFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readFileHeader(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, domain.UploadFile{Name: fh.Filename, Content: data})
	}
	return files, nil
}

// uploadedTable decodes the sheet sent as form file "file", or the raw
// request body as CSV.
func uploadedTable(c *fiber.Ctx) (export.Table, error) {
	if !isMultipart(c) {
		body := c.Body()
		if len(body) == 0 {
			return export.Table{}, fmt.Errorf("%w: upload a CSV file first", domain.ErrValidation)
		}
		table, err := export.DecodeCSV("upload.csv", body)
		if err != nil {
			return export.Table{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		return table, nil
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return export.Table{}, fmt.Errorf("%w: upload a file first", domain.ErrValidation)
	}
	data, err := readFileHeader(fh)
	if err != nil {
		return export.Table{}, err
	}
	table, err := export.DecodeUpload(fh.Filename, data)
	if err != nil {
		return export.Table{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return table, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxUploadFileSize {
		return nil, fmt.Errorf("%w: %s is larger than %d MiB", domain.ErrValidation, fh.Filename, maxUploadFileSize>>20)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
	}
	return data, nil
}

func sendAttachment(c *fiber.Ctx, filename, contentType string, data []byte) error {
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Status(fiber.StatusOK).Send(data)
}
