package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/export"
	"github.com/kursadbilgin/stock-console/internal/repository"
	"github.com/kursadbilgin/stock-console/internal/service"
	"github.com/kursadbilgin/stock-console/internal/session"
	"github.com/kursadbilgin/stock-console/internal/storage"
)

type TableService interface {
	Catalog() []domain.TableSpec
	Options(ctx context.Context, table string) (string, []string, error)
	AddFilter(sess *session.Session, table, column string, values []string) error
	ClearFilters(sess *session.Session, table string) error
	Rows(ctx context.Context, sess *session.Session, table string, limit int) ([]domain.Row, error)
	Export(ctx context.Context, sess *session.Session, table, splitBy string) (*service.TableExport, error)
	ApplyEdits(ctx context.Context, user, table string, edit domain.EditType, upload export.Table) (*service.EditReport, error)
}

type BulkItemService interface {
	Upload(ctx context.Context, user string, upload export.Table) (*service.BulkItemReport, error)
}

type TableHandler struct {
	tables   TableService
	items    BulkItemService
	query    repository.QueryRunner
	sessions session.Store
}

func NewTableHandler(
	tables TableService,
	items BulkItemService,
	query repository.QueryRunner,
	sessions session.Store,
) (*TableHandler, error) {
	if tables == nil {
		return nil, fmt.Errorf("table service is required")
	}
	if items == nil {
		return nil, fmt.Errorf("bulk item service is required")
	}
	if query == nil {
		return nil, fmt.Errorf("query runner is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	return &TableHandler{tables: tables, items: items, query: query, sessions: sessions}, nil
}

type tableResponse struct {
	Name             string              `json:"name"`
	Columns          []domain.ColumnSpec `json:"columns"`
	NecessaryColumns []string            `json:"necessaryColumns"`
	PartitionColumn  string              `json:"partitionColumn"`
	FilterColumns    []string            `json:"filterColumns"`
}

type addFilterRequest struct {
	Column string   `json:"column"`
	Values []string `json:"values"`
}

type queryRequest struct {
	SQL string `json:"sql"`
}

func (h *TableHandler) ListTables(c *fiber.Ctx) error {
	specs := h.tables.Catalog()
	out := make([]tableResponse, 0, len(specs))
	for _, spec := range specs {
		out = append(out, tableResponse{
			Name:             spec.Name,
			Columns:          spec.Columns,
			NecessaryColumns: spec.NecessaryColumns,
			PartitionColumn:  spec.PartitionColumn,
			FilterColumns:    spec.FilterColumns,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

func (h *TableHandler) Options(c *fiber.Ctx) error {
	column, values, err := h.tables.Options(c.UserContext(), c.Params("name"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"column": column, "values": values})
}

// AddFilter accepts either {"column", "values"} or a multipart form with a
// "column", an optional single "value" and a sheet "file" whose column of
// the same name supplies more values.
func (h *TableHandler) AddFilter(c *fiber.Ctx) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}

	var req addFilterRequest
	if isMultipart(c) {
		req.Column = strings.TrimSpace(c.FormValue("column"))
		if _, ferr := c.FormFile("file"); ferr == nil {
			upload, err := uploadedTable(c)
			if err != nil {
				return toHTTPError(err)
			}
			req.Values, err = service.FilterValuesFromUpload(upload, req.Column)
			if err != nil {
				return toHTTPError(err)
			}
		}
		if v := strings.TrimSpace(c.FormValue("value")); v != "" {
			req.Values = append(req.Values, v)
		}
	} else if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.tables.AddFilter(sess, c.Params("name"), req.Column, req.Values); err != nil {
		return toHTTPError(err)
	}
	if err := h.sessions.Save(c.UserContext(), sess); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"table": sess.SelectedTable, "filters": sess.FiltersCopy()})
}

func (h *TableHandler) ClearFilters(c *fiber.Ctx) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}
	if err := h.tables.ClearFilters(sess, c.Params("name")); err != nil {
		return toHTTPError(err)
	}
	if err := h.sessions.Save(c.UserContext(), sess); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *TableHandler) Rows(c *fiber.Ctx) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}

	limit := c.QueryInt("limit", service.DefaultRowLimit)
	rows, err := h.tables.Rows(c.UserContext(), sess, c.Params("name"), limit)
	if err != nil {
		return toHTTPError(err)
	}
	if err := h.sessions.Save(c.UserContext(), sess); err != nil {
		return err
	}

	if rows == nil {
		rows = []domain.Row{}
	}
	return c.JSON(fiber.Map{
		"table":   sess.SelectedTable,
		"filters": sess.FiltersCopy(),
		"limit":   limit,
		"data":    rows,
	})
}

func (h *TableHandler) Export(c *fiber.Ctx) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}

	out, err := h.tables.Export(c.UserContext(), sess, c.Params("name"), c.Query("split_by"))
	if err != nil {
		return toHTTPError(err)
	}
	if err := h.sessions.Save(c.UserContext(), sess); err != nil {
		return err
	}
	return sendAttachment(c, out.FileName, storage.ContentTypeZip, out.Data)
}

func (h *TableHandler) ApplyEdits(c *fiber.Ctx) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}

	edit, err := domain.ParseEditTypeFromString(c.Query("type"))
	if err != nil {
		return toHTTPError(err)
	}
	upload, err := uploadedTable(c)
	if err != nil {
		return toHTTPError(err)
	}

	report, err := h.tables.ApplyEdits(c.UserContext(), sess.User, c.Params("name"), edit, upload)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(report)
}

func (h *TableHandler) UploadItems(c *fiber.Ctx) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}

	upload, err := uploadedTable(c)
	if err != nil {
		return toHTTPError(err)
	}

	report, err := h.items.Upload(c.UserContext(), sess.User, upload)
	if err != nil {
		if report != nil && errors.Is(err, domain.ErrConflict) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "groups": report.Groups})
		}
		return toHTTPError(err)
	}
	return c.JSON(report)
}

func (h *TableHandler) RunQuery(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.SQL) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "sql is required")
	}

	result, err := h.query.Run(c.UserContext(), req.SQL)
	if err != nil {
		// Operator SQL mistakes are reported back, not treated as outages.
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if result == nil {
		return c.JSON(fiber.Map{"status": "executed"})
	}
	return c.JSON(result)
}
