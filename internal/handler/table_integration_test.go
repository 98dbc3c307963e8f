package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/export"
	"github.com/kursadbilgin/stock-console/internal/repository"
	"github.com/kursadbilgin/stock-console/internal/service"
	"github.com/kursadbilgin/stock-console/internal/session"
)

func TestTableIntegration_ListTables(t *testing.T) {
	t.Parallel()

	deps := testDependencies()
	app := newTestApp(t, deps)
	sessionID := loginSession(t, deps.Sessions.(*stubSessionStore))

	resp, body := performSessionRequest(t, app, http.MethodGet, "/v1/tables", "", sessionID)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	data := decodeBody(t, body)["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("tables = %d, want 2", len(data))
	}
	first := data[0].(map[string]any)
	if first["name"] != domain.TableStore || first["partitionColumn"] != "ebay_store" {
		t.Fatalf("first table = %v, want store partitioned by ebay_store", first)
	}
}

func TestTableIntegration_FiltersPersistInSession(t *testing.T) {
	t.Parallel()

	deps := testDependencies()
	store := deps.Sessions.(*stubSessionStore)
	app := newTestApp(t, deps)
	sessionID := loginSession(t, store)

	resp, body := performSessionRequest(t, app, http.MethodPost, "/v1/tables/store/filters",
		`{"column":"supplier","values":["BRAKES","LIGHTS"]}`, sessionID)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	sess, ok := store.stored(sessionID)
	if !ok {
		t.Fatal("session missing after filter")
	}
	if sess.SelectedTable != domain.TableStore {
		t.Fatalf("selected table = %q, want store", sess.SelectedTable)
	}
	if got := sess.Filters["supplier"]; len(got) != 2 || got[0] != "BRAKES" {
		t.Fatalf("filters = %v, want [BRAKES LIGHTS]", got)
	}

	resp, _ = performSessionRequest(t, app, http.MethodDelete, "/v1/tables/store/filters", "", sessionID)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("clear status = %d, want 204", resp.StatusCode)
	}
	sess, _ = store.stored(sessionID)
	if len(sess.Filters) != 0 {
		t.Fatalf("filters after clear = %v, want none", sess.Filters)
	}
}

func TestTableIntegration_AddFilterFromUpload(t *testing.T) {
	t.Parallel()

	var gotValues []string
	deps := testDependencies()
	deps.Tables = &stubTableService{
		addFilterFn: func(sess *session.Session, table, column string, values []string) error {
			gotValues = values
			sess.SelectTable(table)
			sess.AddFilter(column, values...)
			return nil
		},
	}
	app := newTestApp(t, deps)
	sessionID := loginSession(t, deps.Sessions.(*stubSessionStore))

	resp, body := performMultipartRequest(t, app, "/v1/tables/store/filters",
		map[string]string{"column": "custom_label", "value": "EXTRA"},
		[]formFile{{field: "file", name: "labels.csv", data: []byte("custom_label\nA-1\nB-2\nA-1\n")}},
		sessionID,
	)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	want := []string{"A-1", "B-2", "EXTRA"}
	if strings.Join(gotValues, ",") != strings.Join(want, ",") {
		t.Fatalf("values = %v, want %v", gotValues, want)
	}
}

func TestTableIntegration_Rows(t *testing.T) {
	t.Parallel()

	var gotLimit int
	deps := testDependencies()
	deps.Tables = &stubTableService{
		rowsFn: func(ctx context.Context, sess *session.Session, table string, limit int) ([]domain.Row, error) {
			if limit < 0 {
				return nil, fmt.Errorf("%w: limit must not be negative", domain.ErrValidation)
			}
			gotLimit = limit
			sess.SelectTable(table)
			return []domain.Row{{"part_number": "A1", "quantity": 3}}, nil
		},
	}
	store := deps.Sessions.(*stubSessionStore)
	app := newTestApp(t, deps)
	sessionID := loginSession(t, store)

	resp, body := performSessionRequest(t, app, http.MethodGet, "/v1/tables/supplier_stock/rows", "", sessionID)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if gotLimit != service.DefaultRowLimit {
		t.Fatalf("limit = %d, want default %d", gotLimit, service.DefaultRowLimit)
	}
	if sess, _ := store.stored(sessionID); sess.SelectedTable != domain.TableSupplierStock {
		t.Fatalf("selected table = %q, want supplier_stock", sess.SelectedTable)
	}

	resp, _ = performSessionRequest(t, app, http.MethodGet, "/v1/tables/supplier_stock/rows?limit=-1", "", sessionID)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("negative limit status = %d, want 400", resp.StatusCode)
	}
}

func TestTableIntegration_Export(t *testing.T) {
	t.Parallel()

	var gotSplit string
	deps := testDependencies()
	deps.Tables = &stubTableService{
		exportFn: func(ctx context.Context, sess *session.Session, table, splitBy string) (*service.TableExport, error) {
			gotSplit = splitBy
			if table == domain.TableStore {
				return nil, fmt.Errorf("%w: no results found", domain.ErrNotFound)
			}
			return &service.TableExport{FileName: "excel_files.zip", Data: []byte("PK-xlsx")}, nil
		},
	}
	app := newTestApp(t, deps)
	sessionID := loginSession(t, deps.Sessions.(*stubSessionStore))

	resp, body := performSessionRequest(t, app, http.MethodGet, "/v1/tables/supplier_stock/export?split_by=supplier", "", sessionID)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if gotSplit != "supplier" {
		t.Fatalf("split_by = %q, want supplier", gotSplit)
	}
	if got := resp.Header.Get(fiber.HeaderContentDisposition); !strings.Contains(got, "excel_files.zip") {
		t.Fatalf("content disposition = %q, want excel_files.zip", got)
	}

	resp, _ = performSessionRequest(t, app, http.MethodGet, "/v1/tables/store/export", "", sessionID)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("empty export status = %d, want 404", resp.StatusCode)
	}
}

func TestTableIntegration_ApplyEdits(t *testing.T) {
	t.Parallel()

	var gotEdit domain.EditType
	var gotUpload export.Table
	deps := testDependencies()
	deps.Tables = &stubTableService{
		applyEditsFn: func(ctx context.Context, user, table string, edit domain.EditType, upload export.Table) (*service.EditReport, error) {
			gotEdit = edit
			gotUpload = upload
			return &service.EditReport{Table: table, Type: edit, Edits: len(upload.Rows)}, nil
		},
	}
	app := newTestApp(t, deps)
	sessionID := loginSession(t, deps.Sessions.(*stubSessionStore))

	resp, body := performSessionRequest(t, app, http.MethodPost, "/v1/tables/supplier_stock/edits?type=update",
		"part_number,quantity,part_number_old\nA1,5,A1\nB2,0,B2\n", sessionID)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if gotEdit != domain.EditUpdate {
		t.Fatalf("edit = %q, want UPDATE", gotEdit)
	}
	if len(gotUpload.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(gotUpload.Rows))
	}
	if n := decodeBody(t, body)["numberOfEdits"]; n != float64(2) {
		t.Fatalf("numberOfEdits = %v, want 2", n)
	}

	resp, _ = performSessionRequest(t, app, http.MethodPost, "/v1/tables/supplier_stock/edits?type=upsert",
		"part_number\nA1\n", sessionID)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("invalid type status = %d, want 400", resp.StatusCode)
	}

	resp, _ = performSessionRequest(t, app, http.MethodPost, "/v1/tables/supplier_stock/edits?type=append", "", sessionID)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("empty upload status = %d, want 400", resp.StatusCode)
	}
}

func TestTableIntegration_UploadItems(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		report     *service.BulkItemReport
		err        error
		wantStatus int
		wantGroups bool
	}{
		{
			name: "groups written",
			report: &service.BulkItemReport{Groups: []service.ItemGroupResult{
				{Supplier: "BRAKES", EbayStore: "main", Added: 2, Total: 5},
			}},
			wantStatus: fiber.StatusOK,
			wantGroups: true,
		},
		{
			name: "every group conflicts",
			report: &service.BulkItemReport{Groups: []service.ItemGroupResult{
				{Supplier: "BRAKES", EbayStore: "main", Error: "item_id already exists"},
			}},
			err:        fmt.Errorf("%w: item_id 1 already exists", domain.ErrConflict),
			wantStatus: fiber.StatusConflict,
			wantGroups: true,
		},
		{
			name:       "missing columns",
			err:        fmt.Errorf("%w: missing columns ebay_store", domain.ErrValidation),
			wantStatus: fiber.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			deps := testDependencies()
			deps.Items = &stubBulkItemService{
				uploadFn: func(ctx context.Context, user string, upload export.Table) (*service.BulkItemReport, error) {
					return tt.report, tt.err
				},
			}
			app := newTestApp(t, deps)
			sessionID := loginSession(t, deps.Sessions.(*stubSessionStore))

			resp, body := performMultipartRequest(t, app, "/v1/store/items", nil,
				[]formFile{{field: "file", name: "items.csv", data: []byte("item_id,supplier,ebay_store\n1,BRAKES,main\n")}},
				sessionID,
			)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tt.wantStatus, string(body))
			}
			_, hasGroups := decodeBody(t, body)["groups"]
			if hasGroups != tt.wantGroups {
				t.Fatalf("groups present = %v, want %v, body=%s", hasGroups, tt.wantGroups, string(body))
			}
		})
	}
}

func TestTableIntegration_RunQuery(t *testing.T) {
	t.Parallel()

	deps := testDependencies()
	deps.Query = &stubQueryRunner{
		runFn: func(ctx context.Context, sql string) (*repository.QueryResult, error) {
			switch {
			case strings.HasPrefix(sql, "SELECT"):
				return &repository.QueryResult{
					Columns: []string{"part_number"},
					Rows:    [][]any{{"A1"}},
				}, nil
			case strings.HasPrefix(sql, "UPDATE"):
				return nil, nil
			default:
				return nil, errors.New(`syntax error at or near "SELEC"`)
			}
		},
	}
	app := newTestApp(t, deps)
	sessionID := loginSession(t, deps.Sessions.(*stubSessionStore))

	resp, body := performSessionRequest(t, app, http.MethodPost, "/v1/query", `{"sql":"SELECT part_number FROM supplier_stock"}`, sessionID)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("select status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if cols := decodeBody(t, body)["columns"].([]any); len(cols) != 1 {
		t.Fatalf("columns = %v, want 1", cols)
	}

	resp, body = performSessionRequest(t, app, http.MethodPost, "/v1/query", `{"sql":"UPDATE store SET title = 'x'"}`, sessionID)
	if resp.StatusCode != fiber.StatusOK || decodeBody(t, body)["status"] != "executed" {
		t.Fatalf("update status = %d, body=%s, want executed", resp.StatusCode, string(body))
	}

	resp, body = performSessionRequest(t, app, http.MethodPost, "/v1/query", `{"sql":"SELEC 1"}`, sessionID)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("bad sql status = %d, want 400", resp.StatusCode)
	}
	if !strings.Contains(string(body), "syntax error") {
		t.Fatalf("body = %s, want database error surfaced", string(body))
	}

	resp, _ = performSessionRequest(t, app, http.MethodPost, "/v1/query", `{"sql":"   "}`, sessionID)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("blank sql status = %d, want 400", resp.StatusCode)
	}
}
