package handler

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/export"
	"github.com/kursadbilgin/stock-console/internal/repository"
	"github.com/kursadbilgin/stock-console/internal/service"
	"github.com/kursadbilgin/stock-console/internal/session"
	"github.com/kursadbilgin/stock-console/internal/storage"
	"github.com/kursadbilgin/stock-console/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	testUser     = "operator"
	testPassword = "s3cret"
)

type stubSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	next     int
	saves    int
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{sessions: make(map[string]*session.Session)}
}

func (s *stubSessionStore) Create(ctx context.Context, user string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	sess := &session.Session{ID: fmt.Sprintf("sess-%d", s.next), User: user, CreatedAt: time.Now().UTC()}
	s.sessions[sess.ID] = cloneSession(sess)
	return sess, nil
}

func (s *stubSessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *stubSessionStore) Save(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves++
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (s *stubSessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *stubSessionStore) stored(id string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return cloneSession(sess), true
}

func cloneSession(sess *session.Session) *session.Session {
	cp := *sess
	cp.Filters = sess.FiltersCopy()
	return &cp
}

type stubLimiter struct {
	allowFn func(ctx context.Context, key string) (bool, error)
}

func (l *stubLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.allowFn != nil {
		return l.allowFn(ctx, key)
	}
	return true, nil
}

type stubStockFeedService struct {
	uploadFn      func(ctx context.Context, user string, batch domain.UploadBatch) (*service.UploadReport, error)
	listUploadsFn func(ctx context.Context, date time.Time) ([]storage.ObjectInfo, error)
}

func (s *stubStockFeedService) Upload(ctx context.Context, user string, batch domain.UploadBatch) (*service.UploadReport, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, user, batch)
	}
	return nil, errors.New("not implemented")
}

func (s *stubStockFeedService) ListUploads(ctx context.Context, date time.Time) ([]storage.ObjectInfo, error) {
	if s.listUploadsFn != nil {
		return s.listUploadsFn(ctx, date)
	}
	return nil, nil
}

type stubEbayService struct {
	generateFn     func(ctx context.Context, user string) (*service.EbayArchive, error)
	listArchivesFn func(ctx context.Context) ([]storage.ObjectInfo, error)
	getArchiveFn   func(ctx context.Context, folder string) ([]byte, error)
}

func (s *stubEbayService) Generate(ctx context.Context, user string) (*service.EbayArchive, error) {
	if s.generateFn != nil {
		return s.generateFn(ctx, user)
	}
	return nil, errors.New("not implemented")
}

func (s *stubEbayService) ListArchives(ctx context.Context) ([]storage.ObjectInfo, error) {
	if s.listArchivesFn != nil {
		return s.listArchivesFn(ctx)
	}
	return nil, nil
}

func (s *stubEbayService) GetArchive(ctx context.Context, folder string) ([]byte, error) {
	if s.getArchiveFn != nil {
		return s.getArchiveFn(ctx, folder)
	}
	return nil, domain.ErrNotFound
}

type stubConfigService struct {
	getFn    func(ctx context.Context) (json.RawMessage, error)
	updateFn func(ctx context.Context, user string, raw []byte) (json.RawMessage, error)
}

func (s *stubConfigService) Get(ctx context.Context) (json.RawMessage, error) {
	if s.getFn != nil {
		return s.getFn(ctx)
	}
	return nil, domain.ErrNotFound
}

func (s *stubConfigService) Update(ctx context.Context, user string, raw []byte) (json.RawMessage, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, user, raw)
	}
	return nil, errors.New("not implemented")
}

func (s *stubConfigService) Functions() []service.TransformFunction {
	return []service.TransformFunction{{Name: "set_value_to_10_if_labelled_yes"}}
}

type stubActionLog struct {
	listFn func(ctx context.Context, source string) ([]service.ActionEntry, error)
}

func (s *stubActionLog) List(ctx context.Context, source string) ([]service.ActionEntry, error) {
	if s.listFn != nil {
		return s.listFn(ctx, source)
	}
	return nil, nil
}

type stubTableService struct {
	optionsFn      func(ctx context.Context, table string) (string, []string, error)
	addFilterFn    func(sess *session.Session, table, column string, values []string) error
	rowsFn         func(ctx context.Context, sess *session.Session, table string, limit int) ([]domain.Row, error)
	exportFn       func(ctx context.Context, sess *session.Session, table, splitBy string) (*service.TableExport, error)
	applyEditsFn   func(ctx context.Context, user, table string, edit domain.EditType, upload export.Table) (*service.EditReport, error)
	clearFiltersFn func(sess *session.Session, table string) error
}

func (s *stubTableService) Catalog() []domain.TableSpec {
	catalog := domain.DefaultCatalog()
	out := make([]domain.TableSpec, 0, len(catalog))
	for _, name := range catalog.Names() {
		out = append(out, catalog[name])
	}
	return out
}

func (s *stubTableService) Options(ctx context.Context, table string) (string, []string, error) {
	if s.optionsFn != nil {
		return s.optionsFn(ctx, table)
	}
	return "", nil, domain.ErrNotFound
}

func (s *stubTableService) AddFilter(sess *session.Session, table, column string, values []string) error {
	if s.addFilterFn != nil {
		return s.addFilterFn(sess, table, column, values)
	}
	sess.SelectTable(table)
	sess.AddFilter(column, values...)
	return nil
}

func (s *stubTableService) ClearFilters(sess *session.Session, table string) error {
	if s.clearFiltersFn != nil {
		return s.clearFiltersFn(sess, table)
	}
	sess.SelectTable(table)
	sess.ClearFilters()
	return nil
}

func (s *stubTableService) Rows(ctx context.Context, sess *session.Session, table string, limit int) ([]domain.Row, error) {
	if s.rowsFn != nil {
		return s.rowsFn(ctx, sess, table, limit)
	}
	sess.SelectTable(table)
	return nil, nil
}

func (s *stubTableService) Export(ctx context.Context, sess *session.Session, table, splitBy string) (*service.TableExport, error) {
	if s.exportFn != nil {
		return s.exportFn(ctx, sess, table, splitBy)
	}
	return nil, errors.New("not implemented")
}

func (s *stubTableService) ApplyEdits(
	ctx context.Context,
	user, table string,
	edit domain.EditType,
	upload export.Table,
) (*service.EditReport, error) {
	if s.applyEditsFn != nil {
		return s.applyEditsFn(ctx, user, table, edit, upload)
	}
	return nil, errors.New("not implemented")
}

type stubBulkItemService struct {
	uploadFn func(ctx context.Context, user string, upload export.Table) (*service.BulkItemReport, error)
}

func (s *stubBulkItemService) Upload(ctx context.Context, user string, upload export.Table) (*service.BulkItemReport, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, user, upload)
	}
	return nil, errors.New("not implemented")
}

type stubQueryRunner struct {
	runFn func(ctx context.Context, sql string) (*repository.QueryResult, error)
}

func (r *stubQueryRunner) Run(ctx context.Context, sql string) (*repository.QueryResult, error) {
	if r.runFn != nil {
		return r.runFn(ctx, sql)
	}
	return nil, nil
}

// testDependencies returns a Dependencies value whose every service is a
// stub, so tests only override what they exercise.
func testDependencies() Dependencies {
	return Dependencies{
		Sessions:    newStubSessionStore(),
		Limiter:     &stubLimiter{},
		Credentials: Credentials{Username: testUser, Password: testPassword},
		StockFeed:   &stubStockFeedService{},
		Ebay:        &stubEbayService{},
		Config:      &stubConfigService{},
		Actions:     &stubActionLog{},
		Tables:      &stubTableService{},
		Items:       &stubBulkItemService{},
		Query:       &stubQueryRunner{},
	}
}

func newTestApp(t *testing.T, deps Dependencies) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	app.Use(RequestContext())

	if err := RegisterAPIRoutes(app, deps); err != nil {
		t.Fatalf("RegisterAPIRoutes() error = %v", err)
	}

	return app
}

// loginSession creates a session straight in the store and returns its id.
func loginSession(t *testing.T, store *stubSessionStore) string {
	t.Helper()

	sess, err := store.Create(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return sess.ID
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()
	return performSessionRequest(t, app, method, path, body, "")
}

func performSessionRequest(
	t *testing.T,
	app *fiber.App,
	method string,
	path string,
	body string,
	sessionID string,
) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if sessionID != "" {
		req.Header.Set(HeaderSessionID, sessionID)
	}
	return doRequest(t, app, req)
}

type formFile struct {
	field string
	name  string
	data  []byte
}

func performMultipartRequest(
	t *testing.T,
	app *fiber.App,
	path string,
	fields map[string]string,
	files []formFile,
	sessionID string,
) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("part.Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart close error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	if sessionID != "" {
		req.Header.Set(HeaderSessionID, sessionID)
	}
	return doRequest(t, app, req)
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func decodeBody(t *testing.T, body []byte) map[string]any {
	t.Helper()

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v, body=%s", err, string(body))
	}
	return parsed
}

type stubConnector struct {
	pingErr error
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn(c), nil
}

func (c stubConnector) Driver() driver.Driver {
	return stubDriver(c)
}

type stubDriver struct {
	pingErr error
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return stubConn(d), nil
}

type stubConn struct {
	pingErr error
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c stubConn) Close() error                        { return nil }
func (c stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c stubConn) Ping(context.Context) error          { return c.pingErr }

type stubRedisHook struct {
	pingErr error
}

func (h stubRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h stubRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.EqualFold(cmd.Name(), "ping") && h.pingErr != nil {
			cmd.SetErr(h.pingErr)
			return h.pingErr
		}
		cmd.SetErr(nil)
		return nil
	}
}

func (h stubRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			cmd.SetErr(nil)
		}
		return nil
	}
}

func newStubRedisClient(pingErr error) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:6379",
		DialTimeout:  time.Millisecond,
		ReadTimeout:  time.Millisecond,
		WriteTimeout: time.Millisecond,
	})
	rdb.AddHook(stubRedisHook{pingErr: pingErr})
	return rdb
}
