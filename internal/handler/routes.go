package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/stock-console/internal/ratelimit"
	"github.com/kursadbilgin/stock-console/internal/repository"
	"github.com/kursadbilgin/stock-console/internal/session"
)

// Dependencies are the services behind the /v1 API.
type Dependencies struct {
	Sessions    session.Store
	Limiter     ratelimit.RateLimiter
	Credentials Credentials
	StockFeed   StockFeedService
	Ebay        EbayService
	Config      ConfigService
	Actions     ActionLog
	Tables      TableService
	Items       BulkItemService
	Query       repository.QueryRunner
}

func RegisterAPIRoutes(router fiber.Router, deps Dependencies) error {
	auth, err := NewAuthHandler(deps.Sessions, deps.Limiter, deps.Credentials)
	if err != nil {
		return err
	}
	stock, err := NewStockFeedHandler(deps.StockFeed, deps.Ebay)
	if err != nil {
		return err
	}
	cfg, err := NewConfigHandler(deps.Config, deps.Actions)
	if err != nil {
		return err
	}
	tables, err := NewTableHandler(deps.Tables, deps.Items, deps.Query, deps.Sessions)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/auth/login", auth.Login)

	private := v1.Group("", RequireSession(deps.Sessions))
	private.Post("/auth/logout", auth.Logout)
	private.Get("/auth/me", auth.Me)

	private.Post("/stock-feed/uploads", stock.Upload)
	private.Get("/stock-feed/uploads", stock.ListUploads)
	private.Post("/ebay/upload-files", stock.GenerateEbayFiles)
	private.Get("/ebay/zip-folders", stock.ListEbayArchives)
	private.Get("/ebay/zip-folders/:folder", stock.DownloadEbayArchive)

	private.Get("/config", cfg.GetConfig)
	private.Put("/config", cfg.UpdateConfig)
	private.Get("/config/functions", cfg.ListFunctions)
	private.Get("/logs", cfg.ListLogs)

	private.Get("/tables", tables.ListTables)
	private.Get("/tables/:name/options", tables.Options)
	private.Post("/tables/:name/filters", tables.AddFilter)
	private.Delete("/tables/:name/filters", tables.ClearFilters)
	private.Get("/tables/:name/rows", tables.Rows)
	private.Get("/tables/:name/export", tables.Export)
	private.Post("/tables/:name/edits", tables.ApplyEdits)
	private.Post("/store/items", tables.UploadItems)
	private.Post("/query", tables.RunQuery)

	return nil
}
