package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/stock-console/internal/repository"
	"gorm.io/gorm"
)

func createStoreTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_store",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.StoreItemModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_store_item_id ON store (item_id)`,
				`CREATE INDEX IF NOT EXISTS idx_store_ebay_store_supplier ON store (ebay_store, supplier)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.StoreItemModel{})
		},
	}
}
