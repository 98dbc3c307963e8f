package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/stock-console/internal/repository"
	"gorm.io/gorm"
)

func createSupplierStockTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_supplier_stock",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.SupplierStockModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_supplier_stock_supplier ON supplier_stock (supplier)`,
				`CREATE INDEX IF NOT EXISTS idx_supplier_stock_part_number ON supplier_stock (part_number)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.SupplierStockModel{})
		},
	}
}
