package repository

import (
	"fmt"

	"github.com/kursadbilgin/stock-console/internal/domain"
)

// SupplierStockModel is the persistence model for supplier_stock.
type SupplierStockModel struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	PartNumber  string `gorm:"type:varchar(255);not null"`
	Quantity    *int64
	UpdatedDate *string `gorm:"type:varchar(32)"`
	Supplier    string  `gorm:"type:varchar(255);not null"`
}

func (SupplierStockModel) TableName() string {
	return "supplier_stock"
}

// StoreItemModel is the persistence model for store, one row per eBay listing.
type StoreItemModel struct {
	ID                  uint  `gorm:"primaryKey;autoIncrement"`
	ItemID              int64 `gorm:"not null"`
	CustomLabel         *string
	Title               *string
	CurrentPrice        *float64
	Prefix              *string
	UkRtg               *string
	FpsWdsDir           *string
	PaymentProfileName  *string
	ShippingProfileName *string
	ReturnProfileName   *string
	Supplier            *string `gorm:"type:varchar(255)"`
	EbayStore           *string `gorm:"type:varchar(255)"`
}

func (StoreItemModel) TableName() string {
	return "store"
}

// AllModels lists every model the schema migrations manage.
func AllModels() []any {
	return []any{&SupplierStockModel{}, &StoreItemModel{}}
}

func modelFor(table string) (any, error) {
	switch table {
	case domain.TableSupplierStock:
		return &SupplierStockModel{}, nil
	case domain.TableStore:
		return &StoreItemModel{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown table %q", domain.ErrValidation, table)
	}
}
