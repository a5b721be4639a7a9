// Package dbtest opens throwaway SQLite databases with the application schema
// and seeds common fixtures for store tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
	"github.com/angelmondragon/scentmarket-backend/pkg/migrate"
)

// Open returns a fresh in-memory database. The pool is capped at a single
// connection so concurrent transactions queue behind each other the way
// row locks serialize them on Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:dbtest_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.ApplySQLiteSchema(context.Background(), conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return conn
}

// MustCreateUser inserts an active customer.
func MustCreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{
		ID:       uuid.New(),
		Username: username,
		Email:    fmt.Sprintf("%s_%s@example.com", username, uuid.NewString()[:8]),
		Role:     enums.UserRoleCustomer,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// MustCreateProduct inserts an active product with one image.
func MustCreateProduct(t testing.TB, db *gorm.DB, name string) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:       uuid.New(),
		Name:     name,
		Brand:    "Maison Test",
		IsActive: true,
	}
	if err := db.Omit("Variants", "Images").Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	image := &models.ProductImage{
		ID:           uuid.New(),
		ProductID:    product.ID,
		URL:          fmt.Sprintf("https://cdn.example.com/%s.jpg", product.ID),
		DisplayOrder: 0,
	}
	if err := db.Create(image).Error; err != nil {
		t.Fatalf("create product image: %v", err)
	}
	return product
}

// MustCreateVariant inserts a variant with the given price (decimal string) and stock.
func MustCreateVariant(t testing.TB, db *gorm.DB, productID uuid.UUID, sizeML int, price string, stock int) *models.ProductVariant {
	t.Helper()
	variant := &models.ProductVariant{
		ID:        uuid.New(),
		ProductID: productID,
		SizeML:    sizeML,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
	}
	if err := db.Create(variant).Error; err != nil {
		t.Fatalf("create variant: %v", err)
	}
	return variant
}

// MustCreateCart inserts an empty cart for the user.
func MustCreateCart(t testing.TB, db *gorm.DB, userID uuid.UUID) *models.Cart {
	t.Helper()
	cart := &models.Cart{ID: uuid.New(), UserID: userID}
	if err := db.Omit("Items").Create(cart).Error; err != nil {
		t.Fatalf("create cart: %v", err)
	}
	return cart
}

// MustAddCartItem inserts a cart line.
func MustAddCartItem(t testing.TB, db *gorm.DB, cartID, variantID uuid.UUID, qty int) *models.CartItem {
	t.Helper()
	item := &models.CartItem{ID: uuid.New(), CartID: cartID, VariantID: variantID, Quantity: qty}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("create cart item: %v", err)
	}
	return item
}

// StockOf reads the current stock for a variant.
func StockOf(t testing.TB, db *gorm.DB, variantID uuid.UUID) int {
	t.Helper()
	var variant models.ProductVariant
	if err := db.Where("id = ?", variantID).First(&variant).Error; err != nil {
		t.Fatalf("load variant: %v", err)
	}
	return variant.Stock
}

// Count returns the row count of a table.
func Count(t testing.TB, db *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	if err := db.Table(table).Count(&n).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
