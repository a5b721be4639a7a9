package product

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/scentmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
)

func TestRepositoryFindProductOrdersAssociations(t *testing.T) {
	t.Parallel()
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	p := dbtest.MustCreateProduct(t, db, "Vetiver Noir")
	dbtest.MustCreateVariant(t, db, p.ID, 100, "120.00", 2)
	dbtest.MustCreateVariant(t, db, p.ID, 30, "45.50", 7)
	require.NoError(t, db.Create(&models.ProductImage{ID: uuid.New(), ProductID: p.ID, URL: "https://cdn.example.com/second.jpg", DisplayOrder: 5}).Error)

	got, err := repo.FindProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Variants, 2)
	require.Equal(t, 30, got.Variants[0].SizeML)
	require.Equal(t, 100, got.Variants[1].SizeML)
	require.Len(t, got.Images, 2)
	require.Equal(t, "https://cdn.example.com/second.jpg", got.Images[1].URL)

	_, err = repo.FindProduct(ctx, uuid.New())
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRepositoryLockVariantInsideTx(t *testing.T) {
	t.Parallel()
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	p := dbtest.MustCreateProduct(t, db, "Ambre")
	v := dbtest.MustCreateVariant(t, db, p.ID, 50, "10.00", 5)

	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := repo.WithTx(tx).LockVariant(ctx, v.ID)
		if err != nil {
			return err
		}
		require.Equal(t, 5, locked.Stock)
		require.True(t, locked.Price.Equal(v.Price))
		return repo.WithTx(tx).DecrementStock(ctx, v.ID, 2)
	})
	require.NoError(t, err)
	require.Equal(t, 3, dbtest.StockOf(t, db, v.ID))
}

func TestRepositoryDecrementStockGuardsUnderflow(t *testing.T) {
	t.Parallel()
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	p := dbtest.MustCreateProduct(t, db, "Iris")
	v := dbtest.MustCreateVariant(t, db, p.ID, 50, "10.00", 1)

	require.ErrorIs(t, repo.DecrementStock(ctx, v.ID, 2), ErrStockUnderflow)
	require.Equal(t, 1, dbtest.StockOf(t, db, v.ID))

	require.NoError(t, repo.DecrementStock(ctx, v.ID, 1))
	require.Equal(t, 0, dbtest.StockOf(t, db, v.ID))

	require.Error(t, repo.DecrementStock(ctx, v.ID, 0))
	require.ErrorIs(t, repo.DecrementStock(ctx, uuid.New(), 1), ErrStockUnderflow)
}

func TestRepositoryListVariants(t *testing.T) {
	t.Parallel()
	db := dbtest.Open(t)
	repo := NewRepository(db)

	p := dbtest.MustCreateProduct(t, db, "Neroli")
	dbtest.MustCreateVariant(t, db, p.ID, 75, "60.00", 1)
	dbtest.MustCreateVariant(t, db, p.ID, 15, "20.00", 1)

	rows, err := repo.ListVariants(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, 15, rows[0].SizeML)
}

func TestLockVariantRendersRowLock(t *testing.T) {
	db, stmts := dbtest.DryRunPostgres(t)
	repo := NewRepository(db)
	id := uuid.New()

	_, err := repo.LockVariant(context.Background(), id)
	require.NoError(t, err)

	sql := stmts.Last()
	require.Contains(t, sql, `FROM "product_variants"`)
	require.Contains(t, sql, id.String())
	require.True(t, strings.HasSuffix(strings.TrimSpace(sql), "FOR UPDATE"), sql)
}

func TestDecrementStockRendersGuardedUpdate(t *testing.T) {
	db, stmts := dbtest.DryRunPostgres(t)

	err := NewRepository(db).DecrementStock(context.Background(), uuid.New(), 2)
	require.ErrorIs(t, err, ErrStockUnderflow)

	sql := stmts.Last()
	require.Contains(t, sql, `UPDATE "product_variants"`)
	require.Contains(t, sql, "stock - 2")
	require.Contains(t, sql, "stock >= 2")
	require.NotContains(t, sql, "FOR UPDATE")
}
