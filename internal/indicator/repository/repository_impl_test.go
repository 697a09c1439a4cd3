package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/smallbiznis/threatintel/internal/indicator/domain"
	"github.com/smallbiznis/threatintel/internal/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.Prepare(db))
	return db
}

func TestInsert_ReportsExistingValue(t *testing.T) {
	db := setupDB(t)
	r := Provide()
	ctx := context.Background()

	inserted, err := r.Insert(ctx, db, &domain.Indicator{ID: 1, Value: "a.example", ValueLower: "a.example", Type: "domain", CreatedDate: 1, UpdatedDate: 1})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = r.Insert(ctx, db, &domain.Indicator{ID: 2, Value: "a.example", ValueLower: "a.example", Type: "domain", CreatedDate: 2, UpdatedDate: 2})
	require.NoError(t, err)
	assert.False(t, inserted)

	found, err := r.FindByValue(ctx, db, "a.example")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.EqualValues(t, 1, found.ID)
}

func TestFindByValue_MissingReturnsNil(t *testing.T) {
	db := setupDB(t)

	found, err := Provide().FindByValue(context.Background(), db, "missing.example")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestUpdateByValue(t *testing.T) {
	db := setupDB(t)
	r := Provide()
	ctx := context.Background()

	exp := int64(50)
	require.NoError(t, db.Create(&domain.Indicator{ID: 7, Value: "Upd.example", ValueLower: "upd.example", Type: "domain", CreatedDate: 1, UpdatedDate: 1, ExpirationDate: &exp}).Error)

	item, err := r.UpdateByValue(ctx, db, domain.Update{Value: "Upd.example", ValueLower: "upd.example", UpdatedDate: 9})
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.EqualValues(t, 7, item.ID)
	assert.Equal(t, int64(9), item.UpdatedDate)
	require.NotNil(t, item.ExpirationDate)
	assert.Equal(t, int64(50), *item.ExpirationDate)

	missing, err := r.UpdateByValue(ctx, db, domain.Update{Value: "nope.example", ValueLower: "nope.example", UpdatedDate: 9})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListByValueLower(t *testing.T) {
	db := setupDB(t)
	r := Provide()
	ctx := context.Background()

	require.NoError(t, db.Create(&[]domain.Indicator{
		{ID: 1, Value: "Example.com", ValueLower: "example.com", Type: "domain", CreatedDate: 1, UpdatedDate: 1},
		{ID: 2, Value: "EXAMPLE.com", ValueLower: "example.com", Type: "domain", CreatedDate: 1, UpdatedDate: 1},
		{ID: 3, Value: "other.example", ValueLower: "other.example", Type: "domain", CreatedDate: 1, UpdatedDate: 1},
	}).Error)

	items, err := r.ListByValueLower(ctx, db, []string{"example.com"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = r.ListByValueLower(ctx, db, nil)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}
