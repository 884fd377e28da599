package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/domain/inventory"
)

// newMockInventoryRequestRepository creates a GormInventoryRequestRepository with a mocked SQL connection
func newMockInventoryRequestRepository(t *testing.T) (*GormInventoryRequestRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormInventoryRequestRepository(gormDB), mock, mockDB
}

func inventoryRequestRows(ids ...uuid.UUID) *sqlmock.Rows {
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "channel_uid", "sku", "item_id", "quantity", "status",
		"tracking_id", "feed_id", "metadata", "created_at", "updated_at",
	})
	for i, id := range ids {
		rows.AddRow(id, "chanA", "sku-1", "item-1", decimal.NewFromInt(int64(10+i)), "PENDING",
			"", "", `{"sku_id":"sk-1","warehouse_id":"wh-1"}`, now, now)
	}
	return rows
}

func TestGormInventoryRequestRepository_FindPendingByChannel(t *testing.T) {
	t.Run("loads pending rows oldest first", func(t *testing.T) {
		repo, mock, mockDB := newMockInventoryRequestRepository(t)
		defer mockDB.Close()

		id := uuid.New()
		since := time.Now().Add(-48 * time.Hour)

		mock.ExpectQuery(`SELECT \* FROM "inventory_requests" WHERE \(channel_uid = \$1 AND status = \$2\) AND created_at >= \$3 ORDER BY created_at ASC`).
			WithArgs("chanA", "PENDING", since).
			WillReturnRows(inventoryRequestRows(id))

		requests, err := repo.FindPendingByChannel(context.Background(), "chanA", since)

		require.NoError(t, err)
		require.Len(t, requests, 1)
		assert.Equal(t, id, requests[0].ID)
		assert.Equal(t, inventory.StatusPending, requests[0].Status)
		assert.Equal(t, "sk-1", requests[0].SKUID())
		assert.Equal(t, "wh-1", requests[0].WarehouseID())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		repo, mock, mockDB := newMockInventoryRequestRepository(t)
		defer mockDB.Close()

		since := time.Now()
		mock.ExpectQuery(`SELECT \* FROM "inventory_requests"`).
			WillReturnRows(inventoryRequestRows())

		requests, err := repo.FindPendingByChannel(context.Background(), "chanA", since)

		require.NoError(t, err)
		assert.Empty(t, requests)
	})
}

func TestGormInventoryRequestRepository_FindPendingByKeys(t *testing.T) {
	t.Run("no keys is a no-op", func(t *testing.T) {
		repo, mock, mockDB := newMockInventoryRequestRepository(t)
		defer mockDB.Close()

		requests, err := repo.FindPendingByKeys(context.Background(), nil, time.Now())

		require.NoError(t, err)
		assert.Nil(t, requests)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("matches identity key tuples", func(t *testing.T) {
		repo, mock, mockDB := newMockInventoryRequestRepository(t)
		defer mockDB.Close()

		id := uuid.New()
		since := time.Now().Add(-48 * time.Hour)

		mock.ExpectQuery(`SELECT \* FROM "inventory_requests" WHERE status = \$1 AND created_at >= \$2 AND \(channel_uid, sku, item_id\) IN \(\(\$3,\$4,\$5\)\)`).
			WithArgs("PENDING", since, "chanA", "sku-1", "item-1").
			WillReturnRows(inventoryRequestRows(id))

		keys := []inventory.IdentityKey{{ChannelUID: "chanA", SKU: "sku-1", ItemID: "item-1"}}
		requests, err := repo.FindPendingByKeys(context.Background(), keys, since)

		require.NoError(t, err)
		require.Len(t, requests, 1)
		assert.Equal(t, id, requests[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormInventoryRequestRepository_Claim(t *testing.T) {
	t.Run("returns only the rows actually claimed", func(t *testing.T) {
		repo, mock, mockDB := newMockInventoryRequestRepository(t)
		defer mockDB.Close()

		first := uuid.New()
		second := uuid.New()

		// Second row was already grabbed by a concurrent run; only the first
		// comes back from RETURNING.
		mock.ExpectQuery(`UPDATE "inventory_requests" SET .* WHERE id IN \(\$\d+,\$\d+\) AND status = \$\d+ RETURNING "id"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(first))

		claimed, err := repo.Claim(context.Background(), []uuid.UUID{first, second},
			inventory.StatusPending, inventory.StatusProcessing)

		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{first}, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no ids is a no-op", func(t *testing.T) {
		repo, mock, mockDB := newMockInventoryRequestRepository(t)
		defer mockDB.Close()

		claimed, err := repo.Claim(context.Background(), nil,
			inventory.StatusPending, inventory.StatusProcessing)

		require.NoError(t, err)
		assert.Nil(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormInventoryRequestRepository_MarkOutcome(t *testing.T) {
	t.Run("sets status and tracking id", func(t *testing.T) {
		repo, mock, mockDB := newMockInventoryRequestRepository(t)
		defer mockDB.Close()

		id := uuid.New()
		mock.ExpectExec(`UPDATE "inventory_requests" SET .*"status".*"tracking_id".* WHERE id IN \(\$\d+\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.MarkOutcome(context.Background(), []uuid.UUID{id},
			inventory.StatusSuccess, "req-1")

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty tracking id is not written", func(t *testing.T) {
		repo, mock, mockDB := newMockInventoryRequestRepository(t)
		defer mockDB.Close()

		id := uuid.New()
		mock.ExpectExec(`UPDATE "inventory_requests" SET "status"=\$1,"updated_at"=\$2 WHERE id IN \(\$3\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.MarkOutcome(context.Background(), []uuid.UUID{id},
			inventory.StatusFailed, "")

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no ids is a no-op", func(t *testing.T) {
		repo, mock, mockDB := newMockInventoryRequestRepository(t)
		defer mockDB.Close()

		err := repo.MarkOutcome(context.Background(), nil, inventory.StatusFailed, "")

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormInventoryRequestRepository_CountByStatus(t *testing.T) {
	repo, mock, mockDB := newMockInventoryRequestRepository(t)
	defer mockDB.Close()

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("PENDING", 7).
		AddRow("SUCCESS", 40).
		AddRow("FAILED", 3)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) AS count FROM "inventory_requests" WHERE channel_uid = \$1 GROUP BY .*status.*`).
		WithArgs("chanA").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), "chanA")

	require.NoError(t, err)
	assert.Equal(t, int64(7), counts[inventory.StatusPending])
	assert.Equal(t, int64(40), counts[inventory.StatusSuccess])
	assert.Equal(t, int64(3), counts[inventory.StatusFailed])
	assert.NoError(t, mock.ExpectationsWereMet())
}
