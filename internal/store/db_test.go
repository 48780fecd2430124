package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"accezzpay/internal/errs"
	"accezzpay/internal/models"
	"accezzpay/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) (*store.DB, *bun.DB) {
	// Connect to an in-memory SQLite DB for testing
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// One connection only: every :memory: connection is its own database
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	if err := store.Bootstrap(context.Background(), bunDB); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	return &store.DB{Bun: bunDB}, bunDB
}

func seedOrder(t *testing.T, db *store.DB, status models.OrderStatus) models.Order {
	order := models.Order{
		ID:           uuid.New().String(),
		OrganizerID:  "org-1",
		ProductID:    "prod-1",
		TicketTypeID: "tt-1",
		Quantity:     2,
		TotalMinor:   1000000,
		Currency:     "NGN",
		Status:       status,
		BuyerName:    "Ada Lovelace",
		BuyerEmail:   "ada@example.com",
		CreatedAt:    time.Now(),
	}
	assert.NoError(t, db.CreateOrder(order))
	return order
}

func TestCreateAndGetOrder(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	order := seedOrder(t, db, models.OrderStatusPending)

	got, err := db.GetOrderByID(order.ID)
	assert.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	assert.Equal(t, int64(1000000), got.TotalMinor)

	// Non-existent order maps to a typed not-found
	_, err = db.GetOrderByID("non-existent")
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestGetOrderByReference(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	order := seedOrder(t, db, models.OrderStatusPending)
	reference := "order_" + order.ID
	assert.NoError(t, db.UpdateOrderReference(order.ID, reference, "https://checkout.test/abc"))

	got, err := db.GetOrderByReference(reference)
	assert.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, "https://checkout.test/abc", got.RedirectURL)

	_, err = db.GetOrderByReference("order_unknown")
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestUpdateOrderStatus(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	order := seedOrder(t, db, models.OrderStatusPending)
	assert.NoError(t, db.UpdateOrderStatus(order.ID, models.OrderStatusPaid))

	got, err := db.GetOrderByID(order.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestAdjustTicketInventory(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticketType := models.TicketType{
		ID:                "tt-1",
		ProductID:         "prod-1",
		Name:              "Regular",
		PriceMinor:        500000,
		Currency:          "NGN",
		QuantityTotal:     5,
		QuantityAvailable: 5,
		CreatedAt:         time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&ticketType).Exec(context.Background())
	assert.NoError(t, err)

	// Decrement within availability
	assert.NoError(t, db.AdjustTicketInventory("tt-1", 3))

	got, err := db.GetTicketType("tt-1")
	assert.NoError(t, err)
	assert.Equal(t, 2, got.QuantityAvailable)

	// Oversell is rejected and leaves the row untouched
	err = db.AdjustTicketInventory("tt-1", 3)
	var insufficient *errs.InsufficientInventoryError
	assert.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 3, insufficient.Requested)
	assert.Equal(t, 2, insufficient.Available)

	got, err = db.GetTicketType("tt-1")
	assert.NoError(t, err)
	assert.Equal(t, 2, got.QuantityAvailable)

	// Draining to exactly zero is fine
	assert.NoError(t, db.AdjustTicketInventory("tt-1", 2))
	got, err = db.GetTicketType("tt-1")
	assert.NoError(t, err)
	assert.Equal(t, 0, got.QuantityAvailable)

	// Restock on refund
	assert.NoError(t, db.AdjustTicketInventory("tt-1", -2))
	got, err = db.GetTicketType("tt-1")
	assert.NoError(t, err)
	assert.Equal(t, 2, got.QuantityAvailable)
}

func TestCreateTicketsBatchAndList(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	order := seedOrder(t, db, models.OrderStatusPaid)

	tickets := []models.Ticket{
		{
			ID:           uuid.New().String(),
			OrderID:      order.ID,
			ProductID:    "prod-1",
			TicketTypeID: "tt-1",
			TicketCode:   "ACCEZZ-AAAA1111",
			Status:       models.TicketStatusUnused,
			IssuedAt:     time.Now(),
		},
		{
			ID:           uuid.New().String(),
			OrderID:      order.ID,
			ProductID:    "prod-1",
			TicketTypeID: "tt-1",
			TicketCode:   "ACCEZZ-BBBB2222",
			Status:       models.TicketStatusUnused,
			IssuedAt:     time.Now(),
		},
	}
	assert.NoError(t, db.CreateTickets(tickets))

	listed, err := db.ListTicketsForOrder(order.ID)
	assert.NoError(t, err)
	assert.Len(t, listed, 2)

	// Empty batch is a no-op
	assert.NoError(t, db.CreateTickets(nil))
}

func TestTicketCodeUniqueness(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	order := seedOrder(t, db, models.OrderStatusPaid)

	first := []models.Ticket{{
		ID:         uuid.New().String(),
		OrderID:    order.ID,
		TicketCode: "ACCEZZ-DUPE0000",
		Status:     models.TicketStatusUnused,
		IssuedAt:   time.Now(),
	}}
	assert.NoError(t, db.CreateTickets(first))

	duplicate := []models.Ticket{{
		ID:         uuid.New().String(),
		OrderID:    order.ID,
		TicketCode: "ACCEZZ-DUPE0000",
		Status:     models.TicketStatusUnused,
		IssuedAt:   time.Now(),
	}}
	assert.Error(t, db.CreateTickets(duplicate))
}

func TestLedgerEntryOnePerOrder(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	order := seedOrder(t, db, models.OrderStatusPaid)

	entry := models.LedgerEntry{
		ID:                uuid.New().String(),
		OrderID:           order.ID,
		PlatformFeeMinor:  30000,
		GatewayFeeMinor:   15000,
		OrganizerNetMinor: 955000,
		Currency:          "NGN",
		Status:            models.LedgerStatusPending,
		CreatedAt:         time.Now(),
	}
	assert.NoError(t, db.CreateLedgerEntry(entry))

	got, err := db.GetLedgerEntryForOrder(order.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(955000), got.OrganizerNetMinor)

	// Second entry for the same order violates the unique constraint
	entry.ID = uuid.New().String()
	assert.Error(t, db.CreateLedgerEntry(entry))

	// Missing entry maps to not-found
	_, err = db.GetLedgerEntryForOrder("no-such-order")
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	assert.NoError(t, db.UpdateLedgerStatus(order.ID, models.LedgerStatusRefunded))
	got, err = db.GetLedgerEntryForOrder(order.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.LedgerStatusRefunded, got.Status)
}

func TestPaymentLifecycle(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	order := seedOrder(t, db, models.OrderStatusPending)
	reference := "order_" + order.ID

	payment := models.Payment{
		ID:               uuid.New().String(),
		OrderID:          order.ID,
		Gateway:          "paystack",
		GatewayReference: reference,
		AmountMinor:      order.TotalMinor,
		Currency:         "NGN",
		Status:           models.PaymentStatusInitialized,
		CreatedAt:        time.Now(),
	}
	assert.NoError(t, db.CreatePaymentRecord(payment))

	raw := map[string]any{"status": "success", "channel": "card"}
	assert.NoError(t, db.UpdatePaymentStatusByReference(reference, models.PaymentStatusPaid, raw))

	relations, err := db.GetOrderWithRelations(order.ID)
	assert.NoError(t, err)
	assert.Len(t, relations.Payments, 1)
	assert.Equal(t, models.PaymentStatusPaid, relations.Payments[0].Status)
}

func TestGetOrderWithRelations(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	order := seedOrder(t, db, models.OrderStatusPaid)

	assert.NoError(t, db.CreateTickets([]models.Ticket{{
		ID:         uuid.New().String(),
		OrderID:    order.ID,
		TicketCode: "ACCEZZ-REL00001",
		Status:     models.TicketStatusUnused,
		IssuedAt:   time.Now(),
	}}))
	assert.NoError(t, db.CreateLedgerEntry(models.LedgerEntry{
		ID:                uuid.New().String(),
		OrderID:           order.ID,
		PlatformFeeMinor:  30000,
		GatewayFeeMinor:   15000,
		OrganizerNetMinor: 955000,
		Currency:          "NGN",
		Status:            models.LedgerStatusPending,
		CreatedAt:         time.Now(),
	}))

	relations, err := db.GetOrderWithRelations(order.ID)
	assert.NoError(t, err)
	assert.Equal(t, order.ID, relations.Order.ID)
	assert.Len(t, relations.Tickets, 1)
	assert.Len(t, relations.Ledger, 1)
	assert.Empty(t, relations.Payments)
}

func TestWebhookEventLog(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	event := models.WebhookEvent{
		ID:        uuid.New().String(),
		Gateway:   "paystack",
		EventType: "charge.success",
		Payload:   []byte(`{"event":"charge.success"}`),
		Signature: "abc123",
		CreatedAt: time.Now(),
	}
	assert.NoError(t, db.RecordWebhookEvent(event))
	assert.NoError(t, db.MarkWebhookProcessed(event.ID))

	var got models.WebhookEvent
	err := bunDB.NewSelect().
		Model(&got).
		Where("id = ?", event.ID).
		Limit(1).
		Scan(context.Background())
	assert.NoError(t, err)
	assert.True(t, got.Processed)
	assert.False(t, got.ProcessedAt.IsZero())
}

func TestOrganizerSettlement(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	organizer := models.Organizer{
		ID:    "org-1",
		Name:  "Test Events Ltd",
		Email: "events@example.com",
		BankDetails: models.BankDetails{
			BankCode:      "058",
			AccountNumber: "0123456789",
		},
		CreatedAt: time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&organizer).Exec(context.Background())
	assert.NoError(t, err)

	got, err := db.GetOrganizerByID("org-1")
	assert.NoError(t, err)
	assert.True(t, got.HasBankDetails())
	assert.Empty(t, got.SubaccountCode)

	assert.NoError(t, db.UpdateOrganizerSettlement("org-1", "SUB_abc", "SPL_def"))

	got, err = db.GetOrganizerByID("org-1")
	assert.NoError(t, err)
	assert.Equal(t, "SUB_abc", got.SubaccountCode)
	assert.Equal(t, "SPL_def", got.SplitCode)

	// Clearing a stale split keeps the subaccount
	assert.NoError(t, db.UpdateOrganizerSettlement("org-1", "SUB_abc", ""))
	got, err = db.GetOrganizerByID("org-1")
	assert.NoError(t, err)
	assert.Empty(t, got.SplitCode)
}

func TestGetProductWithTicketTypes(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	product := models.Product{
		ID:          "prod-1",
		OrganizerID: "org-1",
		Title:       "Lagos Tech Fest",
		CreatedAt:   time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&product).Exec(context.Background())
	assert.NoError(t, err)

	ticketTypes := []models.TicketType{
		{ID: "tt-1", ProductID: "prod-1", Name: "Regular", PriceMinor: 500000, Currency: "NGN", QuantityTotal: 100, QuantityAvailable: 100, CreatedAt: time.Now()},
		{ID: "tt-2", ProductID: "prod-1", Name: "VIP", PriceMinor: 1500000, Currency: "NGN", QuantityTotal: 20, QuantityAvailable: 20, CreatedAt: time.Now()},
	}
	_, err = bunDB.NewInsert().Model(&ticketTypes).Exec(context.Background())
	assert.NoError(t, err)

	got, err := db.GetProductWithTicketTypes("prod-1")
	assert.NoError(t, err)
	assert.Equal(t, "Lagos Tech Fest", got.Product.Title)
	assert.Len(t, got.TicketTypes, 2)

	_, err = db.GetProductWithTicketTypes("prod-404")
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
