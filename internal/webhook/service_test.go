package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"accezzpay/internal/config"
	"accezzpay/internal/errs"
	"accezzpay/internal/gateway"
	"accezzpay/internal/issuance"
	"accezzpay/internal/logger"
	"accezzpay/internal/models"
	"accezzpay/internal/notify"
	"accezzpay/internal/store"
	"accezzpay/internal/webhook"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

const webhookSecret = "sk_test_webhook"

func TestMain(m *testing.M) {
	code := m.Run()
	os.RemoveAll("logs")
	os.Exit(code)
}

// ---------------- test doubles ----------------

type fakeMinter struct{}

func (fakeMinter) Mint(orderID, ticketID, ticketCode string) (string, []byte, error) {
	return "http://localhost:8080/assets/qr/" + orderID + "/" + ticketID + ".png", []byte("png"), nil
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(to, subject, htmlBody string, attachments []notify.Attachment) error {
	args := m.Called(to, subject, htmlBody, attachments)
	return args.Error(0)
}

type recordingPublisher struct {
	paid     int
	refunded int
	issued   int
}

func (r *recordingPublisher) PublishOrderPaid(models.Order) error     { r.paid++; return nil }
func (r *recordingPublisher) PublishOrderRefunded(models.Order) error { r.refunded++; return nil }
func (r *recordingPublisher) PublishTicketsIssued(models.Order, []models.Ticket) error {
	r.issued++
	return nil
}
func (r *recordingPublisher) Close() error { return nil }

// syncQueue runs issuance inline so tests can assert the end state
// without polling.
type syncQueue struct {
	engine   *issuance.Engine
	enqueued int
}

func (q *syncQueue) Enqueue(orderID string) error {
	q.enqueued++
	return q.engine.Issue(orderID)
}

type erroringQueue struct{}

func (erroringQueue) Enqueue(string) error { return fmt.Errorf("queue full") }

// ---------------- fixtures ----------------

type fixture struct {
	db        *store.DB
	bunDB     *bun.DB
	service   *webhook.Service
	engine    *issuance.Engine
	queue     *syncQueue
	mailer    *mockMailer
	publisher *recordingPublisher
}

func setup(t *testing.T, gatewayCfg config.GatewayConfig) *fixture {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// One connection only: every :memory: connection is its own database
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, store.Bootstrap(context.Background(), bunDB))
	db := &store.DB{Bun: bunDB}

	seedCatalog(t, bunDB)

	log := logger.NewLogger()
	mailer := &mockMailer{}
	publisher := &recordingPublisher{}
	engine := issuance.NewEngine(db, fakeMinter{}, mailer, publisher, issuance.NewLocalLock(),
		config.FeeConfig{PlatformPercent: 3, GatewayPercent: 1.5}, "ACCEZZ", log)
	queue := &syncQueue{engine: engine}
	gw := gateway.NewClient(gatewayCfg, log)
	service := webhook.NewService(db, gw, queue, engine, mailer, publisher, log)

	return &fixture{db: db, bunDB: bunDB, service: service, engine: engine, queue: queue, mailer: mailer, publisher: publisher}
}

func liveGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{SecretKey: webhookSecret, WebhookSecret: webhookSecret, BaseURL: "https://unused.invalid"}
}

func seedCatalog(t *testing.T, bunDB *bun.DB) {
	ctx := context.Background()
	organizer := models.Organizer{ID: "org-1", Name: "Test Events Ltd", Email: "events@example.com", CreatedAt: time.Now()}
	_, err := bunDB.NewInsert().Model(&organizer).Exec(ctx)
	require.NoError(t, err)
	product := models.Product{ID: "prod-1", OrganizerID: "org-1", Title: "Lagos Tech Fest", CreatedAt: time.Now()}
	_, err = bunDB.NewInsert().Model(&product).Exec(ctx)
	require.NoError(t, err)
	ticketType := models.TicketType{
		ID: "tt-1", ProductID: "prod-1", Name: "Regular",
		PriceMinor: 500000, Currency: "NGN",
		QuantityTotal: 10, QuantityAvailable: 10, CreatedAt: time.Now(),
	}
	_, err = bunDB.NewInsert().Model(&ticketType).Exec(ctx)
	require.NoError(t, err)
}

func seedOrderWithReference(t *testing.T, db *store.DB, status models.OrderStatus, reference string) models.Order {
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
	require.NoError(t, db.CreateOrder(order))
	require.NoError(t, db.UpdateOrderReference(order.ID, reference, ""))
	order.GatewayReference = reference

	payment := models.Payment{
		ID:               "pay_" + order.ID,
		OrderID:          order.ID,
		Gateway:          "paystack",
		GatewayReference: reference,
		AmountMinor:      order.TotalMinor,
		Currency:         "NGN",
		Status:           models.PaymentStatusInitialized,
		CreatedAt:        time.Now(),
	}
	require.NoError(t, db.CreatePaymentRecord(payment))
	return order
}

func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func chargeSuccessBody(reference string) []byte {
	body, _ := json.Marshal(map[string]any{
		"event": "charge.success",
		"data": map[string]any{
			"reference": reference,
			"amount":    1000000,
			"status":    "success",
		},
	})
	return body
}

func refundBody(reference string) []byte {
	body, _ := json.Marshal(map[string]any{
		"event": "charge.refunded",
		"data": map[string]any{
			"reference": reference,
			"amount":    1000000,
		},
	})
	return body
}

func countWebhookEvents(t *testing.T, bunDB *bun.DB) int {
	count, err := bunDB.NewSelect().Model((*models.WebhookEvent)(nil)).Count(context.Background())
	require.NoError(t, err)
	return count
}

// ---------------- tests ----------------

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := setup(t, liveGatewayConfig())
	defer f.bunDB.Close()
	order := seedOrderWithReference(t, f.db, models.OrderStatusPending, "order_sig")

	body := chargeSuccessBody("order_sig")

	err := f.service.HandleWebhook(context.Background(), body, "deadbeef")
	var sigErr *errs.SignatureError
	assert.ErrorAs(t, err, &sigErr)

	// Missing header is just as invalid
	err = f.service.HandleWebhook(context.Background(), body, "")
	assert.ErrorAs(t, err, &sigErr)

	// Nothing was written or enqueued
	assert.Equal(t, 0, countWebhookEvents(t, f.bunDB))
	assert.Equal(t, 0, f.queue.enqueued)
	got, err := f.db.GetOrderByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)
}

func TestHandleWebhookRejectsMalformedPayload(t *testing.T) {
	f := setup(t, liveGatewayConfig())
	defer f.bunDB.Close()

	body := []byte(`{"not":"an envelope"}`)
	err := f.service.HandleWebhook(context.Background(), body, sign(body))

	var validation *errs.ValidationError
	assert.ErrorAs(t, err, &validation)
	assert.Equal(t, 0, countWebhookEvents(t, f.bunDB))
}

func TestHandleWebhookChargeSuccess(t *testing.T) {
	f := setup(t, liveGatewayConfig())
	defer f.bunDB.Close()
	order := seedOrderWithReference(t, f.db, models.OrderStatusPending, "order_ok")

	f.mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	body := chargeSuccessBody("order_ok")
	require.NoError(t, f.service.HandleWebhook(context.Background(), body, sign(body)))

	// Event durably logged and flagged
	assert.Equal(t, 1, countWebhookEvents(t, f.bunDB))
	var event models.WebhookEvent
	require.NoError(t, f.bunDB.NewSelect().Model(&event).Limit(1).Scan(context.Background()))
	assert.True(t, event.Processed)
	assert.Equal(t, "charge.success", event.EventType)

	// Order fulfilled end to end
	got, err := f.db.GetOrderByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)

	tickets, err := f.db.ListTicketsForOrder(order.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	relations, err := f.db.GetOrderWithRelations(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, relations.Payments[0].Status)

	assert.Equal(t, 1, f.publisher.paid)
	assert.Equal(t, 1, f.publisher.issued)
}

func TestHandleWebhookChargeSuccessMarksOrderPaidEvenWhenQueueFull(t *testing.T) {
	f := setup(t, liveGatewayConfig())
	defer f.bunDB.Close()
	order := seedOrderWithReference(t, f.db, models.OrderStatusPending, "order_qf")

	gw := gateway.NewClient(liveGatewayConfig(), logger.NewLogger())
	service := webhook.NewService(f.db, gw, erroringQueue{}, f.engine, f.mailer, f.publisher, logger.NewLogger())

	body := chargeSuccessBody("order_qf")
	require.NoError(t, service.HandleWebhook(context.Background(), body, sign(body)))

	// The paid transition does not depend on the queue accepting the
	// fulfilment task
	got, err := f.db.GetOrderByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)

	relations, err := f.db.GetOrderWithRelations(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, relations.Payments[0].Status)

	// Fulfilment is deferred, not done
	tickets, err := f.db.ListTicketsForOrder(order.ID)
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.Equal(t, 1, f.publisher.paid)
}

func TestHandleWebhookDuplicateDeliveryConverges(t *testing.T) {
	f := setup(t, liveGatewayConfig())
	defer f.bunDB.Close()
	order := seedOrderWithReference(t, f.db, models.OrderStatusPending, "order_dup")

	f.mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	body := chargeSuccessBody("order_dup")
	require.NoError(t, f.service.HandleWebhook(context.Background(), body, sign(body)))
	require.NoError(t, f.service.HandleWebhook(context.Background(), body, sign(body)))

	// Both deliveries are logged, but fulfilment happened once
	assert.Equal(t, 2, countWebhookEvents(t, f.bunDB))
	assert.Equal(t, 2, f.queue.enqueued)

	tickets, err := f.db.ListTicketsForOrder(order.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	ticketType, err := f.db.GetTicketType("tt-1")
	require.NoError(t, err)
	assert.Equal(t, 8, ticketType.QuantityAvailable)

	assert.Equal(t, 1, f.publisher.issued)
	// Receipt + organizer alert from the first pass only
	f.mailer.AssertNumberOfCalls(t, "Send", 2)
}

func TestHandleWebhookRefund(t *testing.T) {
	f := setup(t, liveGatewayConfig())
	defer f.bunDB.Close()
	order := seedOrderWithReference(t, f.db, models.OrderStatusPending, "order_rf")

	f.mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	// Pay and fulfil first
	body := chargeSuccessBody("order_rf")
	require.NoError(t, f.service.HandleWebhook(context.Background(), body, sign(body)))

	// Then the refund arrives
	refund := refundBody("order_rf")
	require.NoError(t, f.service.HandleWebhook(context.Background(), refund, sign(refund)))

	got, err := f.db.GetOrderByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRefunded, got.Status)

	tickets, err := f.db.ListTicketsForOrder(order.ID)
	require.NoError(t, err)
	for _, ticket := range tickets {
		assert.Equal(t, models.TicketStatusCancelled, ticket.Status)
	}

	entry, err := f.db.GetLedgerEntryForOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LedgerStatusRefunded, entry.Status)

	// Seats went back on sale
	ticketType, err := f.db.GetTicketType("tt-1")
	require.NoError(t, err)
	assert.Equal(t, 10, ticketType.QuantityAvailable)

	assert.Equal(t, 1, f.publisher.refunded)
	// Receipt + organizer alert + refund notice
	f.mailer.AssertNumberOfCalls(t, "Send", 3)
}

func TestHandleWebhookRefundIgnoredForPendingOrder(t *testing.T) {
	f := setup(t, liveGatewayConfig())
	defer f.bunDB.Close()
	order := seedOrderWithReference(t, f.db, models.OrderStatusPending, "order_rfp")

	refund := refundBody("order_rfp")
	require.NoError(t, f.service.HandleWebhook(context.Background(), refund, sign(refund)))

	got, err := f.db.GetOrderByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	assert.Equal(t, 0, f.publisher.refunded)
}

func TestHandleWebhookUnknownEventLoggedOnly(t *testing.T) {
	f := setup(t, liveGatewayConfig())
	defer f.bunDB.Close()
	seedOrderWithReference(t, f.db, models.OrderStatusPending, "order_unk")

	body, _ := json.Marshal(map[string]any{
		"event": "subscription.create",
		"data":  map[string]any{"reference": "order_unk"},
	})
	require.NoError(t, f.service.HandleWebhook(context.Background(), body, sign(body)))

	assert.Equal(t, 1, countWebhookEvents(t, f.bunDB))
	assert.Equal(t, 0, f.queue.enqueued)
}

func TestVerifyRedirectMockFlow(t *testing.T) {
	// Mock mode: no secret key, redirect landing is the confirmation
	f := setup(t, config.GatewayConfig{BaseURL: "https://unused.invalid"})
	defer f.bunDB.Close()
	order := seedOrderWithReference(t, f.db, models.OrderStatusPending, "mock_"+uuid.New().String())

	f.mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	got, err := f.service.VerifyRedirect(context.Background(), order.GatewayReference)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)

	tickets, err := f.db.ListTicketsForOrder(order.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	// Mock references have no webhook; the engine settles the payment
	relations, err := f.db.GetOrderWithRelations(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, relations.Payments[0].Status)
}

func TestVerifyRedirectLiveVerification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]any{
				"status":   "success",
				"amount":   1000000,
				"currency": "NGN",
			},
		})
	}))
	defer server.Close()

	cfg := liveGatewayConfig()
	cfg.BaseURL = server.URL
	f := setup(t, cfg)
	defer f.bunDB.Close()
	order := seedOrderWithReference(t, f.db, models.OrderStatusPending, "order_redir")

	f.mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	got, err := f.service.VerifyRedirect(context.Background(), "order_redir")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)

	tickets, err := f.db.ListTicketsForOrder(order.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}

func TestVerifyRedirectUnknownReference(t *testing.T) {
	f := setup(t, liveGatewayConfig())
	defer f.bunDB.Close()

	_, err := f.service.VerifyRedirect(context.Background(), "order_nope")
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestParseEvent(t *testing.T) {
	event, err := webhook.ParseEvent(chargeSuccessBody("ref-1"))
	require.NoError(t, err)
	assert.Equal(t, webhook.EventChargeSuccess, event.Type)
	assert.Equal(t, "ref-1", event.Reference)
	assert.Equal(t, int64(1000000), event.AmountMinor)

	event, err = webhook.ParseEvent(refundBody("ref-2"))
	require.NoError(t, err)
	assert.Equal(t, webhook.EventChargeRefund, event.Type)

	event, err = webhook.ParseEvent([]byte(`{"event":"transfer.success","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, webhook.EventUnknown, event.Type)

	_, err = webhook.ParseEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = webhook.ParseEvent([]byte(fmt.Sprintf(`{"data":{"reference":"%s"}}`, "ref-3")))
	assert.Error(t, err)
}
