package payments

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/awadhimassomo/Mkulima-smart/gateway"
	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/awadhimassomo/Mkulima-smart/notify"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

type fakeOrders struct {
	order          *models.Order
	completedCalls int
	failedCalls    int
	refundedCalls  int
}

func (f *fakeOrders) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	if f.order == nil {
		return nil, errors.New("order not found")
	}
	return f.order, nil
}

func (f *fakeOrders) SyncPaymentCompleted(ctx context.Context, orderID int64) error {
	f.completedCalls++
	return nil
}

func (f *fakeOrders) SyncPaymentFailed(ctx context.Context, orderID int64) error {
	f.failedCalls++
	return nil
}

func (f *fakeOrders) SyncPaymentRefunded(ctx context.Context, orderID int64) error {
	f.refundedCalls++
	return nil
}

type fakeUsers struct{}

func (fakeUsers) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return &models.User{ID: id, Name: "Asha", PhoneNumber: "+255700000001"}, nil
}

// fakeGateway lets tests script the provider's behavior.
type fakeGateway struct {
	name          string
	manualOnly    bool
	refundFails   bool
	initiateFails bool
	webhookEvent  *gateway.WebhookEvent
	webhookErr    error
}

func (f *fakeGateway) Name() string          { return f.name }
func (f *fakeGateway) SupportsRefunds() bool { return !f.manualOnly }

func (f *fakeGateway) InitiatePayment(ctx context.Context, payment *models.Payment, payer *models.User) gateway.InitiateResult {
	if f.initiateFails {
		return gateway.InitiateResult{Success: false, ErrorCode: "NETWORK_ERROR", ErrorMessage: "connection refused"}
	}
	return gateway.InitiateResult{Success: true, GatewayTxnID: "txn_test_1"}
}

func (f *fakeGateway) QueryStatus(ctx context.Context, payment *models.Payment) gateway.StatusResult {
	return gateway.StatusResult{Success: true, Status: payment.PaymentStatus}
}

func (f *fakeGateway) ParseWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	return f.webhookEvent, f.webhookErr
}

func (f *fakeGateway) InitiateRefund(ctx context.Context, refund *models.PaymentRefund, payment *models.Payment) gateway.RefundResult {
	if f.refundFails {
		return gateway.RefundResult{Success: false, ErrorMessage: "refund declined"}
	}
	return gateway.RefundResult{Success: true, GatewayRefundID: "rf_test_1"}
}

func setupPaymentTest(t *testing.T, gw gateway.Gateway) (*Service, *fakeOrders, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	registry := gateway.NewRegistry()
	if gw != nil {
		registry.RegisterProvider(gw.Name(), gw)
	}

	logger := zaptest.NewLogger(t)
	svc := NewService(db, registry, fakeUsers{}, notify.Nop{}, logger)
	orders := &fakeOrders{}
	svc.BindOrders(orders)

	return svc, orders, mock, func() { db.Close() }
}

func paymentColumnNames() []string {
	return []string{
		"id", "reference_number", "payment_type", "payment_status", "payer_id", "payee_id",
		"method_id", "order_id", "gross_amount", "fee_amount", "net_amount", "currency",
		"gateway_transaction_id", "gateway_response", "description", "is_verified",
		"initiated_at", "processed_at", "expires_at", "created_at", "updated_at",
	}
}

func paymentRow(id int64, status models.PaymentStatus, txnID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(paymentColumnNames()).AddRow(
		id, "PAY-202609011200-AB12CD", models.PaymentTypeOrder, status, int64(7), int64(3),
		int64(2), int64(1), "10030", "150.45", "9879.55", "TZS", txnID, nil,
		"Payment for order", false, now, nil, nil, now, now,
	)
}

func TestGenerateReferenceNumber(t *testing.T) {
	pattern := regexp.MustCompile(`^PAY-\d{12}-[0-9A-F]{6}$`)
	ref := GenerateReferenceNumber()
	if !pattern.MatchString(ref) {
		t.Errorf("Reference %q does not match expected format", ref)
	}
}

func TestCreatePayment_RejectsCancelledOrder(t *testing.T) {
	svc, orders, _, cleanup := setupPaymentTest(t, nil)
	defer cleanup()

	orders.order = &models.Order{
		ID:          1,
		OrderStatus: models.OrderStatusCancelled,
		TotalAmount: decimal.NewFromInt(10030),
	}

	_, err := svc.CreatePayment(context.Background(), 7, models.CreatePaymentRequest{OrderID: 1, MethodID: 2})
	if !errors.Is(err, ErrOrderNotPayable) {
		t.Fatalf("Expected ErrOrderNotPayable, got %v", err)
	}
}

func TestCreatePayment_RejectsPaidOrder(t *testing.T) {
	svc, orders, _, cleanup := setupPaymentTest(t, nil)
	defer cleanup()

	orders.order = &models.Order{
		ID:            1,
		OrderStatus:   models.OrderStatusConfirmed,
		PaymentStatus: models.OrderPaymentPaid,
		TotalAmount:   decimal.NewFromInt(10030),
	}

	_, err := svc.CreatePayment(context.Background(), 7, models.CreatePaymentRequest{OrderID: 1, MethodID: 2})
	if !errors.Is(err, ErrOrderNotPayable) {
		t.Fatalf("Expected ErrOrderNotPayable, got %v", err)
	}
}

func TestProcessPayment_DispatchFailureGoesStraightToFailed(t *testing.T) {
	gw := &fakeGateway{name: "taka-bank", initiateFails: true}
	svc, orders, mock, cleanup := setupPaymentTest(t, gw)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1").
		WithArgs(int64(1)).
		WillReturnRows(paymentRow(1, models.PaymentStatusPending, ""))
	mock.ExpectQuery("SELECT (.+) FROM payment_methods WHERE id = \\$1").
		WithArgs(int64(2)).
		WillReturnRows(methodRow("taka-bank", models.MethodBankTransfer))
	// A failed dispatch records a single pending -> failed transition.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO payment_status_history").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	payment, result, err := svc.ProcessPayment(context.Background(), 1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Success {
		t.Error("Expected an unsuccessful dispatch result")
	}
	if payment.PaymentStatus != models.PaymentStatusFailed {
		t.Errorf("Expected status failed, got %s", payment.PaymentStatus)
	}
	if orders.failedCalls != 1 {
		t.Errorf("Expected one failed-payment sync, got %d", orders.failedCalls)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProcessPayment_SuccessTransitionsToProcessing(t *testing.T) {
	gw := &fakeGateway{name: "taka-bank"}
	svc, _, mock, cleanup := setupPaymentTest(t, gw)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1").
		WithArgs(int64(1)).
		WillReturnRows(paymentRow(1, models.PaymentStatusPending, ""))
	mock.ExpectQuery("SELECT (.+) FROM payment_methods WHERE id = \\$1").
		WithArgs(int64(2)).
		WillReturnRows(methodRow("taka-bank", models.MethodBankTransfer))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO payment_status_history").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	payment, result, err := svc.ProcessPayment(context.Background(), 1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !result.Success {
		t.Fatalf("Expected a successful dispatch, got %s", result.ErrorCode)
	}
	if payment.PaymentStatus != models.PaymentStatusProcessing {
		t.Errorf("Expected status processing, got %s", payment.PaymentStatus)
	}
	if payment.GatewayTxnID != "txn_test_1" {
		t.Errorf("Expected gateway transaction id txn_test_1, got %q", payment.GatewayTxnID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestHandleWebhook_CompletedSettlesPaymentAndOrder(t *testing.T) {
	gw := &fakeGateway{
		name: "taka-bank",
		webhookEvent: &gateway.WebhookEvent{
			GatewayTxnID:  "txn_test_1",
			Status:        models.PaymentStatusCompleted,
			GatewayStatus: "completed",
			Fee:           decimal.NewFromInt(150),
		},
	}
	svc, orders, mock, cleanup := setupPaymentTest(t, gw)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO payment_webhooks").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE gateway_transaction_id = \\$1").
		WithArgs("txn_test_1").
		WillReturnRows(paymentRow(1, models.PaymentStatusProcessing, "txn_test_1"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO payment_status_history").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE payment_webhooks").
		WillReturnResult(sqlmock.NewResult(0, 1))

	payment, err := svc.HandleWebhook(context.Background(), "taka-bank", []byte(`{"status":"completed"}`), "sig")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if payment.PaymentStatus != models.PaymentStatusCompleted {
		t.Errorf("Expected status completed, got %s", payment.PaymentStatus)
	}
	if !payment.FeeAmount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected gateway fee 150, got %s", payment.FeeAmount)
	}
	if !payment.NetAmount.Equal(decimal.NewFromInt(9880)) {
		t.Errorf("Expected net 9880, got %s", payment.NetAmount)
	}
	if orders.completedCalls != 1 {
		t.Errorf("Expected one order sync, got %d", orders.completedCalls)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestHandleWebhook_DuplicateIsIgnored(t *testing.T) {
	gw := &fakeGateway{
		name: "taka-bank",
		webhookEvent: &gateway.WebhookEvent{
			GatewayTxnID:  "txn_test_1",
			Status:        models.PaymentStatusCompleted,
			GatewayStatus: "completed",
		},
	}
	svc, orders, mock, cleanup := setupPaymentTest(t, gw)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO payment_webhooks").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(6)))
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE gateway_transaction_id = \\$1").
		WithArgs("txn_test_1").
		WillReturnRows(paymentRow(1, models.PaymentStatusCompleted, "txn_test_1"))
	mock.ExpectExec("UPDATE payment_webhooks").
		WillReturnResult(sqlmock.NewResult(0, 1))

	payment, err := svc.HandleWebhook(context.Background(), "taka-bank", []byte(`{"status":"completed"}`), "sig")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if payment.PaymentStatus != models.PaymentStatusCompleted {
		t.Errorf("Expected status to stay completed, got %s", payment.PaymentStatus)
	}
	if orders.completedCalls != 0 {
		t.Errorf("Expected no order sync on duplicate, got %d", orders.completedCalls)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestHandleWebhook_OutOfOrderIsIgnored(t *testing.T) {
	gw := &fakeGateway{
		name: "taka-bank",
		webhookEvent: &gateway.WebhookEvent{
			GatewayTxnID:  "txn_test_1",
			Status:        models.PaymentStatusProcessing,
			GatewayStatus: "processing",
		},
	}
	svc, _, mock, cleanup := setupPaymentTest(t, gw)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO payment_webhooks").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE gateway_transaction_id = \\$1").
		WithArgs("txn_test_1").
		WillReturnRows(paymentRow(1, models.PaymentStatusCompleted, "txn_test_1"))
	mock.ExpectExec("UPDATE payment_webhooks").
		WillReturnResult(sqlmock.NewResult(0, 1))

	payment, err := svc.HandleWebhook(context.Background(), "taka-bank", []byte(`{"status":"processing"}`), "sig")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if payment.PaymentStatus != models.PaymentStatusCompleted {
		t.Errorf("Expected status to stay completed, got %s", payment.PaymentStatus)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	gw := &fakeGateway{name: "taka-bank", webhookErr: gateway.ErrInvalidSignature}
	svc, _, mock, cleanup := setupPaymentTest(t, gw)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO payment_webhooks").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(8)))
	mock.ExpectExec("UPDATE payment_webhooks").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.HandleWebhook(context.Background(), "taka-bank", []byte(`{}`), "bad")
	if !errors.Is(err, gateway.ErrInvalidSignature) {
		t.Fatalf("Expected ErrInvalidSignature, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestHandleWebhook_UnknownProvider(t *testing.T) {
	svc, _, _, cleanup := setupPaymentTest(t, nil)
	defer cleanup()

	_, err := svc.HandleWebhook(context.Background(), "no-such-provider", []byte(`{}`), "sig")
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("Expected ErrUnknownProvider, got %v", err)
	}
}
