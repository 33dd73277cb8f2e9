package payments

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/shopspring/decimal"
)

func TestCalculateRefundFee(t *testing.T) {
	cases := []struct {
		amount   string
		expected string
	}{
		{"5000", "0"},
		{"10000", "0"},
		{"10001", "200.02"},
		{"20000", "400"},
		{"100000", "2000"},
	}

	for _, tc := range cases {
		amount, _ := decimal.NewFromString(tc.amount)
		expected, _ := decimal.NewFromString(tc.expected)
		if fee := CalculateRefundFee(amount); !fee.Equal(expected) {
			t.Errorf("Fee for %s: expected %s, got %s", tc.amount, tc.expected, fee)
		}
	}
}

func TestGenerateRefundNumber(t *testing.T) {
	pattern := regexp.MustCompile(`^REF-\d{12}-[0-9A-F]{6}$`)
	ref := GenerateRefundNumber()
	if !pattern.MatchString(ref) {
		t.Errorf("Refund number %q does not match expected format", ref)
	}
}

func TestCreateRefund_RejectsNonCompletedPayment(t *testing.T) {
	svc, _, mock, cleanup := setupPaymentTest(t, nil)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1").
		WithArgs(int64(1)).
		WillReturnRows(paymentRow(1, models.PaymentStatusProcessing, "txn_test_1"))

	_, err := svc.CreateRefund(context.Background(), 1, 7, models.CreateRefundRequest{
		Amount: decimal.NewFromInt(1000),
	})
	if !errors.Is(err, ErrNotRefundable) {
		t.Fatalf("Expected ErrNotRefundable, got %v", err)
	}
}

func TestCreateRefund_RejectsAmountAboveGross(t *testing.T) {
	svc, _, mock, cleanup := setupPaymentTest(t, nil)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1").
		WithArgs(int64(1)).
		WillReturnRows(paymentRow(1, models.PaymentStatusCompleted, "txn_test_1"))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(refund_amount\\), 0\\) FROM payment_refunds").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("0"))

	_, err := svc.CreateRefund(context.Background(), 1, 7, models.CreateRefundRequest{
		Amount: decimal.NewFromInt(20000),
	})
	if !errors.Is(err, ErrInvalidRefundAmount) {
		t.Fatalf("Expected ErrInvalidRefundAmount, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCreateRefund_RejectsNonPositiveAmount(t *testing.T) {
	svc, _, mock, cleanup := setupPaymentTest(t, nil)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1").
		WithArgs(int64(1)).
		WillReturnRows(paymentRow(1, models.PaymentStatusCompleted, "txn_test_1"))

	_, err := svc.CreateRefund(context.Background(), 1, 7, models.CreateRefundRequest{
		Amount: decimal.Zero,
	})
	if !errors.Is(err, ErrInvalidRefundAmount) {
		t.Fatalf("Expected ErrInvalidRefundAmount, got %v", err)
	}
}

func TestCreateRefund_Success(t *testing.T) {
	svc, _, mock, cleanup := setupPaymentTest(t, nil)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1").
		WithArgs(int64(1)).
		WillReturnRows(paymentRow(1, models.PaymentStatusCompleted, "txn_test_1"))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(refund_amount\\), 0\\) FROM payment_refunds").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("0"))
	mock.ExpectQuery("INSERT INTO payment_refunds").
		WillReturnRows(sqlmock.NewRows([]string{"id", "requested_at"}).AddRow(int64(9), time.Now()))

	refund, err := svc.CreateRefund(context.Background(), 1, 7, models.CreateRefundRequest{
		Amount: decimal.NewFromInt(10030),
		Reason: models.RefundReasonQualityIssue,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if refund.RefundStatus != models.RefundStatusRequested {
		t.Errorf("Expected status requested, got %s", refund.RefundStatus)
	}
	// 2% of 10030 since it is above the free threshold.
	if !refund.RefundFee.Equal(decimal.NewFromFloat(200.60)) {
		t.Errorf("Expected fee 200.60, got %s", refund.RefundFee)
	}
	if !refund.NetRefund.Equal(decimal.NewFromFloat(9829.40)) {
		t.Errorf("Expected net refund 9829.40, got %s", refund.NetRefund)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func refundRowColumns() []string {
	return []string{
		"id", "payment_id", "refund_number", "refund_reason", "refund_status",
		"refund_amount", "refund_fee", "net_refund", "currency", "requested_by",
		"approved_by", "gateway_refund_id", "description", "requested_at",
		"approved_at", "processed_at",
	}
}

func refundRow(id int64, status models.RefundStatus) *sqlmock.Rows {
	return sqlmock.NewRows(refundRowColumns()).AddRow(
		id, int64(1), "REF-202609011200-AB12CD", models.RefundReasonCustomerRequest,
		status, "10030", "200.60", "9829.40", "TZS", int64(7),
		nil, nil, "", time.Now(), nil, nil,
	)
}

func methodRow(provider string, methodType models.MethodType) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "method_type", "provider", "is_active",
		"processing_fee_percentage", "processing_fee_fixed", "requires_verification", "created_at",
	}).AddRow(int64(2), "Test Method", methodType, provider, true, "1.5000", "0", false, time.Now())
}

func expectRefundLookup(mock sqlmock.Sqlmock, provider string, methodType models.MethodType, status models.RefundStatus) {
	mock.ExpectQuery("SELECT (.+) FROM payment_refunds WHERE id = \\$1").
		WithArgs(int64(9)).
		WillReturnRows(refundRow(9, status))
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1").
		WithArgs(int64(1)).
		WillReturnRows(paymentRow(1, models.PaymentStatusCompleted, "txn_test_1"))
	mock.ExpectQuery("SELECT (.+) FROM payment_methods WHERE id = \\$1").
		WithArgs(int64(2)).
		WillReturnRows(methodRow(provider, methodType))
}

func TestProcessRefund_ManualMethodStaysApproved(t *testing.T) {
	gw := &fakeGateway{name: "vodacom", manualOnly: true}
	svc, _, mock, cleanup := setupPaymentTest(t, gw)
	defer cleanup()

	expectRefundLookup(mock, "vodacom", models.MethodMobileMoney, models.RefundStatusRequested)
	mock.ExpectExec("UPDATE payment_refunds").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE payment_refunds").
		WillReturnResult(sqlmock.NewResult(0, 1))

	refund, err := svc.ProcessRefund(context.Background(), 9, 3)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if refund.RefundStatus != models.RefundStatusApproved {
		t.Errorf("Expected status approved, got %s", refund.RefundStatus)
	}
	if refund.ApprovedAt == nil {
		t.Error("Expected approved_at to be set")
	}
	if !strings.Contains(refund.Description, "manual processing") {
		t.Errorf("Expected turnaround note in description, got %q", refund.Description)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProcessRefund_GatewayDispatchLeavesProcessing(t *testing.T) {
	gw := &fakeGateway{name: "taka-bank"}
	svc, _, mock, cleanup := setupPaymentTest(t, gw)
	defer cleanup()

	expectRefundLookup(mock, "taka-bank", models.MethodBankTransfer, models.RefundStatusRequested)
	mock.ExpectExec("UPDATE payment_refunds").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE payment_refunds").
		WillReturnResult(sqlmock.NewResult(0, 1))

	refund, err := svc.ProcessRefund(context.Background(), 9, 3)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if refund.RefundStatus != models.RefundStatusProcessing {
		t.Errorf("Expected status processing, got %s", refund.RefundStatus)
	}
	if refund.GatewayRefundID != "rf_test_1" {
		t.Errorf("Expected gateway refund id rf_test_1, got %q", refund.GatewayRefundID)
	}
	if refund.ProcessedAt != nil {
		t.Error("Refund must not be marked processed before confirmation")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProcessRefund_GatewayFailureMarksFailed(t *testing.T) {
	gw := &fakeGateway{name: "taka-bank", refundFails: true}
	svc, _, mock, cleanup := setupPaymentTest(t, gw)
	defer cleanup()

	expectRefundLookup(mock, "taka-bank", models.MethodBankTransfer, models.RefundStatusRequested)
	mock.ExpectExec("UPDATE payment_refunds").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE payment_refunds").
		WillReturnResult(sqlmock.NewResult(0, 1))

	refund, err := svc.ProcessRefund(context.Background(), 9, 3)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if refund.RefundStatus != models.RefundStatusFailed {
		t.Errorf("Expected status failed, got %s", refund.RefundStatus)
	}
}

func TestCompleteRefund_SettlesPayment(t *testing.T) {
	svc, orders, mock, cleanup := setupPaymentTest(t, nil)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM payment_refunds WHERE id = \\$1").
		WithArgs(int64(9)).
		WillReturnRows(refundRow(9, models.RefundStatusProcessing))
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1").
		WithArgs(int64(1)).
		WillReturnRows(paymentRow(1, models.PaymentStatusCompleted, "txn_test_1"))
	mock.ExpectExec("UPDATE payment_refunds").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(refund_amount\\), 0\\) FROM payment_refunds").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("10030"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO payment_status_history").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	refund, err := svc.CompleteRefund(context.Background(), 9, 3)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if refund.RefundStatus != models.RefundStatusCompleted {
		t.Errorf("Expected status completed, got %s", refund.RefundStatus)
	}
	if refund.ProcessedAt == nil {
		t.Error("Expected processed_at to be set")
	}
	if orders.refundedCalls != 1 {
		t.Errorf("Expected one refunded-order sync, got %d", orders.refundedCalls)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCompleteRefund_RejectsRequestedRefund(t *testing.T) {
	svc, _, mock, cleanup := setupPaymentTest(t, nil)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM payment_refunds WHERE id = \\$1").
		WithArgs(int64(9)).
		WillReturnRows(refundRow(9, models.RefundStatusRequested))

	_, err := svc.CompleteRefund(context.Background(), 9, 3)
	if !errors.Is(err, ErrRefundNotActionable) {
		t.Fatalf("Expected ErrRefundNotActionable, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
