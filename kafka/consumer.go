package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/awadhimassomo/Mkulima-smart/middleware"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func InitConsumer(logger *zap.Logger) (sarama.Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true
	config.Consumer.Retry.Backoff = 1 * time.Second

	brokers := []string{getEnv("KAFKA_BROKER", "localhost:9092")}

	consumer, err := sarama.NewConsumer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized")
	return consumer, nil
}

// StartConsumer runs the notification worker loop until ctx is cancelled.
// Each message is retried with linear backoff before being dropped.
func StartConsumer(ctx context.Context, consumer sarama.Consumer, logger *zap.Logger) error {
	topic := getEnv("KAFKA_TOPIC", "marketplace_events")
	partitionConsumer, err := consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer partitionConsumer.Close()

	logger.Info("Kafka consumer started", zap.String("topic", topic))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-partitionConsumer.Messages():
			if err := handleMessageWithRetry(message, logger, 3); err != nil {
				logger.Error("Failed to handle message after retries", zap.Error(err))
			}
		case err := <-partitionConsumer.Errors():
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}
}

func handleMessageWithRetry(message *sarama.ConsumerMessage, logger *zap.Logger, maxRetries int) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := handleMessage(message, logger)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < maxRetries {
			backoff := time.Duration(attempt) * time.Second
			logger.Warn("Retrying message handling",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			time.Sleep(backoff)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func handleMessage(message *sarama.ConsumerMessage, logger *zap.Logger) error {
	// Extract trace context from Kafka message headers
	var propagator propagation.TextMapPropagator = otel.GetTextMapPropagator()
	carrier := saramaHeaderCarrierConsumer(message.Headers)
	ctx := propagator.Extract(context.Background(), carrier)

	var tracer trace.Tracer = otel.Tracer("marketplace-notifications")
	ctx, span := tracer.Start(ctx, "ProcessNotification")
	defer span.End()

	var event map[string]interface{}
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	eventType, ok := event["event_type"].(string)
	if !ok {
		return fmt.Errorf("missing event_type in event")
	}

	span.SetAttributes(attribute.String("event.type", eventType))

	switch eventType {
	case "order_created":
		handleOrderCreated(ctx, event, logger, span)
	case "order_status_changed":
		handleOrderStatusChanged(ctx, event, logger, span)
	case "payment_completed":
		handlePaymentCompleted(ctx, event, logger, span)
	case "payment_failed", "payment_cancelled":
		handlePaymentFailed(ctx, event, logger, span)
	case "refund_completed":
		handleRefundCompleted(ctx, event, logger, span)
	default:
		logger.Debug("Unknown event type", zap.String("event_type", eventType))
	}

	return nil
}

func handleOrderCreated(ctx context.Context, event map[string]interface{}, logger *zap.Logger, span trace.Span) {
	middleware.RecordNotificationSent("order_created")
	orderNumber, _ := event["order_number"].(string)
	sellerID, _ := event["seller_id"].(float64)

	span.SetAttributes(
		attribute.String("order.number", orderNumber),
		attribute.Int("seller.id", int(sellerID)),
	)

	message := fmt.Sprintf("New order %s is waiting for your confirmation.", orderNumber)
	logger.Info("Order notification sent",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("order_number", orderNumber),
		zap.Float64("seller_id", sellerID),
		zap.String("message", message),
	)
}

func handleOrderStatusChanged(ctx context.Context, event map[string]interface{}, logger *zap.Logger, span trace.Span) {
	middleware.RecordNotificationSent("order_status_changed")
	orderNumber, _ := event["order_number"].(string)
	toStatus, _ := event["to_status"].(string)
	buyerID, _ := event["buyer_id"].(float64)

	span.SetAttributes(
		attribute.String("order.number", orderNumber),
		attribute.String("order.status", toStatus),
	)

	message := fmt.Sprintf("Your order %s is now %s.", orderNumber, toStatus)
	logger.Info("Order status notification sent",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("order_number", orderNumber),
		zap.Float64("buyer_id", buyerID),
		zap.String("message", message),
	)
}

func handlePaymentCompleted(ctx context.Context, event map[string]interface{}, logger *zap.Logger, span trace.Span) {
	middleware.RecordNotificationSent("payment_completed")
	reference, _ := event["reference_number"].(string)
	payerID, _ := event["payer_id"].(float64)
	gatewayTxnID, _ := event["gateway_transaction_id"].(string)

	span.SetAttributes(
		attribute.String("payment.reference", reference),
		attribute.String("transaction.id", gatewayTxnID),
	)

	message := fmt.Sprintf("Payment %s was successful. Transaction ID: %s", reference, gatewayTxnID)
	logger.Info("Payment success notification sent",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("reference", reference),
		zap.Float64("payer_id", payerID),
		zap.String("message", message),
	)
}

func handlePaymentFailed(ctx context.Context, event map[string]interface{}, logger *zap.Logger, span trace.Span) {
	eventType, _ := event["event_type"].(string)
	middleware.RecordNotificationSent(eventType)
	reference, _ := event["reference_number"].(string)
	payerID, _ := event["payer_id"].(float64)

	span.SetAttributes(attribute.String("payment.reference", reference))

	message := fmt.Sprintf("Payment %s did not complete. Please try again or choose another method.", reference)
	logger.Info("Payment failure notification sent",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("reference", reference),
		zap.Float64("payer_id", payerID),
		zap.String("message", message),
	)
}

func handleRefundCompleted(ctx context.Context, event map[string]interface{}, logger *zap.Logger, span trace.Span) {
	middleware.RecordNotificationSent("refund_completed")
	reference, _ := event["reference_number"].(string)
	payerID, _ := event["payer_id"].(float64)
	amount, _ := event["gross_amount"].(string)

	span.SetAttributes(attribute.String("refund.number", reference))

	message := fmt.Sprintf("Refund %s of %s has been processed.", reference, amount)
	logger.Info("Refund notification sent",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("refund_number", reference),
		zap.Float64("payer_id", payerID),
		zap.String("message", message),
	)
}

// saramaHeaderCarrierConsumer implements the TextMapCarrier interface for Kafka headers (for consumer)
type saramaHeaderCarrierConsumer []*sarama.RecordHeader

func (c saramaHeaderCarrierConsumer) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c saramaHeaderCarrierConsumer) Set(key, value string) {
	// Not needed for extraction
}

func (c saramaHeaderCarrierConsumer) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
