package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"payment_processing/internal/cache"
	"payment_processing/internal/metrics"
	"payment_processing/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// IntakeService принимает заявку из топика. Ошибки с Permanent()==true
// (валидация, дубликат) не блокируют партицию — сообщение коммитится.
type IntakeService interface {
	SubmitPayment(ctx context.Context, req *models.PaymentRequest, idempotencyKey *uuid.UUID) error
}

type PermanentError interface {
	error
	Permanent() bool
}

type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler sarama.ConsumerGroupHandler
	logger  *log.Logger
}

func NewConsumer(
	brokers []string,
	groupID string,
	topic string,
	intake IntakeService,
	c cache.Cache,
	logger *log.Logger,
) (*Consumer, error) {
	if logger == nil {
		logger = log.Default()
	}

	cfg := sarama.NewConfig()

	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	// Важно: коммит только руками после успешной обработки
	cfg.Consumer.Offsets.AutoCommit.Enable = false

	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRange(),
	}
	cfg.Consumer.Group.Session.Timeout = 30 * time.Second
	cfg.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	h := &paymentGroupHandler{
		intake: intake,
		cache:  c,
		logger: logger,
	}

	return &Consumer{
		group:   group,
		topic:   topic,
		handler: h,
		logger:  logger,
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	// Ошибки группы в отдельный поток логов
	go func() {
		for err := range c.group.Errors() {
			c.logger.Printf("consumer group error: %v", err)
			metrics.IncKafkaError("consumer", "group")
		}
	}()

	for {
		err := c.group.Consume(ctx, []string{c.topic}, c.handler)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Printf("consume loop error: %v", err)
			time.Sleep(1 * time.Second)
			continue
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type paymentGroupHandler struct {
	intake IntakeService
	cache  cache.Cache
	logger *log.Logger
}

func (h *paymentGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *paymentGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *paymentGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	for kafkaMsg := range claim.Messages() {
		// retry до успеха (или пока не отменён контекст)
		if err := h.processWithRetry(session.Context(), kafkaMsg); err != nil {
			metrics.IncKafkaError("consumer", "process")
			// Сообщение НЕ отмечаем и НЕ коммитим -> будет прочитано снова
			return err
		}
		metrics.IncKafkaProcessed()

		if h.cache != nil {
			h.invalidateListCache(session.Context())
		}
		// Только после успеха:
		session.MarkMessage(kafkaMsg, "")
		session.Commit()
	}
	return nil
}

func (h *paymentGroupHandler) processWithRetry(ctx context.Context, m *sarama.ConsumerMessage) error {
	attempt := 0

	for {
		attempt++
		err := h.processOnce(ctx, m)
		if err == nil {
			return nil
		}

		// битое или дублирующее сообщение партицию не держит
		var perm PermanentError
		if errors.As(err, &perm) && perm.Permanent() {
			h.logger.Printf(
				"skip kafka message topic=%s partition=%d offset=%d: %v",
				m.Topic, m.Partition, m.Offset, err,
			)
			return nil
		}

		backoff := retryBackoff(attempt)
		h.logger.Printf(
			"process kafka message failed topic=%s partition=%d offset=%d attempt=%d err=%v; retry in %s",
			m.Topic, m.Partition, m.Offset, attempt, err, backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (h *paymentGroupHandler) processOnce(ctx context.Context, m *sarama.ConsumerMessage) error {
	var msg PaymentRequestMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return unmarshalError{err}
	}
	if err := h.intake.SubmitPayment(ctx, &msg.PaymentRequest, msg.IdempotencyKey); err != nil {
		return fmt.Errorf("submit payment: %w", err)
	}
	return nil
}

// unmarshalError — не-JSON в топике повторять бессмысленно.
type unmarshalError struct{ err error }

func (e unmarshalError) Error() string   { return fmt.Sprintf("unmarshal payment request: %v", e.err) }
func (e unmarshalError) Unwrap() error   { return e.err }
func (e unmarshalError) Permanent() bool { return true }

func retryBackoff(attempt int) time.Duration {
	// линейный backoff 1..30 сек
	d := time.Duration(attempt) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func (h *paymentGroupHandler) invalidateListCache(ctx context.Context) {
	setKey := cache.PaymentListKeysSetKey()
	keys, err := h.cache.SMembers(ctx, setKey)
	if err == nil && len(keys) > 0 {
		_ = h.cache.Del(ctx, keys...)
	}
	_ = h.cache.Del(ctx, setKey)
}
