// Package mq receives alarm events over AMQP. Edge gateways that cannot
// reach the HTTP endpoint directly publish the same JSON payloads to a
// broker instead; both transports converge on one ingestion path.
package mq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"algoedge.xyz/alarm-relay-service/pkg/alarm"
	"algoedge.xyz/alarm-relay-service/pkg/common"
)

// MessageHandler processes one message body.
type MessageHandler func(ctx context.Context, body []byte) error

type ConsumerConfig struct {
	URL           string
	Queue         string
	PrefetchCount int
	Handler       MessageHandler
}

// Consumer pulls alarm events off a durable queue with manual
// acknowledgement. Failed messages dead-letter to <queue>.dlq.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	handler MessageHandler
	logger  *zap.Logger
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	logger := common.GetLoggerWith(common.LoggerNameMQConsumer)

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if cfg.PrefetchCount <= 0 {
		cfg.PrefetchCount = 8
	}
	if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	dlq := cfg.Queue + ".dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare dlq: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		// An existing queue declared without DLX keeps its arguments.
		logger.Warn("Queue declare with DLX failed, retrying without", zap.Error(err))
		if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare queue: %w", err)
		}
	}

	return &Consumer{
		conn:    conn,
		channel: ch,
		queue:   cfg.Queue,
		handler: cfg.Handler,
		logger:  logger,
	}, nil
}

// Start begins consuming. It returns once the delivery loop goroutine is
// running; the loop stops when ctx is cancelled or the channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("Consumer started", zap.String("queue", c.queue))

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Consumer stopping")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("Delivery channel closed")
					return
				}
				c.process(ctx, msg)
			}
		}
	}()
	return nil
}

func (c *Consumer) process(ctx context.Context, msg amqp.Delivery) {
	if err := c.handler(ctx, msg.Body); err != nil {
		c.logger.Error("Message processing failed",
			zap.Error(err),
			zap.Int("body_size", len(msg.Body)))
		// requeue=false dead-letters the message
		if nackErr := msg.Nack(false, false); nackErr != nil {
			c.logger.Error("Nack failed", zap.Error(nackErr))
		}
		return
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		c.logger.Error("Ack failed", zap.Error(ackErr))
	}
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IngestHandler adapts the alarm ingestion path into a MessageHandler.
// Malformed JSON is dropped with a nil return so it is acked instead of
// looping through the dead-letter queue.
func IngestHandler(ingest alarm.IIngest) MessageHandler {
	logger := common.GetLoggerWith(common.LoggerNameMQConsumer)
	return func(ctx context.Context, body []byte) error {
		var ev alarm.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			logger.Warn("Dropping malformed event payload", zap.Error(err))
			return nil
		}
		ack, err := ingest.HandleEvent(ctx, &ev, body, false)
		if err != nil {
			return err
		}
		logger.Debug("Event handled",
			zap.String("device", ev.Identity()),
			zap.Bool("forwarded", ack.Forwarded),
			zap.String("reason", ack.Reason))
		return nil
	}
}
