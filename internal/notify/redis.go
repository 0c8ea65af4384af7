package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultStream    = "carebridge:notifications"
	DefaultGroup     = "carebridge-notifier"
	payloadField     = "payload"
	readBlock        = 5 * time.Second
	readBatch        = 16
	maxStreamLen     = 10000
	publishTimeout   = 5 * time.Second
	defaultClaimIdle = 2 * time.Minute
)

// RedisQueue publishes notifications to a Redis stream so a consumer in any
// process can deliver them. It is a Deliverer: put it behind an
// AsyncDispatcher so XADD never runs on the request goroutine.
type RedisQueue struct {
	client redis.UniversalClient
	stream string
	log    *slog.Logger
}

func NewRedisQueue(client redis.UniversalClient, stream string, log *slog.Logger) *RedisQueue {
	if stream == "" {
		stream = DefaultStream
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisQueue{client: client, stream: stream, log: log.With(slog.String("component", "notify"))}
}

// Deliver publishes n, bounded by its own timeout.
func (q *RedisQueue) Deliver(ctx context.Context, n Notification) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := q.Publish(ctx, n); err != nil {
		q.log.WarnContext(ctx, "notification dropped",
			slog.String("reason", "publish failed"),
			slog.String("template", n.Template),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

func (q *RedisQueue) Publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: encode notification: %w", err)
	}
	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{payloadField: string(payload)},
	}).Err()
	if err != nil {
		return fmt.Errorf("notify: xadd %s: %w", q.stream, err)
	}
	return nil
}

type RedisConsumerConfig struct {
	Stream string
	// Group is shared by every replica; each entry goes to one member.
	Group string
	// Consumer must be unique per process.
	Consumer string
	// ClaimIdle is how long an unacknowledged entry stays with a consumer
	// before another one takes it over.
	ClaimIdle time.Duration
}

// RedisConsumer reads the stream through a consumer group, so each entry is
// handed to one replica. Entries are acknowledged and deleted after one
// delivery attempt. Entries left pending by a dead consumer are claimed once
// they have been idle for ClaimIdle.
type RedisConsumer struct {
	client     redis.UniversalClient
	cfg        RedisConsumerConfig
	courier    Deliverer
	log        *slog.Logger
	groupReady bool
}

func NewRedisConsumer(client redis.UniversalClient, cfg RedisConsumerConfig, courier Deliverer, log *slog.Logger) *RedisConsumer {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "consumer-1"
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = defaultClaimIdle
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisConsumer{
		client:  client,
		cfg:     cfg,
		courier: courier,
		log:     log.With(slog.String("component", "notify_consumer"), slog.String("consumer", cfg.Consumer)),
	}
}

// Run blocks until ctx ends.
func (c *RedisConsumer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := c.Poll(ctx, readBlock); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.WarnContext(ctx, "notification stream read failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// Poll claims stale entries, reads one new batch, delivers both and returns
// how many entries it handled. A negative block returns immediately when
// nothing is waiting.
func (c *RedisConsumer) Poll(ctx context.Context, block time.Duration) (int, error) {
	if err := c.ensureGroup(ctx); err != nil {
		return 0, err
	}

	claimed, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.ClaimIdle,
		Start:    "0-0",
		Count:    readBatch,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, c.readError("xautoclaim", err)
	}
	handled := c.process(ctx, claimed)

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    readBatch,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return handled, nil
	}
	if err != nil {
		return handled, c.readError("xreadgroup", err)
	}
	for _, s := range streams {
		handled += c.process(ctx, s.Messages)
	}
	return handled, nil
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	if c.groupReady {
		return nil
	}
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("notify: create group %s on %s: %w", c.cfg.Group, c.cfg.Stream, err)
	}
	c.groupReady = true
	return nil
}

func (c *RedisConsumer) readError(op string, err error) error {
	if strings.HasPrefix(err.Error(), "NOGROUP") {
		c.groupReady = false
	}
	return fmt.Errorf("notify: %s %s: %w", op, c.cfg.Stream, err)
}

func (c *RedisConsumer) process(ctx context.Context, msgs []redis.XMessage) int {
	for _, msg := range msgs {
		c.handle(ctx, msg)
		if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
			c.log.WarnContext(ctx, "notification ack failed", slog.String("entry_id", msg.ID), slog.Any("error", err))
			continue
		}
		if err := c.client.XDel(ctx, c.cfg.Stream, msg.ID).Err(); err != nil {
			c.log.WarnContext(ctx, "notification delete failed", slog.String("entry_id", msg.ID), slog.Any("error", err))
		}
	}
	return len(msgs)
}

func (c *RedisConsumer) handle(ctx context.Context, msg redis.XMessage) {
	raw, _ := msg.Values[payloadField].(string)
	var n Notification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		c.log.ErrorContext(ctx, "notification entry discarded", slog.String("entry_id", msg.ID), slog.Any("error", err))
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	_ = c.courier.Deliver(sendCtx, n)
}

var _ Deliverer = (*RedisQueue)(nil)
