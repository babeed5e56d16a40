// Package kafka 提供了与 Kafka 消息队列交互的功能：
// 消费山顶写入端的 ingest 通知，并发布归档事件。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"fitsstore-go/internal/config"
	"fitsstore-go/pkg/log"
	"fitsstore-go/pkg/tasks"
)

// maxAttempts 是同一条通知处理失败后放弃前的最大尝试次数。
const maxAttempts = 3

// NotificationHandler 处理一条 ingest 通知。
// 它把 Kafka 消费者与具体的入队实现解耦。
type NotificationHandler interface {
	HandleNotification(ctx context.Context, n tasks.IngestNotification) error
}

// Producer 向事件主题发布归档事件。
type Producer struct {
	w *kafka.Writer
}

// NewProducer 创建 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.EventTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	log.Infof("[Kafka] 生产者初始化成功, topic=%s", cfg.EventTopic)
	return &Producer{w: w}
}

// Publish 发送一个归档事件，以文件名为 key 保证同一文件的事件有序。
func (p *Producer) Publish(ctx context.Context, ev tasks.ArchiveEvent) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Filename), Value: b})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.w.Close()
}

// AttemptCounter 记录每条消息的失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// RedisCounter 是基于 Redis INCR 的 AttemptCounter，计数 24 小时后过期。
type RedisCounter struct {
	RDB *redis.Client
}

func (c RedisCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.RDB.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.RDB.Expire(ctx, key, 24*time.Hour).Err()
	return n, nil
}

func (c RedisCounter) Reset(ctx context.Context, key string) error {
	return c.RDB.Del(ctx, key).Err()
}

// messageReader 是 kafka.Reader 中消费循环用到的部分。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 消费 ingest 通知主题。
type Consumer struct {
	r       messageReader
	handler NotificationHandler
	counter AttemptCounter
}

// NewConsumer 创建一个消费 ingest 通知的 Consumer。
func NewConsumer(cfg config.KafkaConfig, handler NotificationHandler, counter AttemptCounter) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.IngestTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{r: r, handler: handler, counter: counter}
}

// Run 持续消费直到 ctx 取消。处理成功或失败达到上限后提交 offset；
// 失败次数未达上限时不提交，让 Kafka 重新投递。
func (c *Consumer) Run(ctx context.Context) error {
	log.Info("[Kafka] ingest 通知消费者已启动")
	defer func() {
		if err := c.r.Close(); err != nil {
			log.Errorf("[Kafka] 关闭消费者失败: %v", err)
		}
	}()
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			log.Error("[Kafka] 从 Kafka 读取消息失败", err)
			return err
		}
		if c.handle(ctx, m) {
			if err := c.r.CommitMessages(ctx, m); err != nil {
				log.Errorf("[Kafka] 提交 offset 失败: %v", err)
			}
		}
	}
}

// handle 处理一条消息并返回是否应提交 offset。
func (c *Consumer) handle(ctx context.Context, m kafka.Message) bool {
	var n tasks.IngestNotification
	if err := json.Unmarshal(m.Value, &n); err != nil || n.Filename == "" {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("[Kafka] 无法解析 ingest 通知: offset=%d, value=%s", m.Offset, string(m.Value))
		return true
	}

	key := fmt.Sprintf("kafka:attempts:%d:%d", m.Partition, m.Offset)
	if err := c.handler.HandleNotification(ctx, n); err != nil {
		log.Errorf("[Kafka] 处理 ingest 通知失败: filename=%s, err=%v", n.Filename, err)
		attempts, incErr := c.counter.Incr(ctx, key)
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			return false
		}
		if attempts >= maxAttempts {
			log.Errorf("[Kafka] ingest 通知多次失败(>=%d)，提交 offset 终止重试: filename=%s", maxAttempts, n.Filename)
			return true
		}
		return false
	}
	_ = c.counter.Reset(ctx, key)
	log.Infof("[Kafka] 已入队 ingest: %s", n.Filename)
	return true
}
