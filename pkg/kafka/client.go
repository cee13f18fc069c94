// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"doc-whisper-go/internal/config"
	"doc-whisper-go/pkg/log"
	"doc-whisper-go/pkg/tasks"
)

// TaskProcessor 由入库流水线实现，使消费者不依赖具体实现。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestionTask) error
}

// AttemptCounter 记录同一任务的失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// Producer 发送入库任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{writer: &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}}
	log.Info("Kafka 生产者初始化成功")
	return p
}

// PublishIngestionTask 发送一个入库任务，以文档 ID 作为消息 key。
func (p *Producer) PublishIngestionTask(ctx context.Context, task tasks.IngestionTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.DocumentID),
		Value: taskBytes,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader 是消费循环用到的 kafka.Reader 方法子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// StartConsumer 启动消费循环，直到 ctx 取消或读取出错。
// kafka-go 不会重投未提交的消息，因此失败的任务在循环内按退避重试，
// 成功或失败次数达到 MaxAttempts 后才提交 offset。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptCounter) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	c := &consumer{processor: processor, attempts: attempts, maxAttempts: cfg.MaxAttempts, backoff: time.Second}
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	c.run(ctx, r)
}

type consumer struct {
	processor   TaskProcessor
	attempts    AttemptCounter
	maxAttempts int64
	// backoff 是第一次重试前的等待时间，之后每次翻倍。
	backoff time.Duration
}

func (c *consumer) run(ctx context.Context, r messageReader) {
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Kafka 消费者已停止")
			} else {
				log.Error("从 Kafka 读取消息失败", err)
			}
			return
		}
		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		if !c.handle(ctx, m.Value) {
			// 只有 ctx 取消会走到这里，offset 不提交，重启后重新消费
			return
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// handle 处理一条消息直到成功或重试耗尽，返回是否应提交 offset。
// 失败次数同时记在 Redis 中，进程重启后重新消费同一任务时继续累计。
func (c *consumer) handle(ctx context.Context, value []byte) bool {
	var task tasks.IngestionTask
	if err := json.Unmarshal(value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	maxAttempts := max(c.maxAttempts, 1)
	attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.DocumentID)
	wait := c.backoff
	for local := int64(1); ; local++ {
		log.Infof("开始处理入库任务: DocumentID=%s, FileName=%s, 第 %d 次", task.DocumentID, task.FileName, local)
		err := c.processor.Process(ctx, task)
		if err == nil {
			log.Infof("入库任务处理成功: DocumentID=%s", task.DocumentID)
			if rerr := c.attempts.Reset(ctx, attemptsKey); rerr != nil {
				log.Warnf("重置任务失败计数失败: %v", rerr)
			}
			return true
		}
		log.Errorf("处理入库任务失败: DocumentID=%s, Error: %v", task.DocumentID, err)

		n, incErr := c.attempts.Incr(ctx, attemptsKey)
		if incErr != nil {
			log.Warnf("记录任务失败次数失败, 使用本地计数: %v", incErr)
			n = local
		}
		if n >= maxAttempts {
			log.Errorf("入库任务多次失败(>=%d)，提交 offset 终止重试: DocumentID=%s", maxAttempts, task.DocumentID)
			return true
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		wait *= 2
	}
}

// RedisAttemptCounter 用 Redis INCR 记录失败次数，计数保留 24 小时。
type RedisAttemptCounter struct {
	rdb *redis.Client
}

func NewRedisAttemptCounter(rdb *redis.Client) *RedisAttemptCounter {
	return &RedisAttemptCounter{rdb: rdb}
}

func (c *RedisAttemptCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, key, 24*time.Hour).Err()
	return n, nil
}

func (c *RedisAttemptCounter) Reset(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}
