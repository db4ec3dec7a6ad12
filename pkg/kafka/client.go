// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chunkvault/internal/config"
	"chunkvault/pkg/database"
	"chunkvault/pkg/log"
	"chunkvault/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// maxAttempts 之后提交 offset，放弃该任务。
const maxAttempts = 3

// TaskProcessor 定义了可以处理归档任务的服务，使消费者与具体流水线解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ArtifactTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = newWriter(cfg)
	log.Info("Kafka 生产者初始化成功")
}

// newWriter 构建生产者。完成通知逐条同步发送，BatchTimeout 必须很短。
func newWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokerList(cfg.Brokers)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
	}
}

// CloseProducer 关闭生产者并刷新未发送的消息。
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	return producer.Close()
}

// ProduceArtifactTask 发送一个归档任务到 Kafka，以文件名作为消息 key。
func ProduceArtifactTask(ctx context.Context, task tasks.ArtifactTask) error {
	if producer == nil {
		return errors.New("kafka producer is not initialized")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.FileName),
		Value: taskBytes,
	})
}

// Notifier 把完成通知转发到 Kafka。
type Notifier struct{}

// Notify 实现 service.CompletionNotifier。
func (Notifier) Notify(ctx context.Context, task tasks.ArtifactTask) error {
	return ProduceArtifactTask(ctx, task)
}

// StartConsumer 启动一个 Kafka 消费者来处理归档任务，直到 ctx 结束。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokerList(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	attempts := newAttemptCounter(database.RDB)
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var task tasks.ArtifactTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(ctx, r, m)
			continue
		}

		attemptKey := fmt.Sprintf("kafka:attempts:%s:%d", task.FileName, task.CompletedAt.UnixNano())
		if processWithRetry(ctx, processor, task, attempts, attemptKey) {
			log.Infof("归档任务处理成功: FileName=%s", task.FileName)
		}
		if ctx.Err() != nil {
			// 未提交的消息会在重启后重新投递
			return
		}
		commit(ctx, r, m)
	}
}

// processWithRetry 最多尝试 maxAttempts 次；失败次数记录在计数器中，进程重启后继续累计。
func processWithRetry(ctx context.Context, processor TaskProcessor, task tasks.ArtifactTask, attempts attemptCounter, key string) bool {
	for local := int64(1); ; local++ {
		err := processor.Process(ctx, task)
		if err == nil {
			attempts.Reset(ctx, key)
			return true
		}
		log.Errorf("处理归档任务失败: FileName=%s, Error: %v", task.FileName, err)

		n, incErr := attempts.Incr(ctx, key)
		if incErr != nil || n < local {
			n = local
		}
		if n >= maxAttempts {
			log.Errorf("归档任务多次失败(>=%d)，提交 offset 终止重试: FileName=%s", maxAttempts, task.FileName)
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(n) * time.Second):
		}
	}
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

func brokerList(brokers string) []string {
	var list []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			list = append(list, b)
		}
	}
	return list
}

// attemptCounter 记录每个任务的失败次数。
type attemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string)
}

func newAttemptCounter(rdb *redis.Client) attemptCounter {
	if rdb == nil {
		return &memoryAttempts{counts: make(map[string]int64)}
	}
	return &redisAttempts{rdb: rdb}
}

type redisAttempts struct {
	rdb *redis.Client
}

func (a *redisAttempts) Incr(ctx context.Context, key string) (int64, error) {
	n, err := a.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = a.rdb.Expire(ctx, key, 24*time.Hour).Err()
	return n, nil
}

func (a *redisAttempts) Reset(ctx context.Context, key string) {
	_ = a.rdb.Del(ctx, key).Err()
}

type memoryAttempts struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (a *memoryAttempts) Incr(_ context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[key]++
	return a.counts[key], nil
}

func (a *memoryAttempts) Reset(_ context.Context, key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.counts, key)
}
