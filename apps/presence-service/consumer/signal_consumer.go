package consumer

import (
	"context"
	"encoding/json"
	"log"

	"github.com/IBM/sarama"

	"orgtalk/api/rest"
	"orgtalk/apps/presence-service/service"
	"orgtalk/pkg/kafka"
)

// SignalConsumer 信令消费者，从网关事件重建内存状态
type SignalConsumer struct {
	svc      *service.Service
	consumer *kafka.Consumer
}

// NewSignalConsumer 创建信令消费者
func NewSignalConsumer(svc *service.Service) *SignalConsumer {
	return &SignalConsumer{svc: svc}
}

// Start 启动信令消费者
func (c *SignalConsumer) Start(ctx context.Context, brokers []string) error {
	cfg := kafka.KafkaConfig{
		Brokers: brokers,
		GroupID: "presence-signal-group",
		Topics:  []string{rest.TopicSignalEvents},
	}

	consumer, err := kafka.InitConsumer(cfg, c)
	if err != nil {
		return err
	}
	c.consumer = consumer
	log.Printf("信令消费者启动成功，监听topic: %s", rest.TopicSignalEvents)

	return c.consumer.StartConsuming(ctx)
}

// HandleMessage 实现 kafka.ConsumerHandler 接口
func (c *SignalConsumer) HandleMessage(msg *sarama.ConsumerMessage) error {
	var event rest.ConversationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("解析信令事件失败: %v", err)
		return nil
	}
	c.svc.ApplySignal(context.Background(), &event)
	return nil
}
