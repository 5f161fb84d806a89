package consumer

import (
	"context"
	"encoding/json"
	"log"

	"github.com/IBM/sarama"

	"orgtalk/api/rest"
	"orgtalk/apps/conversation-service/service"
	"orgtalk/pkg/kafka"
)

// EventConsumer 会话与信令事件消费者
// 只负责解码和入队，合并由service的单序队列串行执行
// 信令事件不改镜像，订阅它们只为按成员定向下发
type EventConsumer struct {
	svc      *service.Service
	consumer *kafka.Consumer
}

// NewEventConsumer 创建会话事件消费者
func NewEventConsumer(svc *service.Service) *EventConsumer {
	return &EventConsumer{svc: svc}
}

// Start 启动事件消费者
func (c *EventConsumer) Start(ctx context.Context, brokers []string) error {
	cfg := kafka.KafkaConfig{
		Brokers: brokers,
		GroupID: "conversation-merge-group",
		Topics:  []string{rest.TopicConversationEvents, rest.TopicSignalEvents},
	}

	consumer, err := kafka.InitConsumer(cfg, c)
	if err != nil {
		return err
	}
	c.consumer = consumer
	log.Printf("会话事件消费者启动成功，监听topic: %s, %s", rest.TopicConversationEvents, rest.TopicSignalEvents)

	return c.consumer.StartConsuming(ctx)
}

// HandleMessage 实现 kafka.ConsumerHandler 接口
// 坏事件吞掉不重试，一条坏事件不能拖垮整个合并流
func (c *EventConsumer) HandleMessage(msg *sarama.ConsumerMessage) error {
	var event rest.ConversationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("解析会话事件失败: %v, 原始消息: %s", err, string(msg.Value))
		return nil
	}
	c.svc.Enqueue(&event)
	return nil
}
