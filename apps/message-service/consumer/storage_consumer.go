package consumer

import (
	"context"
	"encoding/json"
	"log"

	"github.com/IBM/sarama"

	"orgtalk/api/rest"
	"orgtalk/apps/message-service/service"
	"orgtalk/pkg/kafka"
)

// StorageConsumer 存储消费者，处理网关上行的消息
// 幂等性保护：依赖MongoDB的message_id唯一索引
type StorageConsumer struct {
	svc      *service.Service
	consumer *kafka.Consumer
}

// NewStorageConsumer 创建存储消费者
func NewStorageConsumer(svc *service.Service) *StorageConsumer {
	return &StorageConsumer{svc: svc}
}

// Start 启动存储消费者
func (s *StorageConsumer) Start(ctx context.Context, brokers []string) error {
	cfg := kafka.KafkaConfig{
		Brokers: brokers,
		GroupID: "message-storage-group",
		Topics:  []string{rest.TopicUplinkMessages},
	}

	consumer, err := kafka.InitConsumer(cfg, s)
	if err != nil {
		return err
	}
	s.consumer = consumer
	log.Printf("存储消费者启动成功，监听topic: %s", rest.TopicUplinkMessages)

	return s.consumer.StartConsuming(ctx)
}

// HandleMessage 实现 kafka.ConsumerHandler 接口
// 坏消息记日志后吞掉，避免毒丸阻塞整个分区
func (s *StorageConsumer) HandleMessage(msg *sarama.ConsumerMessage) error {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("存储消费者处理消息时发生panic: %v", r)
		}
	}()

	var up rest.UplinkMessage
	if err := json.Unmarshal(msg.Value, &up); err != nil {
		log.Printf("解析上行消息失败: %v, 原始消息: %s", err, string(msg.Value))
		return nil
	}

	if err := s.svc.SaveInbound(context.Background(), &up); err != nil {
		log.Printf("存储上行消息失败: MessageID=%d, err=%v", up.MessageID, err)
		return nil
	}
	return nil
}
