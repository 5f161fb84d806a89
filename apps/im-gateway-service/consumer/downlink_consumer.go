package consumer

import (
	"context"
	"encoding/json"
	"log"

	"github.com/IBM/sarama"

	"orgtalk/api/rest"
	"orgtalk/apps/im-gateway-service/service"
	"orgtalk/pkg/kafka"
)

// DownlinkConsumer 下行消息消费者
// 每个网关实例独占自己的下行topic，消费组按实例隔离
type DownlinkConsumer struct {
	svc      *service.Service
	consumer *kafka.Consumer
}

// NewDownlinkConsumer 创建下行消费者
func NewDownlinkConsumer(svc *service.Service) *DownlinkConsumer {
	return &DownlinkConsumer{svc: svc}
}

// Start 启动下行消费者
func (c *DownlinkConsumer) Start(ctx context.Context, brokers []string) error {
	topic := rest.TopicDownlinkPrefix + c.svc.InstanceID()
	cfg := kafka.KafkaConfig{
		Brokers: brokers,
		GroupID: "im-gateway-" + c.svc.InstanceID(),
		Topics:  []string{topic},
	}

	consumer, err := kafka.InitConsumer(cfg, c)
	if err != nil {
		return err
	}
	c.consumer = consumer
	log.Printf("下行消费者启动成功，监听topic: %s", topic)

	return c.consumer.StartConsuming(ctx)
}

// HandleMessage 实现 kafka.ConsumerHandler 接口
func (c *DownlinkConsumer) HandleMessage(msg *sarama.ConsumerMessage) error {
	var downlink rest.DownlinkMessage
	if err := json.Unmarshal(msg.Value, &downlink); err != nil {
		log.Printf("解析下行消息失败: %v", err)
		return nil
	}
	if err := c.svc.Deliver(context.Background(), &downlink); err != nil {
		log.Printf("下行推送失败: %v", err)
	}
	return nil
}
