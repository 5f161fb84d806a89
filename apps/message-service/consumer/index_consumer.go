package consumer

import (
	"context"
	"encoding/json"
	"log"

	"github.com/IBM/sarama"

	"orgtalk/api/rest"
	"orgtalk/apps/message-service/dao"
	"orgtalk/pkg/kafka"
)

// IndexConsumer 归档索引消费者，把新消息写入Elasticsearch
type IndexConsumer struct {
	searchDAO dao.SearchDAO
	consumer  *kafka.Consumer
}

// NewIndexConsumer 创建归档索引消费者
func NewIndexConsumer(searchDAO dao.SearchDAO) *IndexConsumer {
	return &IndexConsumer{searchDAO: searchDAO}
}

// Start 启动索引消费者
func (c *IndexConsumer) Start(ctx context.Context, brokers []string) error {
	cfg := kafka.KafkaConfig{
		Brokers: brokers,
		GroupID: "message-index-group",
		Topics:  []string{rest.TopicConversationEvents},
	}

	consumer, err := kafka.InitConsumer(cfg, c)
	if err != nil {
		return err
	}
	c.consumer = consumer
	log.Printf("归档索引消费者启动成功，监听topic: %s", rest.TopicConversationEvents)

	return c.consumer.StartConsuming(ctx)
}

// HandleMessage 实现 kafka.ConsumerHandler 接口
func (c *IndexConsumer) HandleMessage(msg *sarama.ConsumerMessage) error {
	var event rest.ConversationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("解析会话事件失败: %v", err)
		return nil
	}

	// 创建/编辑/删除都重写文档，message_id覆盖写天然幂等
	switch event.Type {
	case rest.EventTypeMessageCreated, rest.EventTypeMessageEdited, rest.EventTypeMessageDeleted:
		if event.Message == nil {
			return nil
		}
		if err := c.searchDAO.IndexMessage(context.Background(), event.Message); err != nil {
			log.Printf("写入归档索引失败: MessageID=%d, err=%v", event.Message.MessageID, err)
		}
	}
	return nil
}
