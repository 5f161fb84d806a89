package dao

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"orgtalk/api/rest"
)

// MessageIndex 消息归档索引名
const MessageIndex = "orgtalk_messages"

// SearchDAO 消息全文检索接口
type SearchDAO interface {
	// IndexMessage 写入归档索引，按message_id幂等覆盖
	IndexMessage(ctx context.Context, msg *rest.WireMessage) error

	// SearchMessages 关键词搜索，可按会话过滤
	SearchMessages(ctx context.Context, req *rest.SearchMessagesRequest) ([]*rest.WireMessage, int64, error)
}

// esSearchDAO Elasticsearch实现
type esSearchDAO struct {
	client *elasticsearch.Client
}

// NewSearchDAO 创建搜索DAO
func NewSearchDAO(client *elasticsearch.Client) SearchDAO {
	return &esSearchDAO{client: client}
}

// IndexMessage 写入归档索引
func (d *esSearchDAO) IndexMessage(ctx context.Context, msg *rest.WireMessage) error {
	doc, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("编码索引文档失败: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      MessageIndex,
		DocumentID: strconv.FormatInt(msg.MessageID, 10),
		Body:       bytes.NewReader(doc),
	}
	res, err := req.Do(ctx, d.client)
	if err != nil {
		return fmt.Errorf("写入索引失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("写入索引失败: %s", res.String())
	}
	return nil
}

// SearchMessages 关键词搜索
func (d *esSearchDAO) SearchMessages(ctx context.Context, req *rest.SearchMessagesRequest) ([]*rest.WireMessage, int64, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.Size
	if size <= 0 {
		size = 20
	}

	must := []map[string]interface{}{
		{"match": map[string]interface{}{"content": req.Keyword}},
	}
	filter := []map[string]interface{}{
		{"term": map[string]interface{}{"deleted": false}},
	}
	if req.ConversationID != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"conversation_id.keyword": req.ConversationID},
		})
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filter,
			},
		},
		"from": (page - 1) * size,
		"size": size,
		"sort": []map[string]interface{}{
			{"timestamp": map[string]interface{}{"order": "desc"}},
		},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, 0, fmt.Errorf("编码搜索请求失败: %w", err)
	}

	searchReq := esapi.SearchRequest{
		Index: []string{MessageIndex},
		Body:  bytes.NewReader(body),
	}
	res, err := searchReq.Do(ctx, d.client)
	if err != nil {
		return nil, 0, fmt.Errorf("搜索失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, fmt.Errorf("搜索失败: %s", res.String())
	}

	var result struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source *rest.WireMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, 0, fmt.Errorf("解析搜索结果失败: %w", err)
	}

	messages := make([]*rest.WireMessage, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		if hit.Source != nil {
			messages = append(messages, hit.Source)
		}
	}
	return messages, result.Hits.Total.Value, nil
}
