package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"orgtalk/api/rest"
	"orgtalk/apps/im-gateway-service/model"
	"orgtalk/pkg/auth"
	"orgtalk/pkg/logger"
	"orgtalk/pkg/snowflake"
)

func init() {
	if err := snowflake.InitGlobalSnowflake(29); err != nil {
		panic(err)
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (p *recordingPublisher) SendMessage(topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, value)
	return nil
}

type fakeRouter struct {
	mu        sync.Mutex
	bound     map[int64]string
	refreshed []int64
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{bound: make(map[int64]string)}
}

func (r *fakeRouter) BindUser(ctx context.Context, userID int64, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bound[userID] = instanceID
	return nil
}

func (r *fakeRouter) RefreshUser(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshed = append(r.refreshed, userID)
	return nil
}

func (r *fakeRouter) UnbindUser(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bound, userID)
	return nil
}

func newGatewayFixture(t *testing.T) (*Service, *recordingPublisher, *fakeRouter) {
	t.Helper()
	log, err := logger.NewLogger("error")
	if err != nil {
		t.Fatalf("创建logger失败: %v", err)
	}
	pub := &recordingPublisher{}
	router := newFakeRouter()
	svc := NewService(NewRegistry(), pub, router, log, "orgtalk", "im-gateway-test-1")
	return svc, pub, router
}

func uplinkFrame(t *testing.T, msg *rest.UplinkMessage) []byte {
	t.Helper()
	raw, err := json.Marshal(&model.ClientFrame{Op: model.OpMessage, Message: msg})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

// 上行消息分配服务端消息ID并入队，回执携带客户端AckID
func TestHandleUplinkMessage(t *testing.T) {
	svc, pub, _ := newGatewayFixture(t)

	reply := svc.HandleFrame(context.Background(), 7, uplinkFrame(t, &rest.UplinkMessage{
		AckID:          "local-1",
		ConversationID: "c1",
		Type:           rest.MessageTypeText,
		Content:        "hello",
	}))

	if reply.Op != model.OpAck {
		t.Fatalf("应返回ack帧: %+v", reply)
	}
	if reply.AckID != "local-1" {
		t.Errorf("回执应携带客户端AckID: %s", reply.AckID)
	}
	if reply.MessageID == 0 {
		t.Error("回执应携带服务端分配的消息ID")
	}

	if len(pub.topics) != 1 || pub.topics[0] != rest.TopicUplinkMessages {
		t.Fatalf("消息应进上行topic: %v", pub.topics)
	}
	var sent rest.UplinkMessage
	if err := json.Unmarshal(pub.payloads[0], &sent); err != nil {
		t.Fatal(err)
	}
	if sent.MessageID != reply.MessageID {
		t.Error("入队消息ID应与回执一致")
	}
	if sent.Timestamp == 0 {
		t.Error("入队消息应带时间戳")
	}
}

// 发送者以连接身份为准，帧内伪造的sender_id被覆盖
func TestUplinkSenderOverride(t *testing.T) {
	svc, pub, _ := newGatewayFixture(t)

	svc.HandleFrame(context.Background(), 7, uplinkFrame(t, &rest.UplinkMessage{
		ConversationID: "c1",
		SenderID:       999,
		Type:           rest.MessageTypeText,
		Content:        "spoofed",
	}))

	var sent rest.UplinkMessage
	if err := json.Unmarshal(pub.payloads[0], &sent); err != nil {
		t.Fatal(err)
	}
	if sent.SenderID != 7 {
		t.Errorf("发送者应为连接身份: %d", sent.SenderID)
	}
}

func TestUplinkInvalidType(t *testing.T) {
	svc, pub, _ := newGatewayFixture(t)

	reply := svc.HandleFrame(context.Background(), 7, uplinkFrame(t, &rest.UplinkMessage{
		AckID:          "local-2",
		ConversationID: "c1",
		Type:           "carrier_pigeon",
	}))

	if reply.Op != model.OpError || reply.AckID != "local-2" {
		t.Errorf("非法消息类型应返回error帧: %+v", reply)
	}
	if len(pub.topics) != 0 {
		t.Error("非法消息不应入队")
	}
}

func TestHeartbeatRefreshesRoute(t *testing.T) {
	svc, _, router := newGatewayFixture(t)

	raw, _ := json.Marshal(&model.ClientFrame{Op: model.OpHeartbeat})
	reply := svc.HandleFrame(context.Background(), 7, raw)

	if reply.Op != model.OpPong {
		t.Fatalf("心跳应返回pong: %+v", reply)
	}
	if len(router.refreshed) != 1 || router.refreshed[0] != 7 {
		t.Errorf("心跳应续期用户路由: %v", router.refreshed)
	}
}

func TestMalformedFrame(t *testing.T) {
	svc, _, _ := newGatewayFixture(t)

	reply := svc.HandleFrame(context.Background(), 7, []byte("not json"))
	if reply.Op != model.OpError {
		t.Errorf("坏帧应返回error帧: %+v", reply)
	}

	raw, _ := json.Marshal(&model.ClientFrame{Op: "teleport"})
	reply = svc.HandleFrame(context.Background(), 7, raw)
	if reply.Op != model.OpError {
		t.Errorf("未知操作应返回error帧: %+v", reply)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _, _ := newGatewayFixture(t)

	token, err := auth.GenerateJWT(7, "SN-007", "orgtalk", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := svc.Authenticate(token)
	if err != nil {
		t.Fatalf("合法token校验失败: %v", err)
	}
	if claims.UserID != 7 {
		t.Errorf("UserID错误: %d", claims.UserID)
	}

	if _, err := svc.Authenticate(""); err == nil {
		t.Error("空token应校验失败")
	}
	if _, err := svc.Authenticate("garbage"); err == nil {
		t.Error("坏token应校验失败")
	}

	wrongSecret, _ := auth.GenerateJWT(7, "SN-007", "other-secret", time.Hour)
	if _, err := svc.Authenticate(wrongSecret); err == nil {
		t.Error("错误密钥签发的token应校验失败")
	}
}
