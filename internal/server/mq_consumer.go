package server

import (
	"context"
	"encoding/json"

	"credit-service/internal/biz"
	"credit-service/internal/conf"
	creditErrors "credit-service/internal/errors"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/go-kratos/kratos/v2/log"
)

// UsageMessage 异步消费请求（request_id 用于重复投递去重）
type UsageMessage struct {
	AccountID         string `json:"account_id"`
	Feature           string `json:"feature"`
	Credits           int64  `json:"credits"`
	Description       string `json:"description"`
	DocumentReference string `json:"document_reference,omitempty"`
	RequestID         string `json:"request_id"`
}

// MQConsumerServer 从 RocketMQ 消费积分扣减请求
type MQConsumerServer struct {
	c       rocketmq.PushConsumer
	ledger  *biz.LedgerUseCase
	topic   string
	log     *log.Helper
	enabled bool
}

// NewMQConsumerServer 创建 RocketMQ 消费者
func NewMQConsumerServer(c *conf.Bootstrap, ledger *biz.LedgerUseCase, logger log.Logger) *MQConsumerServer {
	helper := log.NewHelper(logger)
	if c.Data == nil || c.Data.Rocketmq == nil || !c.Data.Rocketmq.Enabled || c.Data.Rocketmq.UsageTopic == "" {
		return &MQConsumerServer{ledger: ledger, log: helper}
	}
	mq := c.Data.Rocketmq

	r, err := rocketmq.NewPushConsumer(
		consumer.WithNsResolver(primitive.NewPassthroughResolver(mq.NameServers)),
		consumer.WithGroupName(mq.GroupName),
		consumer.WithRetry(int(mq.RetryTimes)),
		consumer.WithConsumeMessageBatchMaxSize(32),
	)
	if err != nil {
		helper.Errorf("init consumer error: %v", err)
		return &MQConsumerServer{ledger: ledger, log: helper}
	}

	return &MQConsumerServer{
		c:       r,
		ledger:  ledger,
		topic:   mq.UsageTopic,
		log:     helper,
		enabled: true,
	}
}

// Start 订阅并启动消费者
func (s *MQConsumerServer) Start(ctx context.Context) error {
	if !s.enabled || s.c == nil {
		s.log.Info("MQConsumerServer is disabled, skipping startup")
		return nil
	}

	s.log.Infof("Starting MQConsumerServer, topic: %s", s.topic)
	if err := s.c.Subscribe(s.topic, consumer.MessageSelector{}, s.handle); err != nil {
		// RocketMQ 不可用时不阻塞 HTTP 服务启动
		s.log.Errorf("Failed to subscribe to topic %s: %v", s.topic, err)
		return nil
	}
	if err := s.c.Start(); err != nil {
		s.log.Errorf("Failed to start RocketMQ consumer: %v", err)
		return nil
	}
	return nil
}

// Stop 停止消费者
func (s *MQConsumerServer) Stop(ctx context.Context) error {
	if !s.enabled || s.c == nil {
		return nil
	}
	s.log.Info("Stopping MQConsumerServer")
	return s.c.Shutdown()
}

func (s *MQConsumerServer) handle(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, msg := range msgs {
		if err := s.process(ctx, msg.Body); err != nil {
			s.log.Errorf("Consume usage message failed, retry later: msgId=%s, error=%v", msg.MsgId, err)
			return consumer.ConsumeRetryLater, nil
		}
	}
	return consumer.ConsumeSuccess, nil
}

// process 只有存储故障返回错误（触发重投）；格式错误和业务拒绝直接确认
// 已处理的消息重投时依靠 request_id 幂等回放
func (s *MQConsumerServer) process(ctx context.Context, body []byte) error {
	var m UsageMessage
	if err := json.Unmarshal(body, &m); err != nil {
		s.log.Errorf("Unmarshal usage message failed: %v, body: %s", err, string(body))
		return nil
	}
	// 没有幂等键的消息重投时会被重复扣减，直接丢弃
	if m.RequestID == "" {
		s.log.Warnf("Usage message without request_id dropped: accountID=%s, feature=%s, credits=%d",
			m.AccountID, m.Feature, m.Credits)
		return nil
	}

	result, err := s.ledger.Consume(ctx, &biz.ConsumeRequest{
		AccountID:         m.AccountID,
		Feature:           m.Feature,
		Credits:           m.Credits,
		Description:       m.Description,
		DocumentReference: m.DocumentReference,
		RequestID:         m.RequestID,
	})
	if err != nil {
		if creditErrors.IsBusiness(err) {
			s.log.Warnf("Usage message rejected: accountID=%s, feature=%s, requestID=%s, error=%v",
				m.AccountID, m.Feature, m.RequestID, err)
			return nil
		}
		return err
	}
	if result.Replayed {
		s.log.Infof("Usage message replayed: accountID=%s, requestID=%s", m.AccountID, m.RequestID)
	}
	return nil
}
