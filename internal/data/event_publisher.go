package data

import (
	"context"
	"encoding/json"
	"fmt"

	"credit-service/internal/biz"
	"credit-service/internal/conf"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/go-kratos/kratos/v2/log"
)

// eventPublisher 通过 RocketMQ 发布账本事件；未启用时为空操作
type eventPublisher struct {
	producer rocketmq.Producer
	topic    string
	log      *log.Helper
}

// NewEventPublisher 创建事件发布器
func NewEventPublisher(c *conf.Bootstrap, logger log.Logger) (biz.EventPublisher, func(), error) {
	helper := log.NewHelper(logger)
	if c.Data == nil || c.Data.Rocketmq == nil || !c.Data.Rocketmq.Enabled || c.Data.Rocketmq.EventTopic == "" {
		helper.Info("rocketmq event publishing is disabled")
		return &eventPublisher{log: helper}, func() {}, nil
	}
	mq := c.Data.Rocketmq

	group := mq.ProducerGroup
	if group == "" {
		group = mq.GroupName + "-producer"
	}
	p, err := rocketmq.NewProducer(
		producer.WithNsResolver(primitive.NewPassthroughResolver(mq.NameServers)),
		producer.WithGroupName(group),
		producer.WithRetry(int(mq.RetryTimes)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("init rocketmq producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, nil, fmt.Errorf("start rocketmq producer: %w", err)
	}

	cleanup := func() {
		if err := p.Shutdown(); err != nil {
			helper.Errorf("failed to shutdown rocketmq producer: %v", err)
		}
	}
	return &eventPublisher{producer: p, topic: mq.EventTopic, log: helper}, cleanup, nil
}

// Publish 同步发送，按账户 ID 设置 key 便于排查
func (p *eventPublisher) Publish(ctx context.Context, event *biz.LedgerEvent) error {
	if p.producer == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := primitive.NewMessage(p.topic, body)
	msg.WithKeys([]string{event.AccountID})
	msg.WithTag(event.Type)

	res, err := p.producer.SendSync(ctx, msg)
	if err != nil {
		return err
	}
	if res.Status != primitive.SendOK {
		return fmt.Errorf("send ledger event: status=%d", res.Status)
	}
	p.log.Debugf("Ledger event published: type=%s, account_id=%s, msg_id=%s", event.Type, event.AccountID, res.MsgID)
	return nil
}
