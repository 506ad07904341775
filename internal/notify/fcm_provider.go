package notify

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Template titles and bodies for push rendering. Payload values fill the
// %s placeholders in order.
var templateBodies = map[string][2]string{
	TemplateStageStart:      {"装修提醒", "您的%s即将于%s开始，请提前安排"},
	TemplateStageAcceptance: {"验收提醒", "您的%s计划于%s验收，请及时上传照片"},
	TemplateReportReady:     {"报告完成", "您的%s分析已完成，点击查看"},
	TemplateAnalysisFailed:  {"分析失败", "分析失败，请重新提交"},
	TemplatePaymentDone:     {"支付成功", "订单%s支付成功"},
}

// FCMProvider implements push notifications via Firebase Cloud Messaging
type FCMProvider struct {
	client  *messaging.Client
	timeout time.Duration
	logger  *logrus.Logger
}

// NewFCMProvider creates a new FCM push notification provider
func NewFCMProvider(projectID, credentialsJSON string, timeout time.Duration, logger *logrus.Logger) (*FCMProvider, error) {
	if logger == nil {
		logger = logrus.New()
	}

	ctx := context.Background()
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get FCM client: %w", err)
	}

	return &FCMProvider{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Push renders the template and delivers it to the user's device token
func (p *FCMProvider) Push(ctx context.Context, userToken, template string, payload map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tpl, ok := templateBodies[template]
	if !ok {
		return fmt.Errorf("unknown push template: %s", template)
	}

	body := tpl[1]
	if args := payloadArgs(payload); len(args) > 0 {
		body = fmt.Sprintf(tpl[1], args...)
	}

	message := &messaging.Message{
		Token: userToken,
		Notification: &messaging.Notification{
			Title: tpl[0],
			Body:  body,
		},
		Data: payload,
	}

	if _, err := p.client.Send(ctx, message); err != nil {
		p.logger.WithError(err).WithField("template", template).Warn("FCM push failed")
		return fmt.Errorf("fcm send failed: %w", err)
	}
	return nil
}

// payloadArgs extracts positional format arguments (arg0, arg1, ...) from the
// payload
func payloadArgs(payload map[string]string) []interface{} {
	var args []interface{}
	for i := 0; ; i++ {
		v, ok := payload[fmt.Sprintf("arg%d", i)]
		if !ok {
			break
		}
		args = append(args, v)
	}
	return args
}
