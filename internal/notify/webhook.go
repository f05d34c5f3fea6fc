package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"IntentWise-Chain/pkg/logger"
)

// WebhookNotifier 将事件以 JSON 形式 POST 到外部回调地址，
// 用于把提醒推给用户侧的集成。
type WebhookNotifier struct {
	URL        string
	HTTPClient *http.Client
}

// Channel 返回 webhook 渠道。
func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

type webhookPayload struct {
	Kind       string            `json:"kind"`
	Message    string            `json:"message"`
	IntentID   string            `json:"intent_id,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt int64             `json:"occurred_at"`
}

// Notify 推送事件。
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.URL == "" {
		logger.L().Warn("WebhookNotifier 未正确配置，跳过发送", slog.String("intent_id", event.IntentID))
		return nil
	}
	client := n.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	body, err := json.Marshal(webhookPayload{
		Kind:       string(event.Kind),
		Message:    event.Message,
		IntentID:   event.IntentID,
		UserID:     event.UserID,
		Metadata:   event.Metadata,
		OccurredAt: event.OccurredAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("编码通知载荷失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构造通知请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("推送通知失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("通知回调返回异常状态码: %d", resp.StatusCode)
	}
	return nil
}
