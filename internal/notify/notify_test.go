package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	fail    error
}

func (n *recordingNotifier) Channel() Channel { return n.channel }

func (n *recordingNotifier) Notify(_ context.Context, event Event) error {
	n.events = append(n.events, event)
	return n.fail
}

func TestFanoutBroadcastsToAllChannels(t *testing.T) {
	email := &recordingNotifier{channel: ChannelEmail}
	slack := &recordingNotifier{channel: ChannelSlack}
	d := NewFanout(email, slack, nil)

	event := Event{Kind: KindReminder, Message: "该检查 gas 了", IntentID: "intent-1"}
	if err := d.Notify(context.Background(), event); err != nil {
		t.Fatalf("广播失败: %v", err)
	}

	for _, n := range []*recordingNotifier{email, slack} {
		if len(n.events) != 1 {
			t.Fatalf("渠道 %s 收到 %d 条事件, 期望 1", n.channel, len(n.events))
		}
		if n.events[0].OccurredAt.IsZero() {
			t.Fatalf("渠道 %s 的事件缺少发生时间", n.channel)
		}
	}
}

func TestFanoutCollectsFailures(t *testing.T) {
	broken := &recordingNotifier{channel: ChannelSlack, fail: errors.New("slack down")}
	healthy := &recordingNotifier{channel: ChannelEmail}
	d := NewFanout(broken, healthy)

	err := d.Notify(context.Background(), Event{Kind: KindAlert, Message: "settlement failed"})
	if err == nil {
		t.Fatal("期望收到渠道失败的错误")
	}
	if !strings.Contains(err.Error(), "slack") {
		t.Fatalf("错误应包含故障渠道: %v", err)
	}
	if len(healthy.events) != 1 {
		t.Fatalf("单个渠道失败不应阻断其他渠道, 收到 %d 条", len(healthy.events))
	}
}

func TestDispatchSwallowsErrors(t *testing.T) {
	broken := &recordingNotifier{channel: ChannelEmail, fail: errors.New("smtp refused")}
	// 投递失败只记日志，不能影响调用方。
	Dispatch(context.Background(), NewFanout(broken), Event{Kind: KindExecution})
	Dispatch(context.Background(), nil, Event{Kind: KindExecution})
}

func TestWebhookNotifierPostsPayload(t *testing.T) {
	var payload webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("期望 POST, 收到 %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("解析回调载荷失败: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL, HTTPClient: srv.Client()}
	event := Event{
		Kind:       KindExecution,
		Message:    "swap settled",
		IntentID:   "intent-9",
		UserID:     "user-1",
		Metadata:   map[string]string{"tx_hash": "sim-abc"},
		OccurredAt: time.Unix(1700000000, 0),
	}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("推送失败: %v", err)
	}

	if payload.Kind != string(KindExecution) || payload.IntentID != "intent-9" {
		t.Fatalf("载荷不完整: %+v", payload)
	}
	if payload.Metadata["tx_hash"] != "sim-abc" {
		t.Fatalf("载荷缺少元数据: %+v", payload)
	}
	if payload.OccurredAt != 1700000000 {
		t.Fatalf("发生时间错误: %d", payload.OccurredAt)
	}
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL, HTTPClient: srv.Client()}
	if err := n.Notify(context.Background(), Event{Kind: KindAlert}); err == nil {
		t.Fatal("异常状态码应视为投递失败")
	}
}
