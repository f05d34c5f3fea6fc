package chat

import (
	"context"
	"strings"
	"testing"

	xerrors "IntentWise-Chain/internal/errors"
	"IntentWise-Chain/internal/intent"
)

func TestHandleMessageProposesStructuredIntent(t *testing.T) {
	ctx := context.Background()
	store := intent.NewMemoryStore()
	session := NewSession(store)

	turn, err := session.HandleMessage(ctx, "user-1", "Stake 100 USDC weekly when gas < 20 gwei")
	if err != nil {
		t.Fatalf("处理消息失败: %v", err)
	}
	if !turn.IsAgent {
		t.Fatal("返回的应是 agent 回合")
	}
	if turn.AgentResponse == nil {
		t.Fatal("解析成功时应携带结构化提案")
	}
	if turn.AgentResponse.Task != intent.ActionStake {
		t.Fatalf("任务识别错误: %s", turn.AgentResponse.Task)
	}
	for _, want := range []string{"stake", "100", "USDC", "weekly", "gas < 20 gwei"} {
		if !strings.Contains(turn.Message, want) {
			t.Fatalf("确认文本缺少 %q: %s", want, turn.Message)
		}
	}

	history, err := session.History(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("读取历史失败: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("应保存用户与 agent 两个回合, got %d", len(history))
	}
	if history[0].IsAgent || !history[1].IsAgent {
		t.Fatal("历史顺序错误: 用户回合应在前")
	}
	if history[0].Message != "Stake 100 USDC weekly when gas < 20 gwei" {
		t.Fatalf("用户消息应原样保存: %s", history[0].Message)
	}

	// 会话只提议，不创建意图。
	intents, err := store.ListIntents(ctx, intent.ListOptions{UserID: "user-1"})
	if err != nil {
		t.Fatalf("查询意图失败: %v", err)
	}
	if len(intents) != 0 {
		t.Fatalf("会话不应自行创建意图, got %d", len(intents))
	}
}

func TestHandleMessageAmbiguousTextAsksForClarification(t *testing.T) {
	ctx := context.Background()
	session := NewSession(intent.NewMemoryStore())

	turn, err := session.HandleMessage(ctx, "user-1", "blah blah nothing useful")
	if err != nil {
		t.Fatalf("模糊输入不应返回错误: %v", err)
	}
	if turn.AgentResponse != nil {
		t.Fatal("解析失败时 agentResponse 应为空")
	}
	if !strings.Contains(turn.Message, "couldn't work out") {
		t.Fatalf("应返回澄清提示: %s", turn.Message)
	}
}

func TestHandleMessageRejectsEmptyInput(t *testing.T) {
	session := NewSession(intent.NewMemoryStore())
	if _, err := session.HandleMessage(context.Background(), "", "hello"); err == nil {
		t.Fatal("缺少用户 ID 应报错")
	}
	if _, err := session.HandleMessage(context.Background(), "user-1", "   "); err == nil {
		t.Fatal("空消息应报错")
	}
}

func TestChatPersistCodeRegistration(t *testing.T) {
	attrs := xerrors.AttributesOf(CodeChatPersist)
	if attrs.Severity != xerrors.SeverityWarning {
		t.Fatalf("持久化失败的严重级别应为 warning, got %s", attrs.Severity)
	}
	if !attrs.Retryable {
		t.Fatal("持久化失败应可重试")
	}
}
