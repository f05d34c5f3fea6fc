package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"IntentWise-Chain/internal/chat"
	"IntentWise-Chain/internal/condition"
	xerrors "IntentWise-Chain/internal/errors"
	"IntentWise-Chain/internal/executor"
	"IntentWise-Chain/internal/intent"
)

type stubRunner struct {
	outcome executor.Outcome
	err     error
}

func (r *stubRunner) Execute(ctx context.Context, intentID string) (executor.Outcome, error) {
	return r.outcome, r.err
}

func newTestServer(runner Runner) (*Server, *intent.Service) {
	store := intent.NewMemoryStore()
	svc := intent.NewService(store)
	return NewServer(":0", svc, runner, chat.NewSession(store), nil), svc
}

func TestCreateAndGetIntentRoundTrip(t *testing.T) {
	server, _ := newTestServer(nil)
	handler := server.Handler()

	body := `{
		"wallet_address": "0x1111111111111111111111111111111111111111",
		"title": "weekly stake",
		"action": "STAKE",
		"token": "usdc",
		"amount": "100",
		"frequency": "WEEKLY",
		"condition": {"type": "gas", "threshold": "20", "comparison": "<"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/intents", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("创建意图失败: %d %s", rec.Code, rec.Body.String())
	}
	var created intent.Intent
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if created.ID == "" || created.CreatedAt == 0 {
		t.Fatal("服务端应补齐 ID 与时间戳")
	}
	if created.Token != "USDC" {
		t.Fatalf("代币应归一化为大写: %s", created.Token)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/intents/"+created.ID, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("查询意图失败: %d", rec.Code)
	}
	var detail intentDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if detail.Intent.Title != "weekly stake" || detail.Intent.Frequency != intent.FrequencyWeekly {
		t.Fatalf("字段应原样返回: %+v", detail.Intent)
	}
	if detail.Intent.Condition.Type != intent.ConditionGas {
		t.Fatalf("条件应原样返回: %+v", detail.Intent.Condition)
	}
	if len(detail.Records) != 0 {
		t.Fatalf("新意图不应有执行记录: %d", len(detail.Records))
	}
}

func TestGetIntentNotFound(t *testing.T) {
	server, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/intents/missing", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("期望 404, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("错误响应应是 JSON: %v", err)
	}
	if payload["code"] != string(intent.CodeIntentNotFound) {
		t.Fatalf("错误码不符: %v", payload)
	}
}

func TestDetailHandlersHideOtherUsersIntents(t *testing.T) {
	server, svc := newTestServer(&stubRunner{outcome: executor.Outcome{Executed: true}})
	handler := server.Handler()

	// 归属于另一用户的意图，对当前用户必须表现为不存在。
	other, err := svc.Create(context.Background(), "someone-else", intent.CreateRequest{
		WalletAddress: "0x2222222222222222222222222222222222222222",
		Action:        intent.ActionStake,
		Token:         "USDC",
		Amount:        "50",
	})
	if err != nil {
		t.Fatalf("创建他人意图失败: %v", err)
	}

	requests := []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/v1/intents/"+other.ID, nil),
		httptest.NewRequest(http.MethodPatch, "/api/v1/intents/"+other.ID, strings.NewReader(`{"is_active": false}`)),
		httptest.NewRequest(http.MethodDelete, "/api/v1/intents/"+other.ID, nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/intents/"+other.ID+"/execute", nil),
	}
	for _, req := range requests {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s 应返回 404, got %d", req.Method, req.URL.Path, rec.Code)
		}
	}

	got, err := svc.Get(context.Background(), other.ID)
	if err != nil {
		t.Fatalf("他人意图不应被删除或修改: %v", err)
	}
	if !got.IsActive {
		t.Fatal("他人意图的状态不应被改动")
	}
}

func TestPatchTogglesActive(t *testing.T) {
	server, svc := newTestServer(nil)
	handler := server.Handler()
	created, err := svc.Create(context.Background(), defaultUserID, intent.CreateRequest{
		WalletAddress: "0x1111111111111111111111111111111111111111",
		Title:         "plan",
		Action:        intent.ActionSend,
		Token:         "ETH",
		Amount:        "1",
	})
	if err != nil {
		t.Fatalf("创建意图失败: %v", err)
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/intents/"+created.ID, strings.NewReader(`{"is_active": false}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("更新失败: %d %s", rec.Code, rec.Body.String())
	}
	var updated intent.Intent
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if updated.IsActive {
		t.Fatal("is_active 应被置为 false")
	}
}

func TestExecuteThreeOutcomes(t *testing.T) {
	seedForExecute := func(t *testing.T, runner Runner) (http.Handler, string) {
		t.Helper()
		server, svc := newTestServer(runner)
		created, err := svc.Create(context.Background(), defaultUserID, intent.CreateRequest{
			WalletAddress: "0x1111111111111111111111111111111111111111",
			Action:        intent.ActionStake,
			Token:         "USDC",
			Amount:        "100",
		})
		if err != nil {
			t.Fatalf("创建意图失败: %v", err)
		}
		return server.Handler(), created.ID
	}

	t.Run("executed", func(t *testing.T) {
		runner := &stubRunner{outcome: executor.Outcome{
			Executed: true,
			Record:   &intent.ExecutionRecord{ID: "rec-1", TxHash: "sim-abc", Mode: intent.ModeSimulated},
			Receipt:  &intent.Receipt{TokenID: "rcpt-1"},
		}}
		handler, id := seedForExecute(t, runner)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/intents/"+id+"/execute", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("期望 200, got %d", rec.Code)
		}
		var resp executeResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("解析响应失败: %v", err)
		}
		if !resp.Success || !resp.Executed || resp.Record == nil || resp.Receipt == nil {
			t.Fatalf("执行成功的响应形态不符: %+v", resp)
		}
	})

	t.Run("blocked", func(t *testing.T) {
		runner := &stubRunner{outcome: executor.Outcome{
			Executed: false,
			Verdict: condition.Verdict{
				Reason:        "gas price is 35 gwei, waiting for gas < 20 gwei",
				NextCheckHint: time.Minute,
			},
		}}
		handler, id := seedForExecute(t, runner)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/intents/"+id+"/execute", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("条件未满足仍应返回 200, got %d", rec.Code)
		}
		var resp executeResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("解析响应失败: %v", err)
		}
		if resp.Success || resp.Executed {
			t.Fatalf("未执行时 success/executed 应为 false: %+v", resp)
		}
		if !strings.Contains(resp.Message, "35") {
			t.Fatalf("阻塞原因应包含实时值: %s", resp.Message)
		}
	})

	t.Run("insufficient funds", func(t *testing.T) {
		runner := &stubRunner{err: xerrors.New(executor.CodeInsufficientFunds, "insufficient escrow balance")}
		handler, id := seedForExecute(t, runner)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/intents/"+id+"/execute", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("余额不足应映射 422, got %d", rec.Code)
		}
	})
}

func TestChatEndpointPersistsTurns(t *testing.T) {
	server, _ := newTestServer(nil)
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"message": "Stake 100 USDC weekly when gas < 20 gwei"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("会话请求失败: %d %s", rec.Code, rec.Body.String())
	}
	var turn intent.ChatMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &turn); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if !turn.IsAgent || turn.AgentResponse == nil {
		t.Fatalf("应返回携带提案的 agent 回合: %+v", turn)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/chat/history", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("查询历史失败: %d", rec.Code)
	}
	var history []*intent.ChatMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("应有两条会话记录, got %d", len(history))
	}
}

func TestStatsEndpoint(t *testing.T) {
	server, svc := newTestServer(nil)
	if _, err := svc.Create(context.Background(), defaultUserID, intent.CreateRequest{
		WalletAddress: "0x1111111111111111111111111111111111111111",
		Title:         "plan",
		Action:        intent.ActionStake,
		Token:         "USDC",
		Amount:        "100",
	}); err != nil {
		t.Fatalf("创建意图失败: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/stats", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("统计查询失败: %d", rec.Code)
	}
	var stats intent.DashboardStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if stats.ActivePlans != 1 {
		t.Fatalf("活跃计划数不符: %+v", stats)
	}
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("健康检查失败: %d", rec.Code)
	}
}
