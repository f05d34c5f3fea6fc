package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"IntentWise-Chain/internal/auth"
	"IntentWise-Chain/internal/chat"
	xerrors "IntentWise-Chain/internal/errors"
	"IntentWise-Chain/internal/executor"
	"IntentWise-Chain/internal/intent"
)

// defaultUserID 在认证关闭时充当"当前用户"。
const defaultUserID = "local-user"

// Runner 定义执行接口，便于测试替换编排器。
type Runner interface {
	Execute(ctx context.Context, intentID string) (executor.Outcome, error)
}

// Server 负责暴露 REST 接口，供外部管理意图并驱动执行。
type Server struct {
	addr    string
	intents *intent.Service
	runner  Runner
	chat    *chat.Session
	auth    *auth.Service
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, intents *intent.Service, runner Runner, session *chat.Session, authSvc *auth.Service) *Server {
	return &Server{addr: addr, intents: intents, runner: runner, chat: session, auth: authSvc}
}

// Handler 组装完整的路由表。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/intents", s.handleIntents)
	mux.HandleFunc("/api/v1/intents/", s.handleIntentDetail)
	mux.HandleFunc("/api/v1/chat", s.handleChat)
	mux.HandleFunc("/api/v1/chat/history", s.handleChatHistory)
	mux.HandleFunc("/api/v1/dashboard/stats", s.handleStats)
	mux.HandleFunc("/api/v1/receipts", s.handleReceipts)

	var protected http.Handler = mux
	if s.auth != nil && s.auth.Mode() != auth.ModeDisabled {
		protected = s.auth.Middleware(auth.MiddlewareConfig{})(mux)
	}

	root := http.NewServeMux()
	root.Handle("/api/v1/", protected)
	root.HandleFunc("/api/v1/auth/token", s.handleToken)
	root.Handle("/metrics", promhttp.Handler())
	root.HandleFunc("/healthz", s.handleHealth)
	return root
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleIntents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateIntent(w, r)
	case http.MethodGet:
		s.handleListIntents(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleCreateIntent 处理创建意图的请求。
func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	if s.intents == nil {
		http.Error(w, "服务未初始化", http.StatusServiceUnavailable)
		return
	}
	var req intent.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	created, err := s.intents.Create(r.Context(), s.currentUser(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListIntents(w http.ResponseWriter, r *http.Request) {
	if s.intents == nil {
		http.Error(w, "服务未初始化", http.StatusServiceUnavailable)
		return
	}
	opts := []intent.ListOption{intent.WithUser(s.currentUser(r))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, intent.WithLimit(parsed))
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, intent.WithOffset(parsed))
		}
	}
	results, err := s.intents.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// intentDetailResponse 是单个意图的查询结果。
type intentDetailResponse struct {
	Intent  *intent.Intent            `json:"intent"`
	Records []*intent.ExecutionRecord `json:"records"`
}

// executeResponse 区分三种执行结果：已执行、条件未满足、错误走 HTTP 状态码。
type executeResponse struct {
	Success   bool                    `json:"success"`
	Executed  bool                    `json:"executed"`
	Message   string                  `json:"message,omitempty"`
	NextCheck int64                   `json:"next_check_seconds,omitempty"`
	Record    *intent.ExecutionRecord `json:"record,omitempty"`
	Receipt   *intent.Receipt         `json:"receipt,omitempty"`
}

func (s *Server) handleIntentDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/intents/")
	if rest == "" || strings.Contains(strings.TrimSuffix(rest, "/execute"), "/") {
		http.Error(w, "缺少意图 ID", http.StatusBadRequest)
		return
	}
	if id, ok := strings.CutSuffix(rest, "/execute"); ok {
		s.handleExecute(w, r, id)
		return
	}

	id := rest
	switch r.Method {
	case http.MethodGet:
		s.handleGetIntent(w, r, id)
	case http.MethodPatch:
		s.handlePatchIntent(w, r, id)
	case http.MethodDelete:
		s.handleDeleteIntent(w, r, id)
	default:
		http.Error(w, "仅支持 GET/PATCH/DELETE", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request, id string) {
	it, err := s.ownedIntent(r, id)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := s.intents.Records(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intentDetailResponse{Intent: it, Records: records})
}

// patchRequest 仅允许更新部分字段，nil 字段保持原值。
type patchRequest struct {
	Title       *string           `json:"title,omitempty"`
	Description *string           `json:"description,omitempty"`
	IsActive    *bool             `json:"is_active,omitempty"`
	Frequency   *intent.Frequency `json:"frequency,omitempty"`
	Condition   *intent.Condition `json:"condition,omitempty"`
	TargetChain *string           `json:"target_chain,omitempty"`
}

func (s *Server) handlePatchIntent(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.ownedIntent(r, id); err != nil {
		writeError(w, err)
		return
	}
	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	updated, err := s.intents.Update(r.Context(), id, intent.Patch{
		Title:       req.Title,
		Description: req.Description,
		IsActive:    req.IsActive,
		Frequency:   req.Frequency,
		Condition:   req.Condition,
		TargetChain: req.TargetChain,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteIntent(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.ownedIntent(r, id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.intents.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExecute 同步触发一次执行检查。
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.runner == nil {
		http.Error(w, "执行器未初始化", http.StatusServiceUnavailable)
		return
	}
	if _, err := s.ownedIntent(r, id); err != nil {
		writeError(w, err)
		return
	}
	outcome, err := s.runner.Execute(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !outcome.Executed {
		writeJSON(w, http.StatusOK, executeResponse{
			Success:   false,
			Executed:  false,
			Message:   outcome.Verdict.Reason,
			NextCheck: int64(outcome.Verdict.NextCheckHint.Seconds()),
		})
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{
		Success:  true,
		Executed: true,
		Record:   outcome.Record,
		Receipt:  outcome.Receipt,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.chat == nil {
		http.Error(w, "会话未初始化", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	turn, err := s.chat.HandleMessage(r.Context(), s.currentUser(r), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.chat == nil {
		http.Error(w, "会话未初始化", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	history, err := s.chat.History(r.Context(), s.currentUser(r), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.intents.Stats(r.Context(), s.currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	receipts, err := s.intents.Receipts(r.Context(), s.currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleToken 签发访问令牌（仅 jwt 模式）。
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.auth == nil || s.auth.Mode() == auth.ModeDisabled {
		http.Error(w, "认证未启用", http.StatusNotFound)
		return
	}
	var req auth.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	pair, err := s.auth.Authenticate(r.Context(), req)
	if err != nil {
		status := http.StatusUnauthorized
		if err == auth.ErrUnsupportedGrant {
			status = http.StatusBadRequest
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ownedIntent 取出意图并校验属主。不属于当前用户的意图一律按不存在处理，
// 避免通过 ID 探测他人的意图。
func (s *Server) ownedIntent(r *http.Request, id string) (*intent.Intent, error) {
	it, err := s.intents.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if it.UserID != s.currentUser(r) {
		return nil, intent.ErrIntentNotFound
	}
	return it, nil
}

// currentUser 从认证主体解析当前用户，认证关闭时退回到本地默认用户。
func (s *Server) currentUser(r *http.Request) string {
	if subject := auth.SubjectFromContext(r.Context()); subject != nil && subject.UserID != "" {
		return subject.UserID
	}
	return defaultUserID
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 把统一错误码映射为 HTTP 状态，不向外泄露内部细节。
func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := statusOf(code)
	message := xerrors.AttributesOf(code).Message
	if code == xerrors.CodeUnknown {
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  string(code),
	})
}

func statusOf(code xerrors.Code) int {
	switch code {
	case intent.CodeIntentNotFound:
		return http.StatusNotFound
	case intent.CodeIntentConflict, intent.CodeIntentInactive, intent.CodeIntentAlreadyExecuted:
		return http.StatusConflict
	case intent.CodeIntentValidation, xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case executor.CodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	case executor.CodeExecutionInFlight:
		return http.StatusTooManyRequests
	case xerrors.CodeChainUnavailable, xerrors.CodeOracleUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
