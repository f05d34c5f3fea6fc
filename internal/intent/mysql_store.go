package intent

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	xerrors "IntentWise-Chain/internal/errors"
)

// MySQLStore 使用 MySQL 持久化意图状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS wallet_intents (
        id VARCHAR(64) PRIMARY KEY,
        user_id VARCHAR(64) NOT NULL,
        wallet_address VARCHAR(64) DEFAULT '',
        title VARCHAR(255) DEFAULT '',
        description TEXT,
        action VARCHAR(16) NOT NULL,
        token VARCHAR(16) NOT NULL,
        amount VARCHAR(80),
        frequency VARCHAR(32) NOT NULL,
        condition_json TEXT,
        target_chain VARCHAR(64) DEFAULT '',
        is_active TINYINT(1) NOT NULL DEFAULT 1,
        executed TINYINT(1) NOT NULL DEFAULT 0,
        next_execution BIGINT NOT NULL DEFAULT 0,
        last_execution BIGINT NOT NULL DEFAULT 0,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_intent_user (user_id),
        INDEX idx_intent_due (is_active, executed, next_execution),
        INDEX idx_intent_updated (updated_at)
)`,
		`CREATE TABLE IF NOT EXISTS intent_executions (
        id VARCHAR(64) PRIMARY KEY,
        intent_id VARCHAR(64) NOT NULL,
        status VARCHAR(16) NOT NULL,
        result TEXT,
        gas_used VARCHAR(32) DEFAULT '',
        tx_hash VARCHAR(128) DEFAULT '',
        mode VARCHAR(16) NOT NULL,
        executed_at BIGINT NOT NULL,
        INDEX idx_exec_intent (intent_id, executed_at)
)`,
		`CREATE TABLE IF NOT EXISTS intent_receipts (
        token_id VARCHAR(64) PRIMARY KEY,
        intent_id VARCHAR(64) NOT NULL,
        record_id VARCHAR(64) NOT NULL,
        user_id VARCHAR(64) NOT NULL,
        name VARCHAR(255) DEFAULT '',
        description TEXT,
        image VARCHAR(255) DEFAULT '',
        attributes_json TEXT,
        created_at BIGINT NOT NULL,
        INDEX idx_receipt_user (user_id)
)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
        id VARCHAR(64) PRIMARY KEY,
        user_id VARCHAR(64) NOT NULL,
        message TEXT NOT NULL,
        is_agent TINYINT(1) NOT NULL DEFAULT 0,
        agent_response TEXT,
        created_at BIGINT NOT NULL,
        INDEX idx_chat_user (user_id, created_at)
)`,
	}
	for _, schema := range schemas {
		if _, err := s.db.Exec(schema); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化意图存储表失败")
		}
	}
	return nil
}

// CreateIntent 插入新的意图记录。
func (s *MySQLStore) CreateIntent(ctx context.Context, it *Intent) error {
	if it == nil || strings.TrimSpace(it.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "意图 ID 不能为空")
	}

	now := time.Now().Unix()
	if it.CreatedAt == 0 {
		it.CreatedAt = now
	}
	it.UpdatedAt = now

	conditionValue, err := marshalCondition(it.Condition)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO wallet_intents
        (id, user_id, wallet_address, title, description, action, token, amount, frequency, condition_json,
         target_chain, is_active, executed, next_execution, last_execution, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		it.ID,
		it.UserID,
		it.WalletAddress,
		it.Title,
		it.Description,
		it.Action,
		it.Token,
		nullAmount(it.Amount),
		it.Frequency,
		conditionValue,
		it.TargetChain,
		it.IsActive,
		it.Executed,
		it.NextExecution,
		it.LastExecution,
		it.CreatedAt,
		it.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrIntentConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入意图失败")
	}
	return nil
}

const intentColumns = `id, user_id, wallet_address, title, description, action, token, amount, frequency,
        condition_json, target_chain, is_active, executed, next_execution, last_execution, created_at, updated_at`

// GetIntent 查询指定意图。
func (s *MySQLStore) GetIntent(ctx context.Context, id string) (*Intent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+intentColumns+` FROM wallet_intents WHERE id = ?`, id)
	it, err := scanIntent(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return it, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*Intent, error) {
	var it Intent
	var amount sql.NullString
	var conditionJSON sql.NullString

	if err := row.Scan(
		&it.ID,
		&it.UserID,
		&it.WalletAddress,
		&it.Title,
		&it.Description,
		&it.Action,
		&it.Token,
		&amount,
		&it.Frequency,
		&conditionJSON,
		&it.TargetChain,
		&it.IsActive,
		&it.Executed,
		&it.NextExecution,
		&it.LastExecution,
		&it.CreatedAt,
		&it.UpdatedAt,
	); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "扫描意图记录失败")
	}

	if amount.Valid && strings.TrimSpace(amount.String) != "" {
		value, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析意图金额失败")
		}
		it.Amount = decimal.NewNullDecimal(value)
	}
	if conditionJSON.Valid && strings.TrimSpace(conditionJSON.String) != "" {
		if err := json.Unmarshal([]byte(conditionJSON.String), &it.Condition); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析意图条件失败")
		}
	}
	return &it, nil
}

// ListIntents 返回符合过滤条件的意图。
func (s *MySQLStore) ListIntents(ctx context.Context, opts ListOptions) ([]*Intent, error) {
	opts.applyDefaults()

	var (
		clauses []string
		args    []any
	)
	if opts.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, opts.UserID)
	}
	if opts.Active != nil {
		clauses = append(clauses, "is_active = ?")
		args = append(args, *opts.Active)
	}
	if len(opts.Actions) > 0 {
		placeholders := make([]string, len(opts.Actions))
		for i, action := range opts.Actions {
			placeholders[i] = "?"
			args = append(args, action)
		}
		clauses = append(clauses, "action IN ("+strings.Join(placeholders, ", ")+")")
	}
	if opts.DueBefore > 0 {
		clauses = append(clauses, "is_active = 1")
		if !opts.IncludeExecuted {
			clauses = append(clauses, "executed = 0")
		}
		clauses = append(clauses, "(next_execution <= ? OR frequency = ?)")
		args = append(args, opts.DueBefore, FrequencyConditionBased)
	}

	query := `SELECT ` + intentColumns + ` FROM wallet_intents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	if opts.Order == SortByUpdatedAsc {
		query += " ORDER BY updated_at ASC, id ASC"
	} else {
		query += " ORDER BY updated_at DESC, id ASC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询意图失败")
	}
	defer rows.Close()

	var results []*Intent
	for rows.Next() {
		it, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, it)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历意图结果失败")
	}
	return results, nil
}

// UpdateIntent 应用部分更新并返回更新后的意图。
func (s *MySQLStore) UpdateIntent(ctx context.Context, id string, patch Patch) (*Intent, error) {
	// 先在当前状态的副本上合并并校验，被拒绝的更新不落库。
	current, err := s.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := current.clone()
	patch.applyTo(merged)
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	var (
		sets []string
		args []any
	)
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *patch.IsActive)
	}
	if patch.Frequency != nil {
		sets = append(sets, "frequency = ?")
		// Validate 会把空频率归一化为 once，写入归一化后的值。
		args = append(args, merged.Frequency)
	}
	if patch.Condition != nil {
		conditionValue, err := marshalCondition(*patch.Condition)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "condition_json = ?")
		args = append(args, conditionValue)
	}
	if patch.TargetChain != nil {
		sets = append(sets, "target_chain = ?")
		args = append(args, *patch.TargetChain)
	}
	if len(sets) == 0 {
		return s.GetIntent(ctx, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().Unix(), id)

	res, err := s.db.ExecContext(ctx, "UPDATE wallet_intents SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新意图失败")
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		if _, getErr := s.GetIntent(ctx, id); getErr != nil {
			return nil, getErr
		}
	}
	return s.GetIntent(ctx, id)
}

// AdvanceIntent 推进执行时间戳与终态标记。
func (s *MySQLStore) AdvanceIntent(ctx context.Context, id string, adv Advance) (*Intent, error) {
	const stmt = `UPDATE wallet_intents
        SET last_execution = GREATEST(last_execution, ?), next_execution = ?, executed = executed OR ?, updated_at = ?
        WHERE id = ?`

	res, err := s.db.ExecContext(ctx, stmt, adv.LastExecution, adv.NextExecution, adv.Executed, time.Now().Unix(), id)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "推进意图状态失败")
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		if _, getErr := s.GetIntent(ctx, id); getErr != nil {
			return nil, getErr
		}
	}
	return s.GetIntent(ctx, id)
}

// DeleteIntent 删除意图及其从属执行记录。
func (s *MySQLStore) DeleteIntent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wallet_intents WHERE id = ?`, id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除意图失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		return ErrIntentNotFound
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM intent_executions WHERE intent_id = ?`, id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除执行记录失败")
	}
	return nil
}

// AppendRecord 追加一条执行记录。
func (s *MySQLStore) AppendRecord(ctx context.Context, record *ExecutionRecord) error {
	if record == nil || record.ID == "" || record.IntentID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "执行记录缺少必填字段")
	}
	if record.ExecutedAt == 0 {
		record.ExecutedAt = time.Now().Unix()
	}

	const stmt = `INSERT INTO intent_executions (id, intent_id, status, result, gas_used, tx_hash, mode, executed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.IntentID,
		record.Status,
		record.Result,
		record.GasUsed,
		record.TxHash,
		record.Mode,
		record.ExecutedAt,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入执行记录失败")
	}
	return nil
}

// ListRecords 按执行时间升序返回执行记录。
func (s *MySQLStore) ListRecords(ctx context.Context, intentID string) ([]*ExecutionRecord, error) {
	const stmt = `SELECT id, intent_id, status, result, gas_used, tx_hash, mode, executed_at
        FROM intent_executions WHERE intent_id = ? ORDER BY executed_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, stmt, intentID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询执行记录失败")
	}
	defer rows.Close()

	var results []*ExecutionRecord
	for rows.Next() {
		var record ExecutionRecord
		if err := rows.Scan(
			&record.ID,
			&record.IntentID,
			&record.Status,
			&record.Result,
			&record.GasUsed,
			&record.TxHash,
			&record.Mode,
			&record.ExecutedAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "扫描执行记录失败")
		}
		results = append(results, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历执行记录失败")
	}
	return results, nil
}

// CreateReceipt 保存一条凭证记录。
func (s *MySQLStore) CreateReceipt(ctx context.Context, receipt *Receipt) error {
	if receipt == nil || receipt.TokenID == "" || receipt.IntentID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "凭证缺少必填字段")
	}
	if receipt.CreatedAt == 0 {
		receipt.CreatedAt = time.Now().Unix()
	}

	owner := ""
	if it, err := s.GetIntent(ctx, receipt.IntentID); err == nil {
		owner = it.UserID
	}

	attributes, err := json.Marshal(receipt.Attributes)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码凭证属性失败")
	}

	const stmt = `INSERT INTO intent_receipts (token_id, intent_id, record_id, user_id, name, description, image, attributes_json, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		receipt.TokenID,
		receipt.IntentID,
		receipt.RecordID,
		owner,
		receipt.Name,
		receipt.Description,
		receipt.Image,
		string(attributes),
		receipt.CreatedAt,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入凭证失败")
	}
	return nil
}

// ListReceipts 返回用户名下的凭证。
func (s *MySQLStore) ListReceipts(ctx context.Context, userID string) ([]*Receipt, error) {
	const stmt = `SELECT token_id, intent_id, record_id, name, description, image, attributes_json, created_at
        FROM intent_receipts WHERE user_id = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, stmt, userID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询凭证失败")
	}
	defer rows.Close()

	var results []*Receipt
	for rows.Next() {
		var receipt Receipt
		var attributes sql.NullString
		if err := rows.Scan(
			&receipt.TokenID,
			&receipt.IntentID,
			&receipt.RecordID,
			&receipt.Name,
			&receipt.Description,
			&receipt.Image,
			&attributes,
			&receipt.CreatedAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "扫描凭证失败")
		}
		if attributes.Valid && attributes.String != "" {
			if err := json.Unmarshal([]byte(attributes.String), &receipt.Attributes); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析凭证属性失败")
			}
		}
		results = append(results, &receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历凭证失败")
	}
	return results, nil
}

// CreateMessage 保存一轮会话消息。
func (s *MySQLStore) CreateMessage(ctx context.Context, msg *ChatMessage) error {
	if msg == nil || msg.ID == "" || msg.UserID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话消息缺少必填字段")
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().Unix()
	}

	var agentResponse any
	if msg.AgentResponse != nil {
		encoded, err := json.Marshal(msg.AgentResponse)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码结构化提案失败")
		}
		agentResponse = string(encoded)
	}

	const stmt = `INSERT INTO chat_messages (id, user_id, message, is_agent, agent_response, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt, msg.ID, msg.UserID, msg.Message, msg.IsAgent, agentResponse, msg.CreatedAt)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入会话消息失败")
	}
	return nil
}

// ListMessages 返回用户会话中最近 limit 条消息，按创建时间升序。
func (s *MySQLStore) ListMessages(ctx context.Context, userID string, limit int) ([]*ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	const stmt = `SELECT id, user_id, message, is_agent, agent_response, created_at FROM
        (SELECT id, user_id, message, is_agent, agent_response, created_at
         FROM chat_messages WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?) latest
        ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, stmt, userID, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询会话消息失败")
	}
	defer rows.Close()

	var results []*ChatMessage
	for rows.Next() {
		var msg ChatMessage
		var agentResponse sql.NullString
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Message, &msg.IsAgent, &agentResponse, &msg.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "扫描会话消息失败")
		}
		if agentResponse.Valid && agentResponse.String != "" {
			var parsed ParsedIntent
			if err := json.Unmarshal([]byte(agentResponse.String), &parsed); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析结构化提案失败")
			}
			msg.AgentResponse = &parsed
		}
		results = append(results, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历会话消息失败")
	}
	return results, nil
}

// Stats 统计某个用户的仪表盘指标。
func (s *MySQLStore) Stats(ctx context.Context, userID string) (DashboardStats, error) {
	stats := DashboardStats{TotalValue: decimal.Zero}

	var totalValue sql.NullString
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
        COALESCE(SUM(is_active AND NOT executed), 0),
        COALESCE(SUM(CASE WHEN is_active AND NOT executed AND amount IS NOT NULL THEN CAST(amount AS DECIMAL(40, 18)) ELSE 0 END), 0)
        FROM wallet_intents WHERE (? = '' OR user_id = ?)`, userID, userID)
	if err := row.Scan(&stats.TotalIntents, &stats.ActivePlans, &totalValue); err != nil {
		return DashboardStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计意图失败")
	}
	if totalValue.Valid && totalValue.String != "" {
		value, err := decimal.NewFromString(totalValue.String)
		if err == nil {
			stats.TotalValue = value
		}
	}

	dayStart := time.Now().Truncate(24 * time.Hour).Unix()
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*),
        COALESCE(SUM(e.status = ? AND e.executed_at >= ?), 0)
        FROM intent_executions e JOIN wallet_intents i ON i.id = e.intent_id
        WHERE (? = '' OR i.user_id = ?)`, ExecutionSuccess, dayStart, userID, userID)
	if err := row.Scan(&stats.TotalRecords, &stats.ExecutedToday); err != nil {
		return DashboardStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计执行记录失败")
	}
	return stats, nil
}

// Close 关闭数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func marshalCondition(cond Condition) (any, error) {
	if cond.Type == ConditionNone {
		return nil, nil
	}
	encoded, err := json.Marshal(cond)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码意图条件失败")
	}
	return string(encoded), nil
}

func nullAmount(amount decimal.NullDecimal) any {
	if !amount.Valid {
		return nil
	}
	return amount.Decimal.String()
}

// ensure interface compliance at compile time
var _ Store = (*MySQLStore)(nil)
