package auth

import (
	"context"
	"testing"
)

func newJWTService(t *testing.T) *Service {
	t.Helper()
	store, err := NewMemoryStore([]Seed{{
		UserID:   "user-1",
		Username: "alice",
		Password: "s3cret",
		Wallet:   "0x1111111111111111111111111111111111111111",
	}})
	if err != nil {
		t.Fatalf("初始化用户存储失败: %v", err)
	}
	svc, err := NewService(context.Background(), Config{
		Mode: ModeJWT,
		JWT:  JWTOptions{Secret: "test-secret", Issuer: "intentwise", AccessTTL: 60, RefreshTTL: 120},
	}, store)
	if err != nil {
		t.Fatalf("初始化认证服务失败: %v", err)
	}
	return svc
}

func TestAuthenticateIssuesVerifiableToken(t *testing.T) {
	ctx := context.Background()
	svc := newJWTService(t)

	pair, err := svc.Authenticate(ctx, TokenRequest{Username: "alice", Password: "s3cret"})
	if err != nil {
		t.Fatalf("登录失败: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("应同时签发访问与刷新令牌")
	}
	if pair.TokenType != "Bearer" {
		t.Fatalf("令牌类型错误: %s", pair.TokenType)
	}

	subject, err := svc.AuthenticateRequest(ctx, "Bearer "+pair.AccessToken)
	if err != nil {
		t.Fatalf("令牌验证失败: %v", err)
	}
	if subject.UserID != "user-1" || subject.Username != "alice" {
		t.Fatalf("主体信息错误: %+v", subject)
	}
	if subject.Wallet == "" {
		t.Fatal("主体应携带钱包地址")
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newJWTService(t)

	if _, err := svc.Authenticate(ctx, TokenRequest{Username: "alice", Password: "wrong"}); err != ErrInvalidCredentials {
		t.Fatalf("错误密码应返回 ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, TokenRequest{Username: "nobody", Password: "x"}); err != ErrInvalidCredentials {
		t.Fatalf("未知用户应返回 ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateRequestRejectsTamperedToken(t *testing.T) {
	ctx := context.Background()
	svc := newJWTService(t)

	pair, err := svc.Authenticate(ctx, TokenRequest{Username: "alice", Password: "s3cret"})
	if err != nil {
		t.Fatalf("登录失败: %v", err)
	}
	if _, err := svc.AuthenticateRequest(ctx, "Bearer "+pair.AccessToken+"x"); err != ErrInvalidToken {
		t.Fatalf("篡改令牌应被拒绝, got %v", err)
	}
	if _, err := svc.AuthenticateRequest(ctx, ""); err != ErrMissingToken {
		t.Fatalf("缺少令牌应返回 ErrMissingToken, got %v", err)
	}
	// 刷新令牌不能当作访问令牌使用。
	if _, err := svc.AuthenticateRequest(ctx, "Bearer "+pair.RefreshToken); err != ErrInvalidToken {
		t.Fatalf("刷新令牌不应通过访问验证, got %v", err)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hashed, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("哈希失败: %v", err)
	}
	if !verifyPassword(hashed, "hunter2") {
		t.Fatal("正确密码应通过验证")
	}
	if verifyPassword(hashed, "hunter3") {
		t.Fatal("错误密码不应通过验证")
	}
}
