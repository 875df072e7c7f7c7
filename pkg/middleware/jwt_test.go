package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のJWTシークレット。
const testSecret = "test-secret-key-for-unit-tests"

// TestGenerateJWT はGenerateJWT関数を検証する。
func TestGenerateJWT(t *testing.T) {
	t.Parallel()

	t.Run("正常にJWTトークンを生成できること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT(testSecret, "user-123", "test@example.com", RoleCollaborator)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}
		if tokenStr == "" {
			t.Fatal("GenerateJWT()が空文字列を返した")
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		})
		if err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if !token.Valid {
			t.Fatal("トークンが無効")
		}

		if claims.UserID != "user-123" {
			t.Errorf("UserID = %q, want %q", claims.UserID, "user-123")
		}
		if claims.Role != RoleCollaborator {
			t.Errorf("Role = %q, want %q", claims.Role, RoleCollaborator)
		}
		if claims.Issuer != "agendahub" {
			t.Errorf("Issuer = %q, want %q", claims.Issuer, "agendahub")
		}
	})

	t.Run("トークンの有効期限が24時間後であること", func(t *testing.T) {
		t.Parallel()

		before := time.Now()
		tokenStr, err := GenerateJWT(testSecret, "user-exp", "exp@example.com", RoleApprover)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		claims := &JWTClaims{}
		_, err = jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		})
		if err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}

		expectedExpiry := before.Add(24 * time.Hour)
		if claims.ExpiresAt.Time.Before(expectedExpiry.Add(-1 * time.Minute)) {
			t.Errorf("ExpiresAt = %v, 期待する最小値: %v", claims.ExpiresAt.Time, expectedExpiry.Add(-1*time.Minute))
		}
		if claims.ExpiresAt.Time.After(expectedExpiry.Add(1 * time.Minute)) {
			t.Errorf("ExpiresAt = %v, 期待する最大値: %v", claims.ExpiresAt.Time, expectedExpiry.Add(1*time.Minute))
		}
	})

	t.Run("異なるシークレットでは検証に失敗すること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT(testSecret, "user-wrong", "wrong@example.com", RoleCollaborator)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		claims := &JWTClaims{}
		_, err = jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte("wrong-secret"), nil
		})
		if err == nil {
			t.Fatal("異なるシークレットでの検証がエラーを返すべき")
		}
	})
}

// setupAuthRouter はJWTAuthを適用したテスト用ルーターを構築する。
func setupAuthRouter() *gin.Engine {
	router := gin.New()
	router.GET("/protected", JWTAuth(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": GetUserID(c),
			"role":    GetRole(c),
		})
	})
	return router
}

// TestJWTAuth はJWTAuthミドルウェアを検証する。
func TestJWTAuth(t *testing.T) {
	t.Parallel()

	t.Run("Authorizationヘッダーの有効なトークンで認証できること", func(t *testing.T) {
		t.Parallel()

		router := setupAuthRouter()
		tokenStr, err := GenerateJWT(testSecret, "user-1", "a@example.com", RoleApprover)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenStr)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("クエリパラメータのトークンで認証できること", func(t *testing.T) {
		t.Parallel()

		router := setupAuthRouter()
		tokenStr, err := GenerateJWT(testSecret, "user-ws", "ws@example.com", RoleCollaborator)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/protected?token="+tokenStr, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("トークンがない場合はUnauthorized", func(t *testing.T) {
		t.Parallel()

		router := setupAuthRouter()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("Bearer形式でないヘッダーはUnauthorized", func(t *testing.T) {
		t.Parallel()

		router := setupAuthRouter()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Basic abcdef")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("改ざんされたトークンはUnauthorized", func(t *testing.T) {
		t.Parallel()

		router := setupAuthRouter()
		tokenStr, err := GenerateJWT(testSecret, "user-2", "b@example.com", RoleCollaborator)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenStr+"tampered")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("コンテキストからユーザーIDとロールを取得できること", func(t *testing.T) {
		t.Parallel()

		router := setupAuthRouter()
		tokenStr, err := GenerateJWT(testSecret, "user-ctx", "ctx@example.com", RoleApprover)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenStr)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		body := w.Body.String()
		if !containsAll(body, `"user_id":"user-ctx"`, `"role":"approver"`) {
			t.Errorf("レスポンスにユーザー情報が含まれていません: %s", body)
		}
	})
}

// containsAll はすべての部分文字列が含まれるかを判定するヘルパー関数。
func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
