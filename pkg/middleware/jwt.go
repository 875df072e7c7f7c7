package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// ユーザーIDとロールをハンドラへ伝播するために使用する。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// Role はユーザーのロール（"approver" または "collaborator"）。
	Role string `json:"role"`
}

// RoleApprover は期限延長を直接実行・承認できるロール。
const RoleApprover = "approver"

// RoleCollaborator は通常のコラボレーターのロール。
const RoleCollaborator = "collaborator"

// GenerateJWT はユーザー情報からJWTトークンを生成する。
// 認証レイヤーがログイン成功後に呼び出す。
func GenerateJWT(secret, userID, email, role string) (string, error) {
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "agendahub",
		},
		UserID: userID,
		Email:  email,
		Role:   role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// トークンはAuthorizationヘッダー（Bearer形式）またはクエリパラメータ
// "token" から取得する。後者はブラウザのWebSocket接続がヘッダーを
// 設定できないために必要となる。
// 検証に成功した場合、コンテキストに "user_id"・"email"・"role" を設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "認証トークンが必要です",
			})
			return
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// extractToken はリクエストからJWTトークン文字列を取り出す。
// Authorizationヘッダーを優先し、なければクエリパラメータを参照する。
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		if tokenString, found := strings.CutPrefix(authHeader, "Bearer "); found {
			return tokenString
		}
		return ""
	}
	return c.Query("token")
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetRole はGinコンテキストからユーザーのロールを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetRole(c *gin.Context) string {
	role, _ := c.Get("role")
	if r, ok := role.(string); ok {
		return r
	}
	return ""
}
