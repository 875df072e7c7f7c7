package push

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/agendahub/pkg/middleware"
)

// Server はPush購読管理のHTTPハンドラ群。共有のGinルーターにルートを登録して使用する。
type Server struct {
	// store はPush購読の永続化層。
	store *Store
	// vapidPublicKey はクライアントに公開するVAPID公開鍵。
	vapidPublicKey string
}

// NewServer は新しいPush購読サーバーを生成する。
func NewServer(store *Store, vapidPublicKey string) *Server {
	return &Server{store: store, vapidPublicKey: vapidPublicKey}
}

// RegisterRoutes はPush購読関連のAPIルーティングを登録する。
// グループにはJWT認証ミドルウェアが適用済みであることを前提とする。
func (s *Server) RegisterRoutes(api gin.IRouter) {
	push := api.Group("/push")
	{
		// VAPID公開鍵の取得（クライアントの購読処理に必要）
		push.GET("/vapid-public-key", s.handleVAPIDPublicKey())
		// 購読の登録（同一endpointの再登録は上書き）
		push.POST("/subscribe", s.handleSubscribe())
		// 購読の解除
		push.POST("/unsubscribe", s.handleUnsubscribe())
	}
}

// handleVAPIDPublicKey はVAPID公開鍵を返すハンドラ。
func (s *Server) handleVAPIDPublicKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"public_key": s.vapidPublicKey})
	}
}

// subscribeRequest は購読登録リクエストのJSON構造。
// ブラウザのPushSubscription.toJSON()と同じ形。
type subscribeRequest struct {
	// Endpoint はプッシュサービスのエンドポイントURL。
	Endpoint string `json:"endpoint" binding:"required"`
	// Keys は暗号化鍵のペア。
	Keys struct {
		// P256dh はクライアントの公開鍵（base64url形式）。
		P256dh string `json:"p256dh" binding:"required"`
		// Auth は認証シークレット（base64url形式）。
		Auth string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

// handleSubscribe はPush購読を登録するハンドラ。
func (s *Server) handleSubscribe() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req subscribeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		sub := &Subscription{
			Endpoint: req.Endpoint,
			UserID:   middleware.GetUserID(c),
			P256dh:   req.Keys.P256dh,
			Auth:     req.Keys.Auth,
		}
		if err := s.store.Upsert(c.Request.Context(), sub); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "購読の登録に失敗しました"})
			log.Printf("[Push] 購読登録エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"message": "プッシュ通知の購読を登録しました"})
	}
}

// unsubscribeRequest は購読解除リクエストのJSON構造。
type unsubscribeRequest struct {
	// Endpoint は解除対象のエンドポイントURL。
	Endpoint string `json:"endpoint" binding:"required"`
}

// handleUnsubscribe はPush購読を解除するハンドラ。
// 存在しないendpointの解除も200を返す（冪等）。
func (s *Server) handleUnsubscribe() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req unsubscribeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if err := s.store.Delete(c.Request.Context(), req.Endpoint); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "購読の解除に失敗しました"})
			log.Printf("[Push] 購読解除エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "プッシュ通知の購読を解除しました"})
	}
}
