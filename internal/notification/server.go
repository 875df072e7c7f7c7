package notification

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/agendahub/pkg/middleware"
)

// Server は通知のHTTPハンドラ群。共有のGinルーターにルートを登録して使用する。
type Server struct {
	// store は通知の永続化層。
	store *Store
	// horizon は「最近」と「アーカイブ」を分ける経過時間。
	horizon time.Duration
	// now は現在時刻の取得関数。テストで差し替える。
	now func() time.Time
}

// NewServer は新しい通知サーバーを生成する。
func NewServer(store *Store, horizon time.Duration) *Server {
	return &Server{
		store:   store,
		horizon: horizon,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// boundary は現在時刻から recent/archived の境界日時を計算する。
// 境界は保存されず、リクエストごとに壁時計から導出される。
func (s *Server) boundary() time.Time {
	return s.now().Add(-s.horizon)
}

// RegisterRoutes は通知関連のAPIルーティングを登録する。
// グループにはJWT認証ミドルウェアが適用済みであることを前提とする。
func (s *Server) RegisterRoutes(api gin.IRouter) {
	notifications := api.Group("/notifications")
	{
		// 通知一覧取得（filter=recent|archived|all、デフォルトはrecent）
		notifications.GET("", s.handleList())
		// 未読通知一覧取得
		notifications.GET("/unread", s.handleListUnread())
		// 未読通知数取得（scope=recent|all、デフォルトはall）
		notifications.GET("/unread-count", s.handleUnreadCount())
		// 通知を既読にする（冪等）
		notifications.PUT("/:id/read", s.handleMarkRead())
		// 全通知を既読にする
		notifications.PUT("/read-all", s.handleMarkAllRead())
		// 通知を1件削除する
		notifications.DELETE("/:id", s.handleDelete())
		// アーカイブ通知を一括削除する（最近の通知は残る）
		notifications.POST("/clear-archived", s.handleClearArchived())
	}
}

// writeError は通知のエラーをHTTPステータスに対応付けて返す。
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "内部エラーが発生しました"})
		log.Printf("[Notification] 内部エラー: %v", err)
	}
}

// handleList は認証済みユーザーの通知一覧を返すハンドラ。
// filterクエリパラメータで recent / archived / all を切り替える。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		var (
			notifications []Notification
			err           error
		)
		filter := c.DefaultQuery("filter", "recent")
		switch filter {
		case "recent":
			notifications, err = s.store.ListRecent(c.Request.Context(), userID, s.boundary())
		case "archived":
			notifications, err = s.store.ListArchived(c.Request.Context(), userID, s.boundary())
		case "all":
			notifications, err = s.store.ListAll(c.Request.Context(), userID)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("不正なfilterです: %s", filter)})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"notifications": notifications})
	}
}

// handleListUnread は認証済みユーザーの未読通知一覧を返すハンドラ。
func (s *Server) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		notifications, err := s.store.ListUnread(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": notifications})
	}
}

// handleUnreadCount は認証済みユーザーの未読通知数を返すハンドラ。
// scopeクエリパラメータで recent（境界日時以降のみ）/ all を切り替える。
func (s *Server) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		var since time.Time
		scope := c.DefaultQuery("scope", "all")
		switch scope {
		case "recent":
			since = s.boundary()
		case "all":
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("不正なscopeです: %s", scope)})
			return
		}

		count, err := s.store.UnreadCount(c.Request.Context(), middleware.GetUserID(c), since)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"unread_count": count})
	}
}

// handleMarkRead は指定された通知を既読にするハンドラ。
// 既読済みの通知への再実行も200を返す（冪等）。
func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.store.MarkRead(c.Request.Context(), c.Param("id"), middleware.GetUserID(c)); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "通知を既読にしました"})
	}
}

// handleMarkAllRead は認証済みユーザーの全通知を既読にするハンドラ。
func (s *Server) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.store.MarkAllRead(c.Request.Context(), middleware.GetUserID(c)); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "全通知を既読にしました"})
	}
}

// handleDelete は指定された通知を削除するハンドラ。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.store.Delete(c.Request.Context(), c.Param("id"), middleware.GetUserID(c)); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "通知を削除しました"})
	}
}

// handleClearArchived はアーカイブ通知を一括削除するハンドラ。
// 境界日時以降の最近の通知には影響しない。
func (s *Server) handleClearArchived() gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := s.store.ClearArchived(c.Request.Context(), middleware.GetUserID(c), s.boundary())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":       "アーカイブ通知を削除しました",
			"deleted_count": deleted,
		})
	}
}
