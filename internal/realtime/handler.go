package realtime

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nao1215/agendahub/internal/notification"
	"github.com/nao1215/agendahub/pkg/middleware"
)

// NotificationMessage はサーバーからクライアントへ配信する通知メッセージ。
type NotificationMessage struct {
	// Type はメッセージの種類。通知配信では常に "notification"。
	Type string `json:"type"`
	// Notification は配信する通知本体。
	Notification *notification.Notification `json:"notification"`
}

// NewNotificationMessage は通知配信メッセージを組み立てる。
func NewNotificationMessage(n *notification.Notification) *NotificationMessage {
	return &NotificationMessage{Type: "notification", Notification: n}
}

// clientMessage はクライアントからサーバーへのメッセージ。
type clientMessage struct {
	// Action は操作の種類。現在は "mark_read" のみ。
	Action string `json:"action"`
	// NotificationID は操作対象の通知ID。
	NotificationID string `json:"notification_id"`
}

// Handler はWebSocket接続のアップグレードと受信処理を担う。
type Handler struct {
	// registry はセッションレジストリ。
	registry *Registry
	// notifications は既読処理に使う通知ストア。
	notifications *notification.Store
	// upgrader はHTTP接続のWebSocketアップグレーダー。
	upgrader websocket.Upgrader
}

// NewHandler は新しいWebSocketハンドラを生成する。
// allowedOriginsにはOriginヘッダーとして受け入れるURLを指定する。空なら全許可。
func NewHandler(registry *Registry, notifications *notification.Store, allowedOrigins []string) *Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}

	return &Handler{
		registry:      registry,
		notifications: notifications,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Handle はWebSocket接続を受け付けるGinハンドラを返す。
// JWT認証ミドルウェアを通過済みであることを前提とする。
// ブラウザのWebSocket APIはヘッダーを設定できないため、認証はtokenクエリパラメータで行われる。
func (h *Handler) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgradeはエラー時に自身でHTTPレスポンスを書き込む。
			log.Printf("[Realtime] WebSocketアップグレードに失敗: user=%s: %v", userID, err)
			return
		}

		session := h.registry.Register(userID, conn)
		log.Printf("[Realtime] WebSocket接続を確立: user=%s, sessions=%d", userID, h.registry.SessionCount(userID))

		h.readLoop(c, session, conn, userID)
	}
}

// readLoop はクライアントからのメッセージを処理する。接続が切れるまでブロックする。
func (h *Handler) readLoop(c *gin.Context, session *Session, conn *websocket.Conn, userID string) {
	defer func() {
		h.registry.Unregister(session)
		log.Printf("[Realtime] WebSocket接続を終了: user=%s", userID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Realtime] 予期しない切断: user=%s: %v", userID, err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[Realtime] 不正なメッセージを無視: user=%s: %v", userID, err)
			continue
		}

		switch msg.Action {
		case "mark_read":
			if err := h.notifications.MarkRead(c.Request.Context(), msg.NotificationID, userID); err != nil {
				// 既に削除済みの通知への既読要求は起こり得るためログのみ。
				if !errors.Is(err, notification.ErrNotFound) {
					log.Printf("[Realtime] 既読処理に失敗: user=%s, notification=%s: %v", userID, msg.NotificationID, err)
				}
			}
		default:
			log.Printf("[Realtime] 未知のactionを無視: user=%s, action=%s", userID, msg.Action)
		}
	}
}
