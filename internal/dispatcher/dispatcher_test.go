package dispatcher

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nao1215/agendahub/internal/notification"
	"github.com/nao1215/agendahub/internal/push"
	"github.com/nao1215/agendahub/internal/realtime"
	"github.com/nao1215/agendahub/internal/storage"
	"github.com/nao1215/agendahub/pkg/event"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testEnv はディスパッチャーのテスト環境一式。
type testEnv struct {
	bus           *event.Bus
	notifications *notification.Store
	pushStore     *push.Store
	registry      *realtime.Registry
	wsServer      *httptest.Server
	pushService   *httptest.Server
	pushReceived  *atomic.Int32
}

// testSubscription はテスト用にcollab-1の有効な購読を生成する。
// p256dhはP-256公開鍵の非圧縮ポイント（65バイト）のbase64url表現。
func testSubscription(t *testing.T, endpoint string) *push.Subscription {
	t.Helper()

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("クライアント鍵の生成に失敗: %v", err)
	}
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("認証シークレットの生成に失敗: %v", err)
	}

	return &push.Subscription{
		Endpoint: endpoint + "/sub-1",
		UserID:   "collab-1",
		P256dh:   base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		Auth:     base64.RawURLEncoding.EncodeToString(secret),
	}
}

// setupTestEnv はバス・通知ストア・WebSocket・Web Pushを結線したテスト環境を構築する。
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	notifications := notification.NewStore(db)
	pushStore := push.NewStore(db)
	registry := realtime.NewRegistry(time.Second)
	t.Cleanup(registry.Close)

	// モックのプッシュサービス。受信数だけ数える。
	received := &atomic.Int32{}
	pushService := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(pushService.Close)

	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("VAPID鍵の生成に失敗: %v", err)
	}
	sender := push.NewSender(pushStore, pub, priv, "mailto:admin@example.com")

	bus := event.NewBus()
	t.Cleanup(bus.Close)
	New(notifications, registry, sender).Subscribe(bus)

	// WebSocket受付サーバー。
	handler := realtime.NewHandler(registry, notifications, nil)
	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		if userID := c.Query("user"); userID != "" {
			c.Set("user_id", userID)
		}
		handler.Handle()(c)
	})
	wsServer := httptest.NewServer(router)
	t.Cleanup(wsServer.Close)

	return &testEnv{
		bus:           bus,
		notifications: notifications,
		pushStore:     pushStore,
		registry:      registry,
		wsServer:      wsServer,
		pushService:   pushService,
		pushReceived:  received,
	}
}

// publish はイベントを組み立ててバスに発行する。
func publish(t *testing.T, bus *event.Bus, eventType event.Type, recipients []string, data any) {
	t.Helper()

	e, err := event.New("agenda-1", event.AggregateTypeAgenda, eventType, recipients, data)
	if err != nil {
		t.Fatalf("イベントの生成に失敗: %v", err)
	}
	bus.Publish(e)
}

// waitNotifications は指定ユーザーの通知数が期待値になるまで待機して返す。
func waitNotifications(t *testing.T, store *notification.Store, userID string, want int) []notification.Notification {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		notifications, err := store.ListAll(context.Background(), userID)
		if err != nil {
			t.Fatalf("通知一覧の取得に失敗: %v", err)
		}
		if len(notifications) >= want {
			return notifications
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("user=%s の通知が%d件になりませんでした", userID, want)
	return nil
}

// TestDispatcherCreatesNotifications はイベントから通知レコードへの変換を検証する。
func TestDispatcherCreatesNotifications(t *testing.T) {
	t.Run("宛先3人のイベントから3件の通知が作成されること", func(t *testing.T) {
		env := setupTestEnv(t)

		publish(t, env.bus, event.TypeStatusChanged, []string{"creator-1", "collab-1", "collab-2"}, event.StatusChangedData{
			AgendaTitle: "設計レビュー",
			OldStatus:   "pending",
			NewStatus:   "in-progress",
			ChangedBy:   "creator-1",
		})

		for _, userID := range []string{"creator-1", "collab-1", "collab-2"} {
			notifications := waitNotifications(t, env.notifications, userID, 1)
			n := notifications[0]
			if n.Type != notification.TypeStatusChange {
				t.Errorf("通知の種類が不正: got=%s", n.Type)
			}
			if n.IsRead {
				t.Error("作成直後の通知が既読になっています")
			}
			if n.RelatedAgendaID == nil || *n.RelatedAgendaID != "agenda-1" {
				t.Errorf("関連アジェンダIDが不正: got=%v", n.RelatedAgendaID)
			}
			if !strings.Contains(n.Message, "設計レビュー") {
				t.Errorf("メッセージにアジェンダ名が含まれていません: got=%s", n.Message)
			}
		}
	})

	t.Run("会議への招待はタスクと異なる文言になること", func(t *testing.T) {
		env := setupTestEnv(t)

		publish(t, env.bus, event.TypeAssignmentInvited, []string{"collab-1"}, event.AssignmentInvitedData{
			AgendaTitle: "スプリント計画",
			Kind:        "meeting",
		})

		notifications := waitNotifications(t, env.notifications, "collab-1", 1)
		if !strings.Contains(notifications[0].Title, "会議") {
			t.Errorf("会議招待の文言が不正: got=%s", notifications[0].Title)
		}
	})
}

// TestDispatcherFanOut は両チャネルへの配信を検証する。
func TestDispatcherFanOut(t *testing.T) {
	t.Run("同一ユーザーの2セッション両方にWebSocket配信されること", func(t *testing.T) {
		env := setupTestEnv(t)

		url := "ws" + strings.TrimPrefix(env.wsServer.URL, "http") + "/ws?user=collab-1"
		conns := make([]*websocket.Conn, 2)
		for i := range conns {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				t.Fatalf("WebSocket接続に失敗: %v", err)
			}
			t.Cleanup(func() { conn.Close() })
			conns[i] = conn
		}

		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) && env.registry.SessionCount("collab-1") < 2 {
			time.Sleep(10 * time.Millisecond)
		}

		publish(t, env.bus, event.TypeDeadlineExtended, []string{"collab-1"}, event.DeadlineExtendedData{
			AgendaTitle: "卒論ドラフト",
			NewDueAt:    "2024-01-15T23:59:59Z",
		})

		for i, conn := range conns {
			if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
				t.Fatalf("読み込み期限の設定に失敗: %v", err)
			}
			_, data, err := conn.ReadMessage()
			if err != nil {
				t.Fatalf("セッション%dの受信に失敗: %v", i+1, err)
			}

			var msg realtime.NotificationMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("メッセージのパースに失敗: %v", err)
			}
			if msg.Type != "notification" {
				t.Errorf("メッセージ種別が不正: got=%s", msg.Type)
			}
			if msg.Notification == nil || msg.Notification.Type != notification.TypeDeadlineExtended {
				t.Errorf("通知本体が不正: got=%v", msg.Notification)
			}
		}
	})

	t.Run("購読済みユーザーにはWeb Pushも送信されること", func(t *testing.T) {
		env := setupTestEnv(t)

		if err := env.pushStore.Upsert(context.Background(), testSubscription(t, env.pushService.URL)); err != nil {
			t.Fatalf("購読の登録に失敗: %v", err)
		}

		publish(t, env.bus, event.TypeAgendaOverdue, []string{"collab-1"}, event.AgendaOverdueData{
			AgendaTitle: "卒論ドラフト",
			DueAt:       "2024-01-10T17:00:00Z",
		})

		waitNotifications(t, env.notifications, "collab-1", 1)

		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) && env.pushReceived.Load() == 0 {
			time.Sleep(10 * time.Millisecond)
		}
		if env.pushReceived.Load() != 1 {
			t.Errorf("プッシュサービスへのリクエスト数が不正: got=%d", env.pushReceived.Load())
		}
	})

	t.Run("セッションも購読もないユーザーでも通知レコードは作成されること", func(t *testing.T) {
		env := setupTestEnv(t)

		publish(t, env.bus, event.TypeExtensionApproved, []string{"offline-user"}, event.ExtensionApprovedData{
			AgendaTitle: "設計レビュー",
			NewDueAt:    "2024-01-15T23:59:59Z",
		})

		notifications := waitNotifications(t, env.notifications, "offline-user", 1)
		if notifications[0].Type != notification.TypeExtensionApproved {
			t.Errorf("通知の種類が不正: got=%s", notifications[0].Type)
		}
	})
}
