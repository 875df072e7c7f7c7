// Package notifyclient は通知サーバーへ接続するクライアントエージェントを提供する。
// WebSocketで通知をリアルタイム受信し、切断時は固定間隔で自動再接続する。
// 再接続のたびにREST APIから最近の通知を取得し、切断中の取りこぼしを補完する。
// 同じ通知IDは一度しか配送されないため、補完とリアルタイム受信が重複しても安全に扱える。
package notifyclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nao1215/agendahub/pkg/httpclient"
)

// ErrNotConnected はWebSocket未接続の状態での送信操作を表す。
var ErrNotConnected = errors.New("WebSocket接続が確立されていません")

// Notification はサーバーから受信する通知。
type Notification struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id"`
	// Type は通知の種類。
	Type string `json:"type"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// RelatedAgendaID は関連アジェンダのID。
	RelatedAgendaID *string `json:"related_agenda_id,omitempty"`
	// IsRead は既読状態。
	IsRead bool `json:"is_read"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `json:"created_at"`
}

// serverMessage はWebSocketで受信するサーバーメッセージ。
type serverMessage struct {
	// Type はメッセージの種類。
	Type string `json:"type"`
	// Notification は通知本体。
	Notification *Notification `json:"notification"`
}

// Handler は受信した通知を処理するコールバック。
// クライアントの受信goroutineから呼ばれるため、ブロックする処理は避けること。
type Handler func(*Notification)

// Config はクライアントの設定。
type Config struct {
	// ServerURL はサーバーのベースURL（http:// または https://）。
	ServerURL string
	// Token は認証に使うJWTトークン。
	Token string
	// ReconnectDelay は再接続の試行間隔。ゼロなら3秒。
	ReconnectDelay time.Duration
	// OnNotification は通知受信時のコールバック。
	OnNotification Handler
}

// Client は通知サーバーへの常時接続クライアント。
type Client struct {
	// config はクライアント設定。
	config Config
	// api はREST APIクライアント。補完取得に使う。
	api *httpclient.Client
	// done はClose時に閉じられるチャネル。再接続待ちの中断にも使う。
	done chan struct{}
	// closeOnce はCloseの多重呼び出しを防ぐ。
	closeOnce sync.Once
	// wg は接続ループの終了待ちに使う。
	wg sync.WaitGroup

	// mu は以下のフィールドを保護するミューテックス。
	mu sync.Mutex
	// conn は現在のWebSocket接続。未接続ならnil。
	conn *websocket.Conn
	// seen は配送済みの通知IDの集合。重複配送を防ぐ。
	seen map[string]struct{}
}

// New は新しいクライアントを生成して接続ループを開始する。
func New(config Config) *Client {
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = 3 * time.Second
	}

	api := httpclient.New(config.ServerURL)
	api.SetBearerToken(config.Token)

	c := &Client{
		config: config,
		api:    api,
		done:   make(chan struct{}),
		seen:   make(map[string]struct{}),
	}

	c.wg.Add(1)
	go c.run()
	return c
}

// wsURL はWebSocket接続先のURLを組み立てる。
// ブラウザのWebSocket APIに合わせ、認証はtokenクエリパラメータで行う。
func (c *Client) wsURL() string {
	base := strings.Replace(c.config.ServerURL, "http", "ws", 1)
	return fmt.Sprintf("%s/api/v1/ws?token=%s", base, c.config.Token)
}

// run は接続・受信・再接続を繰り返すループ。Closeまで動き続ける。
func (c *Client) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.wsURL(), nil)
		if err != nil {
			log.Printf("[NotifyClient] 接続に失敗。%v後に再接続します: %v", c.config.ReconnectDelay, err)
			if !c.sleep() {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		// 切断中に届いた通知をREST APIから補完する。
		c.reconcile()

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()

		if !c.sleep() {
			return
		}
	}
}

// sleep は再接続間隔だけ待機する。Closeされた場合はfalseを返す。
func (c *Client) sleep() bool {
	timer := time.NewTimer(c.config.ReconnectDelay)
	defer timer.Stop()

	select {
	case <-c.done:
		return false
	case <-timer.C:
		return true
	}
}

// reconcile は最近の通知をREST APIから取得して未配送分を配送する。
func (c *Client) reconcile() {
	var resp struct {
		Notifications []Notification `json:"notifications"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.api.GetJSON(ctx, "/api/v1/notifications?filter=recent", &resp); err != nil {
		log.Printf("[NotifyClient] 通知の補完取得に失敗: %v", err)
		return
	}

	for i := range resp.Notifications {
		c.deliver(&resp.Notifications[i])
	}
}

// readLoop はWebSocketからの受信を処理する。接続が切れるまでブロックする。
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("[NotifyClient] 接続が切断されました。%v後に再接続します: %v", c.config.ReconnectDelay, err)
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[NotifyClient] 不正なメッセージを無視: %v", err)
			continue
		}
		if msg.Type != "notification" || msg.Notification == nil {
			continue
		}
		c.deliver(msg.Notification)
	}
}

// deliver は未配送の通知をコールバックに渡す。同じIDの通知は一度しか配送しない。
func (c *Client) deliver(n *Notification) {
	c.mu.Lock()
	if _, delivered := c.seen[n.ID]; delivered {
		c.mu.Unlock()
		return
	}
	c.seen[n.ID] = struct{}{}
	c.mu.Unlock()

	if c.config.OnNotification != nil {
		c.config.OnNotification(n)
	}
}

// MarkRead は通知の既読要求をWebSocketで送信する。未接続の場合はErrNotConnected。
func (c *Client) MarkRead(notificationID string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	msg := map[string]string{
		"action":          "mark_read",
		"notification_id": notificationID,
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("既読要求の送信に失敗: %w", err)
	}
	return nil
}

// Connected は現在WebSocket接続が確立しているかを返す。
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close はクライアントを停止する。再接続待ちも即座に中断される。
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()

		c.wg.Wait()
	})
}
