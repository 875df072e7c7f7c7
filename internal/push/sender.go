package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/nao1215/agendahub/internal/notification"
)

// payloadAction はプッシュ通知に付くアクションボタン。
type payloadAction struct {
	// Action はアクションの識別子。
	Action string `json:"action"`
	// Title はボタンの表示名。
	Title string `json:"title"`
}

// payload はService Workerが受け取るプッシュ通知のペイロード。
type payload struct {
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
	// Icon は通知アイコンのパス。
	Icon string `json:"icon"`
	// Badge はステータスバー用バッジのパス。
	Badge string `json:"badge"`
	// Tag は通知の置き換え用タグ。同一通知の重複表示を防ぐ。
	Tag string `json:"tag"`
	// Data はクリック時の遷移先などの付随データ。
	Data payloadData `json:"data"`
	// Actions は通知に表示するアクションボタン。
	Actions []payloadAction `json:"actions"`
}

// payloadData はプッシュ通知の付随データ。
type payloadData struct {
	// URL は通知クリック時に開くパス。
	URL string `json:"url"`
}

// Sender はWeb Pushプロトコルでプッシュ通知を送信する。
type Sender struct {
	// store はPush購読ストア。無効になった購読の削除に使う。
	store *Store
	// vapidPublicKey はVAPID公開鍵（base64url形式）。
	vapidPublicKey string
	// vapidPrivateKey はVAPID秘密鍵（base64url形式）。
	vapidPrivateKey string
	// subscriber はVAPIDのsubクレームに入る連絡先（mailto:形式）。
	subscriber string
}

// NewSender は新しいプッシュ送信機を生成する。
func NewSender(store *Store, vapidPublicKey, vapidPrivateKey, subscriber string) *Sender {
	return &Sender{
		store:           store,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
		subscriber:      subscriber,
	}
}

// buildPayload は通知からプッシュペイロードを組み立てる。
func buildPayload(n *notification.Notification) ([]byte, error) {
	url := "/notifications"
	if n.RelatedAgendaID != nil {
		url = fmt.Sprintf("/agendas/%s", *n.RelatedAgendaID)
	}

	return json.Marshal(payload{
		Title: n.Title,
		Body:  n.Message,
		Icon:  "/icons/icon-192.png",
		Badge: "/icons/badge-72.png",
		Tag:   fmt.Sprintf("notification-%s", n.ID),
		Data:  payloadData{URL: url},
		Actions: []payloadAction{
			{Action: "open", Title: "開く"},
			{Action: "close", Title: "閉じる"},
		},
	})
}

// SendToUser は指定ユーザーの全購読にプッシュ通知を送信し、送信成功数を返す。
// プッシュサービスが404または410を返した購読は失効とみなして削除する。
// 個別の購読の失敗は他の購読への送信を止めない。
func (s *Sender) SendToUser(ctx context.Context, userID string, n *notification.Notification) (int, error) {
	subs, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		return 0, nil
	}

	body, err := buildPayload(n)
	if err != nil {
		return 0, fmt.Errorf("プッシュペイロードの組み立てに失敗: %w", err)
	}

	sent := 0
	for i := range subs {
		sub := &subs[i]
		if err := s.send(ctx, sub, body); err != nil {
			log.Printf("[Push] 送信に失敗: user=%s, endpoint=%s: %v", userID, sub.Endpoint, err)
			continue
		}
		sent++
	}
	return sent, nil
}

// send は1つの購読にプッシュ通知を送信する。
func (s *Sender) send(ctx context.Context, sub *Subscription, body []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.vapidPublicKey,
		VAPIDPrivateKey: s.vapidPrivateKey,
		TTL:             60,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		// 購読が失効している。以降の送信を止めるため削除する。
		log.Printf("[Push] 失効した購読を削除: endpoint=%s, status=%d", sub.Endpoint, resp.StatusCode)
		if err := s.store.Delete(ctx, sub.Endpoint); err != nil {
			return fmt.Errorf("失効購読の削除に失敗: %w", err)
		}
		return fmt.Errorf("購読が失効しています: status=%d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("プッシュサービスがエラーを返しました: status=%d", resp.StatusCode)
	}
	return nil
}
