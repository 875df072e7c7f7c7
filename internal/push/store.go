// Package push はWeb Push購読の管理とプッシュ通知の送信を提供する。
// ブラウザが閉じていてもOSの通知センター経由でユーザーに届く配信チャネルであり、
// WebSocket配信とは独立して常に併用される。
package push

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Subscription はブラウザのPush API購読を表す。
// endpointはプッシュサービスが発行するURLで、購読ごとに一意。
type Subscription struct {
	// Endpoint はプッシュサービスのエンドポイントURL。
	Endpoint string `db:"endpoint" json:"endpoint"`
	// UserID は購読者のユーザーID。
	UserID string `db:"user_id" json:"user_id"`
	// P256dh はクライアントの公開鍵（base64url形式）。
	P256dh string `db:"p256dh" json:"p256dh"`
	// Auth は認証シークレット（base64url形式）。
	Auth string `db:"auth" json:"auth"`
	// CreatedAt は購読日時。
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Store はPush購読の永続化層。
type Store struct {
	// db は共有SQLiteデータベース接続。
	db *sqlx.DB
}

// NewStore は新しいPush購読ストアを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Upsert は購読を登録する。同じendpointの再登録は鍵とユーザーIDを上書きする（冪等）。
func (s *Store) Upsert(ctx context.Context, sub *Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO push_subscriptions (endpoint, user_id, p256dh, auth, created_at)
		VALUES (:endpoint, :user_id, :p256dh, :auth, :created_at)
		ON CONFLICT(endpoint) DO UPDATE SET
			user_id = excluded.user_id,
			p256dh = excluded.p256dh,
			auth = excluded.auth`, sub)
	if err != nil {
		return fmt.Errorf("Push購読の登録に失敗: %w", err)
	}
	return nil
}

// Delete は購読をendpoint指定で削除する。存在しない場合もエラーにならない。
func (s *Store) Delete(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM push_subscriptions WHERE endpoint = ?", endpoint)
	if err != nil {
		return fmt.Errorf("Push購読の削除に失敗: %w", err)
	}
	return nil
}

// ListByUser は指定ユーザーの全購読を返す。
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Subscription, error) {
	subs := []Subscription{}
	err := s.db.SelectContext(ctx, &subs,
		"SELECT * FROM push_subscriptions WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("Push購読一覧の取得に失敗: %w", err)
	}
	return subs, nil
}
