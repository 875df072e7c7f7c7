package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// 通知の種類。ライフサイクルイベント1種類につき1つ対応する。
const (
	// TypeAssignmentInvite はアサイン招待の通知。
	TypeAssignmentInvite = "assignment_invite"
	// TypeAssignmentAccepted はアサイン承諾の通知。
	TypeAssignmentAccepted = "assignment_accepted"
	// TypeAssignmentRejected はアサイン辞退の通知。
	TypeAssignmentRejected = "assignment_rejected"
	// TypeStatusChange はステータス変更の通知。
	TypeStatusChange = "status_change"
	// TypeExtensionRequested は期限延長申請の通知。
	TypeExtensionRequested = "extension_requested"
	// TypeExtensionApproved は期限延長承認の通知。
	TypeExtensionApproved = "extension_approved"
	// TypeExtensionRejected は期限延長却下の通知。
	TypeExtensionRejected = "extension_rejected"
	// TypeDeadlineExtended は期限延長実施の通知。
	TypeDeadlineExtended = "deadline_extended"
	// TypeAgendaOverdue は期限超過アラートの通知。
	TypeAgendaOverdue = "agenda_overdue"
)

// ErrNotFound は対象の通知が存在しないことを表す。
var ErrNotFound = errors.New("通知が見つかりません")

// ErrForbidden は他ユーザーの通知への操作を表す。
var ErrForbidden = errors.New("この通知を操作する権限がありません")

// Notification は1件の通知レコードを表す。
type Notification struct {
	// ID は通知の一意識別子（UUID）。
	ID string `db:"id" json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `db:"user_id" json:"user_id"`
	// Type は通知の種類。
	Type string `db:"type" json:"type"`
	// Title は通知のタイトル。
	Title string `db:"title" json:"title"`
	// Message は通知メッセージ。
	Message string `db:"message" json:"message"`
	// RelatedAgendaID は関連アジェンダのID。
	RelatedAgendaID *string `db:"related_agenda_id" json:"related_agenda_id,omitempty"`
	// RelatedAgendaSummary は関連アジェンダのタイトル要約。
	RelatedAgendaSummary *string `db:"related_agenda_summary" json:"related_agenda_summary,omitempty"`
	// RelatedProjectID は関連プロジェクトのID。
	RelatedProjectID *string `db:"related_project_id" json:"related_project_id,omitempty"`
	// IsRead は既読状態。
	IsRead bool `db:"is_read" json:"is_read"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CreateParams は通知作成のパラメータ。
type CreateParams struct {
	// UserID は通知先のユーザーID。
	UserID string
	// Type は通知の種類。
	Type string
	// Title は通知のタイトル。
	Title string
	// Message は通知メッセージ。
	Message string
	// RelatedAgendaID は関連アジェンダのID。関連がない場合は空文字。
	RelatedAgendaID string
	// RelatedAgendaSummary は関連アジェンダのタイトル。
	RelatedAgendaSummary string
	// RelatedProjectID は関連プロジェクトのID。関連がない場合は空文字。
	RelatedProjectID string
}

// Store は通知の永続化層。
type Store struct {
	// db は共有SQLiteデータベース接続。
	db *sqlx.DB
}

// NewStore は新しい通知ストアを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// nullable は空文字をNULLに変換する。
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create は通知を作成して返す。
func (s *Store) Create(ctx context.Context, p CreateParams) (*Notification, error) {
	n := &Notification{
		ID:                   uuid.New().String(),
		UserID:               p.UserID,
		Type:                 p.Type,
		Title:                p.Title,
		Message:              p.Message,
		RelatedAgendaID:      nullable(p.RelatedAgendaID),
		RelatedAgendaSummary: nullable(p.RelatedAgendaSummary),
		RelatedProjectID:     nullable(p.RelatedProjectID),
		CreatedAt:            time.Now().UTC(),
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO notifications (
			id, user_id, type, title, message,
			related_agenda_id, related_agenda_summary, related_project_id,
			is_read, created_at
		) VALUES (
			:id, :user_id, :type, :title, :message,
			:related_agenda_id, :related_agenda_summary, :related_project_id,
			:is_read, :created_at
		)`, n)
	if err != nil {
		return nil, fmt.Errorf("通知の作成に失敗: %w", err)
	}
	return n, nil
}

// Get は通知を1件取得する。
func (s *Store) Get(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	if err := s.db.GetContext(ctx, &n, "SELECT * FROM notifications WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("通知 %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return &n, nil
}

// ListRecent は境界日時以降に作成された通知を新しい順に返す。
func (s *Store) ListRecent(ctx context.Context, userID string, boundary time.Time) ([]Notification, error) {
	notifications := []Notification{}
	err := s.db.SelectContext(ctx, &notifications, `
		SELECT * FROM notifications
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC`, userID, boundary)
	if err != nil {
		return nil, fmt.Errorf("最近の通知一覧の取得に失敗: %w", err)
	}
	return notifications, nil
}

// ListArchived は境界日時より前に作成された通知を新しい順に返す。
func (s *Store) ListArchived(ctx context.Context, userID string, boundary time.Time) ([]Notification, error) {
	notifications := []Notification{}
	err := s.db.SelectContext(ctx, &notifications, `
		SELECT * FROM notifications
		WHERE user_id = ? AND created_at < ?
		ORDER BY created_at DESC`, userID, boundary)
	if err != nil {
		return nil, fmt.Errorf("アーカイブ通知一覧の取得に失敗: %w", err)
	}
	return notifications, nil
}

// ListAll はユーザーの全通知を新しい順に返す。
func (s *Store) ListAll(ctx context.Context, userID string) ([]Notification, error) {
	notifications := []Notification{}
	err := s.db.SelectContext(ctx, &notifications, `
		SELECT * FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	return notifications, nil
}

// ListUnread はユーザーの未読通知を新しい順に返す。
func (s *Store) ListUnread(ctx context.Context, userID string) ([]Notification, error) {
	notifications := []Notification{}
	err := s.db.SelectContext(ctx, &notifications, `
		SELECT * FROM notifications
		WHERE user_id = ? AND is_read = 0
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("未読通知一覧の取得に失敗: %w", err)
	}
	return notifications, nil
}

// UnreadCount はユーザーの未読通知数を返す。sinceがゼロ値でない場合は
// since以降に作成された未読通知のみを数える。
func (s *Store) UnreadCount(ctx context.Context, userID string, since time.Time) (int, error) {
	query := "SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0"
	args := []any{userID}
	if !since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, since)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("未読通知数の取得に失敗: %w", err)
	}
	return count, nil
}

// MarkRead は通知を既読にする。既読済みへの再実行は冪等で、エラーにならない。
// 他ユーザーの通知を指定した場合はErrForbidden。
func (s *Store) MarkRead(ctx context.Context, id, userID string) error {
	n, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return fmt.Errorf("通知 %s: %w", id, ErrForbidden)
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("通知の既読処理に失敗: %w", err)
	}
	return nil
}

// MarkAllRead はユーザーの全通知を既読にする。
func (s *Store) MarkAllRead(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0", userID)
	if err != nil {
		return fmt.Errorf("全通知の既読処理に失敗: %w", err)
	}
	return nil
}

// Delete は通知を1件削除する。他ユーザーの通知を指定した場合はErrForbidden。
func (s *Store) Delete(ctx context.Context, id, userID string) error {
	n, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return fmt.Errorf("通知 %s: %w", id, ErrForbidden)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id); err != nil {
		return fmt.Errorf("通知の削除に失敗: %w", err)
	}
	return nil
}

// ClearArchived は境界日時より前に作成された通知のみを一括削除し、削除件数を返す。
// 境界日時以降の通知（最近の通知）は対象外。
func (s *Store) ClearArchived(ctx context.Context, userID string, boundary time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE user_id = ? AND created_at < ?", userID, boundary)
	if err != nil {
		return 0, fmt.Errorf("アーカイブ通知の削除に失敗: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return deleted, nil
}
