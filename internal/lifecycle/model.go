package lifecycle

import (
	"time"
)

// Agenda のステータス。toggleにより pending → in-progress → completed → pending の順に巡回する。
const (
	// StatusPending は未着手の状態。
	StatusPending = "pending"
	// StatusInProgress は進行中の状態。
	StatusInProgress = "in-progress"
	// StatusCompleted は完了した状態。
	StatusCompleted = "completed"
)

// Agenda の種類。
const (
	// KindTask はタスクを表す。
	KindTask = "task"
	// KindMeeting は会議を表す。
	KindMeeting = "meeting"
)

// 期限延長の状態。none → pending → none のみ遷移する。
const (
	// ExtensionNone は延長申請が存在しない状態。
	ExtensionNone = "none"
	// ExtensionPending は延長申請が承認待ちの状態。
	ExtensionPending = "pending"
)

// Assignment の状態。pendingから accepted または rejected に一方向へ遷移し、以降は終端。
const (
	// AssignmentPending は招待に未応答の状態。
	AssignmentPending = "pending"
	// AssignmentAccepted は招待を承諾した状態。
	AssignmentAccepted = "accepted"
	// AssignmentRejected は招待を辞退した状態。
	AssignmentRejected = "rejected"
)

// Agenda はタスクまたは会議のライフサイクル単位を表す。
type Agenda struct {
	// ID はアジェンダの一意識別子（UUID）。
	ID string `db:"id" json:"id"`
	// Kind はアジェンダの種類（task / meeting）。
	Kind string `db:"kind" json:"kind"`
	// Title はタイトル。
	Title string `db:"title" json:"title"`
	// Status は現在のステータス。
	Status string `db:"status" json:"status"`
	// Priority は優先度（low / medium / high）。
	Priority string `db:"priority" json:"priority"`
	// StartsAt は開始日時。
	StartsAt time.Time `db:"starts_at" json:"starts_at"`
	// DueAt は期限日時。
	DueAt time.Time `db:"due_at" json:"due_at"`
	// CreatorID は作成者のユーザーID。作成者は延長の承認者を兼ねる。
	CreatorID string `db:"creator_id" json:"creator_id"`
	// ProjectID は関連プロジェクトのID。未所属の場合はnil。
	ProjectID *string `db:"project_id" json:"project_id,omitempty"`
	// ExtensionStatus は期限延長の状態（none / pending）。
	ExtensionStatus string `db:"extension_status" json:"extension_status"`
	// ExtensionCount は期限延長の実施回数。上限を超えて増加しない。
	ExtensionCount int `db:"extension_count" json:"extension_count"`
	// ExtensionRequestedBy は延長申請者のユーザーID。申請がない場合はnil。
	ExtensionRequestedBy *string `db:"extension_requested_by" json:"extension_requested_by,omitempty"`
	// RequestedDueAt は申請された新しい期限。申請がない場合はnil。
	RequestedDueAt *time.Time `db:"requested_due_at" json:"requested_due_at,omitempty"`
	// ExtensionReason は延長申請の理由。
	ExtensionReason *string `db:"extension_reason" json:"extension_reason,omitempty"`
	// LastOverdueAlertAt は期限超過アラートを最後に発行した日時。
	LastOverdueAlertAt *time.Time `db:"last_overdue_alert_at" json:"-"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Assignment はアジェンダとコラボレーターの関係を表す。組ごとに一意。
type Assignment struct {
	// AgendaID は対象アジェンダのID。
	AgendaID string `db:"agenda_id" json:"agenda_id"`
	// CollaboratorID はコラボレーターのユーザーID。
	CollaboratorID string `db:"collaborator_id" json:"collaborator_id"`
	// Status はアサインの状態（pending / accepted / rejected）。
	Status string `db:"status" json:"status"`
	// RejectionReason は辞退理由。辞退時のみ設定される。
	RejectionReason *string `db:"rejection_reason" json:"rejection_reason,omitempty"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	// RespondedAt は応答日時。未応答の場合はnil。
	RespondedAt *time.Time `db:"responded_at" json:"responded_at,omitempty"`
}

// Actor は遷移を要求するユーザーを表す。
type Actor struct {
	// ID はユーザーの一意識別子。
	ID string
	// Approver は承認者ロール（スーパーユーザー相当）かどうか。
	Approver bool
}

// IsOverdue はアジェンダが期限超過かどうかを判定する純粋関数。
// 保存されず、読み取り時に毎回計算される。サーバー側の判断と
// クライアント表示の双方がこの1つの関数を使用する。
func IsOverdue(dueAt time.Time, status string, now time.Time) bool {
	return status != StatusCompleted && now.After(dueAt)
}
