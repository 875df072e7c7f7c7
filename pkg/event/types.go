package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeAgenda はアジェンダ（タスク・会議）エンティティを表す。
	AggregateTypeAgenda AggregateType = "Agenda"
	// AggregateTypeProject はプロジェクトエンティティを表す。
	AggregateTypeProject AggregateType = "Project"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeAssignmentInvited はコラボレーターがアジェンダに招待されたことを表す。
	TypeAssignmentInvited Type = "AssignmentInvited"
	// TypeAssignmentAccepted はコラボレーターがアサインを承諾したことを表す。
	TypeAssignmentAccepted Type = "AssignmentAccepted"
	// TypeAssignmentRejected はコラボレーターがアサインを辞退したことを表す。
	TypeAssignmentRejected Type = "AssignmentRejected"
	// TypeStatusChanged はアジェンダのステータスが変更されたことを表す。
	TypeStatusChanged Type = "StatusChanged"
	// TypeExtensionRequested は期限延長の申請が提出されたことを表す。
	TypeExtensionRequested Type = "ExtensionRequested"
	// TypeExtensionApproved は期限延長の申請が承認されたことを表す。
	TypeExtensionApproved Type = "ExtensionApproved"
	// TypeExtensionRejected は期限延長の申請が却下されたことを表す。
	TypeExtensionRejected Type = "ExtensionRejected"
	// TypeDeadlineExtended は承認者により期限が直接延長されたことを表す。
	TypeDeadlineExtended Type = "DeadlineExtended"
	// TypeAgendaOverdue はアジェンダが期限を超過したことを表す。
	TypeAgendaOverdue Type = "AgendaOverdue"
)

// Event はライフサイクル遷移により発行される不変のイベントレコードを表す。
// 状態遷移が1回コミットされるごとに、ちょうど1つのイベントがバスに発行される。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Recipients は通知を受け取るべきユーザーIDの集合。
	// 発行元の状態機械が遷移ごとに解決する（例: アサイン承諾は作成者に通知）。
	Recipients []string `json:"recipients"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// AssignmentInvitedData はAssignmentInvitedイベントのデータ。
type AssignmentInvitedData struct {
	// AgendaTitle はアジェンダのタイトル。
	AgendaTitle string `json:"agenda_title"`
	// Kind はアジェンダの種類（task / meeting）。
	Kind string `json:"kind"`
	// ProjectID は関連プロジェクトのID。未所属の場合は空文字。
	ProjectID string `json:"project_id,omitempty"`
}

// AssignmentAcceptedData はAssignmentAcceptedイベントのデータ。
type AssignmentAcceptedData struct {
	// AgendaTitle はアジェンダのタイトル。
	AgendaTitle string `json:"agenda_title"`
	// CollaboratorID は承諾したコラボレーターのID。
	CollaboratorID string `json:"collaborator_id"`
	// ProjectID は関連プロジェクトのID。未所属の場合は空文字。
	ProjectID string `json:"project_id,omitempty"`
}

// AssignmentRejectedData はAssignmentRejectedイベントのデータ。
type AssignmentRejectedData struct {
	// AgendaTitle はアジェンダのタイトル。
	AgendaTitle string `json:"agenda_title"`
	// CollaboratorID は辞退したコラボレーターのID。
	CollaboratorID string `json:"collaborator_id"`
	// Reason は辞退理由。辞退時は必須。
	Reason string `json:"reason"`
	// ProjectID は関連プロジェクトのID。未所属の場合は空文字。
	ProjectID string `json:"project_id,omitempty"`
}

// StatusChangedData はStatusChangedイベントのデータ。
type StatusChangedData struct {
	// AgendaTitle はアジェンダのタイトル。
	AgendaTitle string `json:"agenda_title"`
	// OldStatus は変更前のステータス。
	OldStatus string `json:"old_status"`
	// NewStatus は変更後のステータス。
	NewStatus string `json:"new_status"`
	// ChangedBy はステータスを変更したユーザーのID。
	ChangedBy string `json:"changed_by"`
	// ProjectID は関連プロジェクトのID。未所属の場合は空文字。
	ProjectID string `json:"project_id,omitempty"`
}

// ExtensionRequestedData はExtensionRequestedイベントのデータ。
type ExtensionRequestedData struct {
	// AgendaTitle はアジェンダのタイトル。
	AgendaTitle string `json:"agenda_title"`
	// RequestedBy は申請したコラボレーターのID。
	RequestedBy string `json:"requested_by"`
	// RequestedDueAt は申請された新しい期限（RFC3339形式）。
	RequestedDueAt string `json:"requested_due_at"`
	// Reason は申請理由。非承認者の申請では必須。
	Reason string `json:"reason"`
	// ProjectID は関連プロジェクトのID。未所属の場合は空文字。
	ProjectID string `json:"project_id,omitempty"`
}

// ExtensionApprovedData はExtensionApprovedイベントのデータ。
type ExtensionApprovedData struct {
	// AgendaTitle はアジェンダのタイトル。
	AgendaTitle string `json:"agenda_title"`
	// NewDueAt は承認により確定した新しい期限（RFC3339形式）。
	NewDueAt string `json:"new_due_at"`
	// ProjectID は関連プロジェクトのID。未所属の場合は空文字。
	ProjectID string `json:"project_id,omitempty"`
}

// ExtensionRejectedData はExtensionRejectedイベントのデータ。
type ExtensionRejectedData struct {
	// AgendaTitle はアジェンダのタイトル。
	AgendaTitle string `json:"agenda_title"`
	// ProjectID は関連プロジェクトのID。未所属の場合は空文字。
	ProjectID string `json:"project_id,omitempty"`
}

// DeadlineExtendedData はDeadlineExtendedイベントのデータ。
type DeadlineExtendedData struct {
	// AgendaTitle はアジェンダのタイトル。
	AgendaTitle string `json:"agenda_title"`
	// NewDueAt は延長後の期限（RFC3339形式）。
	NewDueAt string `json:"new_due_at"`
	// ProjectID は関連プロジェクトのID。未所属の場合は空文字。
	ProjectID string `json:"project_id,omitempty"`
}

// AgendaOverdueData はAgendaOverdueイベントのデータ。
type AgendaOverdueData struct {
	// AgendaTitle はアジェンダのタイトル。
	AgendaTitle string `json:"agenda_title"`
	// DueAt は超過した期限（RFC3339形式）。
	DueAt string `json:"due_at"`
	// ProjectID は関連プロジェクトのID。未所属の場合は空文字。
	ProjectID string `json:"project_id,omitempty"`
}
