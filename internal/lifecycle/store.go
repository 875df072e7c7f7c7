package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store はアジェンダとアサインの永続化を担う。
// 遷移の直列化はMachine側のロックで保証されるため、Storeは単純なSQL実行に徹する。
type Store struct {
	// db は共有SQLiteデータベース接続。
	db *sqlx.DB
}

// NewStore は新しいストアを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// CreateAgenda はアジェンダと招待中のアサインをトランザクション内で作成する。
func (s *Store) CreateAgenda(ctx context.Context, a *Agenda, collaborators []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO agendas (
			id, kind, title, status, priority, starts_at, due_at,
			creator_id, project_id, extension_status, extension_count,
			created_at, updated_at
		) VALUES (
			:id, :kind, :title, :status, :priority, :starts_at, :due_at,
			:creator_id, :project_id, :extension_status, :extension_count,
			:created_at, :updated_at
		)`, a)
	if err != nil {
		return fmt.Errorf("アジェンダの作成に失敗: %w", err)
	}

	for _, collaboratorID := range collaborators {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO assignments (agenda_id, collaborator_id, status, created_at)
			VALUES (?, ?, ?, ?)`,
			a.ID, collaboratorID, AssignmentPending, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("アサインの作成に失敗: %w", err)
		}
	}

	return tx.Commit()
}

// GetAgenda は指定IDのアジェンダを取得する。存在しない場合はErrNotFoundを返す。
func (s *Store) GetAgenda(ctx context.Context, id string) (*Agenda, error) {
	var a Agenda
	err := s.db.GetContext(ctx, &a, "SELECT * FROM agendas WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("アジェンダ %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("アジェンダの取得に失敗: %w", err)
	}
	return &a, nil
}

// ListAssignments は指定アジェンダの全アサインを取得する。
func (s *Store) ListAssignments(ctx context.Context, agendaID string) ([]Assignment, error) {
	assignments := []Assignment{}
	err := s.db.SelectContext(ctx, &assignments,
		"SELECT * FROM assignments WHERE agenda_id = ? ORDER BY created_at", agendaID)
	if err != nil {
		return nil, fmt.Errorf("アサイン一覧の取得に失敗: %w", err)
	}
	return assignments, nil
}

// GetAssignment は指定の（アジェンダ、コラボレーター）組のアサインを取得する。
// 存在しない場合はErrNotFoundを返す。
func (s *Store) GetAssignment(ctx context.Context, agendaID, collaboratorID string) (*Assignment, error) {
	var a Assignment
	err := s.db.GetContext(ctx, &a,
		"SELECT * FROM assignments WHERE agenda_id = ? AND collaborator_id = ?",
		agendaID, collaboratorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("アサイン (%s, %s): %w", agendaID, collaboratorID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("アサインの取得に失敗: %w", err)
	}
	return &a, nil
}

// UpdateAssignmentStatus はアサインの状態と応答情報を更新する。
func (s *Store) UpdateAssignmentStatus(ctx context.Context, agendaID, collaboratorID, status string, reason *string, respondedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE assignments
		SET status = ?, rejection_reason = ?, responded_at = ?
		WHERE agenda_id = ? AND collaborator_id = ?`,
		status, reason, respondedAt, agendaID, collaboratorID)
	if err != nil {
		return fmt.Errorf("アサインの更新に失敗: %w", err)
	}
	return nil
}

// UpdateAgendaStatus はアジェンダのステータスを更新する。
func (s *Store) UpdateAgendaStatus(ctx context.Context, id, status string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE agendas SET status = ?, updated_at = ? WHERE id = ?",
		status, updatedAt, id)
	if err != nil {
		return fmt.Errorf("ステータスの更新に失敗: %w", err)
	}
	return nil
}

// RequestExtension は延長申請を記録し、extension_statusをpendingにする。
func (s *Store) RequestExtension(ctx context.Context, id, requestedBy string, requestedDueAt time.Time, reason string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agendas
		SET extension_status = ?, extension_requested_by = ?,
		    requested_due_at = ?, extension_reason = ?, updated_at = ?
		WHERE id = ?`,
		ExtensionPending, requestedBy, requestedDueAt, reason, updatedAt, id)
	if err != nil {
		return fmt.Errorf("延長申請の記録に失敗: %w", err)
	}
	return nil
}

// ApplyExtension は期限を新しい日時に延長し、延長回数を加算して申請状態をクリアする。
// 直接延長と申請承認の両方で使用される。
func (s *Store) ApplyExtension(ctx context.Context, id string, newDueAt, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agendas
		SET due_at = ?, extension_count = extension_count + 1,
		    extension_status = ?, extension_requested_by = NULL,
		    requested_due_at = NULL, extension_reason = NULL, updated_at = ?
		WHERE id = ?`,
		newDueAt, ExtensionNone, updatedAt, id)
	if err != nil {
		return fmt.Errorf("期限延長の適用に失敗: %w", err)
	}
	return nil
}

// ClearExtension は申請状態をクリアする。期限は変更しない（申請却下時に使用）。
func (s *Store) ClearExtension(ctx context.Context, id string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agendas
		SET extension_status = ?, extension_requested_by = NULL,
		    requested_due_at = NULL, extension_reason = NULL, updated_at = ?
		WHERE id = ?`,
		ExtensionNone, updatedAt, id)
	if err != nil {
		return fmt.Errorf("延長申請のクリアに失敗: %w", err)
	}
	return nil
}

// ListOverdueForAlert は期限超過かつ当日まだアラートを発行していないアジェンダを取得する。
func (s *Store) ListOverdueForAlert(ctx context.Context, now, dayStart time.Time) ([]Agenda, error) {
	agendas := []Agenda{}
	err := s.db.SelectContext(ctx, &agendas, `
		SELECT * FROM agendas
		WHERE status != ? AND due_at < ?
		  AND (last_overdue_alert_at IS NULL OR last_overdue_alert_at < ?)`,
		StatusCompleted, now, dayStart)
	if err != nil {
		return nil, fmt.Errorf("期限超過アジェンダの取得に失敗: %w", err)
	}
	return agendas, nil
}

// MarkOverdueAlerted は期限超過アラートの発行日時を記録する。
func (s *Store) MarkOverdueAlerted(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE agendas SET last_overdue_alert_at = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("アラート発行日時の記録に失敗: %w", err)
	}
	return nil
}
