package lifecycle

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/agendahub/pkg/event"
)

// Machine はアジェンダのライフサイクル状態機械。
// 同一アジェンダへの遷移はアジェンダごとのミューテックスで直列化する。
// 競合する遷移要求は失敗せず、先行する遷移の完了を待ってから実行される
// （その時点の状態で改めて検証されるため、終端状態への二重遷移はErrConflictになる）。
type Machine struct {
	// store はアジェンダ・アサインの永続化層。
	store *Store
	// bus は遷移イベントの発行先バス。
	bus *event.Bus
	// extensionCap はアジェンダ1件あたりの延長回数の上限。
	extensionCap int
	// now は現在時刻の取得関数。テストで差し替える。
	now func() time.Time

	// mu はlocksマップを保護するミューテックス。
	mu sync.Mutex
	// locks はアジェンダIDごとの遷移直列化ロック。
	locks map[string]*sync.Mutex
}

// NewMachine は新しい状態機械を生成する。
func NewMachine(store *Store, bus *event.Bus, extensionCap int) *Machine {
	return &Machine{
		store:        store,
		bus:          bus,
		extensionCap: extensionCap,
		now:          func() time.Time { return time.Now().UTC() },
		locks:        make(map[string]*sync.Mutex),
	}
}

// lock は指定アジェンダの直列化ロックを取得し、解放関数を返す。
func (m *Machine) lock(agendaID string) func() {
	m.mu.Lock()
	l, ok := m.locks[agendaID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[agendaID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// publish はイベントを生成してバスに発行する。
// イベント生成の失敗は遷移自体をロールバックしない（ログのみ）。
func (m *Machine) publish(agendaID string, eventType event.Type, recipients []string, data any) {
	e, err := event.New(agendaID, event.AggregateTypeAgenda, eventType, recipients, data)
	if err != nil {
		log.Printf("[Lifecycle] イベント生成に失敗: type=%s, agenda=%s: %v", eventType, agendaID, err)
		return
	}
	m.bus.Publish(e)
}

// projectID はイベントデータ用にプロジェクトIDを文字列で返す。
func projectID(a *Agenda) string {
	if a.ProjectID == nil {
		return ""
	}
	return *a.ProjectID
}

// recipientsFor は作成者と全アサインコラボレーターを重複なしで返す。
func recipientsFor(a *Agenda, assignments []Assignment) []string {
	seen := map[string]struct{}{a.CreatorID: {}}
	recipients := []string{a.CreatorID}
	for _, as := range assignments {
		if _, ok := seen[as.CollaboratorID]; ok {
			continue
		}
		seen[as.CollaboratorID] = struct{}{}
		recipients = append(recipients, as.CollaboratorID)
	}
	return recipients
}

// CreateParams はアジェンダ作成のパラメータ。
type CreateParams struct {
	// Kind はアジェンダの種類（task / meeting）。空ならtask。
	Kind string
	// Title はタイトル。
	Title string
	// Priority は優先度。空ならmedium。
	Priority string
	// StartsAt は開始日時。
	StartsAt time.Time
	// DueAt は期限日時。
	DueAt time.Time
	// CreatorID は作成者のユーザーID。
	CreatorID string
	// ProjectID は関連プロジェクトのID。未所属なら空文字。
	ProjectID string
	// Collaborators は招待するコラボレーターのユーザーID一覧。
	Collaborators []string
}

// Create はアジェンダを作成し、コラボレーターを招待中のアサインとして登録する。
// AssignmentInvitedイベントを招待先コラボレーターに向けて発行する。
func (m *Machine) Create(ctx context.Context, p CreateParams) (*Agenda, error) {
	if !p.DueAt.After(p.StartsAt) {
		return nil, fmt.Errorf("期限は開始日時より後である必要があります: %w", ErrInvalidDate)
	}

	kind := p.Kind
	if kind == "" {
		kind = KindTask
	}
	if kind != KindTask && kind != KindMeeting {
		return nil, fmt.Errorf("kind %q: %w", p.Kind, ErrInvalidKind)
	}
	priority := p.Priority
	if priority == "" {
		priority = "medium"
	}

	now := m.now()
	a := &Agenda{
		ID:              uuid.New().String(),
		Kind:            kind,
		Title:           p.Title,
		Status:          StatusPending,
		Priority:        priority,
		StartsAt:        p.StartsAt,
		DueAt:           p.DueAt,
		CreatorID:       p.CreatorID,
		ExtensionStatus: ExtensionNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if p.ProjectID != "" {
		a.ProjectID = &p.ProjectID
	}

	if err := m.store.CreateAgenda(ctx, a, p.Collaborators); err != nil {
		return nil, err
	}

	m.publish(a.ID, event.TypeAssignmentInvited, p.Collaborators, event.AssignmentInvitedData{
		AgendaTitle: a.Title,
		Kind:        a.Kind,
		ProjectID:   projectID(a),
	})
	return a, nil
}

// AgendaView は読み取り用のアジェンダ表現。is_overdueは読み取り時に毎回計算される。
type AgendaView struct {
	Agenda
	// IsOverdue は現在時刻と期限・ステータスから導出される期限超過フラグ。
	IsOverdue bool `json:"is_overdue"`
	// Assignments はこのアジェンダの全アサイン。
	Assignments []Assignment `json:"assignments"`
}

// Get はアジェンダを取得し、期限超過フラグとアサイン一覧を付与して返す。
func (m *Machine) Get(ctx context.Context, agendaID string) (*AgendaView, error) {
	a, err := m.store.GetAgenda(ctx, agendaID)
	if err != nil {
		return nil, err
	}
	assignments, err := m.store.ListAssignments(ctx, agendaID)
	if err != nil {
		return nil, err
	}
	return &AgendaView{
		Agenda:      *a,
		IsOverdue:   IsOverdue(a.DueAt, a.Status, m.now()),
		Assignments: assignments,
	}, nil
}

// AcceptAssignment はコラボレーターがアサインを承諾する。
// pending以外の状態からの承諾はErrConflict。成功時は作成者にAssignmentAcceptedを通知する。
func (m *Machine) AcceptAssignment(ctx context.Context, agendaID, collaboratorID string) error {
	defer m.lock(agendaID)()

	a, err := m.store.GetAgenda(ctx, agendaID)
	if err != nil {
		return err
	}
	as, err := m.store.GetAssignment(ctx, agendaID, collaboratorID)
	if err != nil {
		return err
	}
	if as.Status != AssignmentPending {
		return fmt.Errorf("アサインは応答済みです: %w", ErrConflict)
	}

	if err := m.store.UpdateAssignmentStatus(ctx, agendaID, collaboratorID, AssignmentAccepted, nil, m.now()); err != nil {
		return err
	}

	m.publish(agendaID, event.TypeAssignmentAccepted, []string{a.CreatorID}, event.AssignmentAcceptedData{
		AgendaTitle:    a.Title,
		CollaboratorID: collaboratorID,
		ProjectID:      projectID(a),
	})
	return nil
}

// RejectAssignment はコラボレーターがアサインを辞退する。理由は必須（ErrInvalidReason）。
// pending以外の状態からの辞退はErrConflict。成功時は作成者にAssignmentRejectedを通知する。
func (m *Machine) RejectAssignment(ctx context.Context, agendaID, collaboratorID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("辞退には理由が必要です: %w", ErrInvalidReason)
	}

	defer m.lock(agendaID)()

	a, err := m.store.GetAgenda(ctx, agendaID)
	if err != nil {
		return err
	}
	as, err := m.store.GetAssignment(ctx, agendaID, collaboratorID)
	if err != nil {
		return err
	}
	if as.Status != AssignmentPending {
		return fmt.Errorf("アサインは応答済みです: %w", ErrConflict)
	}

	if err := m.store.UpdateAssignmentStatus(ctx, agendaID, collaboratorID, AssignmentRejected, &reason, m.now()); err != nil {
		return err
	}

	m.publish(agendaID, event.TypeAssignmentRejected, []string{a.CreatorID}, event.AssignmentRejectedData{
		AgendaTitle:    a.Title,
		CollaboratorID: collaboratorID,
		Reason:         reason,
		ProjectID:      projectID(a),
	})
	return nil
}

// nextStatus はステータスの巡回トグルの次状態を返す。
func nextStatus(status string) string {
	switch status {
	case StatusPending:
		return StatusInProgress
	case StatusInProgress:
		return StatusCompleted
	default:
		return StatusPending
	}
}

// ToggleStatus はアジェンダのステータスを1段階進める。
// 作成者・承認者ロール・承諾済みコラボレーターのみが実行できる（ErrForbidden）。
// 成功時は作成者と全コラボレーターにStatusChangedを通知する。
func (m *Machine) ToggleStatus(ctx context.Context, agendaID string, actor Actor) error {
	defer m.lock(agendaID)()

	a, err := m.store.GetAgenda(ctx, agendaID)
	if err != nil {
		return err
	}
	assignments, err := m.store.ListAssignments(ctx, agendaID)
	if err != nil {
		return err
	}

	if !m.canToggle(a, assignments, actor) {
		return fmt.Errorf("ステータス変更: %w", ErrForbidden)
	}

	newStatus := nextStatus(a.Status)
	if err := m.store.UpdateAgendaStatus(ctx, agendaID, newStatus, m.now()); err != nil {
		return err
	}

	m.publish(agendaID, event.TypeStatusChanged, recipientsFor(a, assignments), event.StatusChangedData{
		AgendaTitle: a.Title,
		OldStatus:   a.Status,
		NewStatus:   newStatus,
		ChangedBy:   actor.ID,
		ProjectID:   projectID(a),
	})
	return nil
}

// canToggle はステータス変更の権限を判定する。
func (m *Machine) canToggle(a *Agenda, assignments []Assignment, actor Actor) bool {
	if actor.Approver || actor.ID == a.CreatorID {
		return true
	}
	for _, as := range assignments {
		if as.CollaboratorID == actor.ID && as.Status == AssignmentAccepted {
			return true
		}
	}
	return false
}

// isApprover は指定アジェンダの延長承認者かどうかを判定する。
// 承認者ロールまたはアジェンダの作成者が承認者となる。
func isApprover(a *Agenda, actor Actor) bool {
	return actor.Approver || actor.ID == a.CreatorID
}

// ExtendTime は期限延長を実施または申請する。
// 承認者は即時コミット（延長回数+1、DeadlineExtendedをコラボレーターに通知）。
// 非承認者は承諾済みアサインを持つ場合のみ申請でき（理由必須）、
// extension_statusがpendingになりExtensionRequestedを承認者に通知する。
// 完了済み・延長上限到達・期限未超過はErrNotEligible、申請中の再申請はErrConflict。
func (m *Machine) ExtendTime(ctx context.Context, agendaID string, actor Actor, newDueAt time.Time, reason string) error {
	defer m.lock(agendaID)()

	a, err := m.store.GetAgenda(ctx, agendaID)
	if err != nil {
		return err
	}

	if a.Status == StatusCompleted {
		return fmt.Errorf("完了済みのアジェンダは延長できません: %w", ErrNotEligible)
	}
	if a.ExtensionCount >= m.extensionCap {
		return fmt.Errorf("延長回数の上限（%d回）に達しています: %w", m.extensionCap, ErrNotEligible)
	}
	now := m.now()
	if !IsOverdue(a.DueAt, a.Status, now) {
		return fmt.Errorf("期限超過前のアジェンダは延長できません: %w", ErrNotEligible)
	}
	if a.ExtensionStatus == ExtensionPending {
		return fmt.Errorf("承認待ちの延長申請が既に存在します: %w", ErrConflict)
	}
	if !newDueAt.After(a.DueAt) {
		return fmt.Errorf("新しい期限は現在の期限より後である必要があります: %w", ErrInvalidDate)
	}

	if isApprover(a, actor) {
		// 承認者による直接延長。承認ステップなしで即時コミットする。
		if err := m.store.ApplyExtension(ctx, agendaID, newDueAt, now); err != nil {
			return err
		}

		assignments, err := m.store.ListAssignments(ctx, agendaID)
		if err != nil {
			return err
		}
		var collaborators []string
		for _, as := range assignments {
			collaborators = append(collaborators, as.CollaboratorID)
		}
		m.publish(agendaID, event.TypeDeadlineExtended, collaborators, event.DeadlineExtendedData{
			AgendaTitle: a.Title,
			NewDueAt:    newDueAt.Format(time.RFC3339),
			ProjectID:   projectID(a),
		})
		return nil
	}

	// 非承認者による申請。承諾済みアサインが必要で、理由は必須。
	as, err := m.store.GetAssignment(ctx, agendaID, actor.ID)
	if err != nil || as.Status != AssignmentAccepted {
		return fmt.Errorf("延長申請: %w", ErrForbidden)
	}
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("延長申請には理由が必要です: %w", ErrInvalidReason)
	}

	if err := m.store.RequestExtension(ctx, agendaID, actor.ID, newDueAt, reason, now); err != nil {
		return err
	}

	m.publish(agendaID, event.TypeExtensionRequested, []string{a.CreatorID}, event.ExtensionRequestedData{
		AgendaTitle:    a.Title,
		RequestedBy:    actor.ID,
		RequestedDueAt: newDueAt.Format(time.RFC3339),
		Reason:         reason,
		ProjectID:      projectID(a),
	})
	return nil
}

// DecideExtension は承認待ちの延長申請を承認または却下する。承認者のみ実行できる。
// 承認時は申請された期限をコミットして延長回数を加算し、却下時は期限を変更しない。
// いずれもextension_statusをnoneに戻し、申請者に結果を通知する。
func (m *Machine) DecideExtension(ctx context.Context, agendaID string, actor Actor, approve bool) error {
	defer m.lock(agendaID)()

	a, err := m.store.GetAgenda(ctx, agendaID)
	if err != nil {
		return err
	}
	if !isApprover(a, actor) {
		return fmt.Errorf("延長申請の裁定: %w", ErrForbidden)
	}
	if a.ExtensionStatus != ExtensionPending || a.ExtensionRequestedBy == nil || a.RequestedDueAt == nil {
		return fmt.Errorf("承認待ちの延長申請がありません: %w", ErrConflict)
	}

	requester := *a.ExtensionRequestedBy
	now := m.now()

	if approve {
		newDueAt := *a.RequestedDueAt
		if err := m.store.ApplyExtension(ctx, agendaID, newDueAt, now); err != nil {
			return err
		}
		m.publish(agendaID, event.TypeExtensionApproved, []string{requester}, event.ExtensionApprovedData{
			AgendaTitle: a.Title,
			NewDueAt:    newDueAt.Format(time.RFC3339),
			ProjectID:   projectID(a),
		})
		return nil
	}

	if err := m.store.ClearExtension(ctx, agendaID, now); err != nil {
		return err
	}
	m.publish(agendaID, event.TypeExtensionRejected, []string{requester}, event.ExtensionRejectedData{
		AgendaTitle: a.Title,
		ProjectID:   projectID(a),
	})
	return nil
}

// SweepOverdue は期限超過したアジェンダを検出してAgendaOverdueイベントを発行する。
// 同一アジェンダに対するアラートは1日1回まで。発行したイベント数を返す。
// バックグラウンドのティッカーから定期的に呼び出されることを想定している。
func (m *Machine) SweepOverdue(ctx context.Context) (int, error) {
	now := m.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	agendas, err := m.store.ListOverdueForAlert(ctx, now, dayStart)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range agendas {
		a := &agendas[i]

		unlock := m.lock(a.ID)
		assignments, err := m.store.ListAssignments(ctx, a.ID)
		if err != nil {
			unlock()
			return count, err
		}
		if err := m.store.MarkOverdueAlerted(ctx, a.ID, now); err != nil {
			unlock()
			return count, err
		}
		m.publish(a.ID, event.TypeAgendaOverdue, recipientsFor(a, assignments), event.AgendaOverdueData{
			AgendaTitle: a.Title,
			DueAt:       a.DueAt.Format(time.RFC3339),
			ProjectID:   projectID(a),
		})
		unlock()
		count++
	}
	return count, nil
}

// StartOverdueSweeper は期限超過アラートの定期スイープを開始する。
// バックグラウンドgoroutineとして呼び出されることを想定し、ctxのキャンセルで停止する。
func (m *Machine) StartOverdueSweeper(ctx context.Context, interval time.Duration) {
	log.Printf("[Lifecycle] 期限超過スイープを開始します。間隔: %v", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.SweepOverdue(ctx); err != nil {
				log.Printf("[Lifecycle] 期限超過スイープエラー: %v", err)
			}
		}
	}
}
