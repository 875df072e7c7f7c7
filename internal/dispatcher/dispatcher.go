// Package dispatcher はライフサイクルイベントを通知に変換して配信する。
// イベント1件につき宛先ユーザーごとに通知レコードを作成し、
// WebSocketとWeb Pushの両チャネルへ常に併せて配信する。
package dispatcher

import (
	"context"
	"fmt"
	"log"

	"github.com/nao1215/agendahub/internal/notification"
	"github.com/nao1215/agendahub/internal/push"
	"github.com/nao1215/agendahub/internal/realtime"
	"github.com/nao1215/agendahub/pkg/event"
)

// Dispatcher はイベントバスの購読者として通知の作成と配信を担う。
type Dispatcher struct {
	// notifications は通知の永続化層。
	notifications *notification.Store
	// registry はWebSocketセッションレジストリ。
	registry *realtime.Registry
	// sender はWeb Push送信機。
	sender *push.Sender
}

// New は新しいディスパッチャーを生成する。
func New(notifications *notification.Store, registry *realtime.Registry, sender *push.Sender) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		registry:      registry,
		sender:        sender,
	}
}

// Subscribe はディスパッチャーをイベントバスに登録する。
func (d *Dispatcher) Subscribe(bus *event.Bus) {
	bus.Subscribe(d.Handle)
}

// Handle は1件のイベントを処理する。宛先ごとに通知を作成し両チャネルに配信する。
// 個別の宛先の失敗は他の宛先への配信を止めない。
func (d *Dispatcher) Handle(e *event.Event) {
	content, err := render(e)
	if err != nil {
		log.Printf("[Dispatcher] イベントの変換に失敗: type=%s: %v", e.EventType, err)
		return
	}

	ctx := context.Background()
	for _, userID := range e.Recipients {
		n, err := d.notifications.Create(ctx, notification.CreateParams{
			UserID:               userID,
			Type:                 content.notificationType,
			Title:                content.title,
			Message:              content.message,
			RelatedAgendaID:      e.AggregateID,
			RelatedAgendaSummary: content.agendaTitle,
			RelatedProjectID:     content.projectID,
		})
		if err != nil {
			log.Printf("[Dispatcher] 通知の作成に失敗: user=%s, type=%s: %v", userID, e.EventType, err)
			continue
		}

		// WebSocketとWeb Pushは独立したチャネルとして常に両方へ配信する。
		// 片方の失敗はもう片方に影響しない。
		sessions := d.registry.SendToUser(userID, realtime.NewNotificationMessage(n))

		pushed, err := d.sender.SendToUser(ctx, userID, n)
		if err != nil {
			log.Printf("[Dispatcher] プッシュ送信に失敗: user=%s: %v", userID, err)
		}

		log.Printf("[Dispatcher] 通知を配信: user=%s, type=%s, sessions=%d, push=%d",
			userID, content.notificationType, sessions, pushed)
	}
}

// rendered は1件のイベントから導出された通知の内容。
type rendered struct {
	// notificationType は通知の種類。
	notificationType string
	// title は通知のタイトル。
	title string
	// message は通知メッセージ。
	message string
	// agendaTitle は関連アジェンダのタイトル。
	agendaTitle string
	// projectID は関連プロジェクトのID。
	projectID string
}

// kindLabel はアジェンダの種類の表示名を返す。
func kindLabel(kind string) string {
	if kind == "meeting" {
		return "会議"
	}
	return "タスク"
}

// render はイベントをユーザー向けの通知内容に変換する。
func render(e *event.Event) (*rendered, error) {
	switch e.EventType {
	case event.TypeAssignmentInvited:
		data, err := event.DecodeData[event.AssignmentInvitedData](e)
		if err != nil {
			return nil, err
		}
		return &rendered{
			notificationType: notification.TypeAssignmentInvite,
			title:            fmt.Sprintf("新しい%sへの招待", kindLabel(data.Kind)),
			message:          fmt.Sprintf("「%s」に招待されました。承諾または辞退してください", data.AgendaTitle),
			agendaTitle:      data.AgendaTitle,
			projectID:        data.ProjectID,
		}, nil

	case event.TypeAssignmentAccepted:
		data, err := event.DecodeData[event.AssignmentAcceptedData](e)
		if err != nil {
			return nil, err
		}
		return &rendered{
			notificationType: notification.TypeAssignmentAccepted,
			title:            "アサインが承諾されました",
			message:          fmt.Sprintf("%s さんが「%s」のアサインを承諾しました", data.CollaboratorID, data.AgendaTitle),
			agendaTitle:      data.AgendaTitle,
			projectID:        data.ProjectID,
		}, nil

	case event.TypeAssignmentRejected:
		data, err := event.DecodeData[event.AssignmentRejectedData](e)
		if err != nil {
			return nil, err
		}
		return &rendered{
			notificationType: notification.TypeAssignmentRejected,
			title:            "アサインが辞退されました",
			message:          fmt.Sprintf("%s さんが「%s」のアサインを辞退しました。理由: %s", data.CollaboratorID, data.AgendaTitle, data.Reason),
			agendaTitle:      data.AgendaTitle,
			projectID:        data.ProjectID,
		}, nil

	case event.TypeStatusChanged:
		data, err := event.DecodeData[event.StatusChangedData](e)
		if err != nil {
			return nil, err
		}
		return &rendered{
			notificationType: notification.TypeStatusChange,
			title:            "ステータスが変更されました",
			message:          fmt.Sprintf("「%s」のステータスが %s から %s に変わりました", data.AgendaTitle, data.OldStatus, data.NewStatus),
			agendaTitle:      data.AgendaTitle,
			projectID:        data.ProjectID,
		}, nil

	case event.TypeExtensionRequested:
		data, err := event.DecodeData[event.ExtensionRequestedData](e)
		if err != nil {
			return nil, err
		}
		return &rendered{
			notificationType: notification.TypeExtensionRequested,
			title:            "期限延長の申請があります",
			message:          fmt.Sprintf("%s さんが「%s」の期限を %s まで延長したいと申請しています。理由: %s", data.RequestedBy, data.AgendaTitle, data.RequestedDueAt, data.Reason),
			agendaTitle:      data.AgendaTitle,
			projectID:        data.ProjectID,
		}, nil

	case event.TypeExtensionApproved:
		data, err := event.DecodeData[event.ExtensionApprovedData](e)
		if err != nil {
			return nil, err
		}
		return &rendered{
			notificationType: notification.TypeExtensionApproved,
			title:            "期限延長が承認されました",
			message:          fmt.Sprintf("「%s」の新しい期限は %s です", data.AgendaTitle, data.NewDueAt),
			agendaTitle:      data.AgendaTitle,
			projectID:        data.ProjectID,
		}, nil

	case event.TypeExtensionRejected:
		data, err := event.DecodeData[event.ExtensionRejectedData](e)
		if err != nil {
			return nil, err
		}
		return &rendered{
			notificationType: notification.TypeExtensionRejected,
			title:            "期限延長が却下されました",
			message:          fmt.Sprintf("「%s」の期限延長申請は承認されませんでした", data.AgendaTitle),
			agendaTitle:      data.AgendaTitle,
			projectID:        data.ProjectID,
		}, nil

	case event.TypeDeadlineExtended:
		data, err := event.DecodeData[event.DeadlineExtendedData](e)
		if err != nil {
			return nil, err
		}
		return &rendered{
			notificationType: notification.TypeDeadlineExtended,
			title:            "期限が延長されました",
			message:          fmt.Sprintf("「%s」の新しい期限は %s です", data.AgendaTitle, data.NewDueAt),
			agendaTitle:      data.AgendaTitle,
			projectID:        data.ProjectID,
		}, nil

	case event.TypeAgendaOverdue:
		data, err := event.DecodeData[event.AgendaOverdueData](e)
		if err != nil {
			return nil, err
		}
		return &rendered{
			notificationType: notification.TypeAgendaOverdue,
			title:            "期限を超過しています",
			message:          fmt.Sprintf("「%s」が期限（%s）を超過しています", data.AgendaTitle, data.DueAt),
			agendaTitle:      data.AgendaTitle,
			projectID:        data.ProjectID,
		}, nil
	}

	return nil, fmt.Errorf("未対応のイベント種類: %s", e.EventType)
}
