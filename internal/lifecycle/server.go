package lifecycle

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/agendahub/pkg/middleware"
)

// Server はアジェンダライフサイクルのHTTPハンドラ群。
// 共有のGinルーターにルートを登録して使用する。
type Server struct {
	// machine はライフサイクル状態機械。
	machine *Machine
}

// NewServer は新しいライフサイクルサーバーを生成する。
func NewServer(machine *Machine) *Server {
	return &Server{machine: machine}
}

// RegisterRoutes はアジェンダ関連のAPIルーティングを登録する。
// グループにはJWT認証ミドルウェアが適用済みであることを前提とする。
func (s *Server) RegisterRoutes(api gin.IRouter) {
	agendas := api.Group("/agendas")
	{
		// アジェンダ作成
		agendas.POST("", s.handleCreate())
		// アジェンダ取得（is_overdueは取得時に計算される）
		agendas.GET("/:id", s.handleGet())
		// アサイン承諾
		agendas.POST("/:id/accept", s.handleAccept())
		// アサイン辞退
		agendas.POST("/:id/reject", s.handleReject())
		// ステータスのトグル
		agendas.POST("/:id/toggle", s.handleToggleStatus())
		// 期限延長の実施・申請・裁定
		agendas.POST("/:id/extend-time", s.handleExtendTime())
	}
}

// writeError はライフサイクルのエラーをHTTPステータスに対応付けて返す。
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidReason), errors.Is(err, ErrInvalidDate), errors.Is(err, ErrInvalidKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotEligible):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "内部エラーが発生しました"})
		log.Printf("[Lifecycle] 内部エラー: %v", err)
	}
}

// actorFrom は認証済みコンテキストから操作主体を組み立てる。
func actorFrom(c *gin.Context) Actor {
	return Actor{
		ID:       middleware.GetUserID(c),
		Approver: middleware.GetRole(c) == middleware.RoleApprover,
	}
}

// createRequest はアジェンダ作成リクエストのJSON構造。
type createRequest struct {
	// Kind はアジェンダの種類（task / meeting）。省略時はtask。
	Kind string `json:"kind"`
	// Title はタイトル。
	Title string `json:"title" binding:"required"`
	// Priority は優先度。省略時はmedium。
	Priority string `json:"priority"`
	// StartsAt は開始日時（RFC3339形式）。
	StartsAt time.Time `json:"starts_at" binding:"required"`
	// DueAt は期限日時（RFC3339形式）。
	DueAt time.Time `json:"due_at" binding:"required"`
	// ProjectID は関連プロジェクトのID。
	ProjectID string `json:"project_id"`
	// Collaborators は招待するコラボレーターのユーザーID一覧。
	Collaborators []string `json:"collaborators"`
}

// handleCreate はアジェンダを作成するハンドラ。
// コラボレーターは招待中のアサインとして登録され、招待通知イベントが発行される。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		a, err := s.machine.Create(c.Request.Context(), CreateParams{
			Kind:          req.Kind,
			Title:         req.Title,
			Priority:      req.Priority,
			StartsAt:      req.StartsAt,
			DueAt:         req.DueAt,
			CreatorID:     middleware.GetUserID(c),
			ProjectID:     req.ProjectID,
			Collaborators: req.Collaborators,
		})
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, a)
	}
}

// handleGet はアジェンダを取得するハンドラ。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := s.machine.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// handleAccept は認証済みユーザー自身のアサインを承諾するハンドラ。
func (s *Server) handleAccept() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.machine.AcceptAssignment(c.Request.Context(), c.Param("id"), middleware.GetUserID(c)); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "アサインを承諾しました"})
	}
}

// rejectRequest はアサイン辞退リクエストのJSON構造。
type rejectRequest struct {
	// Reason は辞退理由。必須。
	Reason string `json:"reason"`
}

// handleReject は認証済みユーザー自身のアサインを辞退するハンドラ。理由は必須。
func (s *Server) handleReject() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rejectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if err := s.machine.RejectAssignment(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req.Reason); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "アサインを辞退しました"})
	}
}

// handleToggleStatus はアジェンダのステータスを1段階進めるハンドラ。
func (s *Server) handleToggleStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.machine.ToggleStatus(c.Request.Context(), c.Param("id"), actorFrom(c)); err != nil {
			writeError(c, err)
			return
		}

		view, err := s.machine.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// extendTimeRequest は期限延長リクエストのJSON構造。
// 新しい期限を指定する形式と、承認待ち申請を裁定する形式の2通りがある。
type extendTimeRequest struct {
	// Action は裁定の種類（approve / reject）。裁定時のみ指定する。
	Action string `json:"action"`
	// Date は新しい期限の日付（YYYY-MM-DD形式）。延長の実施・申請時に必須。
	Date string `json:"date"`
	// Time は新しい期限の時刻（HH:MM形式）。省略時はその日の終わり。
	Time string `json:"time"`
	// Reason は延長理由。非承認者の申請では必須。
	Reason string `json:"reason"`
}

// parseDueAt は日付と時刻の文字列から新しい期限を組み立てる。
// 時刻の省略時はその日の終わり（23:59:59 UTC）を期限とする。
func parseDueAt(date, timeOfDay string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("日付の形式が不正です（YYYY-MM-DD）: %w", ErrInvalidDate)
	}
	if timeOfDay == "" {
		return d.Add(24*time.Hour - time.Second), nil
	}
	t, err := time.ParseInLocation("15:04", timeOfDay, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("時刻の形式が不正です（HH:MM）: %w", ErrInvalidDate)
	}
	return d.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}

// handleExtendTime は期限延長のハンドラ。
// actionが指定された場合は承認待ち申請の裁定、それ以外は延長の実施または申請として扱う。
func (s *Server) handleExtendTime() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req extendTimeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		agendaID := c.Param("id")
		actor := actorFrom(c)

		switch req.Action {
		case "approve", "reject":
			if err := s.machine.DecideExtension(c.Request.Context(), agendaID, actor, req.Action == "approve"); err != nil {
				writeError(c, err)
				return
			}
		case "":
			if req.Date == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "新しい期限の日付が必要です"})
				return
			}
			newDueAt, err := parseDueAt(req.Date, req.Time)
			if err != nil {
				writeError(c, err)
				return
			}
			if err := s.machine.ExtendTime(c.Request.Context(), agendaID, actor, newDueAt, req.Reason); err != nil {
				writeError(c, err)
				return
			}
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("不正なactionです: %s", req.Action)})
			return
		}

		view, err := s.machine.Get(c.Request.Context(), agendaID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}
