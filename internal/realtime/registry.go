// Package realtime はWebSocketによる通知のリアルタイム配信を提供する。
// ユーザーは複数タブ・複数端末から同時接続でき、全セッションに配信される。
package realtime

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session は1本のWebSocket接続を表す。
type Session struct {
	// userID は接続ユーザーのID。
	userID string
	// conn はWebSocket接続。
	conn *websocket.Conn
	// mu は書き込みを直列化するミューテックス。
	// gorilla/websocketは並行書き込みをサポートしない。
	mu sync.Mutex
}

// write は書き込み期限付きでJSONメッセージを送信する。
func (s *Session) write(v any, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("書き込み期限の設定に失敗: %w", err)
	}
	return s.conn.WriteJSON(v)
}

// Registry はユーザーIDごとのアクティブなWebSocketセッション集合を管理する。
type Registry struct {
	// mu はsessionsマップを保護するミューテックス。
	mu sync.RWMutex
	// sessions はユーザーIDごとのセッション集合。
	sessions map[string]map[*Session]struct{}
	// sendTimeout は1セッションへの書き込みを待つ上限時間。
	// 超過したセッションは切断され、配信が他のセッションを巻き込んでブロックしない。
	sendTimeout time.Duration
}

// NewRegistry は新しいセッションレジストリを生成する。
func NewRegistry(sendTimeout time.Duration) *Registry {
	return &Registry{
		sessions:    make(map[string]map[*Session]struct{}),
		sendTimeout: sendTimeout,
	}
}

// Register は接続をレジストリに登録してセッションを返す。
func (r *Registry) Register(userID string, conn *websocket.Conn) *Session {
	s := &Session{userID: userID, conn: conn}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[userID] == nil {
		r.sessions[userID] = make(map[*Session]struct{})
	}
	r.sessions[userID][s] = struct{}{}
	return s
}

// Unregister はセッションをレジストリから削除して接続を閉じる。
// 既に削除済みの場合は何もしない。
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	set, ok := r.sessions[s.userID]
	if ok {
		if _, registered := set[s]; registered {
			delete(set, s)
			if len(set) == 0 {
				delete(r.sessions, s.userID)
			}
		} else {
			ok = false
		}
	}
	r.mu.Unlock()

	if ok {
		s.conn.Close()
	}
}

// SessionCount は指定ユーザーのアクティブなセッション数を返す。
func (r *Registry) SessionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID])
}

// SendToUser は指定ユーザーの全セッションにメッセージを配信し、到達したセッション数を返す。
// 書き込みに失敗またはタイムアウトしたセッションは切断・削除される。
func (r *Registry) SendToUser(userID string, v any) int {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions[userID]))
	for s := range r.sessions[userID] {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	sent := 0
	for _, s := range targets {
		if err := s.write(v, r.sendTimeout); err != nil {
			log.Printf("[Realtime] セッションへの配信に失敗。切断します: user=%s: %v", userID, err)
			r.Unregister(s)
			continue
		}
		sent++
	}
	return sent
}

// Close は全セッションを切断してレジストリを空にする。
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, set := range r.sessions {
		for s := range set {
			s.conn.Close()
		}
	}
	r.sessions = make(map[string]map[*Session]struct{})
}
