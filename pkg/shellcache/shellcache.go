// Package shellcache はアプリケーションシェルのバージョン付きオフラインキャッシュを提供する。
// キャッシュはバージョン名ごとに独立し、新バージョンの有効化で旧バージョンは破棄される。
// 画面遷移はネットワーク優先（失敗時はキャッシュへフォールバック）、
// 静的アセットはキャッシュ優先（ミス時に取得して充填）で解決する。
// 通知の配信経路からは独立している。
package shellcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnavailable はネットワークとキャッシュの両方から取得できなかったことを表す。
var ErrUnavailable = errors.New("ネットワークからもキャッシュからも取得できません")

// Fetch はネットワークからリソースを取得する関数。
type Fetch func(ctx context.Context, path string) ([]byte, error)

// Store はバージョン名ごとのキャッシュ集合を管理する。
type Store struct {
	// mu はcachesマップを保護するミューテックス。
	mu sync.RWMutex
	// caches はバージョン名 → パス → 本体のキャッシュ実体。
	caches map[string]map[string][]byte
}

// NewStore は新しいキャッシュストアを生成する。
func NewStore() *Store {
	return &Store{caches: make(map[string]map[string][]byte)}
}

// Open は指定バージョンのキャッシュを返す。存在しなければ作成する。
func (s *Store) Open(version string) *Cache {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.caches[version] == nil {
		s.caches[version] = make(map[string][]byte)
	}
	return &Cache{store: s, version: version}
}

// Versions は存在するバージョン名の一覧をソート済みで返す。
func (s *Store) Versions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := make([]string, 0, len(s.caches))
	for v := range s.caches {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// Activate は指定バージョン以外の全キャッシュを削除し、削除したバージョン名を返す。
// 新バージョンのデプロイ後に呼び出して旧シェルを破棄する。
func (s *Store) Activate(current string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := make([]string, 0, len(s.caches))
	for v := range s.caches {
		if v == current {
			continue
		}
		delete(s.caches, v)
		deleted = append(deleted, v)
	}
	sort.Strings(deleted)

	if s.caches[current] == nil {
		s.caches[current] = make(map[string][]byte)
	}
	return deleted
}

// Cache は1バージョン分のキャッシュへのハンドル。
type Cache struct {
	// store は親のキャッシュストア。
	store *Store
	// version はこのハンドルが指すバージョン名。
	version string
}

// Version はこのキャッシュのバージョン名を返す。
func (c *Cache) Version() string {
	return c.version
}

// Put はリソースをキャッシュに格納する。
func (c *Cache) Put(path string, body []byte) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	if m := c.store.caches[c.version]; m != nil {
		m[path] = body
	}
}

// Get はキャッシュからリソースを取得する。
func (c *Cache) Get(path string) ([]byte, bool) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	m := c.store.caches[c.version]
	if m == nil {
		return nil, false
	}
	body, ok := m[path]
	return body, ok
}

// Precache は指定パス群を取得してキャッシュに格納する。
// 1件でも取得に失敗した場合はエラーを返す（インストール失敗に相当）。
func (c *Cache) Precache(ctx context.Context, fetch Fetch, paths []string) error {
	for _, path := range paths {
		body, err := fetch(ctx, path)
		if err != nil {
			return fmt.Errorf("プリキャッシュに失敗: %s: %w", path, err)
		}
		c.Put(path, body)
	}
	return nil
}

// NetworkFirst はネットワーク優先でリソースを解決する。画面遷移リクエスト用。
// 取得に成功したらキャッシュを更新して返す。失敗したらキャッシュ、
// それもなければフォールバックパスのキャッシュを返す。
func (c *Cache) NetworkFirst(ctx context.Context, fetch Fetch, path, fallbackPath string) ([]byte, error) {
	body, err := fetch(ctx, path)
	if err == nil {
		c.Put(path, body)
		return body, nil
	}

	if cached, ok := c.Get(path); ok {
		return cached, nil
	}
	if fallbackPath != "" {
		if cached, ok := c.Get(fallbackPath); ok {
			return cached, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", path, ErrUnavailable)
}

// CacheFirst はキャッシュ優先でリソースを解決する。静的アセット用。
// キャッシュにあればそれを返し、なければ取得してキャッシュに充填する。
func (c *Cache) CacheFirst(ctx context.Context, fetch Fetch, path string) ([]byte, error) {
	if cached, ok := c.Get(path); ok {
		return cached, nil
	}

	body, err := fetch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, ErrUnavailable)
	}
	c.Put(path, body)
	return body, nil
}
