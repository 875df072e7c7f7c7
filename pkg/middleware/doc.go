// Package middleware はGin用の共通ミドルウェアを提供する。
//
// JWT認証（ヘッダーおよびWebSocket向けクエリパラメータ）、
// パニックリカバリー、CORSを含む。
package middleware
