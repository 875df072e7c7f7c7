// Package notification は通知の永続化とREST APIを提供する。
// 通知は作成から24時間（設定可能）を境に「最近」と「アーカイブ」に分かれる。
// この区分は保存されず、各クエリの実行時に壁時計から毎回計算される。
package notification
