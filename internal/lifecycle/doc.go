// Package lifecycle はアジェンダ（タスク・会議）のライフサイクル状態機械を提供する。
//
// アサインの承諾・辞退、ステータスの巡回トグル、期限延長の直接実施と
// 申請・承認フローを管理する。同一アジェンダへの遷移はアジェンダごとの
// ロックで直列化され、成功した遷移ごとにちょうど1つのイベントを
// イベントバスに発行する。
package lifecycle
