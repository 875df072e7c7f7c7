package lifecycle

import "errors"

// 状態遷移が拒否された理由を表すセンチネルエラー。
// HTTPハンドラはerrors.Isでこれらを判別してステータスコードに変換する。
var (
	// ErrInvalidReason は必須の理由が空であることを表す。
	ErrInvalidReason = errors.New("理由の入力が必要です")
	// ErrInvalidDate は提案された日時が不正であることを表す。
	ErrInvalidDate = errors.New("日時の指定が不正です")
	// ErrInvalidKind はアジェンダの種類が不正であることを表す。
	ErrInvalidKind = errors.New("アジェンダの種類が不正です")
	// ErrConflict は現在の状態では許可されない遷移を表す。
	ErrConflict = errors.New("現在の状態ではこの操作は実行できません")
	// ErrForbidden は要求者に遷移の権限がないことを表す。
	ErrForbidden = errors.New("この操作を実行する権限がありません")
	// ErrNotEligible は業務ルールによる拒否（延長上限・期限未超過・完了済み）を表す。
	ErrNotEligible = errors.New("この操作の実行条件を満たしていません")
	// ErrNotFound は対象のアジェンダまたはアサインが存在しないことを表す。
	ErrNotFound = errors.New("対象が見つかりません")
)
