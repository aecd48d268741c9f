package repository

import "errors"

var (
	//対象が存在しない
	ErrNotFound = errors.New("not found")
	//条件付き更新で前提の値が変わっていた（楽観ロック負け）
	ErrConflict = errors.New("conflict")
	//ユニーク制約違反
	ErrDuplicate = errors.New("duplicate")
)
