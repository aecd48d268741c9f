package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError はhandlerでそのままステータスとメッセージに変換する。
// Messageは利用者に見せてよい文言だけにする（内部の詳細はログへ）。
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 400 入力不正
func ValidationError(message string) error {
	return NewHTTPError(http.StatusBadRequest, message)
}

// 401 未認証
func UnauthorizedError() error {
	return NewHTTPError(http.StatusUnauthorized, "unauthorized")
}

// 403 権限なし・トークン不一致
func ForbiddenError() error {
	return NewHTTPError(http.StatusForbidden, "forbidden")
}

// 404
func NotFoundError(message string) error {
	return NewHTTPError(http.StatusNotFound, message)
}

// 409 同時更新に負けた
func ConflictError(message string) error {
	return NewHTTPError(http.StatusConflict, message)
}

// 500 DBや外部サービスの失敗。詳細は返さない
func UpstreamError() error {
	return NewHTTPError(http.StatusInternalServerError, "db error")
}

// HasStatus はerrがHTTPErrorで、ステータスが一致するか
func HasStatus(err error, status int) bool {
	he, ok := AsHTTPError(err)
	return ok && he.Status == status
}
