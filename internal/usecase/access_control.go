package usecase

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	"storefront/internal/domain/model"
)

// Caller はリクエストしてきた人。JWTが無ければUserIDはnil。
// AccessTokenはゲスト注文を見るときに提示されたトークン。
type Caller struct {
	UserID      *int64
	Role        model.Role
	AccessToken string
}

func (c Caller) Authenticated() bool {
	return c.UserID != nil && *c.UserID > 0
}

func (c Caller) IsAdmin() bool {
	return c.Authenticated() && c.Role == model.RoleAdmin
}

// 操作ログに残す人（未ログインならnil）
func (c Caller) ActorID() *int64 {
	if !c.Authenticated() {
		return nil
	}
	id := *c.UserID
	return &id
}

// AuthorizeOrderRead は注文を見てよいか判定する。
//   - 管理者、注文の持ち主は常にOK
//   - ゲスト注文でトークンが保存されていれば完全一致が必要
//   - トークン発行前の古いゲスト注文（トークン無し）は互換のためトークン無しで見られる
func AuthorizeOrderRead(c Caller, o model.Order) error {
	if c.IsAdmin() {
		return nil
	}

	if o.UserID != nil {
		if !c.Authenticated() {
			return UnauthorizedError()
		}
		if *c.UserID == *o.UserID {
			return nil
		}
		return ForbiddenError()
	}

	//ゲスト注文
	if o.AccessToken == nil || *o.AccessToken == "" {
		return nil
	}
	if c.AccessToken == "" {
		return ForbiddenError()
	}
	if subtle.ConstantTimeCompare([]byte(c.AccessToken), []byte(*o.AccessToken)) != 1 {
		return ForbiddenError()
	}
	return nil
}

// ステータス変更などは管理者だけ。持ち主でも不可。
func AuthorizeOrderMutation(c Caller) error {
	if !c.Authenticated() {
		return UnauthorizedError()
	}
	if !c.IsAdmin() {
		return ForbiddenError()
	}
	return nil
}

// ゲスト注文用のトークン（32byte乱数）
func NewAccessToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
