package handler

import (
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

const headerOrderToken = "X-Order-Token"

//middleware.AuthJWT が c.Set("user_id", int64) した値を取り出す

func getUserIDFromContext(c echo.Context) (int64, bool) {
	v := c.Get(middleware.CtxUserIDKey)
	if v == nil {
		return 0, false
	}

	id, ok := v.(int64)
	if !ok {
		return 0, false
	}

	return id, true
}

// callerFromContext はJWT（あれば）とゲスト用トークンから Caller を作る。
// トークンはヘッダ優先、無ければ ?token=
func callerFromContext(c echo.Context) usecase.Caller {
	var caller usecase.Caller
	if id, ok := getUserIDFromContext(c); ok && id > 0 {
		caller.UserID = &id
		if role, ok := c.Get(middleware.CtxUserRoleKey).(string); ok {
			caller.Role = model.Role(role)
		}
	}

	token := strings.TrimSpace(c.Request().Header.Get(headerOrderToken))
	if token == "" {
		token = strings.TrimSpace(c.QueryParam("token"))
	}
	caller.AccessToken = token
	return caller
}
