package session

import (
	"github.com/SlpAus/live-polls-backend/pkg/apperror"
	"github.com/gin-gonic/gin"
)

// UserIDKey 是已验证用户ID在Gin上下文中的键名
const UserIDKey = "userID"

// RequireSession 验证会话cookie，并把用户ID放入Gin上下文。
// 会话缺失或无效时直接以401中断请求。
// 客户端请求体中携带的user_id只是提示，身份一律以会话为准。
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, err := c.Cookie(cookieName())
		if err != nil {
			apperror.Respond(c, apperror.New(apperror.KindAuthentication, "缺少会话"))
			return
		}

		userID, err := Validate(tok)
		if err != nil {
			apperror.Respond(c, err)
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// CurrentUserID 从Gin上下文中取出已验证的用户ID。
// 只应在RequireSession之后的处理函数中调用。
func CurrentUserID(c *gin.Context) string {
	id, _ := c.Get(UserIDKey)
	userID, _ := id.(string)
	return userID
}
