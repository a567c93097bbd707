package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/SlpAus/live-polls-backend/internal/session"
	"github.com/SlpAus/live-polls-backend/pkg/apperror"
	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
)

// registerStartBody 是 POST /api/auth/register/start 的请求体
type registerStartBody struct {
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
}

// finishBody 是register/finish和login/finish共用的请求体。
// Credential保持原始JSON，交给go-webauthn的协议解析器处理。
type finishBody struct {
	Username   string          `json:"username" binding:"required"`
	Credential json.RawMessage `json:"credential" binding:"required"`
}

// loginStartBody 是 POST /api/auth/login/start 的请求体
type loginStartBody struct {
	Username string `json:"username" binding:"required"`
}

// RegisterStart 处理注册仪式的开始请求
func RegisterStart(c *gin.Context) {
	var body registerStartBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperror.Respond(c, apperror.Wrap(apperror.KindValidation, "请求格式错误", err))
		return
	}

	username := strings.TrimSpace(body.Username)
	displayName := strings.TrimSpace(body.DisplayName)
	if username == "" || displayName == "" {
		apperror.Respond(c, apperror.New(apperror.KindValidation, "用户名和昵称不能为空"))
		return
	}

	options, err := BeginRegistration(username, displayName)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	// protocol.CredentialCreation 序列化后正是客户端期望的 {publicKey: {...}}
	c.JSON(http.StatusOK, options)
}

// RegisterFinish 处理注册仪式的完成请求
func RegisterFinish(c *gin.Context) {
	var body finishBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperror.Respond(c, apperror.Wrap(apperror.KindValidation, "请求格式错误", err))
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(body.Credential))
	if err != nil {
		apperror.Respond(c, apperror.Wrap(apperror.KindValidation, "凭证响应格式错误", err))
		return
	}

	result, err := FinishRegistration(strings.TrimSpace(body.Username), parsed)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// LoginStart 处理认证仪式的开始请求
func LoginStart(c *gin.Context) {
	var body loginStartBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperror.Respond(c, apperror.Wrap(apperror.KindValidation, "请求格式错误", err))
		return
	}

	options, err := BeginAuthentication(strings.TrimSpace(body.Username))
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, options)
}

// LoginFinish 处理认证仪式的完成请求，成功后签发会话cookie
func LoginFinish(c *gin.Context) {
	var body finishBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperror.Respond(c, apperror.Wrap(apperror.KindValidation, "请求格式错误", err))
		return
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(body.Credential))
	if err != nil {
		apperror.Respond(c, apperror.Wrap(apperror.KindValidation, "凭证响应格式错误", err))
		return
	}

	result, err := FinishAuthentication(strings.TrimSpace(body.Username), parsed)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	if err := session.IssueToContext(c, result.UserID); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Logout 撤销会话并清除cookie。无论会话是否存在都返回成功。
func Logout(c *gin.Context) {
	session.RevokeFromContext(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
