package vote

import (
	"net/http"

	"github.com/SlpAus/live-polls-backend/internal/session"
	"github.com/SlpAus/live-polls-backend/pkg/apperror"
	"github.com/gin-gonic/gin"
)

// voteBody 是cast和change共用的请求体。
// user_id 只是客户端的提示，身份一律以会话为准。
type voteBody struct {
	UserID   string `json:"user_id"`
	OptionID string `json:"option_id" binding:"required"`
}

// actorBody 是close和reset共用的请求体。
type actorBody struct {
	UserID string `json:"user_id"`
}

// requireSessionUser 核对请求体中的user_id与会话身份。
// 不一致说明客户端状态陈旧或在伪造身份，拒绝请求。
func requireSessionUser(c *gin.Context, bodyUserID string) (string, bool) {
	userID := session.CurrentUserID(c)
	if bodyUserID != "" && bodyUserID != userID {
		apperror.Respond(c, apperror.New(apperror.KindForbidden, "user_id与会话身份不符"))
		return "", false
	}
	return userID, true
}

// SubmitVote 处理 POST /api/polls/:id/vote
func SubmitVote(c *gin.Context) {
	var body voteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperror.Respond(c, apperror.Wrap(apperror.KindValidation, "请求格式错误", err))
		return
	}
	userID, ok := requireSessionUser(c, body.UserID)
	if !ok {
		return
	}

	snap, err := CastVote(c.Param("id"), userID, body.OptionID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ChangeVoteHandler 处理 POST|PUT /api/polls/:id/change/vote
func ChangeVoteHandler(c *gin.Context) {
	var body voteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperror.Respond(c, apperror.Wrap(apperror.KindValidation, "请求格式错误", err))
		return
	}
	userID, ok := requireSessionUser(c, body.UserID)
	if !ok {
		return
	}

	snap, err := ChangeVote(c.Param("id"), userID, body.OptionID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ClosePollHandler 处理 POST /api/polls/:id/close
func ClosePollHandler(c *gin.Context) {
	var body actorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperror.Respond(c, apperror.Wrap(apperror.KindValidation, "请求格式错误", err))
		return
	}
	userID, ok := requireSessionUser(c, body.UserID)
	if !ok {
		return
	}

	snap, err := ClosePoll(c.Param("id"), userID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ResetPollHandler 处理 POST /api/polls/:id/reset
func ResetPollHandler(c *gin.Context) {
	var body actorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperror.Respond(c, apperror.Wrap(apperror.KindValidation, "请求格式错误", err))
		return
	}
	userID, ok := requireSessionUser(c, body.UserID)
	if !ok {
		return
	}

	snap, err := ResetPoll(c.Param("id"), userID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// CheckVoteHandler 处理 GET /api/polls/:id/vote/check?user_id=
// 只读查询，客户端失败时会本地降级为未投票，因此这里必须无副作用。
func CheckVoteHandler(c *gin.Context) {
	userID, ok := requireSessionUser(c, c.Query("user_id"))
	if !ok {
		return
	}

	status, err := CheckVote(c.Param("id"), userID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
