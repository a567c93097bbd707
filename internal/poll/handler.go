package poll

import (
	"net/http"

	"github.com/SlpAus/live-polls-backend/internal/session"
	"github.com/SlpAus/live-polls-backend/pkg/apperror"
	"github.com/gin-gonic/gin"
)

// createPollBody 是 POST /api/polls/create 的请求体。
// creator_id 只是客户端的提示，真正的创建者以会话身份为准。
type createPollBody struct {
	Question  string   `json:"question" binding:"required"`
	Options   []string `json:"options" binding:"required"`
	CreatorID string   `json:"creator_id"`
}

// CreatePoll 处理创建投票的请求
func CreatePoll(c *gin.Context) {
	var body createPollBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperror.Respond(c, apperror.Wrap(apperror.KindValidation, "请求格式错误", err))
		return
	}

	userID := session.CurrentUserID(c)
	if body.CreatorID != "" && body.CreatorID != userID {
		apperror.Respond(c, apperror.New(apperror.KindForbidden, "creator_id与会话身份不符"))
		return
	}

	snap, err := Create(body.Question, body.Options, userID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// GetAllPolls 返回全部投票，按创建时间降序
func GetAllPolls(c *gin.Context) {
	snaps, err := ListAll()
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, snaps)
}

// GetPollByID 返回单个投票的当前快照
func GetPollByID(c *gin.Context) {
	snap, err := GetSnapshot(c.Param("id"))
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetPollsByUser 返回指定用户创建的全部投票
func GetPollsByUser(c *gin.Context) {
	snaps, err := ListByCreator(c.Param("userId"))
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, snaps)
}
