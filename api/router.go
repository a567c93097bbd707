package api

import (
	"github.com/SlpAus/live-polls-backend/internal/auth"
	"github.com/SlpAus/live-polls-backend/internal/broadcast"
	"github.com/SlpAus/live-polls-backend/internal/poll"
	"github.com/SlpAus/live-polls-backend/internal/session"
	"github.com/SlpAus/live-polls-backend/internal/vote"
	"github.com/gin-gonic/gin"
)

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		// WebAuthn仪式与会话相关的路由组 /api/auth
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register/start", auth.RegisterStart)
			authRoutes.POST("/register/finish", auth.RegisterFinish)
			authRoutes.POST("/login/start", auth.LoginStart)
			authRoutes.POST("/login/finish", auth.LoginFinish)
			authRoutes.POST("/logout", auth.Logout)
		}

		// 投票相关的路由组 /api/polls
		pollRoutes := api.Group("/polls")
		{
			// 只读端点无需会话
			pollRoutes.GET("", poll.GetAllPolls)
			pollRoutes.GET("/user/:userId", poll.GetPollsByUser)

			// 实时推送流
			pollRoutes.GET("/results/stream", broadcast.StreamAllPolls)

			pollRoutes.GET("/:id", poll.GetPollByID)
			pollRoutes.GET("/:id/stream", broadcast.StreamPoll)

			// 变更端点全部要求有效会话，身份以会话为准
			pollRoutes.POST("/create", session.RequireSession(), poll.CreatePoll)
			pollRoutes.POST("/:id/vote", session.RequireSession(), vote.SubmitVote)
			pollRoutes.POST("/:id/change/vote", session.RequireSession(), vote.ChangeVoteHandler)
			pollRoutes.PUT("/:id/change/vote", session.RequireSession(), vote.ChangeVoteHandler)
			pollRoutes.POST("/:id/close", session.RequireSession(), vote.ClosePollHandler)
			pollRoutes.POST("/:id/reset", session.RequireSession(), vote.ResetPollHandler)
			pollRoutes.GET("/:id/vote/check", session.RequireSession(), vote.CheckVoteHandler)
		}
	}
}
