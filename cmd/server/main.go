package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/SlpAus/live-polls-backend/api"
	"github.com/SlpAus/live-polls-backend/internal/auth"
	"github.com/SlpAus/live-polls-backend/internal/broadcast"
	"github.com/SlpAus/live-polls-backend/internal/platform/config"
	"github.com/SlpAus/live-polls-backend/internal/platform/database"
	"github.com/SlpAus/live-polls-backend/internal/platform/health"
	"github.com/SlpAus/live-polls-backend/internal/platform/shutdown"
	"github.com/SlpAus/live-polls-backend/internal/platform/startup"
	"github.com/SlpAus/live-polls-backend/internal/session"
	"github.com/SlpAus/live-polls-backend/pkg/lifecycle"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func mustHandle(m *lifecycle.Manager, name string) *lifecycle.Handle {
	handle, err := m.NewServiceHandle(name)
	if err != nil {
		panic(fmt.Sprintf("后台服务 %s 注册失败: %v", name, err))
	}
	return handle
}

func main() {
	// .env文件缺失时静默忽略，配置全部走config.yaml与环境变量
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("配置加载失败，无法启动: %v", err))
	}

	database.InitDB(cfg.Database)
	database.InitRedis(cfg.Database.Redis)

	// 1. 阻塞式获取初始Run ID
	health.InitializeRunID()

	// 2. 初始化WebAuthn依赖方身份
	if err := auth.InitWebAuthn(cfg.WebAuthn); err != nil {
		panic(fmt.Sprintf("WebAuthn初始化失败，无法启动: %v", err))
	}

	// 3. 执行应用首次启动初始化流程
	if err := startup.InitializeApplication(); err != nil {
		panic(fmt.Sprintf("应用初始化失败，无法启动: %v", err))
	}

	// 4. 阻塞式执行一次启动后健康检查
	fmt.Println("正在执行启动后健康检查...")
	health.PerformCheck()

	// 5. 创建两阶段生命周期管理器，并异步启动所有后台服务
	gracefulManager := lifecycle.NewManager()
	forcefulManager := lifecycle.NewManager()

	broadcast.StartHub(mustHandle(gracefulManager, "广播中心"))
	session.StartSweeper(mustHandle(gracefulManager, "会话清扫器"), auth.SweepExpiredChallenges)
	health.StartRedisHealthCheck(mustHandle(forcefulManager, "Redis健康检查器"))

	gin.SetMode(cfg.Server.Mode)
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.Cors.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.SetupRoutes(r)

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	go func() {
		fmt.Printf("服务器已准备就绪，开始监听 %s\n", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic("Failed to start server: " + err.Error())
		}
	}()

	// 阻塞等待停机信号，并编排两阶段优雅停机
	shutdown.NewCoordinator(gracefulManager, forcefulManager).ListenForSignalsAndShutdown(server)
}
