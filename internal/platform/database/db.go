package database

import (
	"fmt"
	"log"
	"os"

	"github.com/SlpAus/live-polls-backend/internal/platform/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是一个全局的GORM实例，供项目其他部分使用。
// SQLite/Postgres中的数据是整个系统唯一的事实来源，Redis只是它的缓存。
var DB *gorm.DB

// InitDB 根据配置初始化数据库连接
func InitDB(cfg config.DatabaseConfig) {
	var err error

	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 0,
			LogLevel:      logger.Silent, // 调试SQL时可以临时改为Info
			Colorful:      true,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		panic("不支持的数据库驱动: " + cfg.Driver)
	}

	DB, err = gorm.Open(dialector, &gorm.Config{
		Logger:         newLogger,
		TranslateError: true, // 将驱动错误翻译为gorm.ErrDuplicatedKey等通用错误
	})

	if err != nil {
		fmt.Println("连接数据库失败", err)
		panic(err)
	}

	fmt.Println("数据库连接成功！")
}
