package database

import (
	"fmt"
	"time"

	"studyquiz_backend/internal/config"
	"studyquiz_backend/internal/model"
	"studyquiz_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Log.Info("Database connection established", zap.String("host", cfg.Host), zap.String("db", cfg.DBName))
	return db, nil
}

// Migrate 建表并写入默认数据
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.All()...); err != nil {
		return err
	}
	logger.Log.Info("Database migration completed")
	return seedDemoGroup(db)
}

// seedDemoGroup 空库时创建一个公开的示例学习小组，便于首次体验
func seedDemoGroup(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.StudyGroup{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	group := &model.StudyGroup{
		Name:        "General Study",
		Description: "Default group created on first start",
	}
	if err := db.Create(group).Error; err != nil {
		return err
	}
	logger.Log.Info("Seeded default study group", zap.String("group_id", group.ID))
	return nil
}
