package cli

import (
	"fmt"

	"chatdesk/internal/config"
	"chatdesk/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		if err := db.AutoMigrate(
			&models.Tenant{}, &models.TeamMember{},
			&models.ChatSession{}, &models.Message{},
			&models.WidgetConfig{},
		); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logrus.Info("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
