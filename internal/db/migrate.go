package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/guildpay/guildpay/internal/models"
)

// Migrate applies the ledger schema.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.Owner{},
		&models.Subscriber{},
		&models.Plan{},
		&models.Subscription{},
		&models.Affiliate{},
		&models.AffiliateInvitee{},
		&models.AffiliatePayment{},
		&models.AccessCode{},
		&models.Operator{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}
