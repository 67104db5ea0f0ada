package db

import (
	"medconsult/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus"
	"gorm.io/gorm" // GORM ORM library
)

// Models lists every table owned by the service, in dependency order
var Models = []any{
	&domain.Doctor{},
	&domain.Wallet{},
	&domain.PayoutRequest{},
	&domain.Transaction{},
	&domain.Question{},
	&domain.Answer{},
	&domain.Comment{},
	&domain.Attachment{},
	&domain.Consultation{},
	&domain.ConsultationMessage{},
}

// Migrate performs automatic migration for the database schema
func Migrate(db *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	if err := db.AutoMigrate(Models...); err != nil {
		return err
	}
	logrus.Info("Migration completed.") // Log successful migration
	return nil
}
