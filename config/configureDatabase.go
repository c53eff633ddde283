package config

import (
	"fmt"
	"time"

	"freight-billing-backend/db/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// primaryModels are migrated on the primary store. This is the only place to add new models.
var primaryModels = []interface{}{
	&models.Shipment{},
	&models.InvoiceStatusDefinition{},
	&models.ShipmentAuditEvent{},
	&models.UploadRecord{},
	&models.ResultRecord{},
}

// secondaryModels are the ingestion tables the secondary store mirrors.
var secondaryModels = []interface{}{
	&models.UploadRecord{},
	&models.ResultRecord{},
}

// DSN renders the postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=%s",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.TimeZone,
	)
}

// Configured reports whether a database name was provided.
func (c DatabaseConfig) Configured() bool {
	return c.DBName != ""
}

// OpenDatabase connects, migrates and configures the pool for one store.
func OpenDatabase(cfg DatabaseConfig, migrate func(*gorm.DB) error) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s database: %w", cfg.Name, err)
	}

	if migrate != nil {
		if err := migrate(db); err != nil {
			return nil, fmt.Errorf("migrate %s database: %w", cfg.Name, err)
		}
		Logger.Info("Tables migrated successfully", zap.String("store", cfg.Name))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get %s connection pool: %w", cfg.Name, err)
	}
	sqlDB.SetMaxOpenConns(30)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	Logger.Info("Database setup complete",
		zap.String("store", cfg.Name),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName))
	return db, nil
}

// MigratePrimary creates the billing tables, the legacy status catalog and the ingestion tables.
func MigratePrimary(db *gorm.DB) error {
	if err := db.AutoMigrate(primaryModels...); err != nil {
		return err
	}
	if err := db.Table(models.LegacyInvoiceStatusTable).AutoMigrate(&models.InvoiceStatusDefinition{}); err != nil {
		return err
	}
	if err := CreateShipmentStatusVersionIndex(db); err != nil {
		return err
	}
	return CreateUnfinishedUploadsPartialIndex(db)
}

func MigrateSecondary(db *gorm.DB) error {
	if err := db.AutoMigrate(secondaryModels...); err != nil {
		return err
	}
	return CreateUnfinishedUploadsPartialIndex(db)
}

// ConfigureDatabases opens the primary store and, when configured, the secondary one.
// A missing secondary is returned as nil.
func ConfigureDatabases(cfg *AppConfig) (*gorm.DB, *gorm.DB) {
	primary, err := OpenDatabase(cfg.PrimaryDB, MigratePrimary)
	if err != nil {
		Logger.Fatal("Failed to set up primary database", zap.Error(err))
	}

	if !cfg.SecondaryDB.Configured() {
		Logger.Warn("Secondary database not configured, ingestion reads use the primary store only")
		return primary, nil
	}
	secondary, err := OpenDatabase(cfg.SecondaryDB, MigrateSecondary)
	if err != nil {
		Logger.Fatal("Failed to set up secondary database", zap.Error(err))
	}
	return primary, secondary
}
