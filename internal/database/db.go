package database

import (
	"comanda/internal/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres" // PostgreSQL driver
	_ "github.com/jinzhu/gorm/dialects/sqlite"   // SQLite driver
)

var DB *gorm.DB

// InitDB initializes the database connection
func InitDB(dialect, dsn string) error {
	var err error
	DB, err = gorm.Open(dialect, dsn)
	if err != nil {
		return err
	}
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// CloseDB closes the database connection
func CloseDB() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

// Migrate creates or updates the schema for all pipeline entities.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.RestaurantConfig{},
		&models.OpeningHours{},
		&models.ClosedNotice{},
		&models.Product{},
		&models.Conversation{},
		&models.Message{},
		&models.Customer{},
		&models.Order{},
		&models.OrderItem{},
	).Error
}

// SeedDefaultConfig guarantees a restaurant row exists so the pipeline always
// has a config to load. Hours default to closed until staff configure them.
func SeedDefaultConfig(db *gorm.DB) (*models.RestaurantConfig, error) {
	var cfg models.RestaurantConfig
	if err := db.Preload("Hours").First(&cfg).Error; err == nil {
		return &cfg, nil
	} else if !gorm.IsRecordNotFoundError(err) {
		return nil, err
	}

	cfg = models.RestaurantConfig{
		Name:       "My Restaurant",
		Timezone:   "UTC",
		BotEnabled: true,
		BotName:    "Assistant",
	}
	for day := 0; day < 7; day++ {
		cfg.Hours = append(cfg.Hours, models.OpeningHours{Weekday: day})
	}
	if err := db.Create(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}
