package db

import (
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Book{}, &Cart{}, &CartItem{}, &Order{}, &OrderItem{}); err != nil {
		return err
	}

	return createIndexes(db.DB)
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Order history is always read newest first per user
		`CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at DESC)`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}

// SeedDemoBooks inserts a small catalog when the books table is empty
func SeedDemoBooks(db *DB) error {
	var count int64
	if err := db.Model(&Book{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	books := []Book{
		{ISBN: "9780743273565", Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", Price: 1599, Stock: 100},
		{ISBN: "9780061120084", Title: "To Kill a Mockingbird", Author: "Harper Lee", Price: 1499, Stock: 75},
		{ISBN: "9780451524935", Title: "1984", Author: "George Orwell", Price: 1399, Stock: 50},
		{ISBN: "9780141439518", Title: "Pride and Prejudice", Author: "Jane Austen", Price: 1299, Stock: 60},
		{ISBN: "9780547928227", Title: "The Hobbit", Author: "J.R.R. Tolkien", Price: 1699, Stock: 80},
	}

	return db.Create(&books).Error
}
