package migrations

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64),
		conversation_id VARCHAR(64) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		payment_status VARCHAR(20) NOT NULL DEFAULT 'unpaid',
		total_minor BIGINT NOT NULL,
		currency VARCHAR(8) NOT NULL,
		customer_name VARCHAR(255) NOT NULL,
		customer_email VARCHAR(255) NOT NULL,
		customer_phone VARCHAR(32),
		shipping_address TEXT NOT NULL,
		billing_address TEXT NOT NULL,
		payment_token VARCHAR(255),
		carrier VARCHAR(64),
		tracking_number VARCHAR(128),
		tracking_url VARCHAR(512),
		shipped_at DATETIME,
		delivered_at DATETIME,
		payment_debug JSON,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uq_orders_conversation (conversation_id),
		KEY idx_orders_status_created (status, created_at),
		KEY idx_orders_tracking (tracking_number)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id INT AUTO_INCREMENT PRIMARY KEY,
		order_id VARCHAR(64) NOT NULL,
		product_id VARCHAR(64) NOT NULL,
		quantity INT NOT NULL,
		unit_minor BIGINT NOT NULL,
		line_minor BIGINT NOT NULL,
		product_name VARCHAR(255) NOT NULL,
		product_image VARCHAR(512),
		KEY idx_order_items_order (order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		image_url VARCHAR(512),
		base_minor BIGINT NOT NULL DEFAULT 0,
		stock INT NOT NULL DEFAULT 0,
		stock_threshold INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS price_lists (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		allowed_roles VARCHAR(255),
		allowed_tiers VARCHAR(255),
		effective_from DATETIME NOT NULL,
		effective_to DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS product_prices (
		id INT AUTO_INCREMENT PRIMARY KEY,
		product_id VARCHAR(64) NOT NULL,
		price_list_id VARCHAR(64),
		base_minor BIGINT NOT NULL DEFAULT 0,
		sale_minor BIGINT NOT NULL DEFAULT 0,
		discount_percentage DOUBLE NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		valid_from DATETIME,
		valid_until DATETIME,
		KEY idx_product_prices_lookup (product_id, price_list_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		id VARCHAR(64) PRIMARY KEY,
		role VARCHAR(32) NOT NULL DEFAULT 'individual',
		organization_id VARCHAR(64)
	)`,
	`CREATE TABLE IF NOT EXISTS organizations (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		tier_level INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS coupons (
		code VARCHAR(64) PRIMARY KEY,
		discount_type VARCHAR(20) NOT NULL,
		discount_value DOUBLE NOT NULL,
		minimum_order_minor BIGINT NOT NULL DEFAULT 0,
		valid_from DATETIME,
		valid_until DATETIME,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		usage_limit INT NOT NULL DEFAULT 0,
		used_count INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS returns (
		id VARCHAR(64) PRIMARY KEY,
		order_id VARCHAR(64) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'requested',
		carrier VARCHAR(64),
		tracking_number VARCHAR(128),
		received_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		KEY idx_returns_order (order_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		event_id VARCHAR(128) NOT NULL,
		source VARCHAR(20) NOT NULL,
		order_id VARCHAR(64),
		return_id VARCHAR(64),
		carrier VARCHAR(64),
		status_raw VARCHAR(64),
		status_mapped VARCHAR(20),
		body_hash VARCHAR(64),
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		PRIMARY KEY (source, event_id)
	)`,
	`CREATE TABLE IF NOT EXISTS refund_events (
		id INT AUTO_INCREMENT PRIMARY KEY,
		order_id VARCHAR(64) NOT NULL,
		amount_minor BIGINT NOT NULL,
		refund_type VARCHAR(20) NOT NULL,
		transaction_id VARCHAR(128),
		reason VARCHAR(512),
		created_at DATETIME NOT NULL,
		KEY idx_refund_events_order (order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS notification_log (
		id INT AUTO_INCREMENT PRIMARY KEY,
		channel VARCHAR(20) NOT NULL,
		recipient VARCHAR(255) NOT NULL,
		template VARCHAR(512),
		ok BOOLEAN NOT NULL,
		note VARCHAR(512),
		created_at DATETIME NOT NULL
	)`,
}

// AutoMigrate creates the schema if absent, retrying while the database
// container is still warming up.
func AutoMigrate(db *sql.DB) error {
	var err error
	for attempt := 1; attempt <= 10; attempt++ {
		err = runAll(db)
		if err == nil {
			log.Println("migrations applied")
			return nil
		}
		log.Printf("migration attempt %d failed: %v", attempt, err)
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("migrations failed after retries: %w", err)
}

func runAll(db *sql.DB) error {
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
