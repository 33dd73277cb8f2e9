package database

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func InitDB(logger *zap.Logger) (*sql.DB, error) {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "postgres")
	dbname := getEnv("DB_NAME", "mkulimadb")

	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("Database connection established")
	return db, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		phone_number VARCHAR(20) DEFAULT '',
		user_type VARCHAR(20) NOT NULL DEFAULT 'buyer',
		city VARCHAR(100) DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS products (
		id SERIAL PRIMARY KEY,
		seller_id INTEGER NOT NULL REFERENCES users(id),
		name VARCHAR(200) NOT NULL,
		sku VARCHAR(50) NOT NULL,
		description TEXT DEFAULT '',
		price DECIMAL(12, 2) NOT NULL,
		currency VARCHAR(3) NOT NULL DEFAULT 'TZS',
		stock_quantity INTEGER NOT NULL DEFAULT 0,
		minimum_order_quantity INTEGER NOT NULL DEFAULT 1,
		maximum_order_quantity INTEGER NOT NULL DEFAULT 0,
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		expiry_date TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS product_inventory_logs (
		id SERIAL PRIMARY KEY,
		product_id INTEGER NOT NULL REFERENCES products(id),
		change_type VARCHAR(20) NOT NULL,
		quantity_change INTEGER NOT NULL,
		previous_quantity INTEGER NOT NULL,
		new_quantity INTEGER NOT NULL,
		reference_id VARCHAR(100) DEFAULT '',
		notes TEXT DEFAULT '',
		created_by INTEGER REFERENCES users(id),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS orders (
		id SERIAL PRIMARY KEY,
		order_number VARCHAR(50) UNIQUE NOT NULL,
		buyer_id INTEGER NOT NULL REFERENCES users(id),
		seller_id INTEGER NOT NULL REFERENCES users(id),
		order_status VARCHAR(20) NOT NULL DEFAULT 'pending',
		payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
		subtotal DECIMAL(12, 2) NOT NULL DEFAULT 0,
		tax_amount DECIMAL(12, 2) NOT NULL DEFAULT 0,
		shipping_cost DECIMAL(12, 2) NOT NULL DEFAULT 0,
		discount_amount DECIMAL(12, 2) NOT NULL DEFAULT 0,
		total_amount DECIMAL(12, 2) NOT NULL DEFAULT 0,
		currency VARCHAR(3) NOT NULL DEFAULT 'TZS',
		delivery_method VARCHAR(20) NOT NULL DEFAULT 'delivery',
		notes TEXT DEFAULT '',
		tracking_number VARCHAR(100) DEFAULT '',
		order_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		required_date TIMESTAMP,
		shipped_date TIMESTAMP,
		delivered_date TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS order_items (
		id SERIAL PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL,
		unit_price DECIMAL(12, 2) NOT NULL,
		total_price DECIMAL(12, 2) NOT NULL,
		product_name VARCHAR(200) NOT NULL,
		product_sku VARCHAR(50) NOT NULL,
		product_description TEXT DEFAULT '',
		item_status VARCHAR(20) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS order_addresses (
		id SERIAL PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		address_type VARCHAR(20) NOT NULL,
		recipient_name VARCHAR(255) NOT NULL,
		phone_number VARCHAR(20) NOT NULL,
		email VARCHAR(255) DEFAULT '',
		street_address VARCHAR(255) DEFAULT '',
		city VARCHAR(100) DEFAULT '',
		region VARCHAR(100) DEFAULT '',
		delivery_instructions TEXT DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (order_id, address_type)
	);

	CREATE TABLE IF NOT EXISTS order_status_history (
		id SERIAL PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		from_status VARCHAR(20) NOT NULL DEFAULT '',
		to_status VARCHAR(20) NOT NULL,
		changed_by INTEGER REFERENCES users(id),
		notes TEXT DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS order_discounts (
		id SERIAL PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		discount_code VARCHAR(50) NOT NULL,
		discount_name VARCHAR(100) NOT NULL,
		percentage DECIMAL(5, 2) NOT NULL,
		discount_amount DECIMAL(12, 2) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS payment_methods (
		id SERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		method_type VARCHAR(20) NOT NULL,
		provider VARCHAR(100) DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		processing_fee_percentage DECIMAL(8, 4) NOT NULL DEFAULT 0,
		processing_fee_fixed DECIMAL(10, 2) NOT NULL DEFAULT 0,
		requires_verification BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS payments (
		id SERIAL PRIMARY KEY,
		reference_number VARCHAR(100) UNIQUE NOT NULL,
		payment_type VARCHAR(20) NOT NULL DEFAULT 'order_payment',
		payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
		payer_id INTEGER NOT NULL REFERENCES users(id),
		payee_id INTEGER NOT NULL REFERENCES users(id),
		method_id INTEGER NOT NULL REFERENCES payment_methods(id),
		order_id INTEGER REFERENCES orders(id),
		gross_amount DECIMAL(12, 2) NOT NULL,
		fee_amount DECIMAL(12, 2) NOT NULL DEFAULT 0,
		net_amount DECIMAL(12, 2) NOT NULL,
		currency VARCHAR(3) NOT NULL DEFAULT 'TZS',
		gateway_transaction_id VARCHAR(255) DEFAULT '',
		gateway_response JSONB DEFAULT '{}',
		description TEXT DEFAULT '',
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		initiated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMP,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS payment_status_history (
		id SERIAL PRIMARY KEY,
		payment_id INTEGER NOT NULL REFERENCES payments(id) ON DELETE CASCADE,
		from_status VARCHAR(20) NOT NULL DEFAULT '',
		to_status VARCHAR(20) NOT NULL,
		changed_by INTEGER REFERENCES users(id),
		notes TEXT DEFAULT '',
		gateway_response JSONB DEFAULT '{}',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS payment_refunds (
		id SERIAL PRIMARY KEY,
		payment_id INTEGER NOT NULL REFERENCES payments(id),
		refund_number VARCHAR(100) UNIQUE NOT NULL,
		refund_reason VARCHAR(30) NOT NULL,
		refund_status VARCHAR(20) NOT NULL DEFAULT 'requested',
		refund_amount DECIMAL(12, 2) NOT NULL,
		refund_fee DECIMAL(12, 2) NOT NULL DEFAULT 0,
		net_refund DECIMAL(12, 2) NOT NULL,
		currency VARCHAR(3) NOT NULL DEFAULT 'TZS',
		requested_by INTEGER NOT NULL REFERENCES users(id),
		approved_by INTEGER REFERENCES users(id),
		gateway_refund_id VARCHAR(255) DEFAULT '',
		description TEXT DEFAULT '',
		requested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		approved_at TIMESTAMP,
		processed_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS payment_webhooks (
		id SERIAL PRIMARY KEY,
		provider VARCHAR(50) NOT NULL,
		payment_id INTEGER REFERENCES payments(id),
		event_data JSONB NOT NULL DEFAULT '{}',
		signature VARCHAR(500) DEFAULT '',
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		status VARCHAR(20) NOT NULL DEFAULT 'received',
		error_message TEXT DEFAULT '',
		processed_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := db.Exec(schema)
	return err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
