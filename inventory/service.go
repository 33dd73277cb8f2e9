package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/awadhimassomo/Mkulima-smart/models"
	"go.uber.org/zap"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductNotFound   = errors.New("product not found")
)

// Service is the inventory ledger: the products table holds the on-hand
// quantity and product_inventory_logs is its append-only audit trail.
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewService(db *sql.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx,
		`SELECT id, seller_id, name, sku, description, price, currency, stock_quantity,
		        minimum_order_quantity, maximum_order_quantity, is_available, expiry_date,
		        created_at, updated_at
		 FROM products WHERE id = $1`, id))
}

// GetProductForUpdate locks the product row for the duration of tx so
// concurrent stock mutations against the same product serialize.
func (s *Service) GetProductForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	return scanProduct(tx.QueryRowContext(ctx,
		`SELECT id, seller_id, name, sku, description, price, currency, stock_quantity,
		        minimum_order_quantity, maximum_order_quantity, is_available, expiry_date,
		        created_at, updated_at
		 FROM products WHERE id = $1 FOR UPDATE`, id))
}

type row interface {
	Scan(dest ...any) error
}

func scanProduct(r row) (*models.Product, error) {
	var p models.Product
	err := r.Scan(
		&p.ID, &p.SellerID, &p.Name, &p.SKU, &p.Description, &p.Price, &p.Currency,
		&p.StockQuantity, &p.MinOrderQuantity, &p.MaxOrderQuantity, &p.IsAvailable,
		&p.ExpiryDate, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateStock applies a quantity delta (negative for sales, positive for
// returns/restocks) to an already locked product row and appends the ledger
// entry. It must run inside the caller's transaction so the quantity change
// and its audit row commit or roll back together.
func (s *Service) UpdateStock(ctx context.Context, tx *sql.Tx, product *models.Product,
	delta int, changeType models.StockChangeType, referenceID, notes string, actor *int64) error {

	previous := product.StockQuantity
	next := previous + delta
	if next < 0 {
		return fmt.Errorf("%w: product %d has %d units, requested %d",
			ErrInsufficientStock, product.ID, previous, -delta)
	}

	_, err := tx.ExecContext(ctx,
		"UPDATE products SET stock_quantity = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
		next, product.ID)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO product_inventory_logs
		 (product_id, change_type, quantity_change, previous_quantity, new_quantity, reference_id, notes, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		product.ID, changeType, delta, previous, next, referenceID, notes, actor)
	if err != nil {
		return fmt.Errorf("failed to write inventory log: %w", err)
	}

	product.StockQuantity = next
	return nil
}

// AdjustStock applies a standalone stock correction outside any order
// flow, in its own transaction.
func (s *Service) AdjustStock(ctx context.Context, productID int64, delta int,
	changeType models.StockChangeType, notes string, actor *int64) (*models.Product, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	product, err := s.GetProductForUpdate(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if err := s.UpdateStock(ctx, tx, product, delta, changeType, "", notes, actor); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("Stock adjusted",
		zap.Int64("product_id", product.ID),
		zap.String("change_type", string(changeType)),
		zap.Int("delta", delta),
		zap.Int("new_quantity", product.StockQuantity),
	)
	return product, nil
}

// GetLogs returns the product's ledger entries, newest first.
func (s *Service) GetLogs(ctx context.Context, productID int64) ([]models.InventoryLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, change_type, quantity_change, previous_quantity,
		        new_quantity, reference_id, notes, created_by, created_at
		 FROM product_inventory_logs WHERE product_id = $1 ORDER BY created_at DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.InventoryLog
	for rows.Next() {
		var l models.InventoryLog
		if err := rows.Scan(&l.ID, &l.ProductID, &l.ChangeType, &l.QuantityChange,
			&l.PreviousQuantity, &l.NewQuantity, &l.ReferenceID, &l.Notes,
			&l.CreatedBy, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CheckAvailability reports whether the product can satisfy the requested
// quantity, without mutating anything. The reason string is safe to show to
// buyers.
func (s *Service) CheckAvailability(product *models.Product, quantity int) (bool, string) {
	if !product.IsAvailable {
		return false, "Product is not available"
	}
	if product.IsExpired() {
		return false, "Product has expired"
	}
	if product.StockQuantity < quantity {
		return false, fmt.Sprintf("Only %d units available", product.StockQuantity)
	}
	if quantity < product.MinOrderQuantity {
		return false, fmt.Sprintf("Minimum order quantity is %d", product.MinOrderQuantity)
	}
	if product.MaxOrderQuantity > 0 && quantity > product.MaxOrderQuantity {
		return false, fmt.Sprintf("Maximum order quantity is %d", product.MaxOrderQuantity)
	}
	return true, "Available"
}
