package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

const defaultSearchLimit = 20

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// New wraps an existing connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the tables this service reads and writes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func likePattern(term string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSpace(term))
	return "%" + escaped + "%"
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return defaultSearchLimit
	}
	return limit
}

// SearchProducts finds products whose name or SKU contains term.
func (s *Store) SearchProducts(ctx context.Context, term string, limit int) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products,
		`SELECT id, sku, name, price, created_at FROM products
		WHERE name ILIKE $1 OR sku ILIKE $1
		ORDER BY name LIMIT $2`,
		likePattern(term), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return products, nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT id, sku, name, price, created_at FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// SearchCustomers finds customers whose name, phone or email contains term.
func (s *Store) SearchCustomers(ctx context.Context, term string, limit int) ([]models.Customer, error) {
	customers := []models.Customer{}
	err := s.db.SelectContext(ctx, &customers,
		`SELECT id, name, phone, email, credit_limit, created_at FROM customers
		WHERE name ILIKE $1 OR phone ILIKE $1 OR email ILIKE $1
		ORDER BY name LIMIT $2`,
		likePattern(term), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search customers: %w", err)
	}
	return customers, nil
}

// GetCustomerByID retrieves a customer by ID
func (s *Store) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer,
		"SELECT id, name, phone, email, credit_limit, created_at FROM customers WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}
