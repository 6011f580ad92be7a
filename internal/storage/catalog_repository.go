package storage

import (
	"context"
	"fmt"

	"github.com/lash-studio/backoffice/internal/storage/models"
)

// CatalogRepository reads the customers and treatment types that income
// entries may reference.
type CatalogRepository struct {
	BaseRepository
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db *DB) *CatalogRepository {
	return &CatalogRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// CreateCustomer inserts a customer and fills in its ID.
func (r *CatalogRepository) CreateCustomer(ctx context.Context, c *models.Customer) error {
	c.ID = GenerateID()
	c.CreatedAt = r.Now()

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, created_at) VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.Name, nullString(c.Email), nullString(c.Phone), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting customer: %w", err)
	}
	return nil
}

// ListCustomers returns all customers ordered by name.
func (r *CatalogRepository) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	rows, err := r.Q().QueryContext(ctx, `
		SELECT id, name, email, phone, created_at FROM customers ORDER BY name COLLATE NOCASE
	`)
	if err != nil {
		return nil, fmt.Errorf("querying customers: %w", err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// ListTreatmentTypes returns active treatment types ordered by name.
func (r *CatalogRepository) ListTreatmentTypes(ctx context.Context) ([]models.TreatmentType, error) {
	rows, err := r.Q().QueryContext(ctx, `
		SELECT id, name, default_price, active FROM treatment_types WHERE active = 1 ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying treatment types: %w", err)
	}
	defer rows.Close()

	var types []models.TreatmentType
	for rows.Next() {
		var t models.TreatmentType
		if err := rows.Scan(&t.ID, &t.Name, &t.DefaultPrice, &t.Active); err != nil {
			return nil, fmt.Errorf("scanning treatment type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}
