package repositories

import (
	"context"
	"errors"
	"fmt"

	"gstrecon/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrVendorNotFound = errors.New("vendor not found")

type VendorRepository interface {
	Create(ctx context.Context, vendor *models.Vendor) error
	GetByGSTIN(ctx context.Context, userID uuid.UUID, gstin string) (*models.Vendor, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Vendor, error)
}

type vendorRepo struct {
	db DB
}

func NewVendorRepo(db DB) VendorRepository {
	return &vendorRepo{db: db}
}

func (r *vendorRepo) Create(ctx context.Context, vendor *models.Vendor) error {
	if vendor.ID == uuid.Nil {
		vendor.ID = uuid.New()
	}
	query := `
		INSERT INTO vendors (id, user_id, name, gstin, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, vendor.ID, vendor.UserID, vendor.Name, vendor.GSTIN, vendor.Email, vendor.Phone)
	if err != nil {
		return fmt.Errorf("failed to create vendor: %w", err)
	}
	return nil
}

func (r *vendorRepo) GetByGSTIN(ctx context.Context, userID uuid.UUID, gstin string) (*models.Vendor, error) {
	query := `
		SELECT id, user_id, name, gstin, email, phone, created_at, updated_at
		FROM vendors
		WHERE user_id = $1 AND gstin = $2
	`
	var vendor models.Vendor
	err := r.db.QueryRow(ctx, query, userID, gstin).Scan(
		&vendor.ID, &vendor.UserID, &vendor.Name, &vendor.GSTIN, &vendor.Email, &vendor.Phone,
		&vendor.CreatedAt, &vendor.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVendorNotFound
		}
		return nil, err
	}
	return &vendor, nil
}

func (r *vendorRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Vendor, error) {
	query := `
		SELECT id, user_id, name, gstin, email, phone, created_at, updated_at
		FROM vendors
		WHERE user_id = $1
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vendors []models.Vendor
	for rows.Next() {
		var vendor models.Vendor
		if err := rows.Scan(&vendor.ID, &vendor.UserID, &vendor.Name, &vendor.GSTIN, &vendor.Email, &vendor.Phone,
			&vendor.CreatedAt, &vendor.UpdatedAt); err != nil {
			return nil, err
		}
		vendors = append(vendors, vendor)
	}
	return vendors, rows.Err()
}
