package service

import (
	"context"
	"strings"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
)

// DirectoryService answers customer and product searches for the selection steps
type DirectoryService struct {
	directory Directory
}

// NewDirectoryService creates a new directory service
func NewDirectoryService(directory Directory) *DirectoryService {
	return &DirectoryService{directory: directory}
}

// SearchCustomers returns customers matching term. An empty term returns nothing.
func (d *DirectoryService) SearchCustomers(ctx context.Context, term string, limit int) ([]models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "DirectoryService.SearchCustomers")
	defer span.End()
	span.SetAttributes(attribute.String("term", term))

	if strings.TrimSpace(term) == "" {
		return []models.Customer{}, nil
	}
	return d.directory.SearchCustomers(ctx, term, limit)
}

// SearchProducts returns products matching term. An empty term returns nothing.
func (d *DirectoryService) SearchProducts(ctx context.Context, term string, limit int) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "DirectoryService.SearchProducts")
	defer span.End()
	span.SetAttributes(attribute.String("term", term))

	if strings.TrimSpace(term) == "" {
		return []models.Product{}, nil
	}
	return d.directory.SearchProducts(ctx, term, limit)
}
