package services

import (
	"princo/internal/models"
	"princo/internal/repositories"
)

// ProductService handles business logic for the print catalog.
type ProductService struct {
	repo repositories.ProductRepository
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository) *ProductService {
	return &ProductService{
		repo: repo,
	}
}

// GetAllProducts retrieves the catalog.
func (s *ProductService) GetAllProducts() ([]models.Product, error) {
	return s.repo.GetAll()
}

// GetProductByID retrieves a single catalog entry by its ID.
func (s *ProductService) GetProductByID(id string) (*models.Product, error) {
	return s.repo.GetByID(id)
}

// CreateProduct adds a catalog entry.
func (s *ProductService) CreateProduct(product *models.Product) error {
	reconcileAvailability(product)
	return s.repo.Create(product)
}

// UpdateProduct updates an existing catalog entry.
func (s *ProductService) UpdateProduct(product *models.Product) error {
	reconcileAvailability(product)
	return s.repo.Update(product)
}

// DeleteProduct removes a catalog entry by its ID.
func (s *ProductService) DeleteProduct(id string) error {
	return s.repo.Delete(id)
}

// reconcileAvailability keeps the storefront flag honest: a product with no
// stock is never shown as available, whatever the admin submitted. The flag
// can still be switched off manually while stock remains.
func reconcileAvailability(product *models.Product) {
	if product.Stock == 0 {
		product.InStock = false
	}
}
