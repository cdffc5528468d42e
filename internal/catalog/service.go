package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/stockyard-retail/stockyard/internal/shared"
)

// RepositoryPort abstracts SKU persistence.
type RepositoryPort interface {
	Create(ctx context.Context, sku SKU) error
	Get(ctx context.Context, code string) (SKU, error)
	Update(ctx context.Context, sku SKU) error
	List(ctx context.Context, page, perPage int) ([]SKU, int, error)
}

// LedgerPort reports whether a SKU appears in the ledger.
type LedgerPort interface {
	HasEntriesFor(ctx context.Context, sku string) (bool, error)
}

// Service manages the SKU master.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger LedgerPort) *Service {
	return &Service{repo: repo, ledger: ledger}
}

// Create registers a new SKU.
func (s *Service) Create(ctx context.Context, sku SKU) (SKU, error) {
	if sku.Code == "" || sku.UnitOfMeasure == "" {
		return SKU{}, fmt.Errorf("%w: code and unit of measure required", ErrValidation)
	}
	now := time.Now().UTC()
	sku.CreatedAt = now
	sku.UpdatedAt = now
	if err := s.repo.Create(ctx, sku); err != nil {
		return SKU{}, err
	}
	return sku, nil
}

// Update changes SKU attributes. The unit of measure is immutable once
// any ledger entry references the SKU; the name stays editable.
func (s *Service) Update(ctx context.Context, code string, name, unitOfMeasure string) (SKU, error) {
	sku, err := s.repo.Get(ctx, code)
	if err != nil {
		return SKU{}, err
	}
	if unitOfMeasure != "" && unitOfMeasure != sku.UnitOfMeasure {
		frozen, err := s.ledger.HasEntriesFor(ctx, code)
		if err != nil {
			return SKU{}, err
		}
		if frozen {
			return SKU{}, ErrSKUFrozen
		}
		sku.UnitOfMeasure = unitOfMeasure
	}
	if name != "" {
		sku.Name = name
	}
	sku.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, sku); err != nil {
		return SKU{}, err
	}
	return sku, nil
}

// Get loads one SKU by code.
func (s *Service) Get(ctx context.Context, code string) (SKU, error) {
	return s.repo.Get(ctx, code)
}

// List pages the SKU master.
func (s *Service) List(ctx context.Context, page, perPage int) ([]SKU, shared.Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	skus, total, err := s.repo.List(ctx, page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return skus, shared.NewPagination(page, perPage, total), nil
}
