package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"hatid/backend/internal/domain"
	"hatid/backend/internal/store"
	"hatid/backend/internal/xid"
)

func (s *Service) CreateStore(ctx context.Context, req domain.StoreCreateRequest) (domain.Store, error) {
	name := strings.ToUpper(strings.TrimSpace(req.Name))
	if name == "" {
		return domain.Store{}, store.ErrInvalidInput
	}
	products, err := normalizeProducts(req.Products)
	if err != nil {
		return domain.Store{}, err
	}

	created, err := s.repo.CreateStore(ctx, domain.Store{
		ID:       xid.New("store"),
		Name:     name,
		Products: products,
		IsParent: req.IsParent,
	})
	if err != nil {
		return domain.Store{}, err
	}

	// Child ids that do not resolve or already have a parent are skipped
	// without failing the creation.
	if created.IsParent {
		for _, childID := range req.ChildStoreIDs {
			childID = strings.TrimSpace(childID)
			if childID == "" || childID == created.ID {
				continue
			}
			if err := s.repo.LinkChildStore(ctx, childID, created.ID); err != nil {
				log.Printf("[service] WARN: failed to link child store %s to %s: %v", childID, created.ID, err)
			}
		}
	}

	return *created, nil
}

func (s *Service) GetStore(ctx context.Context, id string) (domain.Store, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Store{}, store.ErrInvalidInput
	}
	found, err := s.repo.GetStoreByID(ctx, id)
	if err != nil {
		return domain.Store{}, err
	}
	return *found, nil
}

func (s *Service) UpdateStore(ctx context.Context, id string, req domain.StoreUpdateRequest) (domain.Store, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Store{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetStoreByID(ctx, id)
	if err != nil {
		return domain.Store{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.ToUpper(strings.TrimSpace(*req.Name))
		if name == "" {
			return domain.Store{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Products != nil {
		products, err := normalizeProducts(*req.Products)
		if err != nil {
			return domain.Store{}, err
		}
		updated.Products = products
	}
	if req.IsParent != nil {
		updated.IsParent = *req.IsParent
	}
	if req.ParentStore != nil {
		parentID := strings.TrimSpace(*req.ParentStore)
		if parentID == id {
			return domain.Store{}, fmt.Errorf("%w: store cannot be its own parent", store.ErrInvalidInput)
		}
		if parentID != "" {
			parent, err := s.repo.GetStoreByID(ctx, parentID)
			if err != nil {
				return domain.Store{}, err
			}
			if !parent.IsParent {
				return domain.Store{}, fmt.Errorf("%w: parent store is not marked as parent", store.ErrInvalidInput)
			}
		}
		updated.ParentStore = parentID
	}

	saved, err := s.repo.UpdateStore(ctx, updated)
	if err != nil {
		return domain.Store{}, err
	}

	if saved.Name != existing.Name {
		if err := s.names.Delete(ctx, vendorNameKey(saved.ID)); err != nil {
			log.Printf("[service] WARN: failed to evict vendor name for store %s: %v", saved.ID, err)
		}
	}

	return *saved, nil
}

func (s *Service) DeleteStore(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteStore(ctx, id); err != nil {
		return err
	}
	if err := s.names.Delete(ctx, vendorNameKey(id)); err != nil {
		log.Printf("[service] WARN: failed to evict vendor name for store %s: %v", id, err)
	}
	return nil
}

func (s *Service) FindStores(ctx context.Context, filter domain.StoreFilter, page int, limit int) (domain.StoreListResponse, error) {
	filter.NameStartsWith = strings.ToUpper(strings.TrimSpace(filter.NameStartsWith))
	filter.ParentStoreID = strings.TrimSpace(filter.ParentStoreID)

	limit, offset := pageWindow(page, limit)
	records, total, err := s.repo.ListStores(ctx, filter, limit, offset)
	if err != nil {
		return domain.StoreListResponse{}, err
	}

	return domain.StoreListResponse{
		Records:   records,
		PageCount: pageCount(total, limit),
	}, nil
}

func normalizeProducts(products []domain.Product) ([]domain.Product, error) {
	normalized := make([]domain.Product, 0, len(products))
	seen := make(map[string]struct{}, len(products))
	for _, product := range products {
		size := strings.TrimSpace(product.Size)
		if size == "" {
			return nil, fmt.Errorf("%w: product size is required", store.ErrInvalidInput)
		}
		if product.Price.IsNegative() {
			return nil, fmt.Errorf("%w: product price must not be negative", store.ErrInvalidInput)
		}
		if _, dup := seen[size]; dup {
			return nil, fmt.Errorf("%w: duplicate product size %q", store.ErrInvalidInput, size)
		}
		seen[size] = struct{}{}
		normalized = append(normalized, domain.Product{Size: size, Price: product.Price})
	}
	return normalized, nil
}
