package services

import (
	"context"
	"log"

	"storefront_payments/internal/models"
)

// StockMovement is one applied inventory delta. Delta is what was actually
// applied after clamping, so reverting a movement is exact.
type StockMovement struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
}

// ProductRepository is the product store as the stock adjuster sees it.
type ProductRepository interface {
	AdjustStock(ctx context.Context, deltas []StockMovement) ([]StockMovement, error)
}

// ProductStore keeps the whole product collection in one JSON file.
type ProductStore struct {
	doc *jsonDocument[models.ProductCollection]
}

var _ ProductRepository = (*ProductStore)(nil)

func NewProductStore(path string) *ProductStore {
	return &ProductStore{doc: newJSONDocument[models.ProductCollection](path)}
}

// AdjustStock applies all deltas in one read-modify-write. Stock never goes
// below zero. Unknown products are skipped and logged.
func (s *ProductStore) AdjustStock(ctx context.Context, deltas []StockMovement) ([]StockMovement, error) {
	var applied []StockMovement
	err := s.doc.Update(ctx, func(coll *models.ProductCollection) error {
		applied = applied[:0]
		index := make(map[string]int, len(coll.Products))
		for i, p := range coll.Products {
			index[p.ID] = i
		}

		for _, d := range deltas {
			i, ok := index[d.ProductID]
			if !ok {
				log.Printf("[Stock] product %s not found, skipping delta %d", d.ProductID, d.Delta)
				continue
			}
			p := &coll.Products[i]
			next := p.Stock + d.Delta
			if next < 0 {
				next = 0
			}
			if next == p.Stock {
				continue
			}
			applied = append(applied, StockMovement{ProductID: p.ID, Delta: next - p.Stock})
			p.Stock = next
		}

		if len(applied) == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// Get returns one product, mostly for diagnostics and tests.
func (s *ProductStore) Get(ctx context.Context, id string) (*models.Product, bool, error) {
	coll, err := s.doc.Read(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range coll.Products {
		if coll.Products[i].ID == id {
			p := coll.Products[i]
			return &p, true, nil
		}
	}
	return nil, false, nil
}

// StockAdjuster turns order items into inventory movements.
type StockAdjuster struct {
	products ProductRepository
}

func NewStockAdjuster(products ProductRepository) *StockAdjuster {
	return &StockAdjuster{products: products}
}

// Reduce decrements stock for every item, clamped at zero.
func (a *StockAdjuster) Reduce(ctx context.Context, items []models.OrderItem) ([]StockMovement, error) {
	return a.products.AdjustStock(ctx, itemDeltas(items, -1))
}

// Restore puts every item back into stock.
func (a *StockAdjuster) Restore(ctx context.Context, items []models.OrderItem) ([]StockMovement, error) {
	return a.products.AdjustStock(ctx, itemDeltas(items, 1))
}

// Revert undoes previously applied movements.
func (a *StockAdjuster) Revert(ctx context.Context, movements []StockMovement) error {
	reverse := make([]StockMovement, 0, len(movements))
	for _, m := range movements {
		reverse = append(reverse, StockMovement{ProductID: m.ProductID, Delta: -m.Delta})
	}
	_, err := a.products.AdjustStock(ctx, reverse)
	return err
}

func itemDeltas(items []models.OrderItem, sign int) []StockMovement {
	deltas := make([]StockMovement, 0, len(items))
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 {
			continue
		}
		deltas = append(deltas, StockMovement{ProductID: it.ProductID, Delta: sign * it.Quantity})
	}
	return deltas
}
