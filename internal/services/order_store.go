package services

import (
	"context"
	"errors"
	"fmt"

	"storefront_payments/internal/models"
)

// ErrOrderNotFound is returned when no order has the requested id.
var ErrOrderNotFound = errors.New("order not found")

// OrderRepository is the order store as the reconciler sees it.
type OrderRepository interface {
	FindByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, match func(models.Order) bool) ([]models.Order, error)
	UpdateOrder(ctx context.Context, id string, fn func(o *models.Order) error) error
}

// OrderStore keeps the whole order collection in one JSON file.
type OrderStore struct {
	doc *jsonDocument[models.OrderCollection]
}

var _ OrderRepository = (*OrderStore)(nil)

func NewOrderStore(path string) *OrderStore {
	return &OrderStore{doc: newJSONDocument[models.OrderCollection](path)}
}

// FindByID returns a copy of the order. Payments carry the order id as their
// external reference, so this is also the external-reference lookup.
func (s *OrderStore) FindByID(ctx context.Context, id string) (*models.Order, error) {
	coll, err := s.doc.Read(ctx)
	if err != nil {
		return nil, err
	}
	for i := range coll.Orders {
		if coll.Orders[i].ID == id {
			o := coll.Orders[i]
			return &o, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
}

// List returns every order match accepts.
func (s *OrderStore) List(ctx context.Context, match func(models.Order) bool) ([]models.Order, error) {
	coll, err := s.doc.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Order, 0)
	for _, o := range coll.Orders {
		if match == nil || match(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

// UpdateOrder applies fn to one order inside a read-modify-write of the whole
// collection. fn may return errNoChange to skip the write.
func (s *OrderStore) UpdateOrder(ctx context.Context, id string, fn func(o *models.Order) error) error {
	return s.doc.Update(ctx, func(coll *models.OrderCollection) error {
		for i := range coll.Orders {
			if coll.Orders[i].ID == id {
				return fn(&coll.Orders[i])
			}
		}
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	})
}
