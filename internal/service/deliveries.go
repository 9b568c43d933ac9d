package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"hatid/backend/internal/domain"
	"hatid/backend/internal/store"
	"hatid/backend/internal/xid"
)

func (s *Service) CreateDelivery(ctx context.Context, req domain.DeliveryCreateRequest) (domain.Delivery, error) {
	storeID := strings.TrimSpace(req.StoreID)
	deliveryNumber := strings.TrimSpace(req.DeliveryNumber)
	if storeID == "" || deliveryNumber == "" {
		return domain.Delivery{}, store.ErrInvalidInput
	}
	postingDate, err := parseDate(req.PostingDate)
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("%w: invalid posting date", store.ErrInvalidInput)
	}
	if req.BadOrder.IsNegative() || req.WithholdingTax.IsNegative() || req.OtherDeduction.IsNegative() {
		return domain.Delivery{}, fmt.Errorf("%w: deductions must not be negative", store.ErrInvalidInput)
	}
	if len(req.Orders) == 0 {
		return domain.Delivery{}, fmt.Errorf("%w: at least one order line is required", store.ErrInvalidInput)
	}

	vendor, err := s.repo.GetStoreByID(ctx, storeID)
	if err != nil {
		return domain.Delivery{}, err
	}
	priceBySize := make(map[string]decimal.Decimal, len(vendor.Products))
	for _, product := range vendor.Products {
		priceBySize[product.Size] = product.Price
	}

	// Order lines snapshot the current price list. A size with no matching
	// product contributes zero rather than failing the delivery.
	gross := decimal.Zero
	orders := make([]domain.OrderLine, 0, len(req.Orders))
	for _, line := range req.Orders {
		size := strings.TrimSpace(line.Size)
		if size == "" || line.Qty < 1 {
			return domain.Delivery{}, fmt.Errorf("%w: order lines need a size and a positive quantity", store.ErrInvalidInput)
		}
		price := priceBySize[size]
		gross = gross.Add(price.Mul(decimal.NewFromInt(int64(line.Qty))))
		orders = append(orders, domain.OrderLine{Size: size, Qty: line.Qty, Price: price})
	}

	returnSlip := make([]domain.ReturnLine, 0, len(req.ReturnSlip))
	for _, line := range req.ReturnSlip {
		size := strings.TrimSpace(line.Size)
		if size == "" || line.Qty < 1 {
			return domain.Delivery{}, fmt.Errorf("%w: return lines need a size and a positive quantity", store.ErrInvalidInput)
		}
		returnSlip = append(returnSlip, domain.ReturnLine{Size: size, Qty: line.Qty, Price: priceBySize[size]})
	}

	amount := gross.Sub(req.BadOrder).Sub(req.WithholdingTax).Sub(req.OtherDeduction)

	delivery := domain.Delivery{
		ID:             xid.New("dlv"),
		StoreID:        storeID,
		DeliveryNumber: deliveryNumber,
		PostingDate:    postingDate,
		Amount:         amount,
		BadOrder:       req.BadOrder,
		WithholdingTax: req.WithholdingTax,
		OtherDeduction: req.OtherDeduction,
		Orders:         orders,
		ReturnSlip:     returnSlip,
		AmountPaid:     decimal.Zero,
		CheckNumber:    strings.TrimSpace(req.CheckNumber),
	}
	if strings.TrimSpace(req.CheckDate) != "" {
		checkDate, err := parseDate(req.CheckDate)
		if err != nil {
			return domain.Delivery{}, fmt.Errorf("%w: invalid check date", store.ErrInvalidInput)
		}
		delivery.CheckDate = &checkDate
	}

	created, err := s.repo.CreateDelivery(ctx, delivery)
	if err != nil {
		return domain.Delivery{}, err
	}
	return *created, nil
}

func (s *Service) GetDelivery(ctx context.Context, id string) (domain.Delivery, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Delivery{}, store.ErrInvalidInput
	}
	found, err := s.repo.GetDeliveryByID(ctx, id)
	if err != nil {
		return domain.Delivery{}, err
	}
	return *found, nil
}

func (s *Service) UpdateDelivery(ctx context.Context, id string, req domain.DeliveryUpdateRequest) (domain.Delivery, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Delivery{}, store.ErrInvalidInput
	}

	var upd domain.DeliveryUpdate
	if req.PostingDate != nil {
		postingDate, err := parseDate(*req.PostingDate)
		if err != nil {
			return domain.Delivery{}, fmt.Errorf("%w: invalid posting date", store.ErrInvalidInput)
		}
		upd.PostingDate = &postingDate
	}
	if req.BadOrder != nil {
		if req.BadOrder.IsNegative() {
			return domain.Delivery{}, store.ErrInvalidInput
		}
		upd.BadOrder = req.BadOrder
	}
	if req.WithholdingTax != nil {
		if req.WithholdingTax.IsNegative() {
			return domain.Delivery{}, store.ErrInvalidInput
		}
		upd.WithholdingTax = req.WithholdingTax
	}
	if req.OtherDeduction != nil {
		if req.OtherDeduction.IsNegative() {
			return domain.Delivery{}, store.ErrInvalidInput
		}
		upd.OtherDeduction = req.OtherDeduction
	}
	if req.AmountPaid != nil {
		if req.AmountPaid.IsNegative() {
			return domain.Delivery{}, store.ErrInvalidInput
		}
		upd.AmountPaid = req.AmountPaid
	}
	if req.CheckNumber != nil {
		checkNumber := strings.TrimSpace(*req.CheckNumber)
		upd.CheckNumber = &checkNumber
	}
	if req.CheckDate != nil {
		checkDate, err := parseDate(*req.CheckDate)
		if err != nil {
			return domain.Delivery{}, fmt.Errorf("%w: invalid check date", store.ErrInvalidInput)
		}
		upd.CheckDate = &checkDate
	}

	saved, err := s.repo.UpdateDelivery(ctx, id, upd)
	if err != nil {
		return domain.Delivery{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteDelivery(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}
	return s.repo.DeleteDelivery(ctx, id)
}

// FindDeliveriesByStore returns the store's deliveries that are not yet
// attached to any payment, in posting-date order.
func (s *Service) FindDeliveriesByStore(ctx context.Context, storeID string) (domain.DeliveryListResponse, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return domain.DeliveryListResponse{}, store.ErrInvalidInput
	}
	if _, err := s.repo.GetStoreByID(ctx, storeID); err != nil {
		return domain.DeliveryListResponse{}, err
	}
	records, err := s.repo.ListUnpaidDeliveriesByStore(ctx, storeID)
	if err != nil {
		return domain.DeliveryListResponse{}, err
	}
	return domain.DeliveryListResponse{Records: records}, nil
}

func (s *Service) FindDeliveriesByPayment(ctx context.Context, paymentID string) (domain.DeliveryListResponse, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return domain.DeliveryListResponse{}, store.ErrInvalidInput
	}
	records, err := s.repo.ListDeliveriesByPayment(ctx, paymentID)
	if err != nil {
		return domain.DeliveryListResponse{}, err
	}
	return domain.DeliveryListResponse{Records: records}, nil
}
