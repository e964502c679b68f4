package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/emart-orders/internal/domain/account"
	"github.com/xenking/emart-orders/internal/domain/assignment"
	"github.com/xenking/emart-orders/internal/domain/coupon"
	"github.com/xenking/emart-orders/internal/domain/order"
	"github.com/xenking/emart-orders/internal/domain/payment"
	"github.com/xenking/emart-orders/internal/domain/product"
)

type addressDTO struct {
	City                 string `json:"city"`
	ZipCode              string `json:"zip_code"`
	StreetOrBuildingName string `json:"street_or_building_name"`
	Area                 string `json:"area"`
}

func toAddressDTO(a order.ShippingAddress) addressDTO {
	return addressDTO(a)
}

type userDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type itemDTO struct {
	Product   string  `json:"product"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Color     string  `json:"color,omitempty"`
	Type      string  `json:"type,omitempty"`
}

type orderDTO struct {
	ID              string     `json:"id"`
	User            userDTO    `json:"user"`
	Shop            string     `json:"shop"`
	Products        []itemDTO  `json:"products"`
	Coupon          *string    `json:"coupon"`
	TotalAmount     float64    `json:"totalAmount"`
	Discount        float64    `json:"discount"`
	DeliveryCharge  float64    `json:"deliveryCharge"`
	FinalAmount     float64    `json:"finalAmount"`
	Status          string     `json:"status"`
	ShippingAddress addressDTO `json:"shippingAddress"`
	PaymentMethod   string     `json:"paymentMethod"`
	PaymentStatus   string     `json:"paymentStatus"`
	Assigned        *string    `json:"assigned"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toOrderDTO(o *order.Order) orderDTO {
	items := make([]itemDTO, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemDTO{
			Product:   it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			Color:     it.Color,
			Type:      it.Type,
		}
	}
	return orderDTO{
		ID:              o.ID,
		User:            userDTO{ID: o.UserID},
		Shop:            o.ShopID,
		Products:        items,
		Coupon:          optional(o.CouponID),
		TotalAmount:     o.TotalAmount.InexactFloat64(),
		Discount:        o.Discount.InexactFloat64(),
		DeliveryCharge:  o.DeliveryCharge.InexactFloat64(),
		FinalAmount:     o.FinalAmount.InexactFloat64(),
		Status:          string(o.Status),
		ShippingAddress: toAddressDTO(o.ShippingAddress),
		PaymentMethod:   string(o.PaymentMethod),
		PaymentStatus:   string(o.PaymentStatus),
		Assigned:        optional(o.AssignmentID),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toSummaryDTOs(items []order.Summary) []orderDTO {
	out := make([]orderDTO, len(items))
	for i := range items {
		dto := toOrderDTO(&items[i].Order)
		dto.User.Name = items[i].CustomerName
		dto.User.Email = items[i].CustomerEmail
		out[i] = dto
	}
	return out
}

type paymentDTO struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transactionId"`
	Method        string    `json:"method"`
	Amount        float64   `json:"amount"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toPaymentDTO(p *payment.Payment) *paymentDTO {
	if p == nil {
		return nil
	}
	return &paymentDTO{
		ID:            p.ID,
		TransactionID: p.TransactionID,
		Method:        string(p.Method),
		Amount:        p.Amount.InexactFloat64(),
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt,
	}
}

type placedOrderDTO struct {
	Order      orderDTO    `json:"order"`
	Payment    *paymentDTO `json:"payment"`
	PaymentURL string      `json:"paymentUrl,omitempty"`
}

type productDTO struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Price           float64  `json:"price"`
	OfferPrice      *float64 `json:"offerPrice"`
	AvailableColors []string `json:"availableColors"`
}

func toProductDTO(p product.Product) productDTO {
	dto := productDTO{
		ID:              p.ID,
		Name:            p.Name,
		Price:           p.Price.InexactFloat64(),
		AvailableColors: p.AvailableColors,
	}
	if p.OfferPrice.Valid {
		v := p.OfferPrice.Decimal.InexactFloat64()
		dto.OfferPrice = &v
	}
	if dto.AvailableColors == nil {
		dto.AvailableColors = []string{}
	}
	return dto
}

type detailItemDTO struct {
	Product   *productDTO `json:"product"`
	ProductID string      `json:"productId"`
	Quantity  int         `json:"quantity"`
	UnitPrice float64     `json:"unitPrice"`
	Color     string      `json:"color,omitempty"`
	Type      string      `json:"type,omitempty"`
}

type couponDTO struct {
	ID             string   `json:"id"`
	Code           string   `json:"code"`
	DiscountType   string   `json:"discountType"`
	DiscountValue  float64  `json:"discountValue"`
	MaxDiscount    *float64 `json:"maxDiscountAmount"`
	MinOrderAmount float64  `json:"minOrderAmount"`
	StartDate      string   `json:"startDate"`
	EndDate        string   `json:"endDate"`
}

func toCouponDTO(c *coupon.Rule) *couponDTO {
	if c == nil {
		return nil
	}
	dto := &couponDTO{
		ID:             c.ID,
		Code:           c.Code,
		DiscountType:   string(c.DiscountType),
		DiscountValue:  c.Value.InexactFloat64(),
		MinOrderAmount: c.MinOrderAmount.InexactFloat64(),
		StartDate:      c.StartDate.Format(time.RFC3339),
		EndDate:        c.EndDate.Format(time.RFC3339),
	}
	if c.MaxDiscount.Valid {
		v := c.MaxDiscount.Decimal.InexactFloat64()
		dto.MaxDiscount = &v
	}
	return dto
}

// detailsDTO shadows the id-only products, user and coupon fields of
// orderDTO with resolved records.
type detailsDTO struct {
	orderDTO
	User     userDTO         `json:"user"`
	Products []detailItemDTO `json:"products"`
	Coupon   *couponDTO      `json:"coupon"`
	Payment  *paymentDTO     `json:"payment"`
}

func toDetailsDTO(d *order.Details) detailsDTO {
	byID := make(map[string]product.Product, len(d.Products))
	for _, p := range d.Products {
		byID[p.ID] = p
	}

	items := make([]detailItemDTO, len(d.Order.Items))
	for i, it := range d.Order.Items {
		item := detailItemDTO{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			Color:     it.Color,
			Type:      it.Type,
		}
		if p, ok := byID[it.ProductID]; ok {
			dto := toProductDTO(p)
			item.Product = &dto
		}
		items[i] = item
	}

	return detailsDTO{
		orderDTO: toOrderDTO(d.Order),
		User:     toUserDTO(d.Order.UserID, d.Customer),
		Products: items,
		Coupon:   toCouponDTO(d.Coupon),
		Payment:  toPaymentDTO(d.Payment),
	}
}

func toUserDTO(id string, u *account.User) userDTO {
	if u == nil {
		return userDTO{ID: id}
	}
	return userDTO{ID: u.ID, Name: u.Name, Email: u.Email}
}

type assignmentDTO struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"orderId"`
	AgentID     string     `json:"agentId"`
	Destination addressDTO `json:"destination"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func toAssignmentDTO(a *assignment.Assignment) assignmentDTO {
	return assignmentDTO{
		ID:          a.ID,
		OrderID:     a.OrderID,
		AgentID:     a.AgentID,
		Destination: toAddressDTO(a.Destination),
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// createOrderRequest is the POST /orders body.
type createOrderRequest struct {
	Products []struct {
		Product  string `json:"product"`
		Quantity int    `json:"quantity"`
		Color    string `json:"color"`
		Type     string `json:"type"`
	} `json:"products"`
	Coupon          *string    `json:"coupon"`
	ShippingAddress addressDTO `json:"shippingAddress"`
	PaymentMethod   string     `json:"paymentMethod"`
}

func (req createOrderRequest) toDomain() order.PlaceOrderRequest {
	items := make([]order.LineItem, len(req.Products))
	for i, p := range req.Products {
		items[i] = order.LineItem{
			ProductID: p.Product,
			Quantity:  p.Quantity,
			UnitPrice: decimal.Zero,
			Color:     p.Color,
			Type:      p.Type,
		}
	}
	out := order.PlaceOrderRequest{
		Items:           items,
		ShippingAddress: order.ShippingAddress(req.ShippingAddress),
		PaymentMethod:   payment.Method(req.PaymentMethod),
	}
	if req.Coupon != nil {
		out.CouponCode = *req.Coupon
	}
	return out
}
