package shopapi

import "uptain-sync/internal/model"

// ordersResponse is the paginated order list payload.
type ordersResponse struct {
	Page           int          `json:"page"`
	LastPageNumber int          `json:"lastPageNumber"`
	IsLastPage     bool         `json:"isLastPage"`
	Entries        []orderEntry `json:"entries"`
}

// orderEntry wraps an order. Some storefront versions nest the order under
// "order", others return it flat.
type orderEntry struct {
	ID         int          `json:"id"`
	ItemSumNet float64      `json:"itemSumNet"`
	Order      *orderTotals `json:"order,omitempty"`
	Totals     *orderTotals `json:"totals,omitempty"`
}

type orderTotals struct {
	ID         int     `json:"id"`
	ItemSumNet float64 `json:"itemSumNet"`
	NetTotal   float64 `json:"netTotal"`
}

func (t *orderTotals) sum() float64 {
	if t.ItemSumNet != 0 {
		return t.ItemSumNet
	}
	return t.NetTotal
}

func (e orderEntry) toModel() model.Order {
	o := model.Order{ID: e.ID, ItemSumNet: e.ItemSumNet}
	for _, t := range []*orderTotals{e.Order, e.Totals} {
		if t == nil {
			continue
		}
		if o.ID == 0 {
			o.ID = t.ID
		}
		if o.ItemSumNet == 0 {
			o.ItemSumNet = t.sum()
		}
	}
	return o
}

func (r *ordersResponse) toModel() *model.OrdersPage {
	page := &model.OrdersPage{
		Page:           r.Page,
		LastPageNumber: r.LastPageNumber,
		IsLastPage:     r.IsLastPage,
		Entries:        make([]model.Order, 0, len(r.Entries)),
	}
	for _, e := range r.Entries {
		page.Entries = append(page.Entries, e.toModel())
	}
	return page
}

// wishlistEntry is one wishlist row. The variation id is read from the row or
// from the embedded variation.
type wishlistEntry struct {
	VariationID int            `json:"variationId"`
	Quantity    int            `json:"quantity"`
	Variation   *model.Product `json:"variation,omitempty"`
	Data        *struct {
		Variation struct {
			ID int `json:"id"`
		} `json:"variation"`
		Texts struct {
			Name1 string `json:"name1"`
		} `json:"texts"`
	} `json:"data,omitempty"`
}

func (w wishlistEntry) toModel() model.WishlistItem {
	item := model.WishlistItem{VariationID: w.VariationID, Quantity: w.Quantity, Variation: w.Variation}
	if w.Data != nil {
		if item.VariationID == 0 {
			item.VariationID = w.Data.Variation.ID
		}
		if item.Variation == nil {
			item.Variation = &model.Product{ID: w.Data.Variation.ID, Name: w.Data.Texts.Name1}
		}
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	return item
}

// errorResponse is the storefront error payload.
type errorResponse struct {
	Message string `json:"message"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e errorResponse) message() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Error != nil {
		return e.Error.Message
	}
	return ""
}
