// Package aggregate derives the tracking snapshot from storefront state.
//
// Section builders run in a fixed order and each returns nil when it does not
// apply to the current page; nil sections are omitted from the snapshot.
package aggregate

import "uptain-sync/internal/model"

// State is the already-materialized storefront state a snapshot is built from.
type State struct {
	Path        string            `json:"path"`
	Locale      string            `json:"locale,omitempty"`
	Query       map[string]string `json:"query,omitempty"`
	RouteParams map[string]string `json:"params,omitempty"`
	Meta        PageMeta          `json:"meta"`

	Cart            *model.Cart            `json:"cart,omitempty"`
	Addresses       model.Addresses        `json:"addresses"`
	ShippingMethods []model.ShippingMethod `json:"shippingMethods,omitempty"`
	PaymentMethods  []model.PaymentMethod  `json:"paymentMethods,omitempty"`

	// Product is the product of the current page. LoadedProduct is the last
	// product announced by a product-loaded event; it is used when Product
	// has not been populated yet.
	Product       *model.Product `json:"product,omitempty"`
	LoadedProduct *model.Product `json:"loadedProduct,omitempty"`

	Category     model.CategoryState `json:"category"`
	CategoryTree []model.Category    `json:"categoryTree,omitempty"`
	Search       model.SearchState   `json:"search"`

	User          *model.User `json:"user,omitempty"`
	Authenticated bool        `json:"authenticated"`

	Wishlist    []model.WishlistItem `json:"wishlist,omitempty"`
	WishlistIDs []int                `json:"wishlistIds,omitempty"`
}

// PageMeta is route metadata set by the storefront's page definitions.
type PageMeta struct {
	Type       string `json:"type,omitempty"`
	CategoryID int    `json:"categoryId,omitempty"`
}

// Clone returns a copy of s whose maps and slices can be modified without
// affecting s. Nested storefront values are shared.
func (s State) Clone() State {
	out := s
	out.Query = cloneMap(s.Query)
	out.RouteParams = cloneMap(s.RouteParams)
	out.ShippingMethods = append([]model.ShippingMethod(nil), s.ShippingMethods...)
	out.PaymentMethods = append([]model.PaymentMethod(nil), s.PaymentMethods...)
	out.CategoryTree = append([]model.Category(nil), s.CategoryTree...)
	out.Wishlist = append([]model.WishlistItem(nil), s.Wishlist...)
	out.WishlistIDs = append([]int(nil), s.WishlistIDs...)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CurrentProduct returns the first non-empty product source, or nil.
// An empty product object counts as no product.
func (s *State) CurrentProduct() *model.Product {
	for _, p := range []*model.Product{s.Product, s.LoadedProduct} {
		if !p.IsEmpty() {
			return p
		}
	}
	return nil
}

// SearchTerm returns the active search query.
func (s *State) SearchTerm() string {
	if s.Search.Term != "" {
		return s.Search.Term
	}
	for _, key := range []string{"term", "q"} {
		if v := s.Query[key]; v != "" {
			return v
		}
	}
	return ""
}
