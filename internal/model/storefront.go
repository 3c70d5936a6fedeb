// Package model defines storefront state types, the tracking snapshot, and shared money and error helpers.
package model

import "strings"

// === Storefront State Types ===
// These mirror the already-materialized storefront state the tracking core consumes.
// JSON tags follow the storefront REST payloads so the preview API can accept them verbatim.

// Cart is the current basket.
type Cart struct {
	ID                int        `json:"id"`
	Currency          string     `json:"currency"`
	Items             []CartItem `json:"basketItems"`
	ItemSumNet        float64    `json:"itemSumNet"`
	ShippingAmountNet float64    `json:"shippingAmountNet"`
	TotalVATs         []VAT      `json:"totalVats"`
	CouponCode        string     `json:"couponCode"`
	CouponDiscount    float64    `json:"couponDiscount"`
	ShippingProfileID int        `json:"shippingProfileId"`
	MethodOfPaymentID int        `json:"methodOfPaymentId"`
}

// HasItems reports whether the cart contains at least one line item.
func (c *Cart) HasItems() bool {
	return c != nil && len(c.Items) > 0
}

// VAT is one tax bucket of the cart totals.
type VAT struct {
	Rate  float64 `json:"vatValue"`
	Value float64 `json:"vatAmount"`
}

// CartItem is a single basket line.
type CartItem struct {
	ID              int             `json:"id"`
	Quantity        int             `json:"quantity"`
	VariationID     int             `json:"variationId"`
	Variation       *Product        `json:"variation,omitempty"`
	OrderProperties []OrderProperty `json:"basketItemOrderParams,omitempty"`
}

// OrderProperty is an order-level property attached to a line item.
// Properties with a surcharge carry a price.
type OrderProperty struct {
	PropertyID int     `json:"propertyId"`
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Price      float64 `json:"price"`
}

// Address is a postal address from the address store.
type Address struct {
	ID         int    `json:"id"`
	FirstName  string `json:"name2"`
	LastName   string `json:"name3"`
	Street     string `json:"address1"`
	PostalCode string `json:"postalCode"`
	Town       string `json:"town"`
	CountryID  int    `json:"countryId"`
}

// Addresses groups the currently selected shipping and billing addresses.
type Addresses struct {
	Shipping *Address `json:"shipping,omitempty"`
	Billing  *Address `json:"billing,omitempty"`
}

// ShippingMethod is an entry of the shipping profile list.
type ShippingMethod struct {
	ID   int    `json:"parcelServicePresetId"`
	Name string `json:"parcelServicePresetName"`
}

// PaymentMethod is an entry of the payment method list.
type PaymentMethod struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Product is a storefront item. Different endpoints populate different
// subsets of the variant-describing fields; see VariantMap resolution.
type Product struct {
	ID                  int              `json:"id"`
	Name                string           `json:"name"`
	Prices              *Prices          `json:"prices,omitempty"`
	CoverImage          string           `json:"coverImage,omitempty"`
	Tags                []Tag            `json:"tags,omitempty"`
	CategoryIDs         []int            `json:"categoryIds,omitempty"`
	CategoryNames       []string         `json:"categoryNames,omitempty"`
	VariationProperties []PropertyGroup  `json:"variationProperties,omitempty"`
	PropertyGroups      []PropertyGroup  `json:"propertyGroups,omitempty"`
	Properties          []Property       `json:"properties,omitempty"`
	Attributes          []Attribute      `json:"attributes,omitempty"`
	GroupedAttributes   []AttributeGroup `json:"groupedAttributes,omitempty"`
}

// IsEmpty reports whether p carries no usable product data. A zero-value
// product is treated the same as no product at all.
func (p *Product) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.ID == 0 && strings.TrimSpace(p.Name) == "" && p.Prices == nil &&
		len(p.VariationProperties) == 0 && len(p.PropertyGroups) == 0 &&
		len(p.Properties) == 0 && len(p.Attributes) == 0 && len(p.GroupedAttributes) == 0
}

// Prices holds net prices of a product.
type Prices struct {
	Net         float64  `json:"net"`
	OriginalNet *float64 `json:"originalNet,omitempty"`
}

// Tag is a product tag.
type Tag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// PropertyGroup groups properties (explicit variation properties or derived groups).
type PropertyGroup struct {
	Name       string     `json:"name"`
	Properties []Property `json:"properties"`
}

// Property is a named property value.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attribute is a selected variation attribute.
type Attribute struct {
	Name  string `json:"attributeName"`
	Value string `json:"valueName"`
}

// AttributeGroup is an attribute with its selectable values; Selected marks the active value.
type AttributeGroup struct {
	Name   string           `json:"name"`
	Values []AttributeValue `json:"values"`
}

// AttributeValue is one option of an AttributeGroup.
type AttributeValue struct {
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

// Category is a node of the category tree.
type Category struct {
	ID       int        `json:"id"`
	Name     string     `json:"name"`
	URL      string     `json:"url,omitempty"`
	Children []Category `json:"children,omitempty"`
}

// CategoryState is the current catalog view.
type CategoryState struct {
	Current     *Category  `json:"current,omitempty"`
	Breadcrumbs []Category `json:"breadcrumbs,omitempty"`
	Items       []Product  `json:"items,omitempty"`
}

// SearchState holds the current search results.
type SearchState struct {
	Term    string    `json:"term"`
	Sorting string    `json:"sorting"`
	Items   []Product `json:"items,omitempty"`
}

// User is the logged-in customer.
type User struct {
	ID                   int    `json:"id"`
	Email                string `json:"email"`
	FirstName            string `json:"firstName"`
	LastName             string `json:"lastName"`
	Gender               string `json:"gender"`
	Title                string `json:"title"`
	CustomerGroupName    string `json:"customerGroupName"`
	NewsletterSubscribed *bool  `json:"newsletterSubscribed,omitempty"`
	OrderCount           *int   `json:"orderCount,omitempty"`
}

// WishlistItem is a resolved wishlist entry.
type WishlistItem struct {
	VariationID int      `json:"variationId"`
	Quantity    int      `json:"quantity"`
	Variation   *Product `json:"variation,omitempty"`
}

// Order is a historical order in the customer's order list.
type Order struct {
	ID         int     `json:"id"`
	ItemSumNet float64 `json:"itemSumNet"`
}

// OrdersPage is one page of the paginated order list.
type OrdersPage struct {
	Page           int     `json:"page"`
	LastPageNumber int     `json:"lastPageNumber"`
	IsLastPage     bool    `json:"isLastPage"`
	Entries        []Order `json:"entries"`
}

// VariantMap is an insertion-ordered property-name→value map describing the
// selected variant of a product.
type VariantMap []Property

// Set stores value under name, keeping the position of an existing name.
func (v *VariantMap) Set(name, value string) {
	for i := range *v {
		if (*v)[i].Name == name {
			(*v)[i].Value = value
			return
		}
	}
	*v = append(*v, Property{Name: name, Value: value})
}
