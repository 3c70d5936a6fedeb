package model

import (
	"bytes"
	"encoding/json"
)

// Snapshot keys. Each key becomes a data-<key> attribute on the tracker script.
const (
	KeyPlugin    = "plugin"
	KeyReturnURL = "returnurl"
	KeyPage      = "page"
	KeyWishlist  = "wishlist"

	KeyCartValue     = "scv"
	KeyCurrency      = "currency"
	KeyTaxAmount     = "tax-amount"
	KeyShippingCosts = "shipping-costs"
	KeyPaymentCosts  = "payment-costs"
	KeyPostalCode    = "postal-code"
	KeyProducts      = "products"
	KeyShipping      = "shipping"
	KeyPayment       = "payment"
	KeyUsedVoucher   = "usedvoucher"
	KeyVoucherAmount = "voucher-amount"
	KeyVoucherType   = "voucher-type"

	KeyProductID            = "product-id"
	KeyProductName          = "product-name"
	KeyProductPrice         = "product-price"
	KeyProductOriginalPrice = "product-original-price"
	KeyProductImage         = "product-image"
	KeyProductTags          = "product-tags"
	KeyProductVariants      = "product-variants"
	KeyProductCategory      = "product-category"
	KeyProductCategoryPaths = "product-category-paths"

	KeyCategory         = "category"
	KeyCategoryID       = "category-id"
	KeyCategoryPath     = "category-path"
	KeyCategoryProducts = "category-products"

	KeySearchTerm     = "search-term"
	KeySearchProducts = "search-products"
	KeySearchSorting  = "search-sorting"

	KeySuccess     = "success"
	KeyOrderNumber = "ordernumber"

	KeyEmail         = "email"
	KeyFirstName     = "firstname"
	KeyLastName      = "lastname"
	KeyGender        = "gender"
	KeyTitle         = "title"
	KeyUserID        = "uid"
	KeyRevenue       = "revenue"
	KeyCustomerGroup = "customergroup"
)

// ProductKeyPrefix marks the attributes owned by the product section.
const ProductKeyPrefix = "product-"

// AlwaysPresent reports whether key is written to the script even when empty.
func AlwaysPresent(key string) bool {
	switch key {
	case KeyPage, KeyReturnURL, KeyPlugin, KeyWishlist:
		return true
	default:
		return false
	}
}

// Snapshot is an insertion-ordered key→string map describing the tracking state.
// Setting an existing key keeps its original position.
type Snapshot struct {
	keys   []string
	values map[string]string
}

// NewSnapshot creates an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{values: make(map[string]string)}
}

// Set stores value under key.
func (s *Snapshot) Set(key, value string) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Merge copies all fields of a section into the snapshot, in section order.
func (s *Snapshot) Merge(section []Field) {
	for _, f := range section {
		s.Set(f.Key, f.Value)
	}
}

// Get returns the value for key.
func (s *Snapshot) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Fields returns the entries in insertion order.
func (s *Snapshot) Fields() []Field {
	if s == nil {
		return nil
	}
	out := make([]Field, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, Field{Key: k, Value: s.values[k]})
	}
	return out
}

// Map returns a copy of the entries as a plain map.
func (s *Snapshot) Map() map[string]string {
	if s == nil {
		return nil
	}
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// MarshalJSON renders the snapshot as a JSON object in insertion order.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Field is one key/value entry of a snapshot section.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
