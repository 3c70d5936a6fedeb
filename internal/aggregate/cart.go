package aggregate

import (
	"math"
	"strconv"
	"strings"

	"uptain-sync/internal/model"
	"uptain-sync/internal/serialize"
)

// DefaultCurrency is reported when the cart carries none.
const DefaultCurrency = "EUR"

// VoucherTypeMonetary is the only voucher type the storefront exposes.
const VoucherTypeMonetary = "monetary"

func (b *Builder) cartSection(s *State) []model.Field {
	cart := s.Cart
	if !cart.HasItems() {
		return nil
	}

	currency := cart.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	voucherType := ""
	if cart.CouponDiscount != 0 {
		voucherType = VoucherTypeMonetary
	}

	return []model.Field{
		{Key: model.KeyCartValue, Value: model.FormatPrice(cart.ItemSumNet)},
		{Key: model.KeyCurrency, Value: currency},
		{Key: model.KeyTaxAmount, Value: model.FormatCents(taxCents(cart))},
		{Key: model.KeyShippingCosts, Value: model.FormatPrice(cart.ShippingAmountNet)},
		{Key: model.KeyPaymentCosts, Value: model.FormatCents(paymentCostCents(cart))},
		{Key: model.KeyPostalCode, Value: postalCodes(s.Addresses)},
		{Key: model.KeyProducts, Value: serialize.EncodeCompact(b.cartProducts(cart))},
		{Key: model.KeyShipping, Value: shippingName(s.ShippingMethods, cart.ShippingProfileID)},
		{Key: model.KeyPayment, Value: paymentName(s.PaymentMethods, cart.MethodOfPaymentID)},
		{Key: model.KeyUsedVoucher, Value: cart.CouponCode},
		{Key: model.KeyVoucherAmount, Value: model.FormatPrice(math.Abs(cart.CouponDiscount))},
		{Key: model.KeyVoucherType, Value: voucherType},
	}
}

// taxCents sums the tax of every VAT bucket.
func taxCents(cart *model.Cart) int64 {
	var total int64
	for _, vat := range cart.TotalVATs {
		total += model.ToCents(vat.Value)
	}
	return total
}

// paymentCostCents estimates payment surcharges from priced order properties.
// The storefront exposes no payment fee, so this is best effort only.
func paymentCostCents(cart *model.Cart) int64 {
	var total int64
	for _, item := range cart.Items {
		for _, prop := range item.OrderProperties {
			if cents := model.ToCents(prop.Price); cents > 0 {
				total += cents
			}
		}
	}
	return total
}

// postalCodes joins the shipping and billing postal codes, deduplicated.
func postalCodes(a model.Addresses) string {
	var codes []string
	for _, addr := range []*model.Address{a.Shipping, a.Billing} {
		if addr == nil {
			continue
		}
		code := strings.TrimSpace(addr.PostalCode)
		if code == "" || contains(codes, code) {
			continue
		}
		codes = append(codes, code)
	}
	return strings.Join(codes, ";")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func shippingName(methods []model.ShippingMethod, id int) string {
	for _, m := range methods {
		if m.ID == id {
			return m.Name
		}
	}
	return ""
}

func paymentName(methods []model.PaymentMethod, id int) string {
	for _, m := range methods {
		if m.ID == id {
			return m.Name
		}
	}
	return ""
}

// cartProducts builds the id → {amount, name, variants} map of the cart lines.
func (b *Builder) cartProducts(cart *model.Cart) serialize.Map {
	m := make(serialize.Map, 0, len(cart.Items))
	for _, item := range cart.Items {
		id := item.VariationID
		name := ""
		if item.Variation != nil {
			if id == 0 {
				id = item.Variation.ID
			}
			name = item.Variation.Name
		}
		if id == 0 {
			continue
		}
		variants := ResolveVariants(item.Variation, b.resolvers)
		m = append(m, serialize.Field{
			Key:   strconv.Itoa(id),
			Value: serialize.ProductEntry(item.Quantity, name, variants),
		})
	}
	return m
}
