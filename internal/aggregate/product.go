package aggregate

import (
	"strconv"
	"strings"

	"uptain-sync/internal/model"
	"uptain-sync/internal/serialize"
)

// ProductKeys are the product attributes that must be non-empty before late
// product data counts as arrived.
var ProductKeys = []string{model.KeyProductID, model.KeyProductName, model.KeyProductPrice}

func (b *Builder) productSection(s *State, page PageType) []model.Field {
	if page != PageProduct {
		return nil
	}
	p := s.CurrentProduct()
	if p == nil {
		return nil
	}
	return b.ProductFields(p)
}

// ProductFields renders the product attributes of p. product-variants is
// always included, empty when no variant source yields anything.
func (b *Builder) ProductFields(p *model.Product) []model.Field {
	var price, original float64
	if p.Prices != nil {
		price = p.Prices.Net
		original = price
		if p.Prices.OriginalNet != nil && *p.Prices.OriginalNet > 0 {
			original = *p.Prices.OriginalNet
		}
	}

	id := ""
	if p.ID != 0 {
		id = strconv.Itoa(p.ID)
	}

	category := ""
	if len(p.CategoryNames) > 0 {
		category = p.CategoryNames[0]
	}

	return []model.Field{
		{Key: model.KeyProductID, Value: id},
		{Key: model.KeyProductName, Value: strings.TrimSpace(p.Name)},
		{Key: model.KeyProductPrice, Value: model.FormatPrice(price)},
		{Key: model.KeyProductOriginalPrice, Value: model.FormatPrice(original)},
		{Key: model.KeyProductImage, Value: p.CoverImage},
		{Key: model.KeyProductTags, Value: tagNames(p.Tags)},
		{Key: model.KeyProductVariants, Value: encodeVariants(ResolveVariants(p, b.resolvers))},
		{Key: model.KeyProductCategory, Value: category},
		{Key: model.KeyProductCategoryPaths, Value: strings.Join(p.CategoryNames, "/")},
	}
}

func tagNames(tags []model.Tag) string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		if n := strings.TrimSpace(t.Name); n != "" {
			names = append(names, n)
		}
	}
	return strings.Join(names, ";")
}

// productList builds the id → {amount: 1, name, variants} map used for
// category and search listings.
func (b *Builder) productList(items []model.Product) serialize.Map {
	m := make(serialize.Map, 0, len(items))
	for i := range items {
		p := &items[i]
		if p.ID == 0 {
			continue
		}
		m = append(m, serialize.Field{
			Key:   strconv.Itoa(p.ID),
			Value: serialize.ProductEntry(1, p.Name, ResolveVariants(p, b.resolvers)),
		})
	}
	return m
}
