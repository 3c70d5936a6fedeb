package aggregate

import (
	"strings"

	"uptain-sync/internal/model"
	"uptain-sync/internal/serialize"
)

// VariantResolver extracts a variant map from one product shape.
// It returns an empty map when the shape is not present.
type VariantResolver func(p *model.Product) model.VariantMap

// DefaultVariantResolvers is the resolution order for variant maps.
// The first resolver returning a non-empty map wins.
var DefaultVariantResolvers = []VariantResolver{
	FromVariationProperties,
	FromPropertyGroups,
	FromProperties,
	FromAttributes,
	FromGroupedAttributes,
}

// ResolveVariants runs resolvers in order and returns the first non-empty result.
func ResolveVariants(p *model.Product, resolvers []VariantResolver) model.VariantMap {
	if p == nil {
		return nil
	}
	for _, resolve := range resolvers {
		if v := resolve(p); len(v) > 0 {
			return v
		}
	}
	return nil
}

// FromVariationProperties reads the explicit variation property groups.
func FromVariationProperties(p *model.Product) model.VariantMap {
	return fromGroups(p.VariationProperties)
}

// FromPropertyGroups reads derived property groups.
func FromPropertyGroups(p *model.Product) model.VariantMap {
	return fromGroups(p.PropertyGroups)
}

// FromProperties reads the flat property list.
func FromProperties(p *model.Product) model.VariantMap {
	var v model.VariantMap
	for _, prop := range p.Properties {
		addVariant(&v, prop.Name, prop.Value)
	}
	return v
}

// FromAttributes reads the selected variation attributes.
func FromAttributes(p *model.Product) model.VariantMap {
	var v model.VariantMap
	for _, a := range p.Attributes {
		addVariant(&v, a.Name, a.Value)
	}
	return v
}

// FromGroupedAttributes reads the selected value of each attribute group.
func FromGroupedAttributes(p *model.Product) model.VariantMap {
	var v model.VariantMap
	for _, g := range p.GroupedAttributes {
		for _, val := range g.Values {
			if val.Selected {
				addVariant(&v, g.Name, val.Name)
				break
			}
		}
	}
	return v
}

func fromGroups(groups []model.PropertyGroup) model.VariantMap {
	var v model.VariantMap
	for _, g := range groups {
		for _, prop := range g.Properties {
			addVariant(&v, prop.Name, prop.Value)
		}
	}
	return v
}

func addVariant(v *model.VariantMap, name, value string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	v.Set(name, strings.TrimSpace(value))
}

// encodeVariants renders a variant map in compact form, or "" when empty.
func encodeVariants(v model.VariantMap) string {
	if len(v) == 0 {
		return ""
	}
	m := make(serialize.Map, 0, len(v))
	for _, p := range v {
		m = append(m, serialize.Field{Key: p.Name, Value: p.Value})
	}
	return serialize.EncodeCompact(m)
}
