package aggregate

import (
	"strconv"
	"strings"

	"uptain-sync/internal/model"
	"uptain-sync/internal/serialize"
)

// DefaultSearchSorting is reported when the search state carries no sort order.
const DefaultSearchSorting = "default"

func (b *Builder) categorySection(s *State, page PageType) []model.Field {
	if page != PageCategory || !categoryPathAllowed(s.Path) {
		return nil
	}

	crumbs := s.Category.Breadcrumbs
	current := s.Category.Current
	if current == nil && len(crumbs) > 0 {
		current = &crumbs[len(crumbs)-1]
	}
	if len(crumbs) == 0 && current != nil {
		crumbs = Breadcrumb(s.CategoryTree, current.ID)
	}

	name, id := "", ""
	if current != nil {
		name = current.Name
		if current.ID != 0 {
			id = strconv.Itoa(current.ID)
		}
	} else if s.Meta.CategoryID > 0 {
		id = strconv.Itoa(s.Meta.CategoryID)
	}

	return []model.Field{
		{Key: model.KeyCategory, Value: name},
		{Key: model.KeyCategoryID, Value: id},
		{Key: model.KeyCategoryPath, Value: breadcrumbPath(crumbs)},
		{Key: model.KeyCategoryProducts, Value: serialize.EncodeCompact(b.productList(s.Category.Items))},
	}
}

// Breadcrumb returns the chain of categories from a root of tree down to the
// category with id, or nil when it is not in the tree.
func Breadcrumb(tree []model.Category, id int) []model.Category {
	for _, c := range tree {
		if c.ID == id {
			return []model.Category{c}
		}
		if path := Breadcrumb(c.Children, id); path != nil {
			return append([]model.Category{c}, path...)
		}
	}
	return nil
}

// breadcrumbPath joins breadcrumb names with "/", skipping the home node.
func breadcrumbPath(crumbs []model.Category) string {
	names := make([]string, 0, len(crumbs))
	for _, c := range crumbs {
		if c.ID == 0 || c.URL == "/" {
			continue
		}
		if n := strings.TrimSpace(c.Name); n != "" {
			names = append(names, n)
		}
	}
	return strings.Join(names, "/")
}

func (b *Builder) searchSection(s *State, page PageType) []model.Field {
	if page != PageSearch {
		return nil
	}
	term := strings.TrimSpace(s.SearchTerm())
	if term == "" {
		return nil
	}

	sorting := s.Search.Sorting
	if sorting == "" {
		sorting = s.Query["sort"]
	}
	if sorting == "" {
		sorting = DefaultSearchSorting
	}

	return []model.Field{
		{Key: model.KeySearchTerm, Value: term},
		{Key: model.KeySearchProducts, Value: serialize.EncodeCompact(b.productList(s.Search.Items))},
		{Key: model.KeySearchSorting, Value: sorting},
	}
}

func (b *Builder) successSection(s *State, page PageType) []model.Field {
	if page != PageSuccess {
		return nil
	}
	orderID := strings.TrimSpace(s.RouteParams["orderId"])
	if orderID == "" {
		return nil
	}
	return []model.Field{
		{Key: model.KeySuccess, Value: "1"},
		{Key: model.KeyOrderNumber, Value: orderID},
	}
}
