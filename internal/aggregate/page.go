package aggregate

import (
	"strings"

	"uptain-sync/internal/model"
)

// PageType is the tracker's page classification.
type PageType string

const (
	PageHome     PageType = "home"
	PageProduct  PageType = "product"
	PageCart     PageType = "cart"
	PageCheckout PageType = "checkout"
	PageSuccess  PageType = "success"
	PageSearch   PageType = "search"
	PageCategory PageType = "category"
	PageOther    PageType = "other"
)

// ClassifyPage maps a route to its page type. First match wins:
// home, product, cart, checkout, success, search, then category by tag path,
// by route metadata, and finally by catalog shape.
func ClassifyPage(path string, meta PageMeta, catalog *model.CategoryState) PageType {
	switch {
	case isHomePath(path):
		return PageHome
	case strings.Contains(path, "/product/") || meta.Type == string(PageProduct):
		return PageProduct
	case strings.Contains(path, "/cart"):
		return PageCart
	case strings.Contains(path, "/checkout"):
		return PageCheckout
	case strings.Contains(path, "/confirmation"):
		return PageSuccess
	case strings.Contains(path, "/search"):
		return PageSearch
	case strings.Contains(path, "/tag/"):
		return PageCategory
	case meta.Type == string(PageCategory) || meta.CategoryID > 0 || strings.Contains(path, "/category/"):
		return PageCategory
	case looksLikeCategory(catalog):
		return PageCategory
	default:
		return PageOther
	}
}

// isHomePath accepts "/", "" and bare locale roots such as "/de" or "/en/".
func isHomePath(path string) bool {
	if path == "" || path == "/" {
		return true
	}
	trimmed := strings.Trim(path, "/")
	if len(trimmed) != 2 || strings.Count(path, "/") > 2 {
		return false
	}
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] < 'a' || trimmed[i] > 'z' {
			return false
		}
	}
	return true
}

func looksLikeCategory(c *model.CategoryState) bool {
	return c != nil && c.Current != nil && (len(c.Items) > 0 || len(c.Breadcrumbs) > 0)
}

// excludedFromCategory lists path fragments that never carry a category section,
// even when catalog state is still populated from a previous page.
var excludedFromCategory = []string{"/cart", "/checkout", "/product/", "/search", "/confirmation"}

func categoryPathAllowed(path string) bool {
	for _, frag := range excludedFromCategory {
		if strings.Contains(path, frag) {
			return false
		}
	}
	return true
}
