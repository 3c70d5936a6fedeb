package aggregate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"uptain-sync/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSettings() Settings {
	return Settings{TrackerID: "ABCDEF0123456789", Domain: "https://shop.example", DefaultLocale: "de"}
}

func ptr[T any](v T) *T { return &v }

type fixedRevenue string

func (r fixedRevenue) Calculate(context.Context, bool) string { return string(r) }

// checkFields compares selected snapshot keys against want.
func checkFields(t *testing.T, got map[string]string, want map[string]string) {
	t.Helper()
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestBuild_UnconfiguredTracker(t *testing.T) {
	for _, id := range []string{"", "  ", PlaceholderTrackerID} {
		b := NewBuilder(Settings{TrackerID: id}, WithLogger(quietLogger()))
		if snap := b.Build(context.Background(), &State{Path: "/"}); snap != nil {
			t.Errorf("tracker id %q: Build() = %v, want nil", id, snap.Map())
		}
	}
}

func TestBuild_AlwaysPresentFieldsFirst(t *testing.T) {
	b := NewBuilder(testSettings(), WithLogger(quietLogger()))

	snap := b.Build(context.Background(), &State{Path: "/en/", Locale: "en"})
	if snap == nil {
		t.Fatal("Build() = nil")
	}

	if diff := cmp.Diff([]string{"plugin", "returnurl", "page", "wishlist"}, snap.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
	checkFields(t, snap.Map(), map[string]string{
		model.KeyPlugin:    DefaultPluginVersion,
		model.KeyReturnURL: "https://shop.example/en/cart",
		model.KeyPage:      "home",
		model.KeyWishlist:  "{}",
	})
}

func TestBuild_CartSingleLine(t *testing.T) {
	b := NewBuilder(testSettings(), WithLogger(quietLogger()))
	state := &State{
		Path: "/cart",
		Cart: &model.Cart{
			Items: []model.CartItem{{
				ID: 1, Quantity: 2, VariationID: 12,
				Variation: &model.Product{ID: 12, Name: "Dummyartikel"},
				OrderProperties: []model.OrderProperty{
					{Name: "Gift wrap", Price: 2.5},
					{Name: "Engraving", Price: 0},
				},
			}},
			ItemSumNet:        39.98,
			ShippingAmountNet: 4.9,
			TotalVATs:         []model.VAT{{Rate: 19, Value: 7.6}, {Rate: 7, Value: 0.35}},
			CouponCode:        "SALE",
			CouponDiscount:    -5,
			ShippingProfileID: 6,
			MethodOfPaymentID: 3,
		},
		Addresses: model.Addresses{
			Shipping: &model.Address{PostalCode: "10115"},
			Billing:  &model.Address{PostalCode: "10115"},
		},
		ShippingMethods: []model.ShippingMethod{{ID: 1, Name: "Pickup"}, {ID: 6, Name: "DHL"}},
		PaymentMethods:  []model.PaymentMethod{{ID: 3, Name: "PayPal"}},
	}

	snap := b.Build(context.Background(), state)
	if snap == nil {
		t.Fatal("Build() = nil")
	}

	checkFields(t, snap.Map(), map[string]string{
		model.KeyPage:          "cart",
		model.KeyCartValue:     "39.98",
		model.KeyCurrency:      "EUR",
		model.KeyTaxAmount:     "7.95",
		model.KeyShippingCosts: "4.90",
		model.KeyPaymentCosts:  "2.50",
		model.KeyPostalCode:    "10115",
		model.KeyProducts:      "{12:{amount:2,name:'Dummyartikel'}}",
		model.KeyShipping:      "DHL",
		model.KeyPayment:       "PayPal",
		model.KeyUsedVoucher:   "SALE",
		model.KeyVoucherAmount: "5.00",
		model.KeyVoucherType:   "monetary",
	})
}

func TestBuild_EmptyCartOmitsSection(t *testing.T) {
	b := NewBuilder(testSettings(), WithLogger(quietLogger()))

	snap := b.Build(context.Background(), &State{Path: "/cart", Cart: &model.Cart{}})

	if _, ok := snap.Get(model.KeyCartValue); ok {
		t.Errorf("%s present for an empty cart", model.KeyCartValue)
	}
}

func TestPostalCodes(t *testing.T) {
	tests := []struct {
		name string
		in   model.Addresses
		want string
	}{
		{"none", model.Addresses{}, ""},
		{"shipping then billing", model.Addresses{
			Shipping: &model.Address{PostalCode: "10115"},
			Billing:  &model.Address{PostalCode: "80331"},
		}, "10115;80331"},
		{"trimmed", model.Addresses{Billing: &model.Address{PostalCode: " 80331 "}}, "80331"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := postalCodes(tt.in); got != tt.want {
				t.Errorf("postalCodes() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyPage(t *testing.T) {
	catalog := &model.CategoryState{
		Current: &model.Category{ID: 16, Name: "Shoes"},
		Items:   []model.Product{{ID: 1}},
	}

	tests := []struct {
		name    string
		path    string
		meta    PageMeta
		catalog *model.CategoryState
		want    PageType
	}{
		{"root", "/", PageMeta{}, nil, PageHome},
		{"empty", "", PageMeta{}, nil, PageHome},
		{"locale root", "/de", PageMeta{}, catalog, PageHome},
		{"locale root slash", "/en/", PageMeta{}, nil, PageHome},
		{"product beats category", "/product/shoe_1_2", PageMeta{Type: "product"}, catalog, PageProduct},
		{"product by meta", "/shoe_1_2", PageMeta{Type: "product"}, catalog, PageProduct},
		{"cart", "/de/cart", PageMeta{}, catalog, PageCart},
		{"checkout", "/checkout", PageMeta{}, nil, PageCheckout},
		{"success", "/confirmation/123/abc", PageMeta{}, nil, PageSuccess},
		{"search", "/search", PageMeta{}, catalog, PageSearch},
		{"tag", "/tag/summer", PageMeta{}, nil, PageCategory},
		{"category meta", "/shoes", PageMeta{Type: "category"}, nil, PageCategory},
		{"category id meta", "/shoes", PageMeta{CategoryID: 16}, nil, PageCategory},
		{"catalog shape", "/shoes", PageMeta{}, catalog, PageCategory},
		{"other", "/imprint", PageMeta{}, nil, PageOther},
		{"not a locale", "/de/imprint", PageMeta{}, nil, PageOther},
		{"catalog without items", "/x", PageMeta{}, &model.CategoryState{Current: &model.Category{ID: 1}}, PageOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyPage(tt.path, tt.meta, tt.catalog); got != tt.want {
				t.Errorf("ClassifyPage(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolveVariants_Priority(t *testing.T) {
	p := &model.Product{
		PropertyGroups: []model.PropertyGroup{{Name: "g", Properties: []model.Property{{Name: "Size", Value: "M"}}}},
		Attributes:     []model.Attribute{{Name: "Color", Value: "red"}},
	}
	if diff := cmp.Diff(model.VariantMap{{Name: "Size", Value: "M"}}, ResolveVariants(p, DefaultVariantResolvers)); diff != "" {
		t.Errorf("property groups mismatch (-want +got):\n%s", diff)
	}

	p.PropertyGroups = nil
	if diff := cmp.Diff(model.VariantMap{{Name: "Color", Value: "red"}}, ResolveVariants(p, DefaultVariantResolvers)); diff != "" {
		t.Errorf("attributes mismatch (-want +got):\n%s", diff)
	}

	p.Attributes = nil
	p.GroupedAttributes = []model.AttributeGroup{{Name: "Color", Values: []model.AttributeValue{
		{Name: "blue"}, {Name: "green", Selected: true},
	}}}
	if diff := cmp.Diff(model.VariantMap{{Name: "Color", Value: "green"}}, ResolveVariants(p, DefaultVariantResolvers)); diff != "" {
		t.Errorf("grouped attributes mismatch (-want +got):\n%s", diff)
	}

	if got := ResolveVariants(&model.Product{ID: 1}, DefaultVariantResolvers); len(got) != 0 {
		t.Errorf("ResolveVariants(no variants) = %v, want empty", got)
	}
	if got := ResolveVariants(nil, DefaultVariantResolvers); got != nil {
		t.Errorf("ResolveVariants(nil) = %v, want nil", got)
	}
}

func TestResolveVariants_EachResolver(t *testing.T) {
	group := []model.PropertyGroup{{Properties: []model.Property{{Name: " Material ", Value: " Wool "}}}}
	want := model.VariantMap{{Name: "Material", Value: "Wool"}}

	tests := []struct {
		name    string
		resolve VariantResolver
		product *model.Product
	}{
		{"variation properties", FromVariationProperties, &model.Product{VariationProperties: group}},
		{"property groups", FromPropertyGroups, &model.Product{PropertyGroups: group}},
		{"properties", FromProperties, &model.Product{Properties: group[0].Properties}},
		{"attributes", FromAttributes, &model.Product{Attributes: []model.Attribute{{Name: "Material", Value: "Wool"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(want, tt.resolve(tt.product)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if got := FromGroupedAttributes(&model.Product{GroupedAttributes: []model.AttributeGroup{{Name: "x"}}}); len(got) != 0 {
		t.Errorf("FromGroupedAttributes(no selection) = %v, want empty", got)
	}
}

func TestBuild_Product(t *testing.T) {
	b := NewBuilder(testSettings(), WithLogger(quietLogger()))
	product := &model.Product{
		ID:            42,
		Name:          "Shirt",
		Prices:        &model.Prices{Net: 19.99, OriginalNet: ptr(24.99)},
		CoverImage:    "https://cdn.example/shirt.jpg",
		Tags:          []model.Tag{{Name: "summer"}, {Name: "sale"}},
		CategoryNames: []string{"Clothing", "Shirts"},
		VariationProperties: []model.PropertyGroup{{Properties: []model.Property{
			{Name: "Farbe", Value: "rot"},
		}}},
	}

	snap := b.Build(context.Background(), &State{Path: "/product/shirt", Product: product})

	checkFields(t, snap.Map(), map[string]string{
		model.KeyPage:                 "product",
		model.KeyProductID:            "42",
		model.KeyProductName:          "Shirt",
		model.KeyProductPrice:         "19.99",
		model.KeyProductOriginalPrice: "24.99",
		model.KeyProductTags:          "summer;sale",
		model.KeyProductVariants:      "{Farbe:'rot'}",
		model.KeyProductCategory:      "Clothing",
		model.KeyProductCategoryPaths: "Clothing/Shirts",
	})
}

func TestBuild_EmptyProductIsNoProduct(t *testing.T) {
	b := NewBuilder(testSettings(), WithLogger(quietLogger()))

	for _, p := range []*model.Product{nil, {}} {
		snap := b.Build(context.Background(), &State{Path: "/product/x", Product: p})
		if _, ok := snap.Get(model.KeyProductID); ok {
			t.Errorf("product %v: %s present", p, model.KeyProductID)
		}
	}
}

func TestBuild_ProductFallsBackToLoadedProduct(t *testing.T) {
	b := NewBuilder(testSettings(), WithLogger(quietLogger()))

	snap := b.Build(context.Background(), &State{
		Path:          "/product/x",
		Product:       &model.Product{},
		LoadedProduct: &model.Product{ID: 7, Name: "Mug"},
	})

	checkFields(t, snap.Map(), map[string]string{
		model.KeyProductID:    "7",
		model.KeyProductPrice: "0.00",
	})
	v, ok := snap.Get(model.KeyProductVariants)
	if !ok {
		t.Fatal("product-variants missing")
	}
	if v != "" {
		t.Errorf("product-variants = %q, want empty", v)
	}
}

func TestBuild_Category(t *testing.T) {
	b := NewBuilder(testSettings(), WithLogger(quietLogger()))
	tree := []model.Category{{ID: 10, Name: "Clothing", Children: []model.Category{{ID: 16, Name: "Shoes"}}}}

	snap := b.Build(context.Background(), &State{
		Path:         "/clothing/shoes",
		Meta:         PageMeta{Type: "category"},
		Category:     model.CategoryState{Current: &model.Category{ID: 16, Name: "Shoes"}, Items: []model.Product{{ID: 3, Name: "Boot"}}},
		CategoryTree: tree,
	})

	checkFields(t, snap.Map(), map[string]string{
		model.KeyPage:             "category",
		model.KeyCategory:         "Shoes",
		model.KeyCategoryID:       "16",
		model.KeyCategoryPath:     "Clothing/Shoes",
		model.KeyCategoryProducts: "{3:{amount:1,name:'Boot'}}",
	})
}

func TestBreadcrumbPathSkipsHome(t *testing.T) {
	crumbs := []model.Category{{ID: 0, Name: "Home", URL: "/"}, {ID: 5, Name: "Sale"}, {ID: 6, Name: "Shoes"}}
	if got := breadcrumbPath(crumbs); got != "Sale/Shoes" {
		t.Errorf("breadcrumbPath() = %q, want %q", got, "Sale/Shoes")
	}
	if got := Breadcrumb(nil, 1); got != nil {
		t.Errorf("Breadcrumb(nil) = %v, want nil", got)
	}
}

func TestBuild_Search(t *testing.T) {
	b := NewBuilder(testSettings(), WithLogger(quietLogger()))

	snap := b.Build(context.Background(), &State{
		Path:   "/search",
		Query:  map[string]string{"term": "boot"},
		Search: model.SearchState{Items: []model.Product{{ID: 3, Name: "Boot"}}},
	})
	checkFields(t, snap.Map(), map[string]string{
		model.KeySearchTerm:     "boot",
		model.KeySearchSorting:  "default",
		model.KeySearchProducts: "{3:{amount:1,name:'Boot'}}",
	})

	snap = b.Build(context.Background(), &State{Path: "/search"})
	if _, ok := snap.Get(model.KeySearchTerm); ok {
		t.Error("search section emitted without a term")
	}
}

func TestBuild_Success(t *testing.T) {
	b := NewBuilder(testSettings(), WithLogger(quietLogger()))

	snap := b.Build(context.Background(), &State{Path: "/confirmation/991/x", RouteParams: map[string]string{"orderId": "991"}})
	checkFields(t, snap.Map(), map[string]string{
		model.KeySuccess:     "1",
		model.KeyOrderNumber: "991",
	})

	snap = b.Build(context.Background(), &State{Path: "/confirmation/"})
	if _, ok := snap.Get(model.KeySuccess); ok {
		t.Error("success section emitted without an order id")
	}
}

func TestBuild_PersonalGating(t *testing.T) {
	subscriber := &model.User{ID: 5, Email: "a@b.c", FirstName: "Ada", Gender: "female", NewsletterSubscribed: ptr(true)}
	customer := &model.User{ID: 6, Email: "x@y.z", Gender: "male", OrderCount: ptr(2)}

	tests := []struct {
		name     string
		settings Settings
		user     *model.User
		authed   bool
		want     bool
	}{
		{"newsletter setting and subscriber", Settings{TransmitNewsletter: true}, subscriber, true, true},
		{"newsletter setting, not subscriber", Settings{TransmitNewsletter: true}, customer, true, false},
		{"customer setting and orders", Settings{TransmitCustomer: true}, customer, true, true},
		{"customer setting, no orders", Settings{TransmitCustomer: true}, subscriber, true, false},
		{"not authenticated", Settings{TransmitNewsletter: true, TransmitCustomer: true}, subscriber, false, false},
		{"no settings", Settings{}, subscriber, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := tt.settings
			set.TrackerID = "ID1"
			b := NewBuilder(set, WithLogger(quietLogger()))

			snap := b.Build(context.Background(), &State{Path: "/", User: tt.user, Authenticated: tt.authed})
			_, ok := snap.Get(model.KeyEmail)
			if ok != tt.want {
				t.Fatalf("personal section present = %v, want %v", ok, tt.want)
			}
			if !ok {
				return
			}
			for _, k := range []string{model.KeyFirstName, model.KeyLastName, model.KeyGender, model.KeyTitle, model.KeyUserID, model.KeyCustomerGroup} {
				if _, present := snap.Get(k); !present {
					t.Errorf("personal key %s missing", k)
				}
			}
			if _, hasRevenue := snap.Get(model.KeyRevenue); hasRevenue {
				t.Errorf("%s present without revenue transmission", model.KeyRevenue)
			}
		})
	}
}

func TestBuild_Revenue(t *testing.T) {
	b := NewBuilder(
		Settings{TrackerID: "ID1", TransmitNewsletter: true, TransmitRevenue: true},
		WithRevenue(fixedRevenue("123.45")),
		WithLogger(quietLogger()),
	)

	snap := b.Build(context.Background(), &State{
		Path:          "/",
		User:          &model.User{ID: 1, Gender: "diverse", NewsletterSubscribed: ptr(true)},
		Authenticated: true,
	})
	checkFields(t, snap.Map(), map[string]string{
		model.KeyRevenue: "123.45",
		model.KeyGender:  "",
		model.KeyUserID:  "1",
	})
}

func TestNormalizeGender(t *testing.T) {
	for in, want := range map[string]string{"Female": "f", "m": "m", "company": ""} {
		if got := NormalizeGender(in); got != want {
			t.Errorf("NormalizeGender(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuild_Wishlist(t *testing.T) {
	fetchErr := errors.New("unavailable")

	tests := []struct {
		name      string
		state     State
		fetch     []model.WishlistItem
		err       error
		want      string
		wantCalls int
	}{
		{
			name:  "cached",
			state: State{Wishlist: []model.WishlistItem{{VariationID: 564, Variation: &model.Product{Name: "Dummyartikel"}}}},
			want:  "{564:{amount:1,name:'Dummyartikel'}}",
		},
		{
			name:      "fetched for known ids",
			state:     State{WishlistIDs: []int{7}},
			fetch:     []model.WishlistItem{{Variation: &model.Product{ID: 7, Name: "Mug"}}},
			want:      "{7:{amount:1,name:'Mug'}}",
			wantCalls: 1,
		},
		{
			name:      "fetch failure degrades to empty",
			state:     State{Authenticated: true},
			err:       fetchErr,
			want:      "{}",
			wantCalls: 1,
		},
		{
			name: "anonymous without ids does not fetch",
			want: "{}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			var sunk []model.WishlistItem
			fetcher := WishlistFetcherFunc(func(context.Context) ([]model.WishlistItem, error) {
				calls++
				return tt.fetch, tt.err
			})
			b := NewBuilder(testSettings(),
				WithWishlistFetcher(fetcher),
				WithWishlistSink(func(items []model.WishlistItem) { sunk = items }),
				WithLogger(quietLogger()),
			)

			state := tt.state
			state.Path = "/"
			snap := b.Build(context.Background(), &state)

			if v, _ := snap.Get(model.KeyWishlist); v != tt.want {
				t.Errorf("wishlist = %q, want %q", v, tt.want)
			}
			if calls != tt.wantCalls {
				t.Errorf("fetch calls = %d, want %d", calls, tt.wantCalls)
			}
			if len(tt.fetch) > 0 {
				if diff := cmp.Diff(tt.fetch, sunk); diff != "" {
					t.Errorf("cached items mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestExprPredicates(t *testing.T) {
	p, err := NewExprPredicates(`newsletter && email endsWith "@example.com"`, `orders > 1 && group != "B2B"`)
	if err != nil {
		t.Fatalf("NewExprPredicates() error = %v", err)
	}

	ctx := context.Background()
	u := &model.User{Email: "ada@example.com", NewsletterSubscribed: ptr(true), OrderCount: ptr(2), CustomerGroupName: "Retail"}
	if !p.IsNewsletterSubscriber(ctx, u) {
		t.Error("IsNewsletterSubscriber() = false, want true")
	}
	if !p.HasSuccessfulOrder(ctx, u) {
		t.Error("HasSuccessfulOrder() = false, want true")
	}

	u.CustomerGroupName = "B2B"
	if p.HasSuccessfulOrder(ctx, u) {
		t.Error("HasSuccessfulOrder(B2B) = true, want false")
	}
	if p.IsNewsletterSubscriber(ctx, nil) {
		t.Error("IsNewsletterSubscriber(nil) = true, want false")
	}

	fallback, err := NewExprPredicates("", "")
	if err != nil {
		t.Fatalf("NewExprPredicates(empty) error = %v", err)
	}
	if !fallback.HasSuccessfulOrder(ctx, u) {
		t.Error("fallback HasSuccessfulOrder() = false, want true")
	}

	for _, rules := range [][2]string{{"newsletter +", ""}, {"", `"not a bool"`}} {
		if _, err := NewExprPredicates(rules[0], rules[1]); err == nil {
			t.Errorf("NewExprPredicates(%q, %q) error = nil, want error", rules[0], rules[1])
		}
	}
}

func TestStateClone(t *testing.T) {
	s := State{Query: map[string]string{"term": "a"}, WishlistIDs: []int{1}}
	c := s.Clone()
	c.Query["term"] = "b"
	c.WishlistIDs[0] = 2
	if s.Query["term"] != "a" || s.WishlistIDs[0] != 1 {
		t.Errorf("Clone() shares storage with the original: %+v", s)
	}
}
