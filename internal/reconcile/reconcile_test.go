package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var alwaysPresent = map[string]bool{"page": true, "returnurl": true, "plugin": true, "wishlist": true}

func keep(key string) bool { return alwaysPresent[key] }

func TestDiffAttributes_EmptyToSnapshot(t *testing.T) {
	// Nothing on the element yet → every non-empty or kept value is set
	desired := []Desired{
		{Key: "page", Value: "cart"},
		{Key: "wishlist", Value: ""},
		{Key: "scv", Value: "10.00"},
		{Key: "usedvoucher", Value: ""},
	}

	diff := DiffAttributes(nil, desired, keep)

	if len(diff.ToRemove) != 0 {
		t.Errorf("ToRemove = %v, want none", diff.ToRemove)
	}
	wantKeys := []string{"page", "wishlist", "scv"}
	if got := diff.Keys(); !cmp.Equal(got, wantKeys) {
		t.Errorf("Keys() = %v, want %v", got, wantKeys)
	}
}

func TestDiffAttributes_Unchanged(t *testing.T) {
	current := map[string]string{"page": "home", "wishlist": "", "plugin": "p"}
	desired := []Desired{
		{Key: "page", Value: "home"},
		{Key: "wishlist", Value: ""},
		{Key: "plugin", Value: "p"},
	}

	diff := DiffAttributes(current, desired, keep)

	if !diff.IsEmpty() {
		t.Errorf("diff should be empty, got remove=%v set=%v", diff.ToRemove, diff.ToSet)
	}
	if diff.Len() != 0 {
		t.Errorf("Len() = %d, want 0", diff.Len())
	}
}

func TestDiffAttributes_RemovesStaleKeepsAlwaysPresent(t *testing.T) {
	// Leaving the cart page: cart keys go, the always-present set stays
	current := map[string]string{
		"page":      "cart",
		"returnurl": "https://shop/cart",
		"scv":       "10.00",
		"products":  "{1:{amount:1,name:'A'}}",
	}
	desired := []Desired{{Key: "page", Value: "home"}}

	diff := DiffAttributes(current, desired, keep)

	if want := []string{"products", "scv"}; !cmp.Equal(diff.ToRemove, want) {
		t.Errorf("ToRemove = %v, want %v", diff.ToRemove, want)
	}
	want := []AttributeSet{{Key: "page", OldValue: "cart", Value: "home", Existed: true}}
	if d := cmp.Diff(want, diff.ToSet); d != "" {
		t.Errorf("ToSet mismatch (-want +got):\n%s", d)
	}
}

func TestDiffAttributes_EmptyValueRemovesOptionalKey(t *testing.T) {
	current := map[string]string{"usedvoucher": "SALE", "page": "cart"}
	desired := []Desired{
		{Key: "page", Value: "cart"},
		{Key: "usedvoucher", Value: ""},
	}

	diff := DiffAttributes(current, desired, keep)

	if want := []string{"usedvoucher"}; !cmp.Equal(diff.ToRemove, want) {
		t.Errorf("ToRemove = %v, want %v", diff.ToRemove, want)
	}
	if len(diff.ToSet) != 0 {
		t.Errorf("ToSet = %v, want none", diff.ToSet)
	}
}

func TestDiffAttributes_EmptyValueBlanksKeptKey(t *testing.T) {
	current := map[string]string{"wishlist": "{1:{amount:1,name:'A'}}"}
	desired := []Desired{{Key: "wishlist", Value: ""}}

	diff := DiffAttributes(current, desired, keep)

	if len(diff.ToRemove) != 0 {
		t.Errorf("ToRemove = %v, want none", diff.ToRemove)
	}
	if len(diff.ToSet) != 1 || diff.ToSet[0].Value != "" {
		t.Errorf("ToSet = %v, want wishlist blanked", diff.ToSet)
	}
}

func TestDiffAttributes_NilKeep(t *testing.T) {
	diff := DiffAttributes(map[string]string{"page": "home"}, nil, nil)
	if want := []string{"page"}; !cmp.Equal(diff.ToRemove, want) {
		t.Errorf("ToRemove = %v, want %v", diff.ToRemove, want)
	}
}

func TestDiffAttributes_DuplicateDesiredKey(t *testing.T) {
	desired := []Desired{{Key: "page", Value: "a"}, {Key: "page", Value: "b"}}
	diff := DiffAttributes(nil, desired, keep)
	if len(diff.ToSet) != 1 || diff.ToSet[0].Value != "b" {
		t.Errorf("ToSet = %v, want single write of last value", diff.ToSet)
	}
}

func TestFilterPrefix(t *testing.T) {
	current := map[string]string{"page": "product", "product-id": "", "scv": "1.00"}
	desired := []Desired{
		{Key: "page", Value: "product"},
		{Key: "product-id", Value: "42"},
		{Key: "product-name", Value: "Shirt"},
	}

	diff := DiffAttributes(current, desired, keep).FilterPrefix("product-")

	if len(diff.ToRemove) != 0 {
		t.Errorf("ToRemove = %v, want none (scv is outside the prefix)", diff.ToRemove)
	}
	if want := []string{"product-id", "product-name"}; !cmp.Equal(diff.Keys(), want) {
		t.Errorf("Keys() = %v, want %v", diff.Keys(), want)
	}

	var nilDiff *AttributeDiff
	if !nilDiff.FilterPrefix("x").IsEmpty() {
		t.Error("FilterPrefix on nil diff should be empty")
	}
}
