package aggregate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"uptain-sync/internal/model"
)

// Predicates decide whether a customer qualifies for personal-data
// transmission. The storefront offers only weak signals for both, so the
// checks are pluggable.
type Predicates interface {
	IsNewsletterSubscriber(ctx context.Context, u *model.User) bool
	HasSuccessfulOrder(ctx context.Context, u *model.User) bool
}

// FieldPredicates reads the optional flags on the user record.
type FieldPredicates struct{}

// IsNewsletterSubscriber reports the user's newsletter flag.
func (FieldPredicates) IsNewsletterSubscriber(_ context.Context, u *model.User) bool {
	return u != nil && u.NewsletterSubscribed != nil && *u.NewsletterSubscribed
}

// HasSuccessfulOrder reports whether the user has at least one order.
func (FieldPredicates) HasSuccessfulOrder(_ context.Context, u *model.User) bool {
	return u != nil && u.OrderCount != nil && *u.OrderCount > 0
}

// ExprPredicates evaluates configured rules with expr-lang against the user.
//
// Rule variables: newsletter (bool), orders (int), email, group, gender (string).
// Example rules: `newsletter`, `orders > 0 && group != "B2B"`.
type ExprPredicates struct {
	newsletter *exprvm.Program
	orders     *exprvm.Program
}

// NewExprPredicates compiles both rules. An empty rule falls back to the
// user's field value.
func NewExprPredicates(newsletterRule, orderRule string) (*ExprPredicates, error) {
	p := &ExprPredicates{}
	var err error
	if p.newsletter, err = compileRule(newsletterRule); err != nil {
		return nil, fmt.Errorf("newsletter rule: %w", err)
	}
	if p.orders, err = compileRule(orderRule); err != nil {
		return nil, fmt.Errorf("order rule: %w", err)
	}
	return p, nil
}

func compileRule(rule string) (*exprvm.Program, error) {
	if strings.TrimSpace(rule) == "" {
		return nil, nil
	}
	return exprlang.Compile(rule, exprlang.Env(ruleEnv(nil)), exprlang.AsBool())
}

// IsNewsletterSubscriber runs the newsletter rule.
func (p *ExprPredicates) IsNewsletterSubscriber(ctx context.Context, u *model.User) bool {
	if p.newsletter == nil {
		return FieldPredicates{}.IsNewsletterSubscriber(ctx, u)
	}
	return runRule(p.newsletter, u)
}

// HasSuccessfulOrder runs the order rule.
func (p *ExprPredicates) HasSuccessfulOrder(ctx context.Context, u *model.User) bool {
	if p.orders == nil {
		return FieldPredicates{}.HasSuccessfulOrder(ctx, u)
	}
	return runRule(p.orders, u)
}

func runRule(program *exprvm.Program, u *model.User) bool {
	if u == nil {
		return false
	}
	out, err := exprlang.Run(program, ruleEnv(u))
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func ruleEnv(u *model.User) map[string]any {
	env := map[string]any{
		"newsletter": false,
		"orders":     0,
		"email":      "",
		"group":      "",
		"gender":     "",
	}
	if u == nil {
		return env
	}
	env["newsletter"] = u.NewsletterSubscribed != nil && *u.NewsletterSubscribed
	if u.OrderCount != nil {
		env["orders"] = *u.OrderCount
	}
	env["email"] = u.Email
	env["group"] = u.CustomerGroupName
	env["gender"] = u.Gender
	return env
}

func (b *Builder) shouldTransmit(ctx context.Context, s *State) bool {
	if !s.Authenticated || s.User == nil {
		return false
	}
	set := b.settings
	return (set.TransmitNewsletter && b.predicates.IsNewsletterSubscriber(ctx, s.User)) ||
		(set.TransmitCustomer && b.predicates.HasSuccessfulOrder(ctx, s.User))
}

func (b *Builder) personalSection(ctx context.Context, s *State) []model.Field {
	if !b.shouldTransmit(ctx, s) {
		return nil
	}
	u := s.User

	uid := ""
	if u.ID != 0 {
		uid = strconv.Itoa(u.ID)
	}

	fields := []model.Field{
		{Key: model.KeyEmail, Value: u.Email},
		{Key: model.KeyFirstName, Value: u.FirstName},
		{Key: model.KeyLastName, Value: u.LastName},
		{Key: model.KeyGender, Value: NormalizeGender(u.Gender)},
		{Key: model.KeyTitle, Value: u.Title},
		{Key: model.KeyUserID, Value: uid},
		{Key: model.KeyCustomerGroup, Value: u.CustomerGroupName},
	}
	if b.settings.TransmitRevenue {
		fields = append(fields, model.Field{Key: model.KeyRevenue, Value: b.revenue.Calculate(ctx, s.Authenticated)})
	}
	return fields
}

// NormalizeGender maps storefront gender values to "f", "m" or "".
func NormalizeGender(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "female", "f":
		return "f"
	case "male", "m":
		return "m"
	default:
		return ""
	}
}
