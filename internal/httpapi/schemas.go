package httpapi

import (
	"storefront.org/internal/auth"
	"storefront.org/internal/catalog"
	"storefront.org/internal/validate"
)

var (
	idParam = validate.Field{Name: "id", Required: true, Rules: []validate.Rule{validate.ID()}}

	pageQuery = []validate.Field{
		{Name: "page", Rules: []validate.Rule{validate.Int(), validate.Min(1)}},
		{Name: "limit", Rules: []validate.Rule{validate.Int(), validate.Min(1), validate.Max(100)}},
	}
)

var registerSchema = validate.Schema{Body: []validate.Field{
	{Name: "email", Required: true, Rules: []validate.Rule{validate.String(), validate.Email(), validate.MaxLen(254)}},
	{Name: "password", Required: true, Rules: []validate.Rule{validate.String(), validate.MinLen(auth.MinPasswordLength), validate.MaxLen(72)}},
	{Name: "name", Rules: []validate.Rule{validate.String(), validate.MaxLen(100)}},
}}

var loginSchema = validate.Schema{Body: []validate.Field{
	{Name: "email", Required: true, Rules: []validate.Rule{validate.String(), validate.Email()}},
	{Name: "password", Required: true, Rules: []validate.Rule{validate.String()}},
}}

var refreshSchema = validate.Schema{Body: []validate.Field{
	{Name: "refreshToken", Required: true, Rules: []validate.Rule{validate.String(), validate.MaxLen(512)}},
}}

var idSchema = validate.Schema{Params: []validate.Field{idParam}}

func categoryFields(required bool) []validate.Field {
	return []validate.Field{
		{Name: "name", Required: required, Rules: []validate.Rule{validate.String(), validate.MinLen(2), validate.MaxLen(100)}},
		{Name: "slug", Rules: []validate.Rule{validate.String(), validate.MaxLen(100)}},
		{Name: "description", Rules: []validate.Rule{validate.String(), validate.MaxLen(1000)}},
	}
}

var (
	createCategorySchema = validate.Schema{Body: categoryFields(true)}
	updateCategorySchema = validate.Schema{Body: categoryFields(false), Params: []validate.Field{idParam}}
)

var productListSchema = validate.Schema{Query: append([]validate.Field{
	{Name: "search", Rules: []validate.Rule{validate.MaxLen(100)}},
	{Name: "category", Rules: []validate.Rule{validate.ID()}},
	{Name: "minPrice", Rules: []validate.Rule{validate.Int(), validate.Min(0)}},
	{Name: "maxPrice", Rules: []validate.Rule{validate.Int(), validate.Min(0)}},
	{Name: "sort", Rules: []validate.Rule{validate.OneOf("price", "-price", "name", "createdAt", "-createdAt")}},
}, pageQuery...)}

func productFields(required bool) []validate.Field {
	return []validate.Field{
		{Name: "name", Required: required, Rules: []validate.Rule{validate.String(), validate.MinLen(2), validate.MaxLen(200)}},
		{Name: "description", Rules: []validate.Rule{validate.String(), validate.MaxLen(5000)}},
		{Name: "priceCents", Required: required, Rules: []validate.Rule{validate.Int(), validate.Min(0)}},
		{Name: "currency", Rules: []validate.Rule{validate.String(), validate.MinLen(3), validate.MaxLen(3)}},
		{Name: "categoryId", Required: required, Rules: []validate.Rule{validate.ID()}},
		{Name: "stock", Rules: []validate.Rule{validate.Int(), validate.Min(0)}},
		{Name: "tags", Rules: []validate.Rule{validate.Array(), validate.MaxLen(20)}},
	}
}

var (
	createProductSchema = validate.Schema{Body: productFields(true)}
	updateProductSchema = validate.Schema{Body: productFields(false), Params: []validate.Field{idParam}}
)

var orderListSchema = validate.Schema{Query: append([]validate.Field{
	{Name: "status", Rules: []validate.Rule{validate.OneOf(orderStatusNames()...)}},
}, pageQuery...)}

var createOrderSchema = validate.Schema{Body: []validate.Field{{
	Name:     "items",
	Required: true,
	Rules:    []validate.Rule{validate.Array(), validate.MinLen(1), validate.MaxLen(50)},
	Elem: []validate.Field{
		{Name: "productId", Required: true, Rules: []validate.Rule{validate.ID()}},
		{Name: "quantity", Required: true, Rules: []validate.Rule{validate.Int(), validate.Min(1), validate.Max(1000)}},
	},
}}}

var orderStatusSchema = validate.Schema{
	Params: []validate.Field{idParam},
	Body: []validate.Field{
		{Name: "status", Required: true, Rules: []validate.Rule{validate.OneOf(orderStatusNames()...)}},
	},
}

var uploadSchema = validate.Schema{Body: []validate.Field{
	{Name: "filename", Required: true, Rules: []validate.Rule{validate.String(), validate.MaxLen(255)}},
	{Name: "contentType", Required: true, Rules: []validate.Rule{validate.OneOf("image/jpeg", "image/png", "image/webp", "image/gif")}},
	{Name: "size", Required: true, Rules: []validate.Rule{validate.Int(), validate.Min(1), validate.Max(5 << 20)}},
}}

var userListSchema = validate.Schema{Query: pageQuery}

var userStatusSchema = validate.Schema{
	Params: []validate.Field{idParam},
	Body: []validate.Field{
		{Name: "status", Required: true, Rules: []validate.Rule{validate.OneOf("active", "inactive", "suspended", "pending")}},
	},
}

var userRoleSchema = validate.Schema{
	Params: []validate.Field{idParam},
	Body: []validate.Field{
		{Name: "role", Required: true, Rules: []validate.Rule{validate.OneOf("admin", "moderator", "user")}},
	},
}

var invalidateSchema = validate.Schema{Body: []validate.Field{
	{Name: "tags", Required: true, Rules: []validate.Rule{validate.Array(), validate.MinLen(1), validate.MaxLen(20)}},
}}

func orderStatusNames() []string {
	names := make([]string, len(catalog.OrderStatuses))
	for i, s := range catalog.OrderStatuses {
		names[i] = string(s)
	}
	return names
}
