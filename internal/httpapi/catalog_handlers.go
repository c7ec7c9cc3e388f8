package httpapi

import (
	"strconv"

	"storefront.org/internal/authz"
	"storefront.org/internal/catalog"
	"storefront.org/internal/pipeline"
)

func (a *API) listCategories(req pipeline.Request) (*pipeline.Response, error) {
	cs, err := a.deps.Catalog.ListCategories(req.Context())
	if err != nil {
		return nil, err
	}
	return pipeline.OK("Categories retrieved", cs), nil
}

func (a *API) getCategory(req pipeline.Request) (*pipeline.Response, error) {
	c, err := a.deps.Catalog.GetCategory(req.Context(), req.Param("id"))
	if err != nil {
		return nil, err
	}
	return pipeline.OK("Category retrieved", c), nil
}

func (a *API) createCategory(req pipeline.Request) (*pipeline.Response, error) {
	var in catalog.CategoryInput
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	c, err := a.deps.Catalog.CreateCategory(req.Context(), in)
	if err != nil {
		return nil, err
	}
	return pipeline.Created("Category created", c), nil
}

func (a *API) updateCategory(req pipeline.Request) (*pipeline.Response, error) {
	var in catalog.CategoryInput
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	c, err := a.deps.Catalog.UpdateCategory(req.Context(), req.Param("id"), in)
	if err != nil {
		return nil, err
	}
	return pipeline.OK("Category updated", c), nil
}

func (a *API) deleteCategory(req pipeline.Request) (*pipeline.Response, error) {
	if err := a.deps.Catalog.DeleteCategory(req.Context(), req.Param("id")); err != nil {
		return nil, err
	}
	return pipeline.OK("Category deleted", nil), nil
}

func (a *API) listProducts(req pipeline.Request) (*pipeline.Response, error) {
	page, limit := paging(req)
	q := req.Query
	f := catalog.ProductFilter{
		Search:     q.Get("search"),
		CategoryID: q.Get("category"),
		Sort:       q.Get("sort"),
		Page:       page,
		PerPage:    limit,
	}
	f.MinPrice, _ = strconv.ParseInt(q.Get("minPrice"), 10, 64)
	f.MaxPrice, _ = strconv.ParseInt(q.Get("maxPrice"), 10, 64)
	items, total, err := a.deps.Catalog.ListProducts(req.Context(), f)
	if err != nil {
		return nil, err
	}
	return pageOf("Products retrieved", items, page, limit, total), nil
}

func (a *API) getProduct(req pipeline.Request) (*pipeline.Response, error) {
	p, err := a.deps.Catalog.GetProduct(req.Context(), req.Param("id"))
	if err != nil {
		return nil, err
	}
	return pipeline.OK("Product retrieved", p), nil
}

func (a *API) createProduct(req pipeline.Request) (*pipeline.Response, error) {
	var in catalog.ProductInput
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	p, err := a.deps.Catalog.CreateProduct(req.Context(), in)
	if err != nil {
		return nil, err
	}
	return pipeline.Created("Product created", p), nil
}

func (a *API) updateProduct(req pipeline.Request) (*pipeline.Response, error) {
	var in catalog.ProductInput
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	p, err := a.deps.Catalog.UpdateProduct(req.Context(), req.Param("id"), in)
	if err != nil {
		return nil, err
	}
	return pipeline.OK("Product updated", p), nil
}

func (a *API) deleteProduct(req pipeline.Request) (*pipeline.Response, error) {
	if err := a.deps.Catalog.DeleteProduct(req.Context(), req.Param("id")); err != nil {
		return nil, err
	}
	return pipeline.OK("Product deleted", nil), nil
}

// orderOwner loads the targeted order so ownership grants can apply.
func (a *API) orderOwner(req pipeline.Request) (string, error) {
	o, err := a.deps.Catalog.GetOrder(req.Context(), req.Param("id"))
	if err != nil {
		return "", err
	}
	return o.UserID, nil
}

func (a *API) listOrders(req pipeline.Request) (*pipeline.Response, error) {
	page, limit := paging(req)
	f := catalog.OrderFilter{
		Status:  catalog.OrderStatus(req.Query.Get("status")),
		Page:    page,
		PerPage: limit,
	}
	if a.deps.Policy.Scoped(req.Principal, authz.OrdersRead) {
		f.UserID = req.Principal.ID
	}
	items, total, err := a.deps.Catalog.ListOrders(req.Context(), f)
	if err != nil {
		return nil, err
	}
	return pageOf("Orders retrieved", items, page, limit, total), nil
}

func (a *API) createOrder(req pipeline.Request) (*pipeline.Response, error) {
	var in struct {
		Items []catalog.OrderLine `json:"items"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	o, err := a.deps.Catalog.CreateOrder(req.Context(), req.Principal.ID, in.Items)
	if err != nil {
		return nil, err
	}
	return pipeline.Created("Order created", o), nil
}

func (a *API) getOrder(req pipeline.Request) (*pipeline.Response, error) {
	o, err := a.deps.Catalog.GetOrder(req.Context(), req.Param("id"))
	if err != nil {
		return nil, err
	}
	return pipeline.OK("Order retrieved", o), nil
}

func (a *API) cancelOrder(req pipeline.Request) (*pipeline.Response, error) {
	o, err := a.deps.Catalog.CancelOrder(req.Context(), req.Param("id"))
	if err != nil {
		return nil, err
	}
	return pipeline.OK("Order cancelled", o), nil
}

func (a *API) updateOrderStatus(req pipeline.Request) (*pipeline.Response, error) {
	var in struct {
		Status catalog.OrderStatus `json:"status"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	o, err := a.deps.Catalog.UpdateOrderStatus(req.Context(), req.Param("id"), in.Status)
	if err != nil {
		return nil, err
	}
	return pipeline.OK("Order status updated", o), nil
}

func (a *API) createUpload(req pipeline.Request) (*pipeline.Response, error) {
	var in catalog.AssetInput
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	asset, err := a.deps.Catalog.CreateAsset(req.Context(), req.Principal.ID, in)
	if err != nil {
		return nil, err
	}
	return pipeline.Created("Upload registered", asset), nil
}
