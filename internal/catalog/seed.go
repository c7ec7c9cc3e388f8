package catalog

import (
	"context"
	"fmt"
)

// Seed loads a small demo catalog. It is a no-op when categories exist.
func Seed(ctx context.Context, s Service) error {
	existing, err := s.ListCategories(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	demo := []struct {
		category CategoryInput
		products []ProductInput
	}{
		{
			category: CategoryInput{Name: "Electronics", Description: "Gadgets and accessories"},
			products: []ProductInput{
				product("Wireless Headphones", 12999, 25, "audio"),
				product("USB-C Charger", 2499, 120, "power"),
			},
		},
		{
			category: CategoryInput{Name: "Books", Description: "Printed and digital books"},
			products: []ProductInput{
				product("The Go Programming Language", 3999, 40, "programming"),
			},
		},
	}
	for _, d := range demo {
		c, err := s.CreateCategory(ctx, d.category)
		if err != nil {
			return fmt.Errorf("seed category %s: %w", d.category.Name, err)
		}
		for _, p := range d.products {
			p.CategoryID = &c.ID
			if _, err := s.CreateProduct(ctx, p); err != nil {
				return fmt.Errorf("seed product %s: %w", *p.Name, err)
			}
		}
	}
	return nil
}

func product(name string, price int64, stock int, tags ...string) ProductInput {
	return ProductInput{Name: &name, PriceCents: &price, Stock: &stock, Tags: tags}
}
