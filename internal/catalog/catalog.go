// Package catalog is a read-only client for the NYT Books API bestseller
// lists.
//
// Only two endpoints are modeled: the list of category names and the current
// entries of one category. The client holds no mutable state, does not cache
// and does not retry; callers decide their own policy.
package catalog

// Category is an upstream bestseller list name (e.g. "hardcover-fiction").
// It is case-sensitive and passed through as-is.
type Category string

// CategoryListing is the ordered result of ListCategories. It is never empty
// on success.
type CategoryListing []Category

// BookSummary is the subset of a book_details record the broadcaster uses.
type BookSummary struct {
	Title       string
	Author      string
	Description string
}
