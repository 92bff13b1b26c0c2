package catalog

import "encoding/json"

// namesResponse matches lists/names.json.
type namesResponse struct {
	Status     string `json:"status"`
	Copyright  string `json:"copyright"`
	NumResults int    `json:"num_results"`
	Results    []struct {
		ListName            string `json:"list_name"`
		DisplayName         string `json:"display_name"`
		ListNameEncoded     string `json:"list_name_encoded"`
		OldestPublishedDate string `json:"oldest_published_date"`
		NewestPublishedDate string `json:"newest_published_date"`
		Updated             string `json:"updated"`
	} `json:"results"`
}

func (r *namesResponse) listNames() CategoryListing {
	out := make(CategoryListing, 0, len(r.Results))
	for _, res := range r.Results {
		if res.ListName == "" {
			continue
		}
		out = append(out, Category(res.ListName))
	}
	return out
}

// listingsResponse matches lists.json?list=<category>.
type listingsResponse struct {
	Status       string          `json:"status"`
	Copyright    string          `json:"copyright"`
	NumResults   int             `json:"num_results"`
	LastModified string          `json:"last_modified"`
	Results      []listingResult `json:"results"`
}

type listingResult struct {
	ListName         string          `json:"list_name"`
	DisplayName      string          `json:"display_name"`
	BestsellersDate  string          `json:"bestsellers_date"`
	PublishedDate    string          `json:"published_date"`
	Rank             int             `json:"rank"`
	RankLastWeek     int             `json:"rank_last_week"`
	WeeksOnList      int             `json:"weeks_on_list"`
	Asterisk         int             `json:"asterisk"`
	Dagger           int             `json:"dagger"`
	AmazonProductURL string          `json:"amazon_product_url"`
	ISBNs            json.RawMessage `json:"isbns"`
	BookDetails      []bookDetail    `json:"book_details"`
	Reviews          json.RawMessage `json:"reviews"`
}

// bookDetail keeps only the consumed fields. Pointers distinguish an absent
// (or null) field from an empty string.
type bookDetail struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Description *string `json:"description"`
}

// summaries flattens results[].book_details[] in source order, validating
// every record. The first invalid record fails the whole extraction.
func (r *listingsResponse) summaries(category Category) ([]BookSummary, error) {
	var out []BookSummary
	for i, res := range r.Results {
		for j, d := range res.BookDetails {
			s, field, ok := d.summary()
			if !ok {
				return nil, &MalformedRecordError{Category: category, Result: i, Record: j, Field: field}
			}
			out = append(out, s)
		}
	}
	return out, nil
}

func (d bookDetail) summary() (BookSummary, string, bool) {
	switch {
	case d.Title == nil:
		return BookSummary{}, "title", false
	case d.Author == nil:
		return BookSummary{}, "author", false
	case d.Description == nil:
		return BookSummary{}, "description", false
	}
	return BookSummary{Title: *d.Title, Author: *d.Author, Description: *d.Description}, "", true
}
