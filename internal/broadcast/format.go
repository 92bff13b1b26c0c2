package broadcast

import "sage/internal/catalog"

// FormatQuote renders a summary as the broadcast text: the description, then
// an italic author line.
func FormatQuote(s catalog.BookSummary) string {
	return s.Description + "\n-_" + s.Author + "_"
}
