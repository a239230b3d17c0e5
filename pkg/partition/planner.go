package partition

// TotalPages converts an item count to a page count, rounding up so a
// partial trailing page is still visited
func TotalPages(totalItems, itemsPerPage int) int {
	if totalItems <= 0 || itemsPerPage <= 0 {
		return 0
	}
	return (totalItems + itemsPerPage - 1) / itemsPerPage
}

// Plan splits the page range [1, totalPages] into consecutive batches
// of at most batchSize pages. The batches partition the range exactly:
// no page is dropped, none appears twice.
func Plan(totalPages, batchSize int) [][]int {
	if totalPages <= 0 || batchSize <= 0 {
		return nil
	}

	batches := make([][]int, 0, (totalPages+batchSize-1)/batchSize)
	for start := 1; start <= totalPages; start += batchSize {
		end := start + batchSize - 1
		if end > totalPages {
			end = totalPages
		}

		pages := make([]int, 0, end-start+1)
		for page := start; page <= end; page++ {
			pages = append(pages, page)
		}
		batches = append(batches, pages)
	}
	return batches
}
