package rules

// NormalizePage clamps 1-based page numbers and page sizes and returns the row offset.
func NormalizePage(page, pageSize, defaultSize, maxSize int) (int, int, int) {
	if defaultSize <= 0 {
		defaultSize = 30
	}
	if maxSize < defaultSize {
		maxSize = defaultSize
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize, (page - 1) * pageSize
}
