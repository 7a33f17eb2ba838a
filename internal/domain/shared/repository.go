package shared

// Filter describes common listing options for repositories
type Filter struct {
	Limit   int
	Offset  int
	OrderBy string
	Desc    bool
}

// DefaultFilter returns a filter with sane pagination defaults
func DefaultFilter() Filter {
	return Filter{
		Limit:   50,
		Offset:  0,
		OrderBy: "created_at",
		Desc:    true,
	}
}

// Normalize clamps filter values into valid ranges
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.OrderBy == "" {
		f.OrderBy = "created_at"
	}
	return f
}

// Page wraps a listing result with total count
type Page[T any] struct {
	Items []T
	Total int64
}
