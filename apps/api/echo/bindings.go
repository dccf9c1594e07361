package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/user"
)

var orderingParam = "ordering"

// Ordering is bound from `?ordering=name,-created_at`: a leading "-" sorts descending.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindUserFilter binds the admin users listing filter. An empty `is_active` means any.
func bindUserFilter(ctx echo.Context) (user.QueryFilter, error) {
	var filter user.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return filter, err
	}
	if ctx.QueryParam("is_active") == "" {
		filter.IsActive = nil
	}
	filter.Clean()
	return filter, nil
}
