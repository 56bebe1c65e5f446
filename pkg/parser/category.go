package parser

import (
	"strings"

	"github.com/cuemby/storjmonitor/pkg/types"
)

// CategorizeAction maps a log line's raw Action token to a Category.
// GET_REPAIR and PUT_REPAIR are distinguished from plain GET/PUT rather
// than folded into them.
func CategorizeAction(action string) types.Category {
	a := strings.ToUpper(action)

	switch {
	case strings.Contains(a, "AUDIT"):
		return types.CategoryGetAudit
	case strings.Contains(a, "GET_REPAIR"):
		return types.CategoryGetRepair
	case strings.Contains(a, "PUT_REPAIR"):
		return types.CategoryPutRepair
	case strings.HasPrefix(a, "GET"):
		return types.CategoryGet
	case strings.HasPrefix(a, "PUT"):
		return types.CategoryPut
	case strings.Contains(a, "DELETE"):
		return types.CategoryDelete
	default:
		return types.Category(strings.ToLower(action))
	}
}
