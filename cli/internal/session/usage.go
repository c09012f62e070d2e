package session

import (
	"math"

	"github.com/tidwall/gjson"
	"github.com/zhaobenny/datatop/internal/model"
)

// ParseUsage validates a usage response body and converts it to a snapshot.
// A null activePackage means no package is running. Times are left unset.
func ParseUsage(body gjson.Result) (model.PlanSnapshot, error) {
	pkg := body.Get("activePackage")
	if !pkg.Exists() || (pkg.Type != gjson.Null && !pkg.IsObject()) {
		return model.PlanSnapshot{}, malformed(StateFetchUsage, "activePackage", pkg)
	}
	if pkg.Type == gjson.Null {
		return model.PlanSnapshot{Active: false}, nil
	}

	period := pkg.Get("period")
	if !isCount(period) || period.Int() == 0 {
		return model.PlanSnapshot{}, malformed(StateFetchUsage, "period", period)
	}

	expiration := pkg.Get("expirationDate")
	if expiration.Type != gjson.String {
		return model.PlanSnapshot{}, malformed(StateFetchUsage, "expirationDate", expiration)
	}

	snap := model.PlanSnapshot{
		Active:         true,
		Period:         int(period.Int()),
		ExpirationDate: expiration.String(),
	}

	// used and remaining may go negative on an overdrawn plan; only their sum
	// is checked, against totalLimit, when the report is computed
	counters := []struct {
		field string
		dst   *int64
		valid func(gjson.Result) bool
	}{
		{"totalLimit", &snap.TotalLimit, isCount},
		{"totalLimitsUsed", &snap.TotalLimitsUsed, isInteger},
		{"totalLimitsRemaining", &snap.TotalLimitsRemaining, isInteger},
	}
	for _, c := range counters {
		v := pkg.Get(c.field)
		if !c.valid(v) {
			return model.PlanSnapshot{}, malformed(StateFetchUsage, c.field, v)
		}
		*c.dst = v.Int()
	}

	return snap, nil
}

// isInteger reports whether r is a whole number
func isInteger(r gjson.Result) bool {
	return r.Type == gjson.Number && r.Num == math.Trunc(r.Num)
}

// isCount reports whether r is a non-negative whole number
func isCount(r gjson.Result) bool {
	return isInteger(r) && r.Num >= 0
}
