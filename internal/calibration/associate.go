package calibration

import (
	"context"

	"gorm.io/gorm"

	"fitsstore-go/internal/model"
)

// DefaultDepth 是 AssociateAll 默认的递归层数。
const DefaultDepth = 5

// Result 是单个定标类型的候选列表，按 rank 排序。
type Result struct {
	CalType string
	Headers []model.Header
}

// All 对每个适用的定标类型按默认数量求候选，顺序与 Applicable 一致。
func All(ctx context.Context, c Calibration) ([]Result, error) {
	var out []Result
	for _, t := range c.Applicable() {
		hs, err := Lookup(ctx, c, t, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, Result{CalType: t, Headers: hs})
	}
	return out, nil
}

// AssociateAll 返回一组科学观测的全部定标（按发现顺序，按 header id 去重），
// 然后对新找到的定标继续求它们自己的定标，直到 depth 层或某一层没有新增。
// 输入的观测本身不出现在结果中。
func AssociateAll(ctx context.Context, db *gorm.DB, headers []model.Header, depth int) ([]model.Header, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}
	seen := make(map[uint]struct{}, len(headers))
	for _, h := range headers {
		seen[h.ID] = struct{}{}
	}

	var out []model.Header
	current := headers
	for round := 0; round < depth && len(current) > 0; round++ {
		var next []model.Header
		for i := range current {
			c, err := FromHeader(ctx, db, &current[i])
			if err != nil {
				return nil, err
			}
			results, err := All(ctx, c)
			if err != nil {
				return nil, err
			}
			for _, r := range results {
				for _, h := range r.Headers {
					if _, ok := seen[h.ID]; ok {
						continue
					}
					seen[h.ID] = struct{}{}
					next = append(next, h)
				}
			}
		}
		out = append(out, next...)
		current = next
	}
	return out, nil
}
