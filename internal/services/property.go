package services

import (
	"context"
)

// PropertyResult 为单个源房产及其已勾选的可比房产。
type PropertyResult struct {
	SourceProperty      Record   `json:"source_property"`
	SelectedComparisons []Record `json:"selected_comparisons"`
}

// PropertyService 组合上游数据，生成单个房产的估值结果。
type PropertyService struct {
	upstream *UpstreamClient
}

func NewPropertyService(upstream *UpstreamClient) *PropertyService {
	return &PropertyService{upstream: upstream}
}

// Get 先获取源房产，再获取全部可比房产并按 initialID 筛选。任一步失败都会返回 *UpstreamError。
func (s *PropertyService) Get(ctx context.Context, initialID int64) (*PropertyResult, error) {
	source, err := s.upstream.SourceProperty(ctx, initialID)
	if err != nil {
		return nil, err
	}
	comparisons, err := s.upstream.Comparisons(ctx)
	if err != nil {
		return nil, err
	}
	return &PropertyResult{
		SourceProperty:      source,
		SelectedComparisons: SelectForProperty(initialID, comparisons),
	}, nil
}
