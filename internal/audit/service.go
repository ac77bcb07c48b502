package audit

import (
	"context"
	"fmt"
)

// Repository provides the timeline read queries.
type Repository interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Entry, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

// NewService builds a timeline Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches audit entries with paging. PageSize is clamped to 50 and
// one extra row is requested to detect a following page.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	rows, err := s.repo.TimelineWindow(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
