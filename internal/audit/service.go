package audit

import (
	"context"
	"fmt"
	"time"
)

// Reader provides the read side of the trail.
type Reader interface {
	List(ctx context.Context, f Filter, offset, limit int) ([]Entry, error)
	Stats(ctx context.Context, now time.Time) (Stats, error)
}

// Result wraps a page of entries with paging information.
type Result struct {
	Entries  []Entry
	Page     int
	PageSize int
	HasNext  bool
}

// Service coordinates audit trail reads.
type Service struct {
	reader Reader
	now    func() time.Time
}

// NewService constructs the audit read service.
func NewService(reader Reader) *Service {
	return &Service{reader: reader, now: time.Now}
}

// List returns one page of matching entries, most recent first.
func (s *Service) List(ctx context.Context, f Filter) (Result, error) {
	if s.reader == nil {
		return Result{}, fmt.Errorf("audit: reader not configured")
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	entries, err := s.reader.List(ctx, f, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	return Result{Entries: entries, Page: page, PageSize: pageSize, HasNext: hasNext}, nil
}

// Stats returns aggregate trail statistics.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if s.reader == nil {
		return Stats{}, fmt.Errorf("audit: reader not configured")
	}
	return s.reader.Stats(ctx, s.now())
}
