package core

import (
	"context"
	"math"

	"widgetcore/pkg/domain"
)

// ListRequest selects a page of the index-ordered listing. Nil Page and Size
// fall back to page 0 and the configured default size; a nil Area lists
// every widget.
type ListRequest struct {
	Page *int
	Size *int
	Area *AreaFilter
}

// List returns one page of widgets in ascending index order.
func (s *Service) List(ctx context.Context, req ListRequest) (page Page, err error) {
	ctx, op := s.observe(ctx, OpList)
	defer func() { op.finish(err) }()

	number, size := 0, s.paging.DefaultSize
	if req.Page != nil {
		number = *req.Page
	}
	if req.Size != nil {
		size = *req.Size
	}
	var verrs domain.ValidationErrors
	if number < 0 {
		verrs.Add("page", "must be greater than or equal to 0")
	}
	if size < 1 {
		verrs.Add("size", "must be greater than or equal to 1")
	}
	if req.Area != nil {
		if req.Area.Width < 1 {
			verrs.Add("area_width", "must be greater than or equal to 1")
		}
		if req.Area.Height < 1 {
			verrs.Add("area_height", "must be greater than or equal to 1")
		}
	}
	if err := verrs.Err(); err != nil {
		return Page{}, err
	}
	size = min(size, s.paging.MaxSize)

	offset := math.MaxInt
	if number <= math.MaxInt/size {
		offset = number * size
	}
	err = s.store.View(ctx, func(view TransactionView) error {
		if req.Area == nil {
			page = listAll(view, offset, size)
		} else {
			page = listFiltered(view, *req.Area, offset, size)
		}
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	page.Page, page.Size = number, size
	op.counted(len(page.Content))
	return page, nil
}

func listAll(view TransactionView, offset, size int) Page {
	total := view.Count()
	content := view.Page(offset, size)
	return Page{
		Total:   &total,
		HasNext: offset < total-size,
		Content: content,
	}
}

// listFiltered scans the whole ascending sequence, counting only matches
// toward the offset, and collects one match past the page to detect more.
func listFiltered(view TransactionView, area AreaFilter, offset, size int) Page {
	content := make([]Widget, 0, min(size+1, 64))
	matched := 0
	for w := range view.Ordered(domain.Ascending) {
		if !area.Match(w) {
			continue
		}
		matched++
		if matched <= offset {
			continue
		}
		content = append(content, w)
		if len(content) > size {
			break
		}
	}
	hasNext := len(content) > size
	if hasNext {
		content = content[:size]
	}
	return Page{HasNext: hasNext, Content: content}
}
