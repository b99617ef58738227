package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"widgetcore/internal/core"
	"widgetcore/pkg/domain"
)

const maxBodyBytes = 1 << 20

// widgetRequest mirrors the widget JSON with pointer fields so that missing
// and explicitly supplied values can be told apart.
type widgetRequest struct {
	ID               *int64   `json:"id"`
	X                *int     `json:"x"`
	Y                *int     `json:"y"`
	Width            *float64 `json:"width"`
	Height           *float64 `json:"height"`
	Index            *int     `json:"index"`
	ModificationDate any      `json:"modificationDate"`
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var verrs domain.ValidationErrors
		if errors.Is(err, io.EOF) {
			verrs.Add("body", "request body is required")
		} else {
			verrs.Add("body", "invalid widget payload: "+err.Error())
		}
		return verrs
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		var verrs domain.ValidationErrors
		verrs.Add("body", "request body must contain a single JSON object")
		return verrs
	}
	return nil
}

func (req widgetRequest) common(verrs *domain.ValidationErrors) {
	if req.X == nil {
		verrs.Add("x", "must not be null")
	}
	if req.Y == nil {
		verrs.Add("y", "must not be null")
	}
	if req.Width == nil {
		verrs.Add("width", "must not be null")
	}
	if req.Height == nil {
		verrs.Add("height", "must not be null")
	}
	if req.ModificationDate != nil {
		verrs.Add("modificationDate", "must be null")
	}
}

func (req widgetRequest) draft() domain.WidgetDraft {
	return domain.WidgetDraft{
		X:      *req.X,
		Y:      *req.Y,
		Width:  *req.Width,
		Height: *req.Height,
		Index:  req.Index,
	}
}

// creation validates a create body: id is server-assigned and index optional.
func (req widgetRequest) creation() (domain.WidgetDraft, error) {
	var verrs domain.ValidationErrors
	if req.ID != nil {
		verrs.Add("id", "must be null")
	}
	req.common(&verrs)
	if err := verrs.Err(); err != nil {
		return domain.WidgetDraft{}, err
	}
	return req.draft(), nil
}

// update validates a replace body: every client field including index is
// required. The id comes from the path.
func (req widgetRequest) update() (domain.WidgetDraft, error) {
	var verrs domain.ValidationErrors
	req.common(&verrs)
	if req.Index == nil {
		verrs.Add("index", "must not be null")
	}
	if err := verrs.Err(); err != nil {
		return domain.WidgetDraft{}, err
	}
	return req.draft(), nil
}

func queryInt(q url.Values, name string, minValue *int, verrs *domain.ValidationErrors) *int {
	raw := q.Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		verrs.Add(name, "must be an integer")
		return nil
	}
	if minValue != nil && v < *minValue {
		verrs.Add(name, "must be greater than or equal to "+strconv.Itoa(*minValue))
		return nil
	}
	return &v
}

// parseListRequest reads page, size and the area_* parameters. Page and size
// only take effect together; the area filter needs all four coordinates.
func parseListRequest(q url.Values) (core.ListRequest, error) {
	zero, one := 0, 1
	var verrs domain.ValidationErrors
	page := queryInt(q, "page", &zero, &verrs)
	size := queryInt(q, "size", &one, &verrs)
	x := queryInt(q, "area_x", nil, &verrs)
	y := queryInt(q, "area_y", nil, &verrs)
	width := queryInt(q, "area_width", &one, &verrs)
	height := queryInt(q, "area_height", &one, &verrs)
	if err := verrs.Err(); err != nil {
		return core.ListRequest{}, err
	}

	var req core.ListRequest
	if page != nil && size != nil {
		req.Page, req.Size = page, size
	}
	if x != nil && y != nil && width != nil && height != nil {
		req.Area = &domain.AreaFilter{X: *x, Y: *y, Width: *width, Height: *height}
	}
	return req, nil
}
