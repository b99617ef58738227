package httpapi

import (
	"net/url"
	"testing"
)

func TestParseListRequestCombinesParameters(t *testing.T) {
	q, _ := url.ParseQuery("page=2&size=5&area_x=-3&area_y=4&area_width=10&area_height=20")
	req, err := parseListRequest(q)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Page == nil || *req.Page != 2 || req.Size == nil || *req.Size != 5 {
		t.Fatalf("unexpected paging %+v", req)
	}
	if req.Area == nil || req.Area.X != -3 || req.Area.Y != 4 || req.Area.Width != 10 || req.Area.Height != 20 {
		t.Fatalf("unexpected area %+v", req.Area)
	}
}

func TestParseListRequestIgnoresPartialGroups(t *testing.T) {
	q, _ := url.ParseQuery("size=5&area_x=1&area_y=1&area_width=3")
	req, err := parseListRequest(q)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Page != nil || req.Size != nil || req.Area != nil {
		t.Fatalf("expected no paging and no area, got %+v", req)
	}
}

func TestWidgetRequestUpdateRequiresIndex(t *testing.T) {
	x, w := 1, 2.0
	req := widgetRequest{X: &x, Y: &x, Width: &w, Height: &w}
	if _, err := req.creation(); err != nil {
		t.Fatalf("creation should accept missing index: %v", err)
	}
	if _, err := req.update(); err == nil {
		t.Fatalf("update should require index")
	}
	req.Index = &x
	draft, err := req.update()
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if draft.Index == nil || *draft.Index != 1 || draft.Width != 2 {
		t.Fatalf("unexpected draft %+v", draft)
	}
}
