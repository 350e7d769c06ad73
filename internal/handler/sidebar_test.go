package handler

import (
	"testing"
	"time"

	"github.com/chatter/internal/model"
)

func preview(at time.Time) *model.LastMessagePreview {
	return &model.LastMessagePreview{Text: "msg", CreatedAt: at}
}

func TestSortSidebarNewestFirst(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	items := []model.SidebarItem{
		{ID: "old", LastMessage: preview(base)},
		{ID: "new", LastMessage: preview(base.Add(time.Hour))},
		{ID: "mid", LastMessage: preview(base.Add(time.Minute))},
	}

	sortSidebar(items)

	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if items[i].ID != id {
			t.Fatalf("position %d = %s, want %s (order %v)", i, items[i].ID, id, ids(items))
		}
	}
}

func TestSortSidebarNoMessageSinksLast(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	items := []model.SidebarItem{
		{ID: "silent-a"},
		{ID: "active", LastMessage: preview(base)},
		{ID: "silent-b"},
	}

	sortSidebar(items)

	if items[0].ID != "active" {
		t.Fatalf("active conversation must be first, got %v", ids(items))
	}
	// Без сообщений — в конце, взаимный порядок сохранён.
	if items[1].ID != "silent-a" || items[2].ID != "silent-b" {
		t.Fatalf("silent entries must keep relative order, got %v", ids(items))
	}
}

func TestSortSidebarEmpty(t *testing.T) {
	sortSidebar(nil)
	sortSidebar([]model.SidebarItem{})
}

func ids(items []model.SidebarItem) []string {
	out := make([]string, len(items))
	for i := range items {
		out[i] = items[i].ID
	}
	return out
}
