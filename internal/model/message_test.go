package model

import "testing"

func TestPreviewText(t *testing.T) {
	m := &Message{Content: "hello there"}
	if got := m.PreviewText(); got != "hello there" {
		t.Fatalf("preview = %q, want content", got)
	}

	m.IsDeleted = true
	if got := m.PreviewText(); got != DeletedPlaceholder {
		t.Fatalf("deleted preview = %q, want %q", got, DeletedPlaceholder)
	}
	// Контент сохраняется — подменяется только представление.
	if m.Content != "hello there" {
		t.Fatalf("content changed by PreviewText: %q", m.Content)
	}
}
