package partition

import "testing"

func TestTotalPages(t *testing.T) {
	tests := []struct {
		name         string
		totalItems   int
		itemsPerPage int
		expected     int
	}{
		{"exact division", 90, 30, 3},
		{"partial trailing page rounds up", 250, 30, 9},
		{"fallback count", 9969, 30, 333},
		{"single item", 1, 30, 1},
		{"empty catalog", 0, 30, 0},
		{"invalid page size", 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TotalPages(tt.totalItems, tt.itemsPerPage); got != tt.expected {
				t.Errorf("TotalPages(%d, %d) = %d, expected %d", tt.totalItems, tt.itemsPerPage, got, tt.expected)
			}
		})
	}
}

// checkPartition verifies that batches cover [1, totalPages] exactly
// once, in order, with no batch exceeding batchSize
func checkPartition(t *testing.T, batches [][]int, totalPages, batchSize int) {
	t.Helper()

	expectedBatches := (totalPages + batchSize - 1) / batchSize
	if len(batches) != expectedBatches {
		t.Fatalf("Expected %d batches, got %d", expectedBatches, len(batches))
	}

	next := 1
	for i, pages := range batches {
		if len(pages) == 0 || len(pages) > batchSize {
			t.Fatalf("Batch %d has %d pages, batch size is %d", i, len(pages), batchSize)
		}
		for _, page := range pages {
			if page != next {
				t.Fatalf("Expected page %d, got %d in batch %d", next, page, i)
			}
			next++
		}
	}
	if next != totalPages+1 {
		t.Errorf("Coverage ended at page %d, expected %d", next-1, totalPages)
	}
}

func TestPlan_SingleShortBatch(t *testing.T) {
	// 250 items at 30 per page need 9 pages, well under one batch of 120
	batches := Plan(9, 120)

	if len(batches) != 1 {
		t.Fatalf("Expected 1 batch, got %d", len(batches))
	}
	checkPartition(t, batches, 9, 120)
}

func TestPlan_ExactMultiple(t *testing.T) {
	checkPartition(t, Plan(240, 120), 240, 120)
}

func TestPlan_ShortTrailingBatch(t *testing.T) {
	batches := Plan(300, 120)

	checkPartition(t, batches, 300, 120)
	if len(batches[2]) != 60 {
		t.Errorf("Expected trailing batch of 60 pages, got %d", len(batches[2]))
	}
}

func TestPlan_Degenerate(t *testing.T) {
	if Plan(0, 120) != nil {
		t.Error("Expected nil plan for zero pages")
	}
	if Plan(10, 0) != nil {
		t.Error("Expected nil plan for zero batch size")
	}
}
