package agent

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryGeneric},
		{"empty input", errors.New("cannot process empty text parameter"), CategoryEmptyInput},
		{"database", errors.New("query complaints: database is locked"), CategoryStorage},
		{"sql", errors.New("sql: no rows in result set"), CategoryStorage},
		{"model", errors.New("model call failed (iter 0): connection refused"), CategoryInference},
		{"prediction", errors.New("prediction service returned 502"), CategoryInference},
		{"timeout", errors.New("context deadline exceeded: timeout"), CategoryPerformance},
		{"memory", errors.New("out of memory"), CategoryPerformance},
		{"permission", errors.New("permission denied"), CategoryAuthorization},
		{"access", errors.New("access token expired"), CategoryAuthorization},
		{"unmatched", errors.New("something odd happened"), CategoryGeneric},
		{"case insensitive", errors.New("DATABASE unreachable"), CategoryStorage},
		{"wrapped", fmt.Errorf("turn failed: %w", errors.New("sql driver gone")), CategoryStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// Priority order is first-match-wins: a message naming both storage and
// authorization keywords classifies as storage.
func TestClassifyPriority(t *testing.T) {
	err := errors.New("database permission denied")
	if got := Classify(err); got != CategoryStorage {
		t.Errorf("Classify(%v) = %v, want CategoryStorage", err, got)
	}
}

func TestCategoryMessageAlwaysText(t *testing.T) {
	for _, c := range []Category{
		CategoryGeneric, CategoryEmptyInput, CategoryStorage,
		CategoryInference, CategoryPerformance, CategoryAuthorization,
		Category(99),
	} {
		if c.Message() == "" {
			t.Errorf("Category(%d).Message() is empty", c)
		}
	}
}

func TestClassifyMessageGeneric(t *testing.T) {
	got := ClassifyMessage(errors.New("mystery"))
	want := "I encountered an error while processing your request. Please try again or contact support."
	if got != want {
		t.Errorf("ClassifyMessage = %q, want %q", got, want)
	}
}
