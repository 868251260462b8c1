package mcp

import (
	"testing"

	"github.com/keygate/keygate/internal/console"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		val      int
		min      int
		max      int
		expected int
	}{
		{"value in range", 5, 1, 10, 5},
		{"value below min", -3, 1, 10, 1},
		{"value above max", 15, 1, 10, 10},
		{"value equals min", 1, 1, 10, 1},
		{"value equals max", 10, 1, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clamp(tt.val, tt.min, tt.max)
			if got != tt.expected {
				t.Errorf("clamp(%d, %d, %d) = %d, want %d", tt.val, tt.min, tt.max, got, tt.expected)
			}
		})
	}
}

func TestBoolPtr(t *testing.T) {
	truePtr := boolPtr(true)
	if truePtr == nil {
		t.Fatal("boolPtr(true) returned nil")
	}
	if *truePtr != true {
		t.Errorf("*boolPtr(true) = %v, want true", *truePtr)
	}

	falsePtr := boolPtr(false)
	if falsePtr == nil {
		t.Fatal("boolPtr(false) returned nil")
	}
	if *falsePtr != false {
		t.Errorf("*boolPtr(false) = %v, want false", *falsePtr)
	}

	// Verify they are distinct pointers
	if truePtr == falsePtr {
		t.Error("boolPtr(true) and boolPtr(false) should return distinct pointers")
	}
}

func TestReadOnlyAnnotation(t *testing.T) {
	ann := readOnlyAnnotation()

	if ann.ReadOnlyHint == nil {
		t.Fatal("ReadOnlyHint should not be nil for readOnlyAnnotation")
	}
	if *ann.ReadOnlyHint != true {
		t.Errorf("ReadOnlyHint = %v, want true", *ann.ReadOnlyHint)
	}
}

func TestMutatingAnnotation(t *testing.T) {
	ann := mutatingAnnotation()

	if ann.ReadOnlyHint == nil {
		t.Fatal("ReadOnlyHint should not be nil for mutatingAnnotation")
	}
	if *ann.ReadOnlyHint != false {
		t.Errorf("ReadOnlyHint = %v, want false", *ann.ReadOnlyHint)
	}
}

func TestDestructiveAnnotation(t *testing.T) {
	ann := destructiveAnnotation()

	if ann.DestructiveHint == nil || !*ann.DestructiveHint {
		t.Error("DestructiveHint should be true for destructiveAnnotation")
	}
	if ann.ReadOnlyHint == nil || *ann.ReadOnlyHint {
		t.Error("ReadOnlyHint should be false for destructiveAnnotation")
	}
}

func TestReplyResultMarksFailure(t *testing.T) {
	res, err := replyResult(console.Reply{Title: "Key Not Found", Tone: console.ToneDanger, Failed: true})
	if err != nil {
		t.Fatalf("replyResult: %v", err)
	}
	if !res.IsError {
		t.Error("failed reply should be a tool error")
	}

	// A nuke prompt is danger-toned but not a failure.
	res, err = replyResult(console.Reply{Title: "Confirm Nuke", Tone: console.ToneDanger, Ticket: "t"})
	if err != nil {
		t.Fatalf("replyResult: %v", err)
	}
	if res.IsError {
		t.Error("nuke prompt should not be a tool error")
	}
}
