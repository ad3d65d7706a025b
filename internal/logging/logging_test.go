package logging

import "testing"

func TestNewParsesLevel(t *testing.T) {
	logger, err := New("debug", false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Fatalf("expected debug to be enabled")
	}
	if _, err := New("chatty", false); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
}
