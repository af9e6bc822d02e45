package errors

import (
	"fmt"
	"testing"
)

func TestNotFound(t *testing.T) {
	err := NotFoundName("fsLockManager")

	if !IsNotFound(err) {
		t.Error("IsNotFound() should return true")
	}

	nerr, ok := AsNotFound(err)
	if !ok {
		t.Fatal("AsNotFound() should succeed")
	}
	if nerr.Name != "fsLockManager" {
		t.Errorf("Name = %q, want %q", nerr.Name, "fsLockManager")
	}
}

func TestNotFoundWrapped(t *testing.T) {
	err := fmt.Errorf("resolving manager: %w", NotFoundName("nope"))

	if !IsNotFound(err) {
		t.Error("IsNotFound() should see through wrapping")
	}

	nerr, ok := AsNotFound(err)
	if !ok {
		t.Fatal("AsNotFound() should succeed on wrapped error")
	}
	if nerr.Name != "nope" {
		t.Errorf("Name = %q, want %q", nerr.Name, "nope")
	}
}

func TestIsNotFoundOther(t *testing.T) {
	if IsNotFound(fmt.Errorf("boom")) {
		t.Error("IsNotFound() should return false for plain errors")
	}
	if IsNotFound(Config("bad config")) {
		t.Error("IsNotFound() should return false for config errors")
	}
}

func TestConfig(t *testing.T) {
	err := Config("registration failed")

	if !IsConfig(err) {
		t.Error("IsConfig() should return true")
	}
	if IsConfig(NotFoundName("x")) {
		t.Error("IsConfig() should return false for not found errors")
	}
}

func TestConfigAddError(t *testing.T) {
	err := Config("registration failed").
		AddError(fmt.Errorf("record 0: missing name")).
		AddError(nil).
		AddError(fmt.Errorf("record 2: missing kind"))

	if len(err.Errors) != 2 {
		t.Fatalf("len(Errors) = %d, want 2", len(err.Errors))
	}

	msg := err.Error()
	want := "registration failed; record 0: missing name; record 2: missing kind"
	if msg != want {
		t.Errorf("Error() = %q, want %q", msg, want)
	}
}
