package bean

import (
	"errors"
	"testing"
)

// 测试注册顺序与覆盖
func TestRegistryOverwriteKeepsOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"a", "b", "c"} {
		if err := r.Register(NewDefinition(name, TypeOf[*plainBean]())); err != nil {
			t.Fatal(err)
		}
	}

	// 覆盖 b
	replacement := NewDefinition("b", TypeOf[*plainBean](), WithPrototype())
	if err := r.Register(replacement); err != nil {
		t.Fatal(err)
	}

	names := r.Names()
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Fatalf("unexpected order %v", names)
	}

	def, err := r.Lookup("b")
	if err != nil {
		t.Fatal(err)
	}
	if def != replacement {
		t.Error("expected latest definition")
	}
}

func TestRegistryLookupMissing(t *testing.T) {
	r := NewRegistry()

	_, err := r.Lookup("nope")
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Name != "nope" {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	if err := r.Register(nil); err == nil {
		t.Error("expected error for nil definition")
	}
	if err := r.Register(&Definition{}); err == nil {
		t.Error("expected error for empty name")
	}
}
