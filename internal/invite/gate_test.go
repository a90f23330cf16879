package invite

import (
	"strings"
	"testing"

	"eeglab/internal/store"
	"eeglab/pkg/domain"
)

func TestBootstrapCodeIsReusableAdmin(t *testing.T) {
	g := NewGate(store.NewMemoryStore())

	for i := 0; i < 3; i++ {
		role, ok, err := g.ValidateAndConsume("LAB-2025")
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !ok || role != domain.RoleAdmin {
			t.Fatalf("attempt %d: expected reusable Admin code, got ok=%v role=%s", i, ok, role)
		}
	}
}

func TestBootstrapCodeNormalization(t *testing.T) {
	g := NewGate(store.NewMemoryStore())
	role, ok, err := g.ValidateAndConsume("  lab-2025 ")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !ok || role != domain.RoleAdmin {
		t.Fatalf("expected Admin after normalization, got ok=%v role=%s", ok, role)
	}
}

func TestGeneratedCodeShape(t *testing.T) {
	g := NewGate(store.NewMemoryStore())
	inv, err := g.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(inv.Code, "INV-") {
		t.Fatalf("expected INV- prefix, got %s", inv.Code)
	}
	suffix := strings.TrimPrefix(inv.Code, "INV-")
	if len(suffix) != 6 {
		t.Fatalf("expected 6 code characters, got %q", suffix)
	}
	if suffix != strings.ToUpper(suffix) {
		t.Fatalf("expected uppercase code, got %q", suffix)
	}
	if inv.Role != domain.RoleResearcher {
		t.Fatalf("generated invites grant Researcher, got %s", inv.Role)
	}
}

func TestGeneratedCodeIsSingleUse(t *testing.T) {
	s := store.NewMemoryStore()
	g := NewGate(s)
	inv, err := g.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	role, ok, err := g.ValidateAndConsume(inv.Code)
	if err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if !ok || role != domain.RoleResearcher {
		t.Fatalf("first redemption expected Researcher, got ok=%v role=%s", ok, role)
	}

	if _, ok, _ := g.ValidateAndConsume(inv.Code); ok {
		t.Fatal("second redemption must fail")
	}
	if _, ok, _ := s.GetInvite(inv.Code); ok {
		t.Fatal("redeemed invite must be deleted")
	}
}

func TestUnknownAndEmptyCodesRejected(t *testing.T) {
	g := NewGate(store.NewMemoryStore())
	if _, ok, _ := g.ValidateAndConsume("INV-ZZZZZZ"); ok {
		t.Fatal("unknown code must be rejected")
	}
	if _, ok, _ := g.ValidateAndConsume("   "); ok {
		t.Fatal("blank code must be rejected")
	}
}
