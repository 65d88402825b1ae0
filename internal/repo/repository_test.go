package repo_test

import (
	"testing"

	"github.com/hamed0406/vmwatchdog/internal/domain"
	"github.com/hamed0406/vmwatchdog/internal/repo"
	"github.com/hamed0406/vmwatchdog/internal/repo/memory"
	"github.com/hamed0406/vmwatchdog/internal/repo/yamlfile"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.MachineStore = memory.New()
	var _ repo.MachineStore = (*yamlfile.Store)(nil)
}

func TestDedupe(t *testing.T) {
	in := []domain.Machine{
		{Name: "a", URL: "u1"},
		{Name: "b", URL: "u2"},
		{Name: "a", URL: "u3"},
	}
	out, dropped := repo.Dedupe(in)
	if len(out) != 2 || out[0].URL != "u1" || out[1].Name != "b" {
		t.Fatalf("unexpected result: %+v", out)
	}
	if len(dropped) != 1 || dropped[0] != "a" {
		t.Fatalf("unexpected dropped: %v", dropped)
	}
}
