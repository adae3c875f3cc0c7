package query

import (
	"reflect"
	"testing"

	"RecallSentinel/internal/model"
)

func TestBuild_FullProduct(t *testing.T) {
	p := &model.BannedProduct{
		Name:         "Dream On Me Bassinet",
		Manufacturer: "Dream On Me",
		ModelNumbers: []string{"BA-100", "BA-200"},
	}
	got := Build(p)
	want := []string{
		"Dream On Me Bassinet",
		"Dream On Me Bassinet Dream On Me",
		"BA-100",
		"BA-200",
		"Dream On Me BA-100",
		"Dream On Me BA-200",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestBuild_SkipsBlankFields(t *testing.T) {
	p := &model.BannedProduct{
		Name:         "   ",
		Manufacturer: "Acme",
		ModelNumbers: []string{"", "  ", "X-9"},
	}
	got := Build(p)
	want := []string{"X-9", "Acme X-9"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestBuild_EmptyProduct(t *testing.T) {
	if got := Build(&model.BannedProduct{}); len(got) != 0 {
		t.Errorf("expected no queries for empty product, got %q", got)
	}
}

func TestBuild_Dedup(t *testing.T) {
	p := &model.BannedProduct{
		Name:         "X-9",
		Manufacturer: "Acme",
		ModelNumbers: []string{"X-9", "x-9"},
	}
	got := Build(p)
	want := []string{"X-9", "X-9 Acme", "Acme X-9"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestBuild_NormalizesWhitespace(t *testing.T) {
	p := &model.BannedProduct{Name: "Turbo   Heater  3000"}
	got := Build(p)
	if len(got) != 1 || got[0] != "Turbo Heater 3000" {
		t.Errorf("Build() = %q, want [\"Turbo Heater 3000\"]", got)
	}
}

func TestBuild_Restartable(t *testing.T) {
	p := &model.BannedProduct{Name: "Widget", ModelNumbers: []string{"W1"}}
	first := Build(p)
	second := Build(p)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated builds differ: %q vs %q", first, second)
	}
}
