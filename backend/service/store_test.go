package service

import (
	"errors"
	"testing"

	"github.com/AnTengye/contractdash/backend/model"
	"github.com/AnTengye/contractdash/backend/storage"
)

func newTestContractStorage() (*ContractStorage, *storage.MemoryBackend) {
	mem := storage.NewMemoryBackend()
	return NewContractStorage(storage.NewSafe(mem)), mem
}

func TestContractStorageDefaults(t *testing.T) {
	cs, _ := newTestContractStorage()

	if cs.ContractData() != nil {
		t.Error("Expected nil contract data")
	}
	if cs.HasContractData() {
		t.Error("Expected HasContractData to be false")
	}
	if cs.ActiveTab() != model.TabAnalysis {
		t.Errorf("Expected active tab %q, got %q", model.TabAnalysis, cs.ActiveTab())
	}
	if cs.APIConfig() != nil {
		t.Error("Expected nil API config")
	}
	if cs.AnalysisType().Type != model.KindContractReview {
		t.Errorf("Expected Contract Review, got %q", cs.AnalysisType().Type)
	}
	if cs.CustomQuery() != "" {
		t.Errorf("Expected empty custom query, got %q", cs.CustomQuery())
	}
}

func TestContractStorageContractData(t *testing.T) {
	cs, mem := newTestContractStorage()

	data := &model.ContractData{Analysis: "a", KeyPoints: "k", Negotiations: "n"}
	if err := cs.SetContractData(data); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got := cs.ContractData()
	if got == nil || *got != *data {
		t.Errorf("Expected %+v, got %+v", data, got)
	}

	raw, _, _ := mem.GetItem(storage.KeyContractData)
	if raw != `{"analysis":"a","keyPoints":"k","negotiations":"n"}` {
		t.Errorf("Unexpected stored JSON: %s", raw)
	}

	if err := cs.ClearContractData(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cs.ContractData() != nil {
		t.Error("Expected contract data to be cleared")
	}
}

func TestContractStorageRawStrings(t *testing.T) {
	cs, mem := newTestContractStorage()

	if err := cs.SetActiveTab(model.TabNegotiations); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := cs.SetCustomQuery("flag indemnity clauses"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// stored verbatim, not JSON-encoded
	if raw, _, _ := mem.GetItem(storage.KeyContractActiveTab); raw != "negotiations" {
		t.Errorf("Expected raw tab, got %q", raw)
	}
	if raw, _, _ := mem.GetItem(storage.KeyCustomQuery); raw != "flag indemnity clauses" {
		t.Errorf("Expected raw query, got %q", raw)
	}

	if cs.ActiveTab() != model.TabNegotiations {
		t.Errorf("Expected negotiations, got %q", cs.ActiveTab())
	}
	if cs.CustomQuery() != "flag indemnity clauses" {
		t.Errorf("Unexpected custom query %q", cs.CustomQuery())
	}

	// an empty stored tab falls back to the default
	if err := cs.SetActiveTab(""); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cs.ActiveTab() != model.TabAnalysis {
		t.Errorf("Expected fallback tab, got %q", cs.ActiveTab())
	}
}

func TestContractStorageAPIConfigAndType(t *testing.T) {
	cs, _ := newTestContractStorage()

	if err := cs.SetAPIConfig(&model.APIConfig{OpenAIAPIKey: "sk-test"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg := cs.APIConfig(); cfg == nil || cfg.OpenAIAPIKey != "sk-test" {
		t.Errorf("Unexpected API config %+v", cfg)
	}

	at := model.AnalysisType{Type: model.KindCustomQuery, CustomQuery: "q"}
	if err := cs.SetAnalysisType(at); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cs.AnalysisType() != at {
		t.Errorf("Expected %+v, got %+v", at, cs.AnalysisType())
	}
}

func TestContractStorageMalformedJSON(t *testing.T) {
	cs, mem := newTestContractStorage()
	mem.SetItem(storage.KeyAnalysisType, "{oops")
	mem.SetItem(storage.KeyContractData, "not json")

	if cs.AnalysisType().Type != model.KindContractReview {
		t.Errorf("Expected default analysis type, got %+v", cs.AnalysisType())
	}
	if cs.ContractData() != nil {
		t.Error("Expected nil contract data for malformed JSON")
	}
}

func TestContractStorageClearAll(t *testing.T) {
	cs, mem := newTestContractStorage()

	for _, key := range storage.ContractKeys() {
		mem.SetItem(key, `"x"`)
	}
	reserved := map[string]string{}
	for i, key := range storage.ReservedKeys() {
		v := string(rune('a' + i))
		mem.SetItem(key, v)
		reserved[key] = v
	}

	if err := cs.ClearAll(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for _, key := range storage.ContractKeys() {
		if _, ok, _ := mem.GetItem(key); ok {
			t.Errorf("Expected %s to be removed", key)
		}
	}
	for key, want := range reserved {
		got, ok, _ := mem.GetItem(key)
		if !ok || got != want {
			t.Errorf("Expected reserved key %s to keep %q, got %q", key, want, got)
		}
	}
}

func TestContractStorageUnavailable(t *testing.T) {
	cs := NewContractStorage(storage.NewSafe(nil))

	if cs.ActiveTab() != model.TabAnalysis {
		t.Errorf("Expected default tab, got %q", cs.ActiveTab())
	}
	if err := cs.SetContractData(&model.ContractData{}); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}

	err := cs.ClearAll()
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	var opErr *storage.OpError
	if !errors.As(err, &opErr) || opErr.Op != "remove" {
		t.Errorf("Expected remove OpError, got %v", err)
	}
}
