package service

import (
	"errors"

	"github.com/AnTengye/contractdash/backend/model"
	"github.com/AnTengye/contractdash/backend/storage"
)

// ContractStorage names the dashboard's persisted keys and their defaults.
// Structured values go through the JSON codec; the active tab and the custom
// query are stored as raw strings.
type ContractStorage struct {
	safe         *storage.Safe
	contractData *storage.Manager[*model.ContractData]
	apiConfig    *storage.Manager[*model.APIConfig]
	analysisType *storage.Manager[model.AnalysisType]
}

func NewContractStorage(s *storage.Safe) *ContractStorage {
	return &ContractStorage{
		safe:         s,
		contractData: storage.NewManager[*model.ContractData](s, storage.KeyContractData, nil),
		apiConfig:    storage.NewManager[*model.APIConfig](s, storage.KeyAPIConfig, nil),
		analysisType: storage.NewManager(s, storage.KeyAnalysisType, model.DefaultAnalysisType()),
	}
}

// Safe returns the underlying storage.
func (c *ContractStorage) Safe() *storage.Safe {
	return c.safe
}

// ContractData returns the last analysis result, or nil.
func (c *ContractStorage) ContractData() *model.ContractData {
	return c.contractData.Get()
}

func (c *ContractStorage) SetContractData(data *model.ContractData) error {
	return c.contractData.Set(data)
}

func (c *ContractStorage) ClearContractData() error {
	return c.contractData.Remove()
}

// HasContractData reports whether a result is persisted.
func (c *ContractStorage) HasContractData() bool {
	return c.contractData.Exists()
}

// ActiveTab returns the stored tab, or "analysis" when none or empty.
func (c *ContractStorage) ActiveTab() string {
	if tab, ok := c.safe.Get(storage.KeyContractActiveTab); ok && tab != "" {
		return tab
	}
	return model.TabAnalysis
}

func (c *ContractStorage) SetActiveTab(tab string) error {
	return c.safe.Set(storage.KeyContractActiveTab, tab)
}

// APIConfig returns the stored API settings, or nil.
func (c *ContractStorage) APIConfig() *model.APIConfig {
	return c.apiConfig.Get()
}

func (c *ContractStorage) SetAPIConfig(cfg *model.APIConfig) error {
	return c.apiConfig.Set(cfg)
}

// AnalysisType returns the stored selection, defaulting to Contract Review.
func (c *ContractStorage) AnalysisType() model.AnalysisType {
	return c.analysisType.Get()
}

func (c *ContractStorage) SetAnalysisType(at model.AnalysisType) error {
	return c.analysisType.Set(at)
}

// CustomQuery returns the stored query text, or "".
func (c *ContractStorage) CustomQuery() string {
	q, _ := c.safe.Get(storage.KeyCustomQuery)
	return q
}

func (c *ContractStorage) SetCustomQuery(q string) error {
	return c.safe.Set(storage.KeyCustomQuery, q)
}

// ClearAll removes the contract dashboard keys. Preference and history keys
// are left alone. Every key is attempted; failures are joined.
func (c *ContractStorage) ClearAll() error {
	var errs []error
	for _, key := range storage.ContractKeys() {
		if err := c.safe.Remove(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
