package model

import (
	"fmt"
	"strings"
	"time"
)

// ContractData is the normalized analysis result rendered by the dashboard
type ContractData struct {
	Analysis     string `json:"analysis"`
	KeyPoints    string `json:"keyPoints"`
	Negotiations string `json:"negotiations"`
}

// APIConfig holds the credential and connection settings for the analysis API
type APIConfig struct {
	OpenAIAPIKey string `json:"openaiApiKey"`
	BaseURL      string `json:"baseUrl,omitempty"`
}

// HasCredential reports whether an API key is present.
func (c *APIConfig) HasCredential() bool {
	return c != nil && strings.TrimSpace(c.OpenAIAPIKey) != ""
}

// MaskedKey returns the key with everything but the last four characters hidden.
func (c *APIConfig) MaskedKey() string {
	if !c.HasCredential() {
		return ""
	}
	key := c.OpenAIAPIKey
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

// AnalysisKind is the tag sent to the analysis API as analysis_type
type AnalysisKind string

// AnalysisKind constants
const (
	KindContractReview AnalysisKind = "Contract Review"
	KindLegalResearch  AnalysisKind = "Legal Research"
	KindRiskAssessment AnalysisKind = "Risk Assessment"
	KindCustomQuery    AnalysisKind = "Custom Query"
)

// AnalysisKinds lists the supported kinds in display order.
func AnalysisKinds() []AnalysisKind {
	return []AnalysisKind{KindContractReview, KindLegalResearch, KindRiskAssessment, KindCustomQuery}
}

// ParseAnalysisKind validates s against the supported kinds.
func ParseAnalysisKind(s string) (AnalysisKind, error) {
	for _, k := range AnalysisKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown analysis type %q", s)
}

// AnalysisType is the selected analysis. CustomQuery is only meaningful for KindCustomQuery.
type AnalysisType struct {
	Type        AnalysisKind `json:"type"`
	CustomQuery string       `json:"customQuery,omitempty"`
}

// DefaultAnalysisType is used when nothing has been selected yet.
func DefaultAnalysisType() AnalysisType {
	return AnalysisType{Type: KindContractReview}
}

// IsCustom reports whether the analysis carries a free-text query.
func (a AnalysisType) IsCustom() bool {
	return a.Type == KindCustomQuery
}

// Dashboard tabs
const (
	TabAnalysis     = "analysis"
	TabKeyPoints    = "keyPoints"
	TabNegotiations = "negotiations"
)

// ValidTab reports whether tab names one of the detail tabs.
func ValidTab(tab string) bool {
	switch tab {
	case TabAnalysis, TabKeyPoints, TabNegotiations:
		return true
	}
	return false
}

// AnalysisRecord is one entry of the recent-analyses history
type AnalysisRecord struct {
	ID            string       `json:"id"`
	Filename      string       `json:"filename"`
	ContentType   string       `json:"contentType,omitempty"`
	AnalysisType  AnalysisKind `json:"analysisType"`
	Status        string       `json:"status"` // completed, failed
	ArchiveURL    string       `json:"archiveUrl,omitempty"`
	ArchiveObject string       `json:"archiveObject,omitempty"`
	ErrorMsg      string       `json:"errorMsg,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// AnalysisRecord status constants
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)
