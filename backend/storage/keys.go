package storage

// Contract dashboard keys.
const (
	KeyContractData      = "contract-data"       // JSON model.ContractData
	KeyContractActiveTab = "contract-active-tab" // raw string
	KeyAPIConfig         = "api-config"          // JSON model.APIConfig
	KeyAnalysisType      = "analysis-type"       // JSON model.AnalysisType
	KeyCustomQuery       = "custom-query"        // raw string
)

// User preference and UI keys. ClearAll never touches these.
const (
	KeyTheme            = "app-theme"
	KeyLanguage         = "app-language"
	KeySidebarCollapsed = "sidebar-collapsed"
	KeyUploadMinimized  = "upload-minimized" // JSON bool
	KeyRecentUploads    = "recent-uploads"
	KeyRecentAnalyses   = "recent-analyses" // JSON []model.AnalysisRecord
)

// ContractKeys lists the keys owned by the contract dashboard.
func ContractKeys() []string {
	return []string{
		KeyContractData,
		KeyContractActiveTab,
		KeyAPIConfig,
		KeyAnalysisType,
		KeyCustomQuery,
	}
}

// ReservedKeys lists the preference and UI keys.
func ReservedKeys() []string {
	return []string{
		KeyTheme,
		KeyLanguage,
		KeySidebarCollapsed,
		KeyUploadMinimized,
		KeyRecentUploads,
		KeyRecentAnalyses,
	}
}
