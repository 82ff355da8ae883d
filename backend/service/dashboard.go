package service

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AnTengye/contractdash/backend/model"
	"github.com/AnTengye/contractdash/backend/pkg/logger"
	"github.com/AnTengye/contractdash/backend/state"
	"github.com/AnTengye/contractdash/backend/storage"
)

var (
	ErrNotConfigured      = errors.New("API settings not configured")
	ErrAnalysisInProgress = errors.New("an analysis is already in progress")
	ErrInvalidTab         = errors.New("unknown dashboard tab")
)

// Analyzer sends a document to the analysis API.
type Analyzer interface {
	UploadAndAnalyze(ctx context.Context, cfg model.APIConfig, file Upload, at model.AnalysisType) (*model.ContractData, error)
}

// DashboardOptions configures a Dashboard.
type DashboardOptions struct {
	Tenant       string
	HistoryLimit int     // recent analyses kept, 0 = unlimited
	Archive      Archive // optional
}

// Snapshot is everything needed to render a dashboard.
type Snapshot struct {
	Tenant          string              `json:"tenant"`
	ContractData    *model.ContractData `json:"contractData"`
	ActiveTab       string              `json:"activeTab"`
	AnalysisType    model.AnalysisType  `json:"analysisType"`
	CustomQuery     string              `json:"customQuery"`
	Configured      bool                `json:"configured"`
	MaskedAPIKey    string              `json:"maskedApiKey,omitempty"`
	UploadMinimized bool                `json:"uploadMinimized"`
	Restored        bool                `json:"restored"`
	Analyzing       bool                `json:"analyzing"`
}

// Dashboard is one tenant's contract analysis workspace. Its state lives in
// the tenant's storage; the in-memory copies follow changes made by other
// handles on the same store.
type Dashboard struct {
	tenant   string
	store    *ContractStorage
	analyzer Analyzer
	archive  Archive

	apiConfig    *state.Synced[*model.APIConfig]
	analysisType *state.Synced[model.AnalysisType]
	minimized    *state.Flag
	history      *state.List[model.AnalysisRecord]

	mu        sync.RWMutex
	data      *model.ContractData
	unsaved   map[string]string // raw settings whose last write missed storage
	analyzing atomic.Bool
}

// NewDashboard restores a dashboard from s. A stored analysis result
// minimizes the upload card.
func NewDashboard(s *storage.Safe, analyzer Analyzer, opts DashboardOptions) *Dashboard {
	d := &Dashboard{
		tenant:       opts.Tenant,
		store:        NewContractStorage(s),
		analyzer:     analyzer,
		archive:      opts.Archive,
		apiConfig:    state.NewSynced[*model.APIConfig](s, storage.KeyAPIConfig, nil),
		analysisType: state.NewSynced(s, storage.KeyAnalysisType, model.DefaultAnalysisType()),
		minimized:    state.NewFlag(s, storage.KeyUploadMinimized, false),
		history:      state.NewList[model.AnalysisRecord](s, storage.KeyRecentAnalyses, nil, state.WithLimit(opts.HistoryLimit)),
		unsaved:      make(map[string]string),
	}

	ctx := logger.WithTenant(context.Background(), d.tenant)
	d.apiConfig.OnChange(func(cfg *model.APIConfig) {
		logger.Info(ctx, "API settings changed by another process", "configured", cfg != nil)
	})
	d.analysisType.OnChange(func(at model.AnalysisType) {
		logger.Info(ctx, "analysis type changed by another process", "analysis_type", at.Type)
	})

	if data := d.store.ContractData(); data != nil {
		d.data = data
		if err := d.minimized.SetTrue(); err != nil {
			logger.Warn(ctx, "failed to persist upload state", "error", err)
		}
		logger.Debug(ctx, "previous analysis restored from storage")
	}
	return d
}

// Tenant returns the owning tenant.
func (d *Dashboard) Tenant() string { return d.tenant }

// Snapshot returns the current dashboard state.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.RLock()
	data := d.data
	d.mu.RUnlock()

	cfg := d.apiConfig.Get()
	return Snapshot{
		Tenant:          d.tenant,
		ContractData:    data,
		ActiveTab:       d.activeTab(),
		AnalysisType:    d.analysisType.Get(),
		CustomQuery:     d.customQuery(),
		Configured:      cfg != nil,
		MaskedAPIKey:    cfg.MaskedKey(),
		UploadMinimized: d.minimized.Value(),
		Restored:        data != nil && d.store.HasContractData(),
		Analyzing:       d.analyzing.Load(),
	}
}

// APIConfig returns a copy of the configured API settings, or nil.
func (d *Dashboard) APIConfig() *model.APIConfig {
	cfg := d.apiConfig.Get()
	if cfg == nil {
		return nil
	}
	c := *cfg
	return &c
}

// ConfigureAPI stores the API settings. An empty key is rejected.
func (d *Dashboard) ConfigureAPI(cfg model.APIConfig) error {
	if !cfg.HasCredential() {
		return ErrAPIKeyMissing
	}
	return d.apiConfig.Set(&cfg)
}

// SelectAnalysisType switches the analysis kind. The custom query text is
// kept separately and survives the switch.
func (d *Dashboard) SelectAnalysisType(kind string) error {
	k, err := model.ParseAnalysisKind(kind)
	if err != nil {
		return err
	}
	return d.analysisType.Set(model.AnalysisType{Type: k})
}

// SetCustomQuery keeps q even when it cannot be persisted; the error is
// returned for logging only.
func (d *Dashboard) SetCustomQuery(q string) error {
	return d.setRaw(storage.KeyCustomQuery, q, d.store.SetCustomQuery)
}

func (d *Dashboard) SetActiveTab(tab string) error {
	if !model.ValidTab(tab) {
		return ErrInvalidTab
	}
	return d.setRaw(storage.KeyContractActiveTab, tab, d.store.SetActiveTab)
}

func (d *Dashboard) activeTab() string {
	return d.raw(storage.KeyContractActiveTab, d.store.ActiveTab)
}

func (d *Dashboard) customQuery() string {
	return d.raw(storage.KeyCustomQuery, d.store.CustomQuery)
}

// raw prefers a value that failed to persist over what storage holds.
func (d *Dashboard) raw(key string, stored func() string) string {
	d.mu.RLock()
	v, ok := d.unsaved[key]
	d.mu.RUnlock()
	if ok {
		return v
	}
	return stored()
}

func (d *Dashboard) setRaw(key, value string, persist func(string) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := persist(value); err != nil {
		d.unsaved[key] = value
		return err
	}
	delete(d.unsaved, key)
	return nil
}

func (d *Dashboard) SetUploadMinimized(minimized bool) error {
	return d.minimized.Set(minimized)
}

// Analyze uploads a document with the current settings. Only one analysis
// runs per dashboard at a time. The result is persisted and the attempt is
// added to the history whether it succeeds or not.
func (d *Dashboard) Analyze(ctx context.Context, upload Upload) (*model.ContractData, error) {
	ctx = logger.WithTenant(ctx, d.tenant)

	cfg := d.apiConfig.Get()
	if cfg == nil {
		return nil, ErrNotConfigured
	}
	if !d.analyzing.CompareAndSwap(false, true) {
		return nil, ErrAnalysisInProgress
	}
	defer d.analyzing.Store(false)

	if err := d.minimized.SetTrue(); err != nil {
		logger.Warn(ctx, "failed to persist upload state", "error", err)
	}

	at := d.analysisType.Get()
	if at.IsCustom() {
		at.CustomQuery = d.customQuery()
	}
	upload.ContentType = upload.DetectedContentType()

	record := model.AnalysisRecord{
		ID:           uuid.NewString(),
		Filename:     upload.Filename,
		ContentType:  upload.ContentType,
		AnalysisType: at.Type,
		CreatedAt:    time.Now(),
	}
	logger.Info(ctx, "starting analysis",
		"record_id", record.ID,
		"filename", upload.Filename,
		"analysis_type", at.Type,
		"size", len(upload.Content),
	)

	data, err := d.analyzer.UploadAndAnalyze(ctx, *cfg, upload, at)
	if err != nil {
		logger.Error(ctx, "analysis failed", "record_id", record.ID, "error", err)
		record.Status = model.StatusFailed
		record.ErrorMsg = err.Error()
		d.addHistory(ctx, record)
		return nil, err
	}

	d.mu.Lock()
	d.data = data
	d.mu.Unlock()
	if err := d.store.SetContractData(data); err != nil {
		logger.Warn(ctx, "failed to persist analysis result", "record_id", record.ID, "error", err)
	}

	record.Status = model.StatusCompleted
	if d.archive != nil {
		record.ArchiveObject, record.ArchiveURL = d.archiveUpload(ctx, record.ID, upload)
	}
	d.addHistory(ctx, record)

	logger.Info(ctx, "analysis completed", "record_id", record.ID)
	return data, nil
}

// archiveUpload returns the stored object name, empty when the upload could
// not be archived, and its download URL if one could be signed.
func (d *Dashboard) archiveUpload(ctx context.Context, recordID string, upload Upload) (objectName, url string) {
	objectName = ArchiveObjectName(d.tenant, recordID, upload.Filename)
	if err := d.archive.Store(ctx, objectName, bytes.NewReader(upload.Content), int64(len(upload.Content)), upload.ContentType); err != nil {
		logger.Warn(ctx, "failed to archive upload", "object", objectName, "error", err)
		return "", ""
	}
	url, err := d.archive.URL(ctx, objectName)
	if err != nil {
		logger.Warn(ctx, "failed to sign archive URL", "object", objectName, "error", err)
		return objectName, ""
	}
	return objectName, url
}

func (d *Dashboard) addHistory(ctx context.Context, record model.AnalysisRecord) {
	dropped, err := d.history.Push(record)
	if err != nil {
		logger.Warn(ctx, "failed to record analysis history", "record_id", record.ID, "error", err)
	}
	d.deleteArchives(ctx, dropped)
}

// deleteArchives removes the archived uploads of records leaving the history.
func (d *Dashboard) deleteArchives(ctx context.Context, records []model.AnalysisRecord) {
	if d.archive == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, r := range records {
		if r.ArchiveObject == "" {
			continue
		}
		if err := d.archive.Delete(ctx, r.ArchiveObject); err != nil {
			logger.Warn(ctx, "failed to delete archived upload", "record_id", r.ID, "object", r.ArchiveObject, "error", err)
		}
	}
}

// History returns recent analyses, newest first.
func (d *Dashboard) History() []model.AnalysisRecord {
	items := d.history.Items()
	slices.Reverse(items)
	return items
}

// ClearHistory empties the history and deletes the archived uploads it
// referenced. Only the storage error is returned; archive failures are logged.
func (d *Dashboard) ClearHistory(ctx context.Context) error {
	ctx = logger.WithTenant(ctx, d.tenant)
	removed, err := d.history.Drain()
	if err != nil {
		logger.Warn(ctx, "failed to persist cleared history", "error", err)
	}
	d.deleteArchives(ctx, removed)
	return err
}

// NewUpload discards the current result so another document can be
// analyzed. Settings are kept.
func (d *Dashboard) NewUpload() error {
	d.mu.Lock()
	d.data = nil
	d.mu.Unlock()

	return errors.Join(
		d.minimized.SetFalse(),
		d.store.ClearContractData(),
	)
}

// ClearAll forgets the result and every setting. Preferences and the
// analysis history are kept.
func (d *Dashboard) ClearAll() error {
	d.mu.Lock()
	d.data = nil
	cleared := d.store.ClearAll()
	clear(d.unsaved)
	if cleared != nil {
		d.unsaved[storage.KeyContractActiveTab] = model.TabAnalysis
		d.unsaved[storage.KeyCustomQuery] = ""
	}
	d.mu.Unlock()

	err := errors.Join(
		d.apiConfig.Reset(),
		d.analysisType.Reset(),
		d.minimized.SetFalse(),
		cleared,
	)
	if err != nil {
		logger.Warn(logger.WithTenant(context.Background(), d.tenant), "clear all incomplete", "error", err)
	}
	return err
}

// StorageAvailable probes the tenant's storage.
func (d *Dashboard) StorageAvailable() bool {
	return d.store.Safe().IsAvailable()
}

// Close stops following external changes.
func (d *Dashboard) Close() {
	d.apiConfig.Close()
	d.analysisType.Close()
}

// Registry hands out one Dashboard per tenant, each over its own namespace
// of a shared backend.
type Registry struct {
	backend  storage.Backend
	analyzer Analyzer
	opts     DashboardOptions

	mu         sync.Mutex
	dashboards map[string]*Dashboard
}

// NewRegistry creates dashboards on demand. opts.Tenant is ignored.
func NewRegistry(backend storage.Backend, analyzer Analyzer, opts DashboardOptions) *Registry {
	return &Registry{
		backend:    backend,
		analyzer:   analyzer,
		opts:       opts,
		dashboards: make(map[string]*Dashboard),
	}
}

// Get returns the tenant's dashboard, creating it on first use.
func (r *Registry) Get(tenant string) *Dashboard {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.dashboards[tenant]; ok {
		return d
	}

	var backend storage.Backend
	if r.backend != nil {
		backend = storage.Namespace(r.backend, tenant)
	}
	opts := r.opts
	opts.Tenant = tenant
	d := NewDashboard(storage.NewSafe(backend), r.analyzer, opts)
	r.dashboards[tenant] = d
	return d
}

// Close closes every dashboard handed out.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tenant, d := range r.dashboards {
		d.Close()
		delete(r.dashboards, tenant)
	}
}
