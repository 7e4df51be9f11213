package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"batch-transcriber/internal/batch"
	"batch-transcriber/internal/config"
	"batch-transcriber/internal/diagnostics"
	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/jobs"
	"batch-transcriber/internal/scan"
	"batch-transcriber/internal/transcribe"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const fileEventName = "batch:event"

var errInterruptedPending = fmt.Errorf("%w: call CheckForInterruptedBatch to resume or discard it", batch.ErrActiveSlotTaken)

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Media files",
		Pattern:     "*.mp3;*.wav;*.flac;*.m4a;*.ogg;*.wma;*.aac;*.mp4;*.avi;*.mkv;*.mov;*.wmv;*.webm;*.flv",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// ProcessorFactory builds the per-batch file processor.
type ProcessorFactory func(settings domain.Settings, batchSettings domain.BatchSettings) batch.Processor

// urlDownloader fetches remote media, playlists included, to local files.
type urlDownloader interface {
	DownloadAll(ctx context.Context, url string) (transcribe.DownloadResult, error)
}

// tempSweeper removes orphaned temporary audio.
type tempSweeper interface {
	CleanupAll(olderThan time.Duration, keep ...string) (int, error)
}

// ResumeOutcome reports what CheckForInterruptedBatch did.
type ResumeOutcome struct {
	Found          bool                  `json:"found"`
	Resumed        bool                  `json:"resumed"`
	BatchID        string                `json:"batchId,omitempty"`
	Remaining      int                   `json:"remaining"`
	Reconciliation *batch.Reconciliation `json:"reconciliation,omitempty"`
}

// App wires configuration, batch history, the run slot and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Config      *config.AppConfig
	Jobs        *jobs.Manager
	History     *batch.Store
	Diagnostics domain.DiagnosticReport

	assets       fs.FS
	checker      *diagnostics.Checker
	logger       *slog.Logger
	recorder     batch.Recorder
	coordinator  *batch.Coordinator
	controller   *batch.Controller
	session      *batch.SessionStats
	newProcessor ProcessorFactory
	downloader   urlDownloader
	sweeper      tempSweeper
	decider      batch.Decider

	startMu    sync.Mutex
	mu         sync.Mutex
	running    sync.WaitGroup
	events     *jobs.EventBus
	runtimeCtx context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New(cfg *config.AppConfig, logger *slog.Logger, recorder batch.Recorder) (*App, error) {
	return NewWithAssets(nil, cfg, logger, recorder)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS, cfg *config.AppConfig, logger *slog.Logger, recorder batch.Recorder) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewJSONStore(config.DefaultSettingsPath(cfg.DataDir))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	history, err := batch.NewStore(filepath.Join(cfg.DataDir, "batches"), logger)
	if err != nil {
		return nil, fmt.Errorf("open batch history: %w", err)
	}

	checker := diagnostics.NewChecker()
	app := &App{
		Settings: settings,
		Store:    store,
		Config:   cfg,
		Jobs:     jobs.NewManager(),
		History:  history,
		assets:   assets,
		checker:  checker,
		logger:   logger,
		recorder: recorder,
		coordinator: batch.NewCoordinator(history, batch.CoordinatorOptions{
			WriteInterval: cfg.Batch.WriteInterval,
			FlushTimeout:  cfg.Batch.FlushTimeout,
			Recorder:      recorder,
			Logger:        logger,
		}),
		controller: batch.NewController(history, logger),
		session:    batch.NewSessionStats(),
		downloader: transcribe.NewDownloader(""),
		sweeper:    transcribe.NewConverter(cfg.FFmpeg.Timeout),
		events:     jobs.NewEventBus(1000),
	}
	app.newProcessor = app.pipelineFor
	app.decider = batch.DeciderFunc(app.askResume)
	app.Diagnostics = checker.Run(app.diagnosticsInput(settings))
	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Batch Transcriber",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events and dialogs and sweeps orphaned temp audio.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	a.running.Add(1)
	go func() {
		defer a.running.Done()
		a.sweepTemp()
	}()
}

// sweepTemp removes stale temp audio, keeping downloads an interrupted batch still needs.
func (a *App) sweepTemp() {
	if a.sweeper == nil {
		return
	}
	var keep []string
	if active := a.History.LoadActive(); active != nil {
		keep = batch.SourcePaths(active)
	}
	removed, err := a.sweeper.CleanupAll(transcribe.StaleTempAge, keep...)
	if err != nil {
		a.logger.Warn("temp audio sweep incomplete", "error", err)
	}
	if removed > 0 {
		a.logger.Info("removed orphaned temp audio", "files", removed)
	}
}

// Shutdown cancels a running batch and waits for it to flush and pause.
func (a *App) Shutdown(context.Context) {
	if err := a.Jobs.Cancel(); err == nil {
		a.logger.Info("pausing running batch for shutdown")
	}

	done := make(chan struct{})
	go func() {
		a.running.Wait()
		close(done)
	}()

	wait := 2 * time.Minute
	if a.Config != nil {
		wait = a.Config.FFmpeg.Timeout + a.Config.Batch.FlushTimeout
	}
	select {
	case <-done:
	case <-time.After(wait):
		a.logger.Warn("batch did not stop before shutdown; it will be offered for resume")
	}

	a.mu.Lock()
	a.runtimeCtx = nil
	a.mu.Unlock()
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	return a.refreshDiagnosticsFromSettings(settings), nil
}

// PickInputFiles opens a native multi-select dialog for media files.
func (a *App) PickInputFiles() ([]string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return nil, err
	}

	return wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select media files",
		Filters: mediaDialogFilter,
	})
}

// PickInputDirectory opens a native directory picker for folder batches.
func (a *App) PickInputDirectory() (string, error) {
	return a.pickDirectory("Select folder to transcribe")
}

// PickOutputDirectory opens a native directory picker for transcript exports.
func (a *App) PickOutputDirectory() (string, error) {
	return a.pickDirectory("Select output directory")
}

func (a *App) pickDirectory(title string) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: title,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// StartBatch creates a batch over files and directories (non-recursive) and runs it asynchronously.
func (a *App) StartBatch(paths []string) (domain.ActiveBatch, error) {
	files, err := scan.Expand(paths, false)
	if err != nil {
		return domain.ActiveBatch{}, err
	}
	return a.startNew(files)
}

// StartFolder scans dir for media and runs the result as one batch.
func (a *App) StartFolder(dir string, recursive bool) (domain.ActiveBatch, error) {
	files, err := scan.Scan(dir, recursive)
	if err != nil {
		return domain.ActiveBatch{}, fmt.Errorf("scan %s: %w", dir, err)
	}
	return a.startNew(files)
}

// TranscribeURL downloads remote media and runs it as one batch. Playlist and channel
// links are expanded and every fetched entry joins the batch.
func (a *App) TranscribeURL(url string) (domain.ActiveBatch, error) {
	if a.Jobs.IsRunning() {
		return domain.ActiveBatch{}, jobs.ErrBatchAlreadyRunning
	}
	if a.History.HasActive() {
		return domain.ActiveBatch{}, errInterruptedPending
	}

	url = strings.TrimSpace(url)
	result, err := a.downloader.DownloadAll(context.Background(), url)
	if err != nil {
		return domain.ActiveBatch{}, err
	}
	for _, path := range result.Paths {
		a.publishEvent(jobs.Event{
			Type:       jobs.EventTypeLog,
			SourcePath: path,
			Message:    "Downloaded " + filepath.Base(path),
		})
	}
	for _, failed := range result.Failed {
		a.publishEvent(jobs.Event{
			Type:    jobs.EventTypeError,
			Message: fmt.Sprintf("Download failed for %s: %v", failed.URL, failed.Err),
		})
	}
	return a.startNew(result.Paths)
}

// CancelBatch stops dispatching new files; in-flight files finish and the batch is paused.
func (a *App) CancelBatch() error {
	if err := a.Jobs.Cancel(); err != nil {
		return err
	}

	current := a.Jobs.Current()
	a.publishEvent(jobs.Event{
		BatchID:     current.ID,
		Type:        jobs.EventTypeBatch,
		BatchStatus: current.Status,
		Message:     "Cancellation requested",
	})
	return nil
}

// CurrentBatch returns the batch occupying the run slot.
func (a *App) CurrentBatch() domain.ActiveBatch {
	return a.Jobs.Current()
}

// CheckForInterruptedBatch asks the user about an interrupted batch and resumes it on request.
func (a *App) CheckForInterruptedBatch() (ResumeOutcome, error) {
	a.startMu.Lock()
	defer a.startMu.Unlock()

	if a.Jobs.IsRunning() {
		return ResumeOutcome{}, jobs.ErrBatchAlreadyRunning
	}

	prompt, _ := a.controller.Prompt()
	if prompt == nil {
		return ResumeOutcome{}, nil
	}

	ctx := context.Background()
	if rctx, err := a.runtimeContext(); err == nil {
		ctx = rctx
	}
	plan, err := a.controller.Check(ctx, a.decider)
	if err != nil {
		return ResumeOutcome{Found: true, BatchID: prompt.BatchID}, err
	}
	if plan == nil {
		return ResumeOutcome{Found: true, BatchID: prompt.BatchID}, nil
	}

	settings, err := a.Store.Load()
	if err != nil {
		return ResumeOutcome{}, fmt.Errorf("load settings: %w", err)
	}
	if _, err := a.launch(plan.State, plan.Files, settings); err != nil {
		return ResumeOutcome{}, err
	}
	return ResumeOutcome{
		Found:          true,
		Resumed:        true,
		BatchID:        plan.State.ID,
		Remaining:      len(plan.Files),
		Reconciliation: &plan.Reconciliation,
	}, nil
}

// RetryFailed requeues the failed files of a finished batch and runs them again.
func (a *App) RetryFailed(id string) (domain.ActiveBatch, error) {
	a.startMu.Lock()
	defer a.startMu.Unlock()

	if a.Jobs.IsRunning() {
		return domain.ActiveBatch{}, jobs.ErrBatchAlreadyRunning
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.ActiveBatch{}, fmt.Errorf("load settings: %w", err)
	}
	plan, err := a.controller.RetryFailed(strings.TrimSpace(id))
	if err != nil {
		return domain.ActiveBatch{}, err
	}
	return a.launch(plan.State, plan.Files, normalizeSettings(settings))
}

// ListBatches returns batch history, newest first. An empty status lists everything.
func (a *App) ListBatches(status string) ([]domain.BatchSummary, error) {
	var filter domain.BatchStatus
	if strings.TrimSpace(status) != "" {
		parsed, err := domain.ParseBatchStatus(strings.TrimSpace(status))
		if err != nil {
			return nil, err
		}
		filter = parsed
	}
	return a.History.List(filter)
}

// GetBatch returns one batch record.
func (a *App) GetBatch(id string) (*domain.BatchState, error) {
	state := a.History.LoadByID(id)
	if state == nil {
		return nil, fmt.Errorf("%w: %s", batch.ErrBatchNotFound, id)
	}
	return state, nil
}

// ArchiveBatch moves a completed batch to archived status.
func (a *App) ArchiveBatch(id string) error {
	return a.History.Archive(id)
}

// DeleteBatch removes a finished batch from history.
func (a *App) DeleteBatch(id string) error {
	if current := a.Jobs.Current(); current.ID == id && a.Jobs.IsRunning() {
		return batch.ErrActiveBatchDelete
	}
	return a.History.Delete(id)
}

// CleanupHistory removes batches completed more than days ago. Non-positive days use the configured retention.
func (a *App) CleanupHistory(days int) (int, error) {
	if days <= 0 && a.Config != nil {
		days = a.Config.Batch.RetentionDays
	}
	return a.History.CleanupOlderThan(days)
}

// SessionStats returns counters accumulated since the app started.
func (a *App) SessionStats() batch.SessionSnapshot {
	return a.session.Snapshot()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// startNew persists a fresh batch over files and launches it.
func (a *App) startNew(files []string) (domain.ActiveBatch, error) {
	a.startMu.Lock()
	defer a.startMu.Unlock()

	if a.Jobs.IsRunning() {
		return domain.ActiveBatch{}, jobs.ErrBatchAlreadyRunning
	}
	if a.History.HasActive() {
		return domain.ActiveBatch{}, errInterruptedPending
	}
	if len(files) == 0 {
		return domain.ActiveBatch{}, fmt.Errorf("no media files selected")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.ActiveBatch{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	state, err := a.coordinator.Begin(settings.BatchSettings(), files)
	if err != nil {
		return domain.ActiveBatch{}, err
	}
	return a.launch(state, batch.RemainingPaths(state), settings)
}

// launch claims the run slot and executes files of state in the background.
func (a *App) launch(state *domain.BatchState, files []string, settings domain.Settings) (domain.ActiveBatch, error) {
	runner, err := batch.NewRunner(a.newProcessor(settings, state.Settings), batch.RunnerOptions{
		Workers:    state.Settings.Workers,
		MaxRetries: a.maxRetries(),
		RetryDelay: a.retryDelay(),
		Session:    a.session,
		Recorder:   a.recorder,
		Logger:     a.logger,
	})
	if err != nil {
		return domain.ActiveBatch{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Jobs.Start(state.ID, cancel); err != nil {
		cancel()
		return domain.ActiveBatch{}, err
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	stats := state.Statistics
	a.publishEvent(jobs.Event{
		BatchID:     state.ID,
		Type:        jobs.EventTypeBatch,
		BatchStatus: domain.BatchStatusActive,
		Message:     fmt.Sprintf("Batch started with %d file(s)", len(files)),
		Statistics:  &stats,
	})

	a.running.Add(1)
	go func() {
		defer a.running.Done()
		defer cancel()
		a.execute(ctx, runner, state, files)
	}()

	return a.Jobs.Current(), nil
}

// execute runs the batch to completion or pause and maps the outcome to slot transitions and events.
func (a *App) execute(ctx context.Context, runner *batch.Runner, state *domain.BatchState, files []string) {
	batchID := state.ID
	listener := func(e batch.Event, stats domain.BatchStatistics) {
		a.publishEvent(jobs.FileEvent(batchID, e, stats))
	}

	result, err := a.coordinator.Execute(ctx, runner, state, files, listener)
	if err != nil {
		a.logger.Error("batch settle failed", "batch_id", batchID, "error", err)
		a.publishEvent(jobs.Event{
			BatchID: batchID,
			Type:    jobs.EventTypeError,
			Message: err.Error(),
		})
	}

	final := result.State
	if final != nil {
		if transErr := a.Jobs.Transition(final.Status); transErr != nil {
			a.logger.Warn("batch slot transition rejected", "batch_id", batchID, "error", transErr)
		}
		stats := final.Statistics
		a.publishEvent(jobs.Event{
			BatchID:     batchID,
			Type:        jobs.EventTypeResult,
			BatchStatus: final.Status,
			Message:     resultMessage(final.Status, result.Report),
			Statistics:  &stats,
		})
	}
	a.Jobs.Reset()
}

func resultMessage(status domain.BatchStatus, report batch.Report) string {
	switch status {
	case domain.BatchStatusCompleted:
		return fmt.Sprintf("Batch finished: %d completed, %d failed", len(report.Completed), len(report.Failed))
	case domain.BatchStatusPaused:
		return fmt.Sprintf("Batch paused with %d file(s) left; it can be resumed", len(report.NotStarted))
	default:
		return "Batch " + string(status)
	}
}

// pipelineFor builds the production processor for one batch.
func (a *App) pipelineFor(settings domain.Settings, batchSettings domain.BatchSettings) batch.Processor {
	model := transcribe.ModelString(settings.Model, settings.Specialization, batchSettings.Language)
	client := transcribe.NewClient(a.Config.API.URL, a.Config.API.Key, model, a.Config.API.Timeout)
	return transcribe.NewPipeline(
		transcribe.NewConverter(a.Config.FFmpeg.Timeout),
		client,
		transcribe.NewOutputWriter(),
		batchSettings,
		a.logger,
	)
}

// askResume shows a native question dialog for an interrupted batch.
func (a *App) askResume(ctx context.Context, prompt batch.ResumePrompt) (batch.Decision, error) {
	if _, err := a.runtimeContext(); err != nil {
		return batch.DecisionDiscard, err
	}

	answer, err := wailsruntime.MessageDialog(ctx, wailsruntime.MessageDialogOptions{
		Type:  wailsruntime.QuestionDialog,
		Title: "Resume interrupted batch?",
		Message: fmt.Sprintf(
			"A batch started %s was interrupted.\n%d of %d files are done, %d remaining.\n\nResume it?",
			prompt.CreatedAt.Local().Format("2006-01-02 15:04"),
			prompt.Completed, prompt.Total, prompt.Remaining,
		),
		Buttons:       []string{"Resume", "Discard"},
		DefaultButton: "Resume",
		CancelButton:  "Discard",
	})
	if err != nil {
		return batch.DecisionDiscard, err
	}

	switch strings.ToLower(answer) {
	case "resume", "yes", "ok":
		return batch.DecisionResume, nil
	default:
		return batch.DecisionDiscard, nil
	}
}

func (a *App) maxRetries() int {
	if a.Config == nil {
		return config.DefaultMaxRetries
	}
	return a.Config.Batch.MaxRetries
}

func (a *App) retryDelay() time.Duration {
	if a.Config == nil {
		return config.DefaultRetryDelay
	}
	return a.Config.Batch.RetryDelay
}

func (a *App) diagnosticsInput(settings domain.Settings) diagnostics.Input {
	in := diagnostics.Input{Settings: settings}
	if a.Config != nil {
		in.APIKey = a.Config.API.Key
		in.DataDir = a.Config.DataDir
	}
	return in
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, fileEventName, published)
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, errors.New("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and fills defaults.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.Language = strings.TrimSpace(settings.Language)
	settings.Model = strings.TrimSpace(settings.Model)
	settings.Specialization = strings.TrimSpace(settings.Specialization)
	return config.Normalize(settings)
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
