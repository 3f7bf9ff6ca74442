// ABOUTME: Migration engine moving all local conversation data to the remote store
// ABOUTME: Six-step pipeline with batching, linear-backoff retry, verification, and rollback
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pollpilot/pollchat/internal/localstore"
	"github.com/pollpilot/pollchat/internal/models"
	"github.com/pollpilot/pollchat/internal/remote"
	"github.com/pollpilot/pollchat/internal/util"
	"github.com/pollpilot/pollchat/internal/validate"
)

// Config controls one migration attempt
type Config struct {
	BatchSize            int
	ValidateBeforeUpload bool
	EnableRollback       bool
	RetryAttempts        int
	RetryDelay           time.Duration
}

// DefaultConfig returns conservative migration settings
func DefaultConfig() Config {
	return Config{
		BatchSize:            10,
		ValidateBeforeUpload: true,
		EnableRollback:       true,
		RetryAttempts:        3,
		RetryDelay:           time.Second,
	}
}

// Engine runs a single migration attempt. Engines are single-use: a second
// Migrate call on the same instance returns ErrAlreadyRun.
type Engine struct {
	local  *localstore.Store
	remote remote.Store
	cfg    Config
	runID  string

	cancelled atomic.Bool
	started   atomic.Bool

	mu        sync.Mutex
	progress  Progress
	observers map[int]Observer
	nextObsID int

	// rows uploaded during this run, for rollback
	uploadedConvs []string
	uploadedMsgs  map[string][]string
}

// New constructs an engine for one migration attempt
func New(local *localstore.Store, remoteStore remote.Store, cfg Config) *Engine {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	return &Engine{
		local:  local,
		remote: remoteStore,
		cfg:    cfg,
		runID:  fmt.Sprintf("migration_%s_%s", time.Now().Format("20060102_150405"), uuid.New().String()[:8]),
		progress: Progress{
			Status:     StatusNotStarted,
			TotalSteps: TotalSteps,
		},
		observers:    make(map[int]Observer),
		uploadedMsgs: make(map[string][]string),
	}
}

// IsMigrationNeeded reports whether the local store holds data that has
// not yet been migrated. Independent of any engine instance; callers must
// check it before constructing an engine for auto-migration flows.
func IsMigrationNeeded(local *localstore.Store) bool {
	if local.MigrationCompleted() {
		return false
	}
	exp, err := local.ExportForMigration()
	if err != nil || exp == nil {
		return false
	}
	return len(exp.Conversations) > 0
}

// Subscribe registers an observer and returns its unsubscribe function
func (e *Engine) Subscribe(o Observer) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextObsID
	e.nextObsID++
	e.observers[id] = o
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.observers, id)
	}
}

// Cancel signals abort. Cooperative: it takes effect at the next batch
// boundary; work in flight for the current batch completes.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.progress.Status.Terminal() {
		e.progress.Status = StatusFailed
		e.progress.CurrentStep = "Cancelled by user"
	}
}

// Progress returns a defensive copy of the current progress
func (e *Engine) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress.clone()
}

// RunID returns this attempt's migration run id
func (e *Engine) RunID() string {
	return e.runID
}

// Migrate runs the full pipeline. Expected pipeline failures are folded
// into the result's error list with success=false; Migrate itself only
// errors for misuse (running an engine twice).
func (e *Engine) Migrate(ctx context.Context) (*Result, error) {
	if !e.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	start := time.Now()
	e.setStatus(StatusInProgress, "Starting migration")
	e.mu.Lock()
	e.progress.StartedAt = start.UTC()
	e.mu.Unlock()

	slog.Debug("migration starting", "run_id", e.runID)

	// Step 1: export. No local data is a valid no-op completion.
	export, err := e.exportStep()
	if err != nil {
		return e.fail(ctx, start, err), nil
	}
	if export == nil {
		e.finishProgress(StatusCompleted, "Nothing to migrate")
		result := &Result{
			Success:  true,
			Errors:   []string{},
			Duration: time.Since(start),
			RunID:    e.runID,
		}
		e.notifyComplete(*result)
		return result, nil
	}

	totalMsgs := 0
	for _, msgs := range export.Messages {
		totalMsgs += len(msgs)
	}
	e.mu.Lock()
	e.progress.TotalConversations = len(export.Conversations)
	e.progress.TotalMessages = totalMsgs
	e.mu.Unlock()
	e.notifyProgress()

	// Steps 2-6 share the top-level failure handler
	if err := e.run(ctx, export); err != nil {
		return e.fail(ctx, start, err), nil
	}

	e.finishProgress(StatusCompleted, "Migration complete")
	result := &Result{
		Success:               true,
		MigratedConversations: len(export.Conversations),
		MigratedMessages:      totalMsgs,
		Errors:                []string{},
		Duration:              time.Since(start),
		RunID:                 e.runID,
	}
	slog.Debug("migration complete", "run_id", e.runID,
		"conversations", result.MigratedConversations, "messages", result.MigratedMessages)
	e.notifyComplete(*result)
	return result, nil
}

// run executes steps 2 through 6
func (e *Engine) run(ctx context.Context, export *localstore.Export) error {
	// Step 2: validate everything, accumulating all violations
	if e.cfg.ValidateBeforeUpload {
		e.setStatus(StatusValidating, "Validating local data")
		if r := validate.CheckBatch(export.Conversations, export.Messages); !r.Valid {
			e.appendErrors(r.Errors)
			return fmt.Errorf("validation failed with %d issues", len(r.Errors))
		}
		e.completeStep("Validation complete")
	} else {
		e.completeStep("Validation skipped")
	}

	// Step 3: resolve identity against the remote store
	e.setStatus(StatusInProgress, "Connecting to remote store")
	user, err := e.remote.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("auth check failed: %w", err)
	}
	if user == "" {
		// Mint a guest session id so guest rows can be associated later
		sessionID := "guest_" + uuid.New().String()
		if err := e.remote.RegisterGuestSession(ctx, sessionID); err != nil {
			return fmt.Errorf("guest session registration failed: %w", err)
		}
	}
	e.completeStep("Connected")

	// Step 4: upload in batches with retry
	e.setStatus(StatusUploading, "Uploading conversations")
	if err := e.uploadConversations(ctx, export.Conversations); err != nil {
		return err
	}
	e.setStatus(StatusUploading, "Uploading messages")
	if err := e.uploadMessages(ctx, export); err != nil {
		return err
	}
	e.completeStep("Upload complete")

	// Step 5: verify remote row counts
	e.setStatus(StatusVerifying, "Verifying remote data")
	if err := e.verify(ctx, export); err != nil {
		return err
	}
	e.completeStep("Verification complete")

	// Step 6: finalize only after verification succeeds
	e.setStatus(StatusInProgress, "Finalizing")
	if err := e.local.SetMigrationCompleted(e.runID, time.Now()); err != nil {
		return fmt.Errorf("finalize failed: %w", err)
	}
	e.completeStep("Finalized")
	return nil
}

// exportStep runs step 1 and returns nil when the store is empty
func (e *Engine) exportStep() (*localstore.Export, error) {
	e.setStatus(StatusInProgress, "Exporting local data")
	export, err := e.local.ExportForMigration()
	if err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}
	e.completeStep("Export complete")
	return export, nil
}

func (e *Engine) uploadConversations(ctx context.Context, convs []models.Conversation) error {
	for _, batch := range batchConversations(convs, e.cfg.BatchSize) {
		if e.cancelled.Load() {
			return ErrCancelled
		}
		batch := batch
		err := util.Retry(ctx, e.cfg.RetryAttempts, util.LinearBackoff(e.cfg.RetryDelay), func() error {
			return e.remote.InsertConversations(ctx, batch)
		})
		if err != nil {
			return fmt.Errorf("conversation upload failed: %w", err)
		}

		e.mu.Lock()
		for _, c := range batch {
			e.uploadedConvs = append(e.uploadedConvs, c.ID)
		}
		e.progress.ProcessedConversations += len(batch)
		e.mu.Unlock()
		e.notifyProgress()
	}
	return nil
}

func (e *Engine) uploadMessages(ctx context.Context, export *localstore.Export) error {
	// Deterministic conversation order keeps progress reporting stable
	convIDs := make([]string, 0, len(export.Messages))
	for id := range export.Messages {
		convIDs = append(convIDs, id)
	}
	sort.Strings(convIDs)

	for _, convID := range convIDs {
		for _, batch := range batchMessages(export.Messages[convID], e.cfg.BatchSize) {
			if e.cancelled.Load() {
				return ErrCancelled
			}
			batch := batch
			err := util.Retry(ctx, e.cfg.RetryAttempts, util.LinearBackoff(e.cfg.RetryDelay), func() error {
				return e.remote.InsertMessages(ctx, batch)
			})
			if err != nil {
				return fmt.Errorf("message upload failed: %w", err)
			}

			e.mu.Lock()
			for _, m := range batch {
				e.uploadedMsgs[convID] = append(e.uploadedMsgs[convID], m.ID)
			}
			e.progress.ProcessedMessages += len(batch)
			e.mu.Unlock()
			e.notifyProgress()
		}
	}
	return nil
}

// verify tolerates pre-existing remote rows: counts may exceed the
// expected totals, but undercounting fails the migration.
func (e *Engine) verify(ctx context.Context, export *localstore.Export) error {
	convCount, err := e.remote.CountConversations(ctx)
	if err != nil {
		return fmt.Errorf("verification count failed: %w", err)
	}
	msgCount, err := e.remote.CountMessages(ctx)
	if err != nil {
		return fmt.Errorf("verification count failed: %w", err)
	}

	totalMsgs := 0
	for _, msgs := range export.Messages {
		totalMsgs += len(msgs)
	}
	if convCount < len(export.Conversations) || msgCount < totalMsgs {
		return &VerificationError{
			ExpectedConversations: len(export.Conversations),
			ActualConversations:   convCount,
			ExpectedMessages:      totalMsgs,
			ActualMessages:        msgCount,
		}
	}
	return nil
}

// fail is the top-level failure handler: it folds the error into the
// progress list, optionally rolls back this run's uploads, and builds the
// result. Local data is never touched, so a failed migration is always
// safe to retry later.
func (e *Engine) fail(ctx context.Context, start time.Time, cause error) *Result {
	msg := cause.Error()
	e.mu.Lock()
	e.progress.Errors = append(e.progress.Errors, msg)
	e.mu.Unlock()
	e.notifyError(msg)
	e.finishProgress(StatusFailed, "Migration failed")
	slog.Warn("migration failed", "run_id", e.runID, "error", msg)

	rolledBack := false
	if e.cfg.EnableRollback {
		if err := e.rollback(ctx); err != nil {
			rbMsg := fmt.Sprintf("rollback failed: %v", err)
			e.mu.Lock()
			e.progress.Errors = append(e.progress.Errors, rbMsg)
			e.mu.Unlock()
			e.notifyError(rbMsg)
		} else {
			rolledBack = true
			e.setTerminal(StatusRolledBack)
		}
	}

	result := &Result{
		Success:           false,
		Errors:            e.Progress().Errors,
		Duration:          time.Since(start),
		RollbackPerformed: rolledBack,
		RunID:             e.runID,
	}
	e.notifyComplete(*result)
	return result
}

// rollback deletes only the rows this run inserted, best-effort
func (e *Engine) rollback(ctx context.Context) error {
	e.mu.Lock()
	convs := append([]string(nil), e.uploadedConvs...)
	msgs := make(map[string][]string, len(e.uploadedMsgs))
	for id, list := range e.uploadedMsgs {
		msgs[id] = append([]string(nil), list...)
	}
	e.mu.Unlock()

	if len(convs) == 0 && len(msgs) == 0 {
		return nil
	}

	for convID, ids := range msgs {
		if err := e.remote.DeleteMessages(ctx, convID, ids); err != nil {
			return err
		}
	}
	if len(convs) > 0 {
		if err := e.remote.DeleteConversations(ctx, convs); err != nil {
			return err
		}
	}
	return nil
}

// Progress bookkeeping and observer notification

func (e *Engine) setStatus(status Status, step string) {
	e.mu.Lock()
	if !e.progress.Status.Terminal() {
		e.progress.Status = status
		e.progress.CurrentStep = step
	}
	e.mu.Unlock()
	e.notifyProgress()
}

func (e *Engine) setTerminal(status Status) {
	e.mu.Lock()
	e.progress.Status = status
	e.mu.Unlock()
	e.notifyProgress()
}

func (e *Engine) completeStep(step string) {
	e.mu.Lock()
	e.progress.CompletedSteps++
	e.progress.CurrentStep = step
	e.mu.Unlock()
	e.notifyProgress()
}

func (e *Engine) finishProgress(status Status, step string) {
	e.mu.Lock()
	e.progress.Status = status
	e.progress.CurrentStep = step
	e.progress.CompletedAt = time.Now().UTC()
	if status == StatusCompleted {
		e.progress.CompletedSteps = TotalSteps
	}
	e.mu.Unlock()
	e.notifyProgress()
}

func (e *Engine) appendErrors(errs []string) {
	e.mu.Lock()
	e.progress.Errors = append(e.progress.Errors, errs...)
	e.mu.Unlock()
}

func (e *Engine) snapshotObservers() []Observer {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Observer, 0, len(e.observers))
	for _, o := range e.observers {
		out = append(out, o)
	}
	return out
}

func (e *Engine) notifyProgress() {
	p := e.Progress()
	for _, o := range e.snapshotObservers() {
		o.OnProgress(p)
	}
}

func (e *Engine) notifyError(msg string) {
	for _, o := range e.snapshotObservers() {
		o.OnError(msg)
	}
}

func (e *Engine) notifyComplete(r Result) {
	for _, o := range e.snapshotObservers() {
		o.OnComplete(r)
	}
}

// Batch partitioning

func batchConversations(rows []models.Conversation, size int) [][]models.Conversation {
	var out [][]models.Conversation
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

func batchMessages(rows []models.Message, size int) [][]models.Message {
	var out [][]models.Message
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
