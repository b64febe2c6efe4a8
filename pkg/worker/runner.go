package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"github.com/playwright-community/playwright-go"
	"golang.org/x/sync/errgroup"

	"github.com/tomaasz/ocr-dashboard-v2/pkg/browser"
	"github.com/tomaasz/ocr-dashboard-v2/pkg/config"
	"github.com/tomaasz/ocr-dashboard-v2/pkg/model"
	"github.com/tomaasz/ocr-dashboard-v2/pkg/store"
)

// ErrQuotaExhausted stops the batch when the Pro tier runs out of quota.
// The reset hint, when known, rides along in the message.
var ErrQuotaExhausted = errors.New("pro quota exhausted")

// Runner drives the fleet loop for one profile.
type Runner struct {
	cfg     *config.Config
	store   *store.Store
	manager *browser.Manager
	logger  log.Logger

	batchID string
}

// NewRunner wires the loop together. A fresh batch id is minted per run so
// results and traces from one invocation group together.
func NewRunner(cfg *config.Config, st *store.Store, manager *browser.Manager, logger log.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		store:   st,
		manager: manager,
		logger:  logger,
		batchID: uuid.NewString(),
	}
}

// BatchID returns this run's batch identifier.
func (r *Runner) BatchID() string { return r.batchID }

// Run processes the source directory until it is exhausted, the context is
// canceled, or a fatal condition (expired session, spent quota) stops the
// batch. With isolated contexts and a pool configured, sub-workers share the
// claim channel; otherwise a single loop drives the shared context.
func (r *Runner) Run(ctx context.Context) error {
	if r.store.IsProfilePaused(r.cfg.ProfileName) {
		r.logger.Warn().Str("profile", r.cfg.ProfileName).Msg("profile is paused, refusing to run")
		return nil
	}

	scanner, err := NewScanner(r.cfg.SourcePath, r.cfg.FileGlob)
	if err != nil {
		return err
	}

	resumeAfter, _ := r.store.LastProcessed(r.cfg.SourcePath)
	candidates, err := scanner.Candidates(resumeAfter)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		r.logger.Info().Str("source", r.cfg.SourcePath).Msg("no candidates to process")
		return nil
	}
	r.logger.Info().
		Int("candidates", len(candidates)).
		Str("batch_id", r.batchID).
		Str("resume_after", resumeAfter).
		Msg("starting batch")

	pid := os.Getpid()
	r.store.SetProfileState(r.cfg.ProfileName, store.StateUpdate{
		ActiveWorkerPID: &pid,
		CurrentAction:   ptr("processing"),
	})
	defer r.store.SetProfileState(r.cfg.ProfileName, store.StateUpdate{
		CurrentAction: ptr("idle"),
	})

	files := make(chan string)
	workers := 1
	if r.cfg.IsolatedContexts && r.cfg.ContextPoolSize > 0 {
		workers = r.cfg.ContextPoolSize
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(files)
		for _, name := range candidates {
			select {
			case files <- name:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			return r.workerLoop(gctx, workerID, files)
		})
	}
	return g.Wait()
}

func (r *Runner) workerLoop(ctx context.Context, workerID int, files <-chan string) error {
	bctx, err := r.manager.WorkerContext(workerID)
	if err != nil {
		return err
	}
	defer r.manager.CloseWorkerContext(workerID, false)

	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else if page, err = bctx.NewPage(); err != nil {
		return fmt.Errorf("worker %d: open page: %w", workerID, err)
	}

	ctrl := model.NewController(
		model.NewPageSurface(page),
		r.cfg.ModelSwitchRetries,
		r.cfg.ModelSwitchCooldown,
		r.logger,
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fileName, ok := <-files:
			if !ok {
				return nil
			}
			if err := r.claimAndProcess(ctx, page, ctrl, fileName); err != nil {
				if errors.Is(err, browser.ErrSessionExpired) || errors.Is(err, ErrQuotaExhausted) {
					return err
				}
				r.logger.Error().Err(err).Str("file", fileName).Msg("file failed, continuing batch")
			}
		}
	}
}

func (r *Runner) claimAndProcess(ctx context.Context, page playwright.Page, ctrl *model.Controller, fileName string) error {
	// Stale claims from crashed workers get swept before every acquire so a
	// dead peer never wedges the batch for longer than the lease TTL.
	r.store.SweepExpired()

	if r.store.IsDone(r.cfg.SourcePath, fileName) {
		return nil
	}
	if !r.store.TryAcquire(fileName) {
		if r.store.Enabled() {
			r.logger.Debug().Str("file", fileName).Msg("file claimed elsewhere, skipping")
			return nil
		}
		// No store means no coordination; process anyway.
	}
	defer r.store.Release(fileName)

	return r.ProcessFile(ctx, page, ctrl, fileName)
}

// ProcessFile runs one OCR round trip: fresh chat, Pro model enforced,
// image uploaded, prompt sent, response awaited, everything persisted.
func (r *Runner) ProcessFile(ctx context.Context, page playwright.Page, ctrl *model.Controller, fileName string) error {
	start := time.Now()
	imagePath := filepath.Join(r.cfg.SourcePath, fileName)
	r.logger.Info().Str("file", fileName).Msg("processing file")

	if err := r.manager.NewChat(page); err != nil {
		r.recordFailure(page, fileName, "new_chat_failed", err, start)
		return err
	}

	if err := ctrl.EnsurePro(ctx); err != nil {
		var unavailable *model.UnavailableError
		if errors.As(err, &unavailable) {
			return r.handleQuotaExhausted(page, ctrl, unavailable.ResetHint)
		}
		// Drift that will not converge is an advisory, not a stop: the fast
		// tier still reads most scans.
		r.logger.Warn().Err(err).Msg("pro model not confirmed, proceeding")
	}

	if err := r.manager.UploadImage(page, imagePath); err != nil {
		r.recordFailure(page, fileName, "upload_failed", err, start)
		return err
	}
	if err := r.manager.FillPrompt(page, r.cfg.Prompt); err != nil {
		r.recordFailure(page, fileName, "prompt_failed", err, start)
		return err
	}
	if err := r.manager.ClickSend(page); err != nil {
		r.recordFailure(page, fileName, "send_failed", err, start)
		return err
	}

	text, status := r.manager.WaitForResponseOrLimit(page, 0, r.manager.LimitBannerVisible)
	switch status {
	case browser.StatusLimitPro:
		return r.handleQuotaExhausted(page, ctrl, "")
	case browser.StatusTimeout:
		err := fmt.Errorf("no response within deadline for %s", fileName)
		r.recordFailure(page, fileName, "response_timeout", err, start)
		return err
	}

	r.persistSuccess(page, ctrl, fileName, text, start)
	return nil
}

func (r *Runner) persistSuccess(page playwright.Page, ctrl *model.Controller, fileName, text string, start time.Time) {
	end := time.Now()
	duration := end.Sub(start).Seconds()
	cardID := r.manager.CardID(page)
	label := r.currentLabel(ctrl)

	r.logger.Info().
		Str("file", fileName).
		Int("chars", len(text)).
		Float64("duration_s", duration).
		Msg("response captured")

	r.store.SaveResult(store.Result{
		BatchID:    &r.batchID,
		FileName:   fileName,
		SourcePath: r.cfg.SourcePath,
		RawText:    &text,
		CardID:     nilIfEmpty(cardID),
		DurationS:  &duration,
		StartTS:    &start,
		EndTS:      &end,
		Profile:    ptr(r.cfg.ProfileName),
		ModelLabel: nilIfEmpty(label),
		ExecMode:   ptr(r.execMode()),
	})

	if !r.cfg.SaveTokenUsage {
		return
	}
	tokOut := EstimateTokens(text)
	tokIn := EstimateTokens(r.cfg.Prompt)
	tokTotal := tokIn + tokOut
	charsIn := len(r.cfg.Prompt)
	charsOut := len(text)
	r.store.SaveTokenUsage(store.TokenUsage{
		BatchID:    &r.batchID,
		FileName:   fileName,
		SourcePath: r.cfg.SourcePath,
		Profile:    ptr(r.cfg.ProfileName),
		ModelLabel: nilIfEmpty(label),
		TokIn:      &tokIn,
		TokOut:     &tokOut,
		TokTotal:   &tokTotal,
		CharsIn:    &charsIn,
		CharsOut:   &charsOut,
		DurationS:  &duration,
	})
}

// recordFailure saves a trace and a screenshot for the failed file. Both are
// best-effort; diagnostics must never mask the original error.
func (r *Runner) recordFailure(page playwright.Page, fileName, errorType string, cause error, start time.Time) {
	duration := time.Since(start).Seconds()
	msg := cause.Error()

	if !r.cfg.SaveErrorTraces {
		if r.cfg.DebugArtifacts {
			r.saveFailureScreenshot(page, fileName, errorType)
		}
		return
	}

	tracePath := filepath.Join("artifacts", "traces",
		fmt.Sprintf("%s_%s_%d.zip", r.cfg.ProfileName, errorType, time.Now().Unix()))
	var traceBytes *int64
	if r.manager.SaveErrorTrace(page, tracePath) {
		if info, err := os.Stat(tracePath); err == nil {
			size := info.Size()
			traceBytes = &size
		}
	}

	r.store.SaveErrorTrace(store.ErrorTrace{
		BatchID:      r.batchID,
		FileName:     fileName,
		SourcePath:   r.cfg.SourcePath,
		Profile:      r.cfg.ProfileName,
		ErrorType:    errorType,
		ErrorMessage: &msg,
		TracePath:    tracePath,
		TraceBytes:   traceBytes,
		ExecMode:     ptr(r.execMode()),
		DurationS:    &duration,
	})

	if r.cfg.DebugArtifacts {
		r.saveFailureScreenshot(page, fileName, errorType)
	}
}

func (r *Runner) saveFailureScreenshot(page playwright.Page, fileName, errorType string) {
	shot := r.manager.ScreenshotBytes(page)
	if len(shot) == 0 {
		return
	}
	r.store.SaveArtifact(&r.batchID, &fileName, "screenshot", shot, map[string]any{
		"error_type": errorType,
		"url":        page.URL(),
	})
}

// handleQuotaExhausted parks the session on the fast tier, records the
// incident with the reset hint, and stops the batch.
func (r *Runner) handleQuotaExhausted(page playwright.Page, ctrl *model.Controller, resetHint string) error {
	r.logger.Warn().Str("reset_hint", resetHint).Msg("pro quota exhausted, stopping batch")

	if err := ctrl.EnsureFast(context.Background()); err != nil {
		r.logger.Debug().Err(err).Msg("could not park session on fast tier")
	}

	r.store.LogCriticalEvent(r.cfg.ProfileName, "limit_pro",
		"Pro quota exhausted; batch stopped.", false, map[string]any{
			"reset_hint": resetHint,
			"batch_id":   r.batchID,
			"url":        page.URL(),
		})

	if resetHint != "" {
		return fmt.Errorf("%w: %s", ErrQuotaExhausted, resetHint)
	}
	return ErrQuotaExhausted
}

func (r *Runner) currentLabel(ctrl *model.Controller) string {
	tier, ok := ctrl.Current()
	if !ok {
		return ""
	}
	return string(tier)
}

func (r *Runner) execMode() string {
	if r.cfg.Remote.Enabled {
		return "remote"
	}
	return "local"
}

func ptr[T any](v T) *T { return &v }

func nilIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
