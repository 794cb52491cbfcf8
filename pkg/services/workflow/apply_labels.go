// Package workflow drives the apply-labels interaction: selecting labels,
// submitting one bulk update and reporting the outcome.
//
// State machine:
//
//	idle → submitting → complete → closed
//	             ↓
//	           failed → submitting (retry)
//
//	idle, failed → dismissed (cancel)
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
	"github.com/ekaya-inc/cleansing-engine/pkg/labels"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
)

// State is the externally visible state of an ApplyLabels workflow.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
	StateDismissed  State = "dismissed"
	StateClosed     State = "closed"
)

// FailureKind separates "nothing changed" failures from unreachable servers.
type FailureKind string

const (
	FailureValidation  FailureKind = "validation"
	FailureServer      FailureKind = "server"
	// FailureResponse means the server accepted the request but its reply
	// could not be read, so the update may have been committed.
	FailureResponse    FailureKind = "response"
	FailureUnreachable FailureKind = "unreachable"
)

// StatusInfo describes why the last submission failed.
type StatusInfo struct {
	Kind       FailureKind `json:"kind"`
	StatusCode int         `json:"status_code,omitempty"`
	Message    string      `json:"message"`
}

// Transport submits a bulk update to the server.
type Transport interface {
	SubmitBulkUpdate(ctx context.Context, req *models.BulkUpdateRequest) (*models.ServerLabelState, error)
}

// Config holds workflow settings.
type Config struct {
	// SubmitTimeout bounds a single submission. Zero means no timeout.
	SubmitTimeout time.Duration
}

// Snapshot is a copy of the workflow's observable state.
type Snapshot struct {
	State            State                    `json:"state"`
	SubmissionID     string                   `json:"submission_id,omitempty"`
	Selected         []string                 `json:"selected"`
	NumLabelsApplied int                      `json:"num_labels_applied"`
	Message          string                   `json:"message,omitempty"`
	Status           *StatusInfo              `json:"status,omitempty"`
	ServerState      *models.ServerLabelState `json:"server_state,omitempty"`
}

// ApplyLabels is one apply-labels interaction. Labels and results are
// borrowed from the caller and never modified; each submission works on a
// snapshot taken when Apply is called.
type ApplyLabels struct {
	transport Transport
	logger    *zap.Logger
	metrics   *Metrics
	cfg       Config

	mu           sync.Mutex
	labels       []models.Label
	groups       []*models.RecordValidationGroup
	selected     map[string]bool
	state        State
	submissionID uuid.UUID
	numApplied   int
	status       *StatusInfo
	serverState  *models.ServerLabelState
}

// NewApplyLabels creates a workflow in the idle state with nothing selected.
func NewApplyLabels(
	labelSet []models.Label,
	groups []*models.RecordValidationGroup,
	transport Transport,
	cfg Config,
	metrics *Metrics,
	logger *zap.Logger,
) *ApplyLabels {
	return &ApplyLabels{
		transport: transport,
		logger:    logger.Named("apply-labels"),
		metrics:   metrics,
		cfg:       cfg,
		labels:    labelSet,
		groups:    groups,
		selected:  make(map[string]bool),
		state:     StateIdle,
	}
}

// ============================================================================
// Selection
// ============================================================================

// Select marks labels as selected by name.
func (w *ApplyLabels) Select(names ...string) error {
	return w.setSelected(names, true)
}

// Deselect clears the selection flag of the named labels.
func (w *ApplyLabels) Deselect(names ...string) error {
	return w.setSelected(names, false)
}

// SetSelection replaces the selection with exactly the named labels.
func (w *ApplyLabels) SetSelection(names ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkEditable(); err != nil {
		return err
	}
	if err := w.checkKnown(names); err != nil {
		return err
	}
	w.selected = make(map[string]bool, len(names))
	for _, n := range names {
		w.selected[n] = true
	}
	return nil
}

func (w *ApplyLabels) setSelected(names []string, on bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkEditable(); err != nil {
		return err
	}
	if err := w.checkKnown(names); err != nil {
		return err
	}
	for _, n := range names {
		if on {
			w.selected[n] = true
		} else {
			delete(w.selected, n)
		}
	}
	return nil
}

func (w *ApplyLabels) checkEditable() error {
	switch w.state {
	case StateIdle, StateFailed:
		return nil
	case StateSubmitting:
		return apperrors.ErrSubmissionInFlight
	default:
		return fmt.Errorf("cannot change selection in state %s: %w", w.state, apperrors.ErrInvalidTransition)
	}
}

func (w *ApplyLabels) checkKnown(names []string) error {
	for _, n := range names {
		found := false
		for _, l := range w.labels {
			if l.Name == n {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("label %q: %w", n, apperrors.ErrNotFound)
		}
	}
	return nil
}

// selectedLabels returns copies of the selected labels in label-set order.
// Caller must hold w.mu.
func (w *ApplyLabels) selectedLabels() []models.Label {
	var out []models.Label
	for _, l := range w.labels {
		if w.selected[l.Name] {
			out = append(out, l)
		}
	}
	return out
}

// ============================================================================
// Transitions
// ============================================================================

// Apply submits the current selection. It is allowed from idle and failed
// (retry); while a submission is in flight it returns ErrSubmissionInFlight.
// Transport failures move the workflow to failed and are not returned; only a
// malformed request (ValidationError) or an invalid transition is.
func (w *ApplyLabels) Apply(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case StateIdle, StateFailed:
	case StateSubmitting:
		w.mu.Unlock()
		return apperrors.ErrSubmissionInFlight
	default:
		state := w.state
		w.mu.Unlock()
		return fmt.Errorf("cannot apply labels in state %s: %w", state, apperrors.ErrInvalidTransition)
	}

	selected := w.selectedLabels()
	groups := models.CloneGroups(w.groups)
	id := uuid.New()
	w.state = StateSubmitting
	w.submissionID = id
	w.status = nil
	w.serverState = nil
	w.numApplied = 0
	w.mu.Unlock()

	start := time.Now()
	logger := w.logger.With(zap.String("submission_id", id.String()))

	if len(selected) == 0 {
		logger.Info("No labels selected, nothing to submit")
		w.complete(0, &models.ServerLabelState{Labels: []models.Label{}})
		w.metrics.observe(outcomeEmpty, time.Since(start))
		return nil
	}

	req, err := labels.Build(labels.Match(selected, groups))
	if err != nil {
		logger.Warn("Rejected malformed bulk update", zap.Error(err))
		w.fail(&StatusInfo{
			Kind:    FailureValidation,
			Message: "No labels were applied: " + err.Error(),
		})
		w.metrics.observe(outcomeInvalid, time.Since(start))
		return err
	}

	if w.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.SubmitTimeout)
		defer cancel()
	}

	logger.Info("Submitting bulk label update",
		zap.Int("labels", len(selected)),
		zap.Int("updates", len(req.Updates)))

	serverState, err := w.transport.SubmitBulkUpdate(ctx, req)
	if err != nil {
		status := statusFromError(err)
		logger.Error("Bulk label update failed",
			zap.String("kind", string(status.Kind)),
			zap.Int("status_code", status.StatusCode),
			zap.Error(err))
		w.fail(status)
		w.metrics.observe(outcomeFailed, time.Since(start))
		return nil
	}

	logger.Info("Bulk label update complete", zap.Int("labels", len(selected)))
	w.complete(len(selected), serverState)
	w.metrics.observe(outcomeApplied, time.Since(start))
	return nil
}

func (w *ApplyLabels) complete(n int, serverState *models.ServerLabelState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateComplete
	w.numApplied = n
	w.serverState = serverState
}

func (w *ApplyLabels) fail(status *StatusInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = StateFailed
	w.status = status
}

// Cancel dismisses the interaction without any server effect. It is allowed
// from idle and from failed; cancelling an in-flight submission is not supported.
func (w *ApplyLabels) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case StateIdle, StateFailed:
		w.state = StateDismissed
		return nil
	case StateSubmitting:
		return apperrors.ErrSubmissionInFlight
	default:
		return fmt.Errorf("cannot cancel in state %s: %w", w.state, apperrors.ErrInvalidTransition)
	}
}

// Done closes a completed interaction.
func (w *ApplyLabels) Done() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateComplete {
		return fmt.Errorf("cannot finish in state %s: %w", w.state, apperrors.ErrInvalidTransition)
	}
	w.state = StateClosed
	return nil
}

// ============================================================================
// Observation
// ============================================================================

// Snapshot returns a copy of the observable state.
func (w *ApplyLabels) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Snapshot{
		State:            w.state,
		NumLabelsApplied: w.numApplied,
		ServerState:      w.serverState,
		Selected:         make([]string, 0, len(w.selected)),
	}
	for _, l := range w.selectedLabels() {
		s.Selected = append(s.Selected, l.Name)
	}
	if w.submissionID != uuid.Nil {
		s.SubmissionID = w.submissionID.String()
	}
	if w.status != nil {
		st := *w.status
		s.Status = &st
		s.Message = st.Message
	}
	if w.state == StateComplete || w.state == StateClosed {
		s.Message = CompletionMessage(w.numApplied)
	}
	return s
}

// CompletionMessage describes a successful apply, e.g. "Applied 3 labels".
func CompletionMessage(n int) string {
	noun := "label"
	if n != 1 {
		noun = inflection.Plural(noun)
	}
	return fmt.Sprintf("Applied %d %s", n, noun)
}

func statusFromError(err error) *StatusInfo {
	var te *apperrors.TransportError
	switch {
	case errors.As(err, &te) && te.StatusCode >= 200 && te.StatusCode < 300:
		return &StatusInfo{
			Kind:       FailureResponse,
			StatusCode: te.StatusCode,
			Message:    "Labels may have been applied; reload to check.",
		}
	case te != nil && !te.Unreachable():
		return &StatusInfo{
			Kind:       FailureServer,
			StatusCode: te.StatusCode,
			Message:    fmt.Sprintf("Error applying labels (%d). Nothing was changed.", te.StatusCode),
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &StatusInfo{
			Kind:    FailureUnreachable,
			Message: "The server did not respond in time. Labels may not have been applied.",
		}
	default:
		return &StatusInfo{
			Kind:    FailureUnreachable,
			Message: "Could not reach the server. No labels were applied.",
		}
	}
}
