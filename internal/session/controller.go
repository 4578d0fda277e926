package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/zombor/snapsort/internal/intake"
	"github.com/zombor/snapsort/internal/records"
	"github.com/zombor/snapsort/internal/scanning"
)

// State is where the controller is in the upload, review and commit cycle
type State string

const (
	StateIdle      State = "idle"
	StateUploading State = "uploading"
	StateReviewing State = "reviewing"
)

var (
	// ErrNothingToCommit is returned by Commit when no analyzed data is staged
	ErrNothingToCommit = errors.New("no analyzed data to save")

	// ErrCommitUnavailable is returned by Commit when the staged analysis failed
	ErrCommitUnavailable = errors.New("analysis failed, the result cannot be saved")

	// ErrNotReviewing is returned when editing fields before an analysis result is staged
	ErrNotReviewing = errors.New("no analyzed data to edit")

	// ErrUnknownField is returned for field names not shown for the staged kind
	ErrUnknownField = errors.New("unknown field")

	// ErrNothingStaged is returned when setting a memo with no upload in progress
	ErrNothingStaged = errors.New("no upload in progress")

	// ErrStopped is returned once Run has exited
	ErrStopped = errors.New("session stopped")
)

// fieldLabels are the form labels shown next to each field
var fieldLabels = map[string]string{
	scanning.FieldStoreName:       "상호명",
	scanning.FieldTotalAmount:     "총액",
	scanning.FieldTransactionDate: "거래일시",
	scanning.FieldName:            "이름",
	scanning.FieldCompany:         "회사",
	scanning.FieldTitle:           "직책",
	scanning.FieldPhone:           "전화번호",
	scanning.FieldEmail:           "이메일",
}

// FieldsToDisplay returns the editable fields for kind in display order.
// Error results have no editable fields.
func FieldsToDisplay(kind scanning.Kind) []string {
	if kind == scanning.KindError {
		return nil
	}
	return scanning.FieldsFor(kind)
}

// FieldLabel returns the form label of a field, or the field name when it has none
func FieldLabel(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	return field
}

// Staged is the upload currently under review
type Staged struct {
	ImagePath string
	Result    *scanning.Result
	Memo      string
}

// Field is one editable value of a snapshot
type Field struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Snapshot is a read-only copy of the controller state
type Snapshot struct {
	State      State         `json:"state"`
	ImagePath  string        `json:"image_path,omitempty"`
	Kind       scanning.Kind `json:"kind,omitempty"`
	Fields     []Field       `json:"fields"`
	Memo       string        `json:"memo"`
	Error      string        `json:"error,omitempty"`
	CanCommit  bool          `json:"can_commit"`
	Generation uint64        `json:"generation"`
}

// Controller owns the staged upload. All state lives on the goroutine running Run;
// public methods hand closures to it and wait for them to finish.
type Controller struct {
	storage   intake.Storage
	extractor scanning.Extractor
	store     records.Store
	logger    *slog.Logger

	ops  chan func()
	done chan struct{}
	once sync.Once

	// owned by Run
	runCtx     context.Context
	state      State
	staged     Staged
	generation uint64
	cancel     context.CancelFunc
	analyses   sync.WaitGroup
}

// New creates a Controller. Run must be started before any other method is called.
func New(storage intake.Storage, extractor scanning.Extractor, store records.Store, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		storage:   storage,
		extractor: extractor,
		store:     store,
		logger:    logger,
		ops:       make(chan func()),
		done:      make(chan struct{}),
		state:     StateIdle,
	}
}

// Run executes submitted operations and analysis completions until ctx is done.
// It cancels any analysis still in flight and waits for it before returning.
func (c *Controller) Run(ctx context.Context) error {
	c.runCtx = ctx
	defer func() {
		c.cancelAnalysis()
		c.once.Do(func() { close(c.done) })
		c.analyses.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-c.ops:
			op()
		}
	}
}

// do runs op on the Run goroutine and waits for it
func (c *Controller) do(op func()) error {
	finished := make(chan struct{})
	select {
	case c.ops <- func() { op(); close(finished) }:
	case <-c.done:
		return ErrStopped
	}
	<-finished
	return nil
}

// Upload copies the image at sourcePath into managed storage and starts analyzing it.
// Whatever was staged before is discarded. If the copy fails nothing changes.
func (c *Controller) Upload(sourcePath string) (Snapshot, error) {
	return c.upload(func() (string, error) {
		return c.storage.Save(sourcePath)
	})
}

// UploadFrom is Upload for images that arrive as a stream, such as a browser upload
func (c *Controller) UploadFrom(filename string, r io.Reader) (Snapshot, error) {
	return c.upload(func() (string, error) {
		return c.storage.SaveFrom(filename, r)
	})
}

func (c *Controller) upload(save func() (string, error)) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if stopErr := c.do(func() {
		path, saveErr := save()
		if saveErr != nil {
			c.logger.Error("session.upload.error", "error", saveErr)
			err = fmt.Errorf("saving upload: %w", saveErr)
			snap = c.snapshot()
			return
		}

		c.cancelAnalysis()
		c.generation++
		c.staged = Staged{ImagePath: path}
		c.state = StateUploading
		c.logger.Info("session.upload.ok", "image", path, "generation", c.generation)

		c.startAnalysis(c.generation, path)
		snap = c.snapshot()
	}); stopErr != nil {
		return Snapshot{}, stopErr
	}
	return snap, err
}

// startAnalysis runs the extractor off the Run goroutine and posts the result back to it
func (c *Controller) startAnalysis(generation uint64, imagePath string) {
	ctx, cancel := context.WithCancel(c.runCtx)
	c.cancel = cancel
	c.analyses.Add(1)

	go func() {
		defer c.analyses.Done()
		result := c.extractor.Analyze(ctx, imagePath)
		select {
		case c.ops <- func() { c.finishAnalysis(generation, result) }:
		case <-c.done:
		}
	}()
}

// finishAnalysis stages result unless a newer upload or a discard has superseded it
func (c *Controller) finishAnalysis(generation uint64, result scanning.Result) {
	if generation != c.generation || c.state != StateUploading {
		c.logger.Info("session.analyze.stale", "generation", generation, "current", c.generation)
		return
	}
	c.cancelAnalysis()

	switch result.Kind {
	case scanning.KindReceipt, scanning.KindBusinessCard, scanning.KindError:
		result = result.Clone()
	default:
		result = scanning.ErrorResult(fmt.Sprintf("unknown result kind %q", result.Kind))
	}

	c.staged.Result = &result
	c.state = StateReviewing
	if result.Kind == scanning.KindError {
		c.logger.Warn("session.analyze.failed", "generation", generation, "message", result.Message())
		return
	}
	c.logger.Info("session.analyze.ok", "generation", generation, "kind", result.Kind)
}

// EditField replaces the value of one staged field. Values are free text.
func (c *Controller) EditField(name, value string) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if stopErr := c.do(func() {
		defer func() { snap = c.snapshot() }()
		if c.state != StateReviewing || c.staged.Result == nil {
			err = ErrNotReviewing
			return
		}
		if !slices.Contains(FieldsToDisplay(c.staged.Result.Kind), name) {
			err = fmt.Errorf("%w: %q", ErrUnknownField, name)
			return
		}
		c.staged.Result.Fields[name] = value
	}); stopErr != nil {
		return Snapshot{}, stopErr
	}
	return snap, err
}

// SetMemo sets the memo saved along with the staged result
func (c *Controller) SetMemo(memo string) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if stopErr := c.do(func() {
		if c.staged.ImagePath == "" {
			err = ErrNothingStaged
		} else {
			c.staged.Memo = memo
		}
		snap = c.snapshot()
	}); stopErr != nil {
		return Snapshot{}, stopErr
	}
	return snap, err
}

// Commit saves the staged result with its memo and image path, then clears the stage.
// If the store fails the staged data is kept so the commit can be retried.
func (c *Controller) Commit(ctx context.Context) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	if stopErr := c.do(func() {
		defer func() { snap = c.snapshot() }()
		err = c.commit(ctx)
	}); stopErr != nil {
		return Snapshot{}, stopErr
	}
	return snap, err
}

func (c *Controller) commit(ctx context.Context) error {
	if c.staged.ImagePath == "" || c.staged.Result == nil {
		return ErrNothingToCommit
	}

	fields := c.staged.Result.Fields
	var (
		id  int64
		err error
	)
	switch c.staged.Result.Kind {
	case scanning.KindReceipt:
		id, err = c.store.InsertReceipt(ctx, records.ReceiptInput{
			StoreName:       fields[scanning.FieldStoreName],
			TotalAmount:     fields[scanning.FieldTotalAmount],
			TransactionDate: fields[scanning.FieldTransactionDate],
			Memo:            c.staged.Memo,
			ImagePath:       c.staged.ImagePath,
		})
	case scanning.KindBusinessCard:
		id, err = c.store.InsertBusinessCard(ctx, records.BusinessCardInput{
			Name:      fields[scanning.FieldName],
			Company:   fields[scanning.FieldCompany],
			Title:     fields[scanning.FieldTitle],
			Phone:     fields[scanning.FieldPhone],
			Email:     fields[scanning.FieldEmail],
			Memo:      c.staged.Memo,
			ImagePath: c.staged.ImagePath,
		})
	case scanning.KindError:
		return ErrCommitUnavailable
	default:
		return fmt.Errorf("%w: unknown result kind %q", ErrCommitUnavailable, c.staged.Result.Kind)
	}
	if err != nil {
		c.logger.Error("session.commit.error", "kind", c.staged.Result.Kind, "error", err)
		return fmt.Errorf("saving %s: %w", c.staged.Result.Kind, err)
	}

	c.logger.Info("session.commit.ok", "kind", c.staged.Result.Kind, "id", id, "image", c.staged.ImagePath)
	c.reset()
	return nil
}

// Discard drops the staged upload without saving it. It also dismisses a failed analysis.
func (c *Controller) Discard() (Snapshot, error) {
	var snap Snapshot
	if err := c.do(func() {
		if c.state != StateIdle {
			c.logger.Info("session.discard", "generation", c.generation)
		}
		c.reset()
		snap = c.snapshot()
	}); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() (Snapshot, error) {
	var snap Snapshot
	if err := c.do(func() { snap = c.snapshot() }); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (c *Controller) reset() {
	c.cancelAnalysis()
	c.staged = Staged{}
	c.state = StateIdle
}

func (c *Controller) cancelAnalysis() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{
		State:      c.state,
		ImagePath:  c.staged.ImagePath,
		Fields:     []Field{},
		Memo:       c.staged.Memo,
		Generation: c.generation,
	}
	if r := c.staged.Result; r != nil {
		snap.Kind = r.Kind
		if r.Kind == scanning.KindError {
			snap.Error = r.Message()
		}
		for _, name := range FieldsToDisplay(r.Kind) {
			snap.Fields = append(snap.Fields, Field{Name: name, Label: FieldLabel(name), Value: r.Fields[name]})
		}
		snap.CanCommit = c.staged.ImagePath != "" && r.Kind != scanning.KindError
	}
	return snap
}
