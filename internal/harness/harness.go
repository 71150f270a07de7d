package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/txgraph/internal/engine"
	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/metrics"
	"github.com/roach88/txgraph/internal/schema"
	"github.com/roach88/txgraph/internal/store"
)

// Harness is the scenario execution context.
// It runs one transaction tree with deterministic keys.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	scope    *engine.Scope
	entries  []engine.ScopeEntry
	recorder *engine.TraceRecorder
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// Options configures RunWithOptions.
type Options struct {
	// DBPath is the SQLite database. Empty uses a private in-memory one.
	DBPath string
	// Logger receives engine logs. Nil discards them.
	Logger *slog.Logger
	// Metrics, when set, observes the whole tree and times every commit.
	Metrics *metrics.Collector
	// MaxCommitRounds overrides the engine default when positive.
	MaxCommitRounds int
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation. Keys
// generated by "new" without an id are k1, k2, ...
//
// Execution flow:
// 1. Compile the schema and seed the store
// 2. Create the root transaction and start tracing
// 3. Execute steps, checking expected errors
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunWithOptions(scenario, Options{})
}

// RunWithOptions executes a scenario as Run does. With a DBPath, seed
// records already stored are left untouched and committed changes stay in
// the database.
func RunWithOptions(scenario *Scenario, opts Options) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	model, err := loadModel(scenario)
	if err != nil {
		return nil, err
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = ":memory:"
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := seedStore(ctx, st, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	}
	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithQueryExecutor(st),
		engine.WithKeyGenerator(engine.NewSequenceGenerator("k")),
	}
	if opts.MaxCommitRounds > 0 {
		engineOpts = append(engineOpts, engine.WithMaxCommitRounds(opts.MaxCommitRounds))
	}
	eng := engine.New(st, model, engineOpts...)

	var traceOpts []engine.TraceOption
	if scenario.Structural {
		traceOpts = append(traceOpts, engine.WithStructural())
	}
	h := &Harness{
		store:    st,
		engine:   eng,
		scope:    engine.NewScope(),
		recorder: engine.NewTraceRecorder(traceOpts...),
		metrics:  opts.Metrics,
		logger:   logger,
	}
	root := eng.CreateRoot()
	h.recorder.Follow(root)
	if h.metrics != nil {
		h.metrics.Attach(root)
	}
	h.entries = append(h.entries, h.scope.Enter(root))

	result := NewResult()
	h.executeSteps(ctx, scenario.Steps, result)
	result.Trace = h.recorder.Lines()

	actx := &AssertionContext{
		Ctx:   ctx,
		Store: st,
		Tx:    h.scope.Current(),
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	for _, rec := range root.Records() {
		result.State[rec.ID().String()] = rec.State().String()
	}
	return result, nil
}

func loadModel(s *Scenario) (*schema.Model, error) {
	var (
		m   *schema.Model
		err error
	)
	if s.SchemaSource != "" {
		m, err = schema.LoadString(s.SchemaSource)
	} else {
		m, err = schema.Load(s.Schema)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	return m, nil
}

// seedStore writes the seed records that are not stored yet in one batch.
func seedStore(ctx context.Context, st *store.Store, seed []SeedRecord) error {
	batch := make([]ir.PersistRecord, 0, len(seed))
	for i, s := range seed {
		rec, err := s.stored()
		if err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
		_, err = st.ReadRecord(ctx, rec.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
		batch = append(batch, ir.PersistRecord{Op: ir.OpInsert, Record: rec})
	}
	_, err := st.Persist(ctx, batch)
	return err
}

func (s SeedRecord) stored() (ir.StoredRecord, error) {
	id, err := parseID(s.ID)
	if err != nil {
		return ir.StoredRecord{}, err
	}
	props, err := convertProperties(s.Properties)
	if err != nil {
		return ir.StoredRecord{}, err
	}
	rec := ir.StoredRecord{ID: id, Properties: props}
	for name, text := range s.Refs {
		target, err := ir.ParseEntityID(text)
		if err != nil {
			return ir.StoredRecord{}, fmt.Errorf("refs %q: %w", name, err)
		}
		if rec.Refs == nil {
			rec.Refs = make(map[string]ir.EntityID)
		}
		rec.Refs[name] = target
	}
	for name, texts := range s.Lists {
		ids, err := parseIDs(texts)
		if err != nil {
			return ir.StoredRecord{}, fmt.Errorf("lists %q: %w", name, err)
		}
		if rec.Lists == nil {
			rec.Lists = make(map[string][]ir.EntityID)
		}
		rec.Lists[name] = ids
	}
	return rec, nil
}

// executeSteps runs steps until one fails unexpectedly.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) {
	for i, step := range steps {
		tx := h.scope.Current()
		err := h.executeStep(ctx, tx, step)
		if msg := checkStepError(step, err); msg != "" {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Op, msg))
			return
		}
		if err == nil {
			h.afterStep(tx, step)
		}
		h.logger.Debug("step completed", "step", i, "op", step.Op, "tx", tx.ID(), "err", err)
	}
}

// checkStepError compares the outcome with ExpectError. An empty result
// means the step behaved as declared.
func checkStepError(step Step, err error) string {
	switch {
	case step.ExpectError == "" && err != nil:
		return fmt.Sprintf("unexpected error: %v", err)
	case step.ExpectError != "" && err == nil:
		return fmt.Sprintf("expected error %s, got none", step.ExpectError)
	case step.ExpectError != "" && !slices.Contains(errorCodes(err), engine.ErrorCode(step.ExpectError)):
		return fmt.Sprintf("expected error %s, got %v", step.ExpectError, err)
	}
	return ""
}

// errorCodes lists the engine codes carried by err, every violation of a
// validation failure included.
func errorCodes(err error) []engine.ErrorCode {
	var (
		codes []engine.ErrorCode
		vf    *engine.ValidationFailedError
	)
	if errors.As(err, &vf) {
		for _, v := range vf.Violations {
			codes = append(codes, v.Code)
		}
	}
	if code := engine.CodeOf(err); code != "" {
		codes = append(codes, code)
	}
	return codes
}

// afterStep keeps the scope in line with the tree: sub enters the new
// sub-transaction; a successful commit or rollback of a sub, or any
// discard, leaves it.
func (h *Harness) afterStep(tx *engine.Transaction, step Step) {
	switch step.Op {
	case OpSub:
		h.entries = append(h.entries, h.scope.Enter(tx.Sub()))
	case OpCommit, OpRollback, OpDiscard:
		if tx.IsRoot() || len(h.entries) < 2 {
			return
		}
		last := h.entries[len(h.entries)-1]
		h.entries = h.entries[:len(h.entries)-1]
		if err := last.Leave(); err != nil {
			h.logger.Warn("leave scope", "err", err)
		}
	}
}

func (h *Harness) executeStep(ctx context.Context, tx *engine.Transaction, step Step) error {
	switch step.Op {
	case OpNew:
		return h.newRecord(ctx, tx, step)
	case OpGet:
		id, err := parseID(step.ID)
		if err != nil {
			return err
		}
		_, err = tx.Get(ctx, id)
		return err
	case OpSet:
		id, err := parseID(step.ID)
		if err != nil {
			return err
		}
		v, err := ir.FromAny(step.Value)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		return tx.SetProperty(ctx, id, step.Property, v)
	case OpLink:
		ep, target, err := endPointAndTarget(step)
		if err != nil {
			return err
		}
		return tx.SetRelated(ctx, ep, target)
	case OpAdd:
		ep, target, err := endPointAndTarget(step)
		if err != nil {
			return err
		}
		if step.Index != nil {
			return tx.InsertRelated(ctx, ep, *step.Index, target)
		}
		return tx.AddRelated(ctx, ep, target)
	case OpRemove:
		ep, target, err := endPointAndTarget(step)
		if err != nil {
			return err
		}
		return tx.RemoveRelated(ctx, ep, target)
	case OpReplace:
		ep, err := parseEndPoint(step.EndPoint)
		if err != nil {
			return err
		}
		targets, err := parseIDs(step.Targets)
		if err != nil {
			return err
		}
		return tx.ReplaceAllRelated(ctx, ep, targets)
	case OpDelete:
		id, err := parseID(step.ID)
		if err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	case OpCommit:
		if h.metrics != nil {
			return h.metrics.Commit(ctx, tx)
		}
		return tx.Commit(ctx)
	case OpRollback:
		return tx.Rollback(ctx)
	case OpSub:
		_, err := tx.CreateSub()
		return err
	case OpDiscard:
		tx.Discard()
		return nil
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

func (h *Harness) newRecord(ctx context.Context, tx *engine.Transaction, step Step) error {
	var (
		rec *engine.Record
		err error
	)
	if step.ID != "" {
		id, perr := parseID(step.ID)
		if perr != nil {
			return perr
		}
		rec, err = tx.NewEntityWithKey(ctx, id.Class, id.Key)
	} else {
		rec, err = tx.NewEntity(ctx, step.Class)
	}
	if err != nil {
		return err
	}
	props, err := convertProperties(step.Properties)
	if err != nil {
		return err
	}
	for _, name := range props.SortedKeys() {
		if err := tx.SetProperty(ctx, rec.ID(), name, props[name]); err != nil {
			return err
		}
	}
	return nil
}

func endPointAndTarget(step Step) (ir.EndPointID, ir.EntityID, error) {
	ep, err := parseEndPoint(step.EndPoint)
	if err != nil {
		return ir.EndPointID{}, ir.EntityID{}, err
	}
	target, err := ir.ParseEntityID(step.Target)
	if err != nil {
		return ir.EndPointID{}, ir.EntityID{}, err
	}
	return ep, target, nil
}

func parseIDs(texts []string) ([]ir.EntityID, error) {
	ids := make([]ir.EntityID, 0, len(texts))
	for _, text := range texts {
		id, err := parseID(text)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// convertProperties converts YAML-decoded values to an IRObject.
func convertProperties(props map[string]any) (ir.IRObject, error) {
	out := make(ir.IRObject, len(props))
	for name, raw := range props {
		v, err := ir.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
