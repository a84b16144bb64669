package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/soupstore/internal/compiler"
	"github.com/roach88/soupstore/internal/fault"
	"github.com/roach88/soupstore/internal/queryir"
	"github.com/roach88/soupstore/internal/smartstore"
	"github.com/roach88/soupstore/internal/value"
)

// Harness executes scenario steps against a Fixture.
type Harness struct {
	fixture *Fixture
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh database in a temporary directory that is
// removed afterwards. A returned error means the scenario could not be set
// up; step and assertion failures are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with store and harness logs sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	ctx := context.Background()

	var defs []compiler.SoupDef
	for _, path := range scenario.Soups {
		loaded, err := compiler.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load soups: %w", err)
		}
		defs = append(defs, loaded...)
	}

	dir, err := os.MkdirTemp("", "soupstore-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	f, err := NewFixture(dir, Config{
		Passphrase:  scenario.Passphrase,
		BlobBackend: scenario.Blobs.Backend,
		Externalize: policyFor(scenario.Blobs, defs),
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := &Harness{fixture: f, logger: logger}

	for _, def := range defs {
		if err := f.Store.RegisterSoup(ctx, def.Name, def.Indexes); err != nil {
			return nil, fmt.Errorf("register soup %s: %w", def.Name, err)
		}
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step, result)
	}

	for _, msg := range EvaluateAssertions(ctx, f, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// policyFor combines the scenario's blob settings with the soups declared
// external.
func policyFor(cfg BlobConfig, defs []compiler.SoupDef) smartstore.ExternalizePolicy {
	var policies []smartstore.ExternalizePolicy
	if cfg.Always {
		policies = append(policies, smartstore.Always())
	}
	if cfg.Threshold != nil {
		policies = append(policies, smartstore.Threshold(*cfg.Threshold))
	}
	var external []string
	for _, def := range defs {
		if def.External {
			external = append(external, def.Name)
		}
	}
	if len(external) > 0 {
		policies = append(policies, smartstore.ForSoups(external...))
	}

	if len(policies) == 0 {
		return nil
	}
	return smartstore.PolicyFunc(func(soup string, size int) bool {
		for _, p := range policies {
			if p.Externalize(soup, size) {
				return true
			}
		}
		return false
	})
}

// executeStep runs one step, records it in the trace and checks its
// expectations.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) {
	ev := TraceEvent{Step: i, Op: step.Op, Soup: step.Soup, Outcome: "ok"}

	rows, ids, err := h.apply(ctx, step)
	if err != nil {
		ev.Outcome = outcomeOf(err)
	}
	ev.IDs = ids
	if rows >= 0 {
		ev.Rows = &rows
	}
	result.AddTrace(ev)

	switch {
	case step.ExpectError == "" && err != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, step.Op, err))
	case step.ExpectError != "" && ev.Outcome != step.ExpectError:
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %s", i, step.Op, step.ExpectError, ev.Outcome))
	case step.ExpectRows != nil && err == nil && rows != *step.ExpectRows:
		result.AddError(fmt.Sprintf("steps[%d] %s: expected %d rows, got %d", i, step.Op, *step.ExpectRows, rows))
	}

	h.logger.Debug("scenario step completed", "step", i, "op", step.Op, "soup", step.Soup, "outcome", ev.Outcome)
}

// apply runs a step against the store. rows is -1 for steps that return no
// rows.
func (h *Harness) apply(ctx context.Context, step Step) (rows int, ids []int64, err error) {
	s := h.fixture.Store
	rows = -1

	switch step.Op {
	case OpRegister:
		err = s.RegisterSoup(ctx, step.Soup, step.Indexes)

	case OpCreate, OpUpsert, OpUpdate:
		var doc value.Object
		doc, err = toObject(step.Doc)
		if err != nil {
			return rows, nil, err
		}
		var saved value.Object
		switch step.Op {
		case OpCreate:
			saved, err = s.Create(ctx, step.Soup, doc)
		case OpUpsert:
			saved, err = s.UpsertWithKey(ctx, step.Soup, doc, step.Key)
		default:
			saved, err = s.Update(ctx, step.Soup, step.IDs[0], doc)
		}
		if err == nil {
			ids = []int64{IDOf(saved)}
		}

	case OpGet:
		var docs []value.Object
		docs, err = s.Retrieve(ctx, step.Soup, step.IDs...)
		if err == nil {
			rows = len(docs)
			for _, d := range docs {
				ids = append(ids, IDOf(d))
			}
		}

	case OpQuery:
		var q queryir.Query
		q, err = BuildQuery(step.Soup, step.Query)
		if err != nil {
			return rows, nil, err
		}
		var results []value.Value
		results, err = s.Query(ctx, q, step.Page)
		if err == nil {
			rows = len(results)
			for _, r := range results {
				if obj, ok := r.(value.Object); ok {
					ids = append(ids, IDOf(obj))
				}
			}
		}

	case OpDelete:
		if step.Query != nil {
			var q queryir.Query
			q, err = BuildQuery(step.Soup, step.Query)
			if err != nil {
				return rows, nil, err
			}
			err = s.DeleteByQuery(ctx, q)
		} else {
			err = s.Delete(ctx, step.Soup, step.IDs...)
			ids = step.IDs
		}

	case OpClear:
		err = s.Clear(ctx, step.Soup)
	case OpDrop:
		err = s.DropSoup(ctx, step.Soup)
	case OpDropAll:
		err = s.DropAllSoups(ctx)
	case OpReset:
		s.Store().Reset()

	default:
		err = fault.Invalid("unknown op %q", step.Op)
	}
	return rows, ids, err
}

func outcomeOf(err error) string {
	if code := fault.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}

func toObject(m map[string]any) (value.Object, error) {
	v, err := value.FromAny(m)
	if err != nil {
		return nil, fault.Invalid("doc: %v", err)
	}
	obj, ok := v.(value.Object)
	if !ok {
		return nil, fault.Invalid("doc must be an object")
	}
	return obj, nil
}

// BuildQuery converts a QuerySpec into a query on soup. Order is case
// insensitive.
func BuildQuery(soup string, qs *QuerySpec) (queryir.Query, error) {
	shape := queryir.Shape{
		Soup:      soup,
		Select:    qs.Select,
		OrderPath: qs.OrderBy,
		Order:     queryir.Order(strings.ToUpper(qs.Order)),
		PageSize:  qs.PageSize,
	}

	scalar := func(name string, v any) (value.Value, error) {
		out, err := value.FromAny(v)
		if err != nil {
			return nil, fault.Invalid("query %s: %v", name, err)
		}
		return out, nil
	}

	switch qs.Kind {
	case "all", "":
		return queryir.All{Shape: shape}, nil
	case "exact":
		match, err := scalar("value", qs.Value)
		if err != nil {
			return nil, err
		}
		return queryir.Exact{Shape: shape, Path: qs.Path, Match: match}, nil
	case "range":
		begin, err := scalar("begin", qs.Begin)
		if err != nil {
			return nil, err
		}
		end, err := scalar("end", qs.End)
		if err != nil {
			return nil, err
		}
		return queryir.Range{Shape: shape, Path: qs.Path, Begin: begin, End: end}, nil
	case "like":
		return queryir.Like{Shape: shape, Path: qs.Path, Pattern: qs.Pattern}, nil
	default:
		return nil, fault.Invalid("unknown query kind %q", qs.Kind)
	}
}
