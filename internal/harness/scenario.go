package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/soupstore/internal/schema"
)

// Scenario defines a store scenario: the soups to set up, the steps to run
// and the assertions to evaluate against the resulting database.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Soups lists CUE soup definition files registered before the steps.
	// Paths are relative to the scenario file location.
	Soups []string `yaml:"soups,omitempty"`

	// Passphrase opens the store. Stored documents are sealed when set.
	Passphrase string `yaml:"passphrase,omitempty"`

	// Blobs configures the blob store and externalization.
	Blobs BlobConfig `yaml:"blobs,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// BlobConfig selects the blob backend and the externalize policy.
type BlobConfig struct {
	// Backend is "dir" or "bolt". Empty uses dir when anything is
	// externalized.
	Backend string `yaml:"backend,omitempty"`

	// Threshold externalizes entries larger than this many bytes.
	Threshold *int `yaml:"threshold,omitempty"`

	// Always externalizes every entry.
	Always bool `yaml:"always,omitempty"`
}

// Step is one store operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	Soup    string             `yaml:"soup,omitempty"`
	Indexes []schema.IndexSpec `yaml:"indexes,omitempty"`
	Doc     map[string]any     `yaml:"doc,omitempty"`

	// Key is the external id path for upsert. Empty upserts by entry id.
	Key string `yaml:"key,omitempty"`

	// IDs are the entry ids for get, update and delete.
	IDs []int64 `yaml:"ids,omitempty"`

	// Query is the query for query steps and query deletes.
	Query *QuerySpec `yaml:"query,omitempty"`
	Page  int        `yaml:"page,omitempty"`

	// ExpectError is the error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`

	// ExpectRows is the number of rows a query or get must return.
	ExpectRows *int `yaml:"expect_rows,omitempty"`
}

// QuerySpec describes a query in YAML.
type QuerySpec struct {
	// Kind is all, exact, range or like.
	Kind     string   `yaml:"kind"`
	Path     string   `yaml:"path,omitempty"`
	Value    any      `yaml:"value,omitempty"`
	Begin    any      `yaml:"begin,omitempty"`
	End      any      `yaml:"end,omitempty"`
	Pattern  string   `yaml:"pattern,omitempty"`
	Select   []string `yaml:"select,omitempty"`
	OrderBy  string   `yaml:"order_by,omitempty"`
	Order    string   `yaml:"order,omitempty"`
	PageSize int      `yaml:"page_size,omitempty"`
}

// Step operations.
const (
	OpRegister = "register"
	OpCreate   = "create"
	OpUpsert   = "upsert"
	OpUpdate   = "update"
	OpGet      = "get"
	OpQuery    = "query"
	OpDelete   = "delete"
	OpClear    = "clear"
	OpDrop     = "drop"
	OpDropAll  = "drop_all"
	OpReset    = "reset"
)

// Assertion validates the database after the steps ran.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Soup names the soup whose table is inspected.
	Soup string `yaml:"soup,omitempty"`

	// Table names a table directly (has_table only).
	Table string `yaml:"table,omitempty"`

	// Exists is the expected existence for has_table and blob_files.
	// Defaults to true.
	Exists *bool `yaml:"exists,omitempty"`

	Columns    []string           `yaml:"columns,omitempty"`
	Indexes    []schema.IndexSpec `yaml:"indexes,omitempty"`
	Contains   string             `yaml:"contains,omitempty"`
	Statements []string           `yaml:"statements,omitempty"`

	// Index is the spec position whose index the plan must use.
	Index     int    `yaml:"index,omitempty"`
	Covering  bool   `yaml:"covering,omitempty"`
	Operation string `yaml:"operation,omitempty"`

	IDs []int64 `yaml:"ids,omitempty"`

	// ID and Expect select an entry and its expected fields (subset match).
	ID     int64          `yaml:"id,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertHasTable            = "has_table"
	AssertColumns             = "columns"
	AssertIndexSpecs          = "index_specs"
	AssertCreateTableContains = "create_table_contains"
	AssertDatabaseIndexes     = "database_indexes"
	AssertExplainPlan         = "explain_plan"
	AssertBlobFiles           = "blob_files"
	AssertRecord              = "record"
	AssertCount               = "count"
)

// LoadScenario reads and parses a scenario YAML file. Soup file paths are
// resolved relative to the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, soupPath := range scenario.Soups {
		if !filepath.IsAbs(soupPath) {
			scenario.Soups[i] = filepath.Join(base, soupPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by file
// name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, soupPath := range s.Soups {
		if _, err := os.Stat(soupPath); os.IsNotExist(err) {
			return fmt.Errorf("soup file not found: %s", soupPath)
		}
	}

	switch s.Blobs.Backend {
	case "", BackendDir, BackendBolt:
	default:
		return fmt.Errorf("blobs.backend: unknown backend %q", s.Blobs.Backend)
	}
	if s.Blobs.Threshold != nil && *s.Blobs.Threshold < 0 {
		return fmt.Errorf("blobs.threshold must be non-negative")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	needSoup := func() error {
		if st.Soup == "" {
			return fmt.Errorf("steps[%d]: soup is required for %s", index, st.Op)
		}
		return nil
	}

	switch st.Op {
	case OpRegister:
		if len(st.Indexes) == 0 {
			return fmt.Errorf("steps[%d]: indexes are required for register", index)
		}
		return needSoup()
	case OpCreate, OpUpsert:
		if st.Doc == nil {
			return fmt.Errorf("steps[%d]: doc is required for %s", index, st.Op)
		}
		return needSoup()
	case OpUpdate:
		if st.Doc == nil || len(st.IDs) != 1 {
			return fmt.Errorf("steps[%d]: update needs a doc and exactly one id", index)
		}
		return needSoup()
	case OpGet:
		if len(st.IDs) == 0 {
			return fmt.Errorf("steps[%d]: ids are required for get", index)
		}
		return needSoup()
	case OpQuery:
		if st.Query == nil {
			return fmt.Errorf("steps[%d]: query is required for query", index)
		}
		return needSoup()
	case OpDelete:
		if len(st.IDs) == 0 && st.Query == nil {
			return fmt.Errorf("steps[%d]: delete needs ids or a query", index)
		}
		return needSoup()
	case OpClear, OpDrop:
		return needSoup()
	case OpDropAll, OpReset:
		return nil
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertHasTable:
		if a.Soup == "" && a.Table == "" {
			return fmt.Errorf("assertions[%d]: soup or table is required for has_table", index)
		}
		return nil
	case AssertColumns:
		if len(a.Columns) == 0 {
			return fmt.Errorf("assertions[%d]: columns are required for columns", index)
		}
	case AssertIndexSpecs:
		if len(a.Indexes) == 0 {
			return fmt.Errorf("assertions[%d]: indexes are required for index_specs", index)
		}
	case AssertCreateTableContains:
		if a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for create_table_contains", index)
		}
	case AssertDatabaseIndexes:
	case AssertExplainPlan:
		if a.Operation == "" {
			return fmt.Errorf("assertions[%d]: operation is required for explain_plan", index)
		}
	case AssertBlobFiles:
		if len(a.IDs) == 0 {
			return fmt.Errorf("assertions[%d]: ids are required for blob_files", index)
		}
	case AssertRecord:
		if a.ID == 0 || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: id and expect are required for record", index)
		}
	case AssertCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Soup == "" {
		return fmt.Errorf("assertions[%d]: soup is required for %s", index, a.Type)
	}
	return nil
}
