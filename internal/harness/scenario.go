package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/alecycle/internal/config"
	"github.com/roach88/alecycle/internal/ir"
)

// Scenario defines a cycle test scenario: readers and definitions, a
// sequence of reader and trigger stimuli, and assertions on the reports
// the cycles delivered.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists CUE files holding event_cycle and port_cycle
	// definitions. Relative paths are resolved against the scenario file.
	Specs []string `yaml:"specs"`

	// Readers declares the logical readers, components before composites.
	Readers []config.ReaderConfig `yaml:"readers"`

	// Steps run in order after every definition is subscribed.
	Steps []Step `yaml:"steps"`

	// Assertions validate the collected reports.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one stimulus. Exactly one field is set.
type Step struct {
	// Emit reports a tag sighting from a base reader.
	Emit *EmitStep `yaml:"emit,omitempty"`

	// Port reports a pin observation from a base reader.
	Port *PortStep `yaml:"port,omitempty"`

	// Trigger fires the HTTP triggers registered under a name.
	Trigger string `yaml:"trigger,omitempty"`

	// Wait sleeps for a duration, e.g. "50ms".
	Wait time.Duration `yaml:"wait,omitempty"`

	// Await blocks until a cycle has delivered a number of reports.
	Await *AwaitStep `yaml:"await,omitempty"`
}

// EmitStep is a tag sighting.
type EmitStep struct {
	Reader  string `yaml:"reader"`
	EPC     string `yaml:"epc"`
	Antenna int    `yaml:"antenna,omitempty"`
}

// PortStep is a pin observation.
type PortStep struct {
	Reader string     `yaml:"reader"`
	Type   ir.PinType `yaml:"type"` // INPUT | OUTPUT
	ID     int        `yaml:"id"`
	State  byte       `yaml:"state"`
}

// AwaitStep waits for Count reports in total from Cycle.
type AwaitStep struct {
	Cycle   string        `yaml:"cycle"`
	Count   int           `yaml:"count"`
	Timeout time.Duration `yaml:"timeout,omitempty"` // default DefaultAwaitTimeout
}

// DefaultAwaitTimeout bounds an await step without a timeout.
const DefaultAwaitTimeout = 5 * time.Second

// Assertion validates the collected reports.
type Assertion struct {
	// Type specifies the assertion type:
	// - "report_count": Cycle delivered exactly Count reports
	// - "report_contains": a report of Cycle named Report lists EPC or Event
	// - "report_empty": no report of Cycle named Report lists anything
	// - "termination": every report of Cycle ended with Condition
	Type string `yaml:"type"`

	Cycle     string `yaml:"cycle"`
	Report    string `yaml:"report,omitempty"`
	EPC       string `yaml:"epc,omitempty"`
	Event     string `yaml:"event,omitempty"`
	Count     int    `yaml:"count,omitempty"`
	Condition string `yaml:"condition,omitempty"`
}

// Assertion type constants.
const (
	AssertReportCount    = "report_count"
	AssertReportContains = "report_contains"
	AssertReportEmpty    = "report_empty"
	AssertTermination    = "termination"
)

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the file. Returns an error if the file doesn't
// exist, is malformed, contains unknown fields (typos), or is invalid.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) {
			scenario.Specs[i] = filepath.Join(base, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}
	if len(s.Readers) == 0 {
		return fmt.Errorf("readers list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	// Reader declarations follow the runtime configuration rules.
	cfg := config.Default()
	cfg.Readers = s.Readers
	if err := cfg.Validate(); err != nil {
		return err
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
	set := 0
	if st.Emit != nil {
		set++
		if st.Emit.Reader == "" || st.Emit.EPC == "" {
			return fmt.Errorf("steps[%d].emit: reader and epc are required", index)
		}
	}
	if st.Port != nil {
		set++
		if st.Port.Reader == "" {
			return fmt.Errorf("steps[%d].port: reader is required", index)
		}
		if st.Port.Type != ir.PinInput && st.Port.Type != ir.PinOutput {
			return fmt.Errorf("steps[%d].port: type must be %s or %s", index, ir.PinInput, ir.PinOutput)
		}
	}
	if st.Trigger != "" {
		set++
		if err := ir.ValidName(st.Trigger); err != nil {
			return fmt.Errorf("steps[%d].trigger: %w", index, err)
		}
	}
	if st.Wait != 0 {
		set++
		if st.Wait < 0 {
			return fmt.Errorf("steps[%d].wait: must be positive", index)
		}
	}
	if st.Await != nil {
		set++
		if st.Await.Cycle == "" || st.Await.Count < 1 {
			return fmt.Errorf("steps[%d].await: cycle and a positive count are required", index)
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of emit, port, trigger, wait, await is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Cycle == "" {
		return fmt.Errorf("assertions[%d]: cycle is required", index)
	}

	switch a.Type {
	case AssertReportCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for report_count", index)
		}
	case AssertReportContains:
		if a.Report == "" {
			return fmt.Errorf("assertions[%d]: report is required for report_contains", index)
		}
		if (a.EPC == "") == (a.Event == "") {
			return fmt.Errorf("assertions[%d]: exactly one of epc or event is required for report_contains", index)
		}
	case AssertReportEmpty:
		if a.Report == "" {
			return fmt.Errorf("assertions[%d]: report is required for report_empty", index)
		}
	case AssertTermination:
		if a.Condition == "" {
			return fmt.Errorf("assertions[%d]: condition is required for termination", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
