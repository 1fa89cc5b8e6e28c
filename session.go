package gridtune

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SessionConfig describes one tuning session as a YAML document: the
// kernel, its parameters and launch shape modifiers, the search strategy
// and the verification settings. Constraints and local-memory predicates
// are host functions and cannot be expressed here; sessions that need them
// are built through the API instead.
type SessionConfig struct {
	Kernel struct {
		Name        string   `yaml:"name"`
		Source      string   `yaml:"source"`
		SourceFiles []string `yaml:"source_files"`
		Global      []int    `yaml:"global"`
		Local       []int    `yaml:"local"`
	} `yaml:"kernel"`

	Parameters []struct {
		Name   string  `yaml:"name"`
		Values []int64 `yaml:"values"`
	} `yaml:"parameters"`

	Modifiers []struct {
		Op    string   `yaml:"op"`
		Names []string `yaml:"names"`
	} `yaml:"modifiers"`

	IterationsParameter string `yaml:"iterations_parameter"`

	Search struct {
		Method          string  `yaml:"method"`
		Fraction        float64 `yaml:"fraction"`
		MaxTemperature  float64 `yaml:"max_temperature"`
		SwarmSize       int     `yaml:"swarm_size"`
		InfluenceGlobal float64 `yaml:"influence_global"`
		InfluenceLocal  float64 `yaml:"influence_local"`
		InfluenceRandom float64 `yaml:"influence_random"`
	} `yaml:"search"`

	Verification struct {
		Method    string  `yaml:"method"`
		Tolerance float64 `yaml:"tolerance"`
	} `yaml:"verification"`

	NumRuns int `yaml:"num_runs"`
}

// LoadSession parses a session description from a YAML file.
func LoadSession(filename string) (*SessionConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, NewConfigurationError("LoadSession",
			fmt.Sprintf("could not open session file %s: %v", filename, err))
	}
	return ParseSession(data)
}

// ParseSession parses a session description from YAML bytes.
func ParseSession(data []byte) (*SessionConfig, error) {
	var config SessionConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, NewConfigurationError("LoadSession",
			"could not parse session file: "+err.Error())
	}
	if config.Kernel.Name == "" {
		return nil, NewConfigurationError("LoadSession", "session has no kernel name")
	}
	if config.Kernel.Source == "" && len(config.Kernel.SourceFiles) == 0 {
		return nil, NewConfigurationError("LoadSession", "session has no kernel source")
	}
	return &config, nil
}

// Apply registers the described kernel on the tuner and returns its id.
func (c *SessionConfig) Apply(t *Tuner) (int, error) {
	var id int
	var err error
	if c.Kernel.Source != "" {
		id, err = t.AddKernelFromString(c.Kernel.Source, c.Kernel.Name,
			c.Kernel.Global, c.Kernel.Local)
	} else {
		id, err = t.AddKernel(c.Kernel.SourceFiles, c.Kernel.Name,
			c.Kernel.Global, c.Kernel.Local)
	}
	if err != nil {
		return 0, err
	}

	for _, parameter := range c.Parameters {
		if err := t.AddParameter(id, parameter.Name, parameter.Values); err != nil {
			return 0, err
		}
	}

	for _, modifier := range c.Modifiers {
		switch modifier.Op {
		case "global_mul":
			err = t.MulGlobalSize(id, modifier.Names...)
		case "global_div":
			err = t.DivGlobalSize(id, modifier.Names...)
		case "global_add":
			err = t.AddGlobalSize(id, modifier.Names...)
		case "local_mul":
			err = t.MulLocalSize(id, modifier.Names...)
		case "local_div":
			err = t.DivLocalSize(id, modifier.Names...)
		default:
			err = NewConfigurationError("LoadSession",
				fmt.Sprintf("unknown modifier op %q", modifier.Op))
		}
		if err != nil {
			return 0, err
		}
	}

	if c.IterationsParameter != "" {
		if err := t.SetMultirunKernelIterations(id, c.IterationsParameter); err != nil {
			return 0, err
		}
	}

	switch c.Search.Method {
	case "", "full":
		err = t.UseFullSearch(id)
	case "random":
		err = t.UseRandomSearch(id, c.Search.Fraction)
	case "annealing":
		err = t.UseAnnealing(id, c.Search.Fraction, c.Search.MaxTemperature)
	case "pso":
		err = t.UsePSO(id, c.Search.Fraction, c.Search.SwarmSize,
			c.Search.InfluenceGlobal, c.Search.InfluenceLocal, c.Search.InfluenceRandom)
	default:
		err = NewConfigurationError("LoadSession",
			fmt.Sprintf("unknown search method %q", c.Search.Method))
	}
	if err != nil {
		return 0, err
	}

	switch c.Verification.Method {
	case "":
	case "absolute_difference":
		err = t.ChooseVerificationMethod(AbsoluteDifference, c.Verification.Tolerance)
	case "side_by_side":
		err = t.ChooseVerificationMethod(SideBySide, c.Verification.Tolerance)
	default:
		err = NewConfigurationError("LoadSession",
			fmt.Sprintf("unknown verification method %q", c.Verification.Method))
	}
	if err != nil {
		return 0, err
	}

	if c.NumRuns > 0 {
		if err := t.SetNumRuns(c.NumRuns); err != nil {
			return 0, err
		}
	}
	return id, nil
}
