package config

import (
	"fmt"

	"github.com/ajitpratap0/recordflow/pkg/controller"
	"github.com/ajitpratap0/recordflow/pkg/errors"
)

// CurrentVersion is the job file version written by NewJob.
const CurrentVersion = "1.0"

// DefaultBatchSize is the number of records handed to a stream at once.
const DefaultBatchSize = 1000

// Job is the root of a job file.
type Job struct {
	Version            string          `yaml:"version" json:"version"`
	Name               string          `yaml:"name" json:"name"`
	Documentation      string          `yaml:"documentation,omitempty" json:"documentation,omitempty"`
	Engine             EngineConfig    `yaml:"engine" json:"engine"`
	ControllerServices []ServiceConfig `yaml:"controller_services" json:"controller_services"`
	Streams            []StreamConfig  `yaml:"streams" json:"streams"`
}

// EngineConfig controls how records are fed to streams.
type EngineConfig struct {
	// BatchSize bounds the records processed per Process call
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// ServiceConfig declares one controller service. Several entries may share
// an identifier; they are tried in order until one initializes.
type ServiceConfig struct {
	Identifier    string            `yaml:"identifier" json:"identifier"`
	Class         string            `yaml:"class" json:"class"`
	Documentation string            `yaml:"documentation,omitempty" json:"documentation,omitempty"`
	Configuration map[string]string `yaml:"configuration" json:"configuration"`
}

// StreamConfig declares an ordered chain of processors.
type StreamConfig struct {
	Name          string            `yaml:"name" json:"name"`
	Documentation string            `yaml:"documentation,omitempty" json:"documentation,omitempty"`
	Configuration map[string]string `yaml:"configuration,omitempty" json:"configuration,omitempty"`
	Processors    []ProcessorConfig `yaml:"processors" json:"processors"`
}

// ProcessorConfig declares one processor of a stream.
type ProcessorConfig struct {
	Name          string            `yaml:"name" json:"name"`
	Class         string            `yaml:"class" json:"class"`
	Documentation string            `yaml:"documentation,omitempty" json:"documentation,omitempty"`
	Configuration map[string]string `yaml:"configuration" json:"configuration"`
}

// NewJob creates an empty job with defaults applied.
func NewJob(name string) *Job {
	j := &Job{Name: name}
	j.ApplyDefaults()
	return j
}

// ApplyDefaults fills unset fields.
func (j *Job) ApplyDefaults() {
	if j.Version == "" {
		j.Version = CurrentVersion
	}
	if j.Engine.BatchSize <= 0 {
		j.Engine.BatchSize = DefaultBatchSize
	}
}

// LoadJob reads, defaults and validates a job file.
func LoadJob(path string) (*Job, error) {
	var job Job
	if err := Load(path, &job); err != nil {
		return nil, err
	}
	job.ApplyDefaults()
	if err := job.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid job file").WithDetail("path", path)
	}
	return &job, nil
}

// Validate checks the structure of the job. Property values are validated
// later against the components' descriptors.
func (j *Job) Validate() error {
	var problems []error
	if j.Name == "" {
		problems = append(problems, errors.New(errors.ErrorTypeConfig, "name is required"))
	}
	if j.Engine.BatchSize < 0 {
		problems = append(problems, errors.New(errors.ErrorTypeConfig, "engine.batch_size cannot be negative"))
	}

	for i, svc := range j.ControllerServices {
		if svc.Identifier == "" {
			problems = append(problems, errors.Newf(errors.ErrorTypeConfig, "controller_services[%d]: identifier is required", i))
		}
		if svc.Class == "" {
			problems = append(problems, errors.Newf(errors.ErrorTypeConfig, "controller_services[%d]: class is required", i))
		}
	}

	streams := map[string]bool{}
	for i, s := range j.Streams {
		where := fmt.Sprintf("streams[%d]", i)
		if s.Name == "" {
			problems = append(problems, errors.Newf(errors.ErrorTypeConfig, "%s: name is required", where))
		} else if streams[s.Name] {
			problems = append(problems, errors.Newf(errors.ErrorTypeConfig, "%s: duplicate stream name %q", where, s.Name))
		}
		streams[s.Name] = true

		names := map[string]bool{}
		for k, p := range s.Processors {
			pw := fmt.Sprintf("%s.processors[%d]", where, k)
			if p.Class == "" {
				problems = append(problems, errors.Newf(errors.ErrorTypeConfig, "%s: class is required", pw))
			}
			if p.Name != "" && names[p.Name] {
				problems = append(problems, errors.Newf(errors.ErrorTypeConfig, "%s: duplicate processor name %q", pw, p.Name))
			}
			names[p.Name] = true
		}
	}
	return errors.Join(problems...)
}

// Stream returns the named stream.
func (j *Job) Stream(name string) (StreamConfig, bool) {
	for _, s := range j.Streams {
		if s.Name == name {
			return s, true
		}
	}
	return StreamConfig{}, false
}

// ServiceConfigurations returns the service entries in file order.
func (j *Job) ServiceConfigurations() []controller.ServiceConfiguration {
	out := make([]controller.ServiceConfiguration, 0, len(j.ControllerServices))
	for _, svc := range j.ControllerServices {
		cfg := make(map[string]string, len(svc.Configuration))
		for k, v := range svc.Configuration {
			cfg[k] = v
		}
		out = append(out, controller.ServiceConfiguration{
			Identifier:    svc.Identifier,
			Class:         svc.Class,
			Documentation: svc.Documentation,
			Configuration: cfg,
		})
	}
	return out
}
