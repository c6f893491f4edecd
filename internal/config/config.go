package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/job"
)

// DefaultFile is the job file name used when none is given.
const DefaultFile = "docpipe.yaml"

// Load reads and decodes the job file at path.
func Load(path string) (job.Spec, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- job file path is user supplied
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return job.Spec{}, errors.ConfigError("job file not found").
				WithCause(err).
				WithContext("path", path).
				UserAction().
				Build()
		}
		return job.Spec{}, errors.WrapError(err, errors.CategoryFileSystem, "read job file").
			WithContext("path", path).
			Build()
	}
	spec, err := Parse(data)
	if err != nil {
		return job.Spec{}, errors.WrapError(err, errors.CategoryConfig, "parse job file").
			WithContext("path", path).
			Build()
	}
	return spec, nil
}

// Parse decodes a job document. Unknown fields and trailing documents are errors.
func Parse(data []byte) (job.Spec, error) {
	var spec job.Spec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		if stderrors.Is(err, io.EOF) {
			return job.Spec{}, fmt.Errorf("job file is empty")
		}
		return job.Spec{}, fmt.Errorf("decode job: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !stderrors.Is(err, io.EOF) {
		return job.Spec{}, fmt.Errorf("job file must contain a single YAML document")
	}
	return spec, nil
}

// LoadJob loads, schedules and validates the job file at path.
func LoadJob(path string) (job.Spec, error) {
	spec, err := Load(path)
	if err != nil {
		return job.Spec{}, err
	}
	spec = job.Schedule(spec)
	if err := job.Validate(spec); err != nil {
		return job.Spec{}, err
	}
	return spec, nil
}
