package backup

import (
	"context"
	"fmt"
	"os"

	"krisa-backup/internal/logging"

	"gopkg.in/yaml.v3"
)

// DatasetKind identifies which adapter implementation drives a dataset
type DatasetKind string

const (
	// DatasetKindPostgres is a relational store dumped with pg_dump
	DatasetKindPostgres DatasetKind = "postgres"
	// DatasetKindSQLite is an embedded file store copied with the
	// sqlite3 online-backup command
	DatasetKindSQLite DatasetKind = "sqlite"
)

// Dataset describes one backup target. Descriptors are first-class values:
// the controller only ever sees the Adapter built from one, so new datasets
// are added by registering a descriptor, not by touching the pipeline.
type Dataset struct {
	// Name identifies the dataset and prefixes its dump filenames
	Name string `yaml:"name"`
	// Kind selects the adapter implementation
	Kind DatasetKind `yaml:"kind"`
	// Container is the runtime container hosting the live service
	Container string `yaml:"container"`
	// ArchivePrefix is the dataset token embedded in artifact filenames.
	// Defaults to Name.
	ArchivePrefix string `yaml:"archive_prefix"`
	// DumpSuffix is the dump file extension (".dump" or ".db")
	DumpSuffix string `yaml:"dump_suffix"`
	// Secondary marks datasets whose restore failure is reported as a
	// warning instead of failing the combined run
	Secondary bool `yaml:"secondary"`

	// Relational-store fields
	Username string `yaml:"username"`
	Database string `yaml:"database"`

	// Embedded-file-store fields
	DBPath string `yaml:"db_path"`
}

// Validate checks the descriptor for the fields its kind requires
func (d *Dataset) Validate() error {
	if d.Name == "" {
		return NewValidationError("dataset name is required", nil)
	}
	if d.Container == "" {
		return NewValidationError(fmt.Sprintf("dataset %s: container is required", d.Name), nil)
	}

	switch d.Kind {
	case DatasetKindPostgres:
		if d.Username == "" || d.Database == "" {
			return NewValidationError(fmt.Sprintf("dataset %s: username and database are required", d.Name), nil)
		}
	case DatasetKindSQLite:
		if d.DBPath == "" {
			return NewValidationError(fmt.Sprintf("dataset %s: db_path is required", d.Name), nil)
		}
	default:
		return NewValidationError(fmt.Sprintf("dataset %s: unknown kind %q", d.Name, d.Kind), nil)
	}

	return nil
}

// applyDefaults fills derivable descriptor fields
func (d *Dataset) applyDefaults() {
	if d.ArchivePrefix == "" {
		d.ArchivePrefix = d.Name
	}
	if d.DumpSuffix == "" {
		switch d.Kind {
		case DatasetKindSQLite:
			d.DumpSuffix = ".db"
		default:
			d.DumpSuffix = ".dump"
		}
	}
}

// Adapter translates generic dump/restore operations into dataset-specific
// external-tool invocations
type Adapter interface {
	// Dataset returns the descriptor the adapter was built from
	Dataset() Dataset
	// Dump extracts a consistent snapshot of the live dataset into
	// targetDir and returns the dump file path
	Dump(ctx context.Context, targetDir, dateTag string) (string, error)
	// Restore loads a dump back into the running dataset, replacing its
	// current state
	Restore(ctx context.Context, dumpPath string) error
}

// Registry maps dataset names to their adapters, preserving registration
// order for "all" selection
type Registry struct {
	order    []string
	adapters map[string]Adapter
}

// NewRegistry creates an empty dataset registry
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its dataset name
func (r *Registry) Register(a Adapter) error {
	name := a.Dataset().Name
	if _, exists := r.adapters[name]; exists {
		return NewValidationError(fmt.Sprintf("dataset %s is already registered", name), nil)
	}
	r.adapters[name] = a
	r.order = append(r.order, name)
	return nil
}

// Get returns the adapter for a dataset name
func (r *Registry) Get(name string) (Adapter, error) {
	a, exists := r.adapters[name]
	if !exists {
		return nil, NewNotFoundError(fmt.Sprintf("unknown dataset %q", name), nil).
			WithContext("known", r.Names())
	}
	return a, nil
}

// Names returns the registered dataset names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Select resolves a dataset selector: "all" or the empty string selects
// every registered dataset, anything else selects one by name
func (r *Registry) Select(selector string) ([]Adapter, error) {
	if selector == "" || selector == "all" {
		adapters := make([]Adapter, 0, len(r.order))
		for _, name := range r.order {
			adapters = append(adapters, r.adapters[name])
		}
		if len(adapters) == 0 {
			return nil, NewNotFoundError("no datasets registered", nil)
		}
		return adapters, nil
	}

	a, err := r.Get(selector)
	if err != nil {
		return nil, err
	}
	return []Adapter{a}, nil
}

// BuiltinDatasets returns the compiled-in dataset descriptors: the stack's
// PostgreSQL database and the bot's SQLite database.
func BuiltinDatasets() []Dataset {
	return []Dataset{
		{
			Name:      "postgres",
			Kind:      DatasetKindPostgres,
			Container: "krisa-db",
			Username:  "postgres",
			Database:  "postgres",
		},
		{
			Name:          "sqlite",
			Kind:          DatasetKindSQLite,
			Container:     "krisa-bot",
			ArchivePrefix: "krisa-bot",
			DBPath:        "/app/data/db/bot.db",
			Secondary:     true,
		},
	}
}

// LoadDatasetFile reads additional dataset descriptors from a YAML file
func LoadDatasetFile(path string) ([]Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewStorageError("failed to read dataset file", err).WithContext("path", path)
	}

	var file struct {
		Datasets []Dataset `yaml:"datasets"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, NewFormatError("failed to parse dataset file", err).WithContext("path", path)
	}

	for i := range file.Datasets {
		file.Datasets[i].applyDefaults()
		if err := file.Datasets[i].Validate(); err != nil {
			return nil, err
		}
	}

	return file.Datasets, nil
}

// NewAdapter builds the adapter implementation for a descriptor
func NewAdapter(dataset Dataset, runner CommandRunner, logger *logging.Logger) (Adapter, error) {
	dataset.applyDefaults()
	if err := dataset.Validate(); err != nil {
		return nil, err
	}

	switch dataset.Kind {
	case DatasetKindPostgres:
		return NewPostgresAdapter(dataset, runner, logger), nil
	case DatasetKindSQLite:
		return NewSQLiteAdapter(dataset, runner, logger), nil
	default:
		return nil, NewValidationError(fmt.Sprintf("unknown dataset kind %q", dataset.Kind), nil)
	}
}

// BuildRegistry assembles a registry from the builtin datasets plus any
// descriptors loaded from an optional dataset file
func BuildRegistry(datasetFile string, runner CommandRunner, logger *logging.Logger) (*Registry, error) {
	registry := NewRegistry()

	datasets := BuiltinDatasets()
	if datasetFile != "" {
		extra, err := LoadDatasetFile(datasetFile)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, extra...)
	}

	for _, ds := range datasets {
		adapter, err := NewAdapter(ds, runner, logger)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
