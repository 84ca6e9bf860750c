package registry

import (
	"os"
	"slices"
	"sort"
	"sync"

	"github.com/naoina/toml"
	"github.com/nyaruka/partition"
	"github.com/nyaruka/partition/schemes"
	"github.com/pkg/errors"
	validator "gopkg.in/go-playground/validator.v9"
)

var validate = validator.New()

// ModelDefinition is how a model is described in a models file
type ModelDefinition struct {
	Name         string              `toml:"name"`
	Table        string              `toml:"table"       validate:"required"`
	PrimaryKey   string              `toml:"primary_key"`
	Columns      []string            `toml:"columns"`
	Defaults     map[string]any      `toml:"defaults"`
	Sequence     string              `toml:"sequence"`
	Prefetch     bool                `toml:"prefetch"`
	Partitioning *schemes.Definition `toml:"partitioning"`
}

type modelsFile struct {
	Models []*ModelDefinition `toml:"models" validate:"dive"`
}

// Registry is a set of models looked up by name
type Registry struct {
	mutex  sync.RWMutex
	models map[string]*partition.Model
}

// New creates a new empty registry
func New() *Registry {
	return &Registry{models: make(map[string]*partition.Model)}
}

// Load creates a registry from the models defined in the given TOML file
func Load(filename string) (*Registry, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading models file")
	}

	r, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "error loading models from %s", filename)
	}
	return r, nil
}

// Parse creates a registry from the given TOML model definitions
func Parse(data []byte) (*Registry, error) {
	f := &modelsFile{}
	if err := toml.Unmarshal(data, f); err != nil {
		return nil, errors.Wrap(err, "error parsing models")
	}
	if err := validate.Struct(f); err != nil {
		return nil, errors.Wrap(err, "invalid models")
	}

	r := New()
	for _, d := range f.Models {
		m, err := d.Build()
		if err != nil {
			return nil, err
		}
		if _, exists := r.models[m.Name()]; exists {
			return nil, errors.Errorf("duplicate model %q", m.Name())
		}
		r.Register(m)
	}
	return r, nil
}

// Build creates a model from this definition
func (d *ModelDefinition) Build() (*partition.Model, error) {
	pk := d.PrimaryKey
	if pk == "" {
		pk = "id"
	}

	opts := []partition.ModelOption{partition.WithName(d.Name), partition.WithColumns(d.Columns...)}
	if d.Sequence != "" {
		opts = append(opts, partition.WithSequence(d.Sequence))
	}
	if d.Prefetch {
		opts = append(opts, partition.WithPrefetch())
	}
	for col, value := range d.Defaults {
		opts = append(opts, partition.WithDefault(col, value))
	}

	if d.Partitioning != nil {
		scheme, err := schemes.Build(*d.Partitioning)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid partitioning for table %s", d.Table)
		}

		keys := scheme.Keys()
		if len(d.Columns) > 0 {
			for _, k := range keys {
				if !slices.Contains(d.Columns, k) {
					return nil, errors.Errorf("partition key %q is not a column of table %s", k, d.Table)
				}
			}
		}
		opts = append(opts, partition.WithPartitioning(scheme, keys...))
	}

	return partition.NewModel(d.Table, pk, opts...), nil
}

// Register adds the given model, replacing any existing model with the same name
func (r *Registry) Register(m *partition.Model) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.models[m.Name()] = m
}

// Get looks up the model with the given name
func (r *Registry) Get(name string) (*partition.Model, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	m, found := r.models[name]
	if !found {
		return nil, errors.Wrapf(partition.ErrUnknownModel, "no model named %q", name)
	}
	return m, nil
}

// Names returns the sorted names of all registered models
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.models))
	for n := range r.models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
