package classifier

import (
	"fmt"
	"os"

	sageflow "github.com/sageflow-ai/sageflow"
	"gopkg.in/yaml.v3"
)

// IntentFile is the on-disk intent table definition.
type IntentFile struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Intents     []sageflow.Intent `yaml:"intents"`
}

// IntentFileLoader defines an interface for loading an IntentFile from a
// source (file path, bytes, etc.).
type IntentFileLoader interface {
	Load(source string) (*IntentFile, error)
	Format() string // e.g., "yaml"
}

// loaderRegistry holds registered IntentFileLoaders by format name.
var loaderRegistry = make(map[string]IntentFileLoader)

// RegisterIntentFileLoader registers a new IntentFileLoader for a given format.
func RegisterIntentFileLoader(loader IntentFileLoader) {
	loaderRegistry[loader.Format()] = loader
}

// GetIntentFileLoader retrieves a loader by format name (e.g., "yaml").
func GetIntentFileLoader(format string) (IntentFileLoader, bool) {
	loader, ok := loaderRegistry[format]
	return loader, ok
}

// YAMLLoader implements IntentFileLoader for YAML files.
type YAMLLoader struct{}

func (YAMLLoader) Load(path string) (*IntentFile, error) {
	return LoadIntentFile(path)
}

func (YAMLLoader) Format() string { return "yaml" }

func init() {
	RegisterIntentFileLoader(YAMLLoader{})
}

// LoadIntentFile parses a YAML intent table file.
func LoadIntentFile(path string) (*IntentFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open intent file: %w", err)
	}
	defer f.Close()
	var table IntentFile
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&table); err != nil {
		return nil, fmt.Errorf("failed to parse intent YAML: %w", err)
	}
	return &table, nil
}

// Validate checks the intent table for duplicate names, keywordless intents
// and references to unregistered tools.
func (f *IntentFile) Validate(registry *sageflow.Registry) error {
	seen := make(map[string]struct{}, len(f.Intents))
	for _, intent := range f.Intents {
		if intent.Name == "" {
			return fmt.Errorf("intent with empty name")
		}
		if _, exists := seen[intent.Name]; exists {
			return fmt.Errorf("duplicate intent name: %s", intent.Name)
		}
		seen[intent.Name] = struct{}{}

		if intent.Name != sageflow.GeneralIntentName && len(intent.Keywords) == 0 {
			return fmt.Errorf("intent '%s' has no keywords", intent.Name)
		}

		if registry == nil {
			continue
		}
		for _, tool := range append(append([]string{}, intent.PrimaryTools...), intent.OptionalTools...) {
			if _, ok := registry.Lookup(tool); !ok {
				return fmt.Errorf("intent '%s' references unregistered tool '%s'", intent.Name, tool)
			}
		}
	}
	return nil
}
