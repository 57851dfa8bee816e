package errors

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed abort_codes.yaml
var defaultAbortCodes []byte

// AbortCatalog maps (module, code) pairs to user explanations.
type AbortCatalog struct {
	entries map[string]map[uint64]string
}

var (
	defaultCatalog     *AbortCatalog
	defaultCatalogOnce sync.Once
	defaultCatalogMu   sync.RWMutex
)

// ParseAbortCatalog reads a YAML document of module -> code -> message.
func ParseAbortCatalog(data []byte) (*AbortCatalog, error) {
	entries := make(map[string]map[uint64]string)
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse abort code catalog: %w", err)
	}
	return &AbortCatalog{entries: entries}, nil
}

// LoadAbortCatalogFile parses the catalog at path and installs it as the default.
func LoadAbortCatalogFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read abort code catalog: %w", err)
	}
	catalog, err := ParseAbortCatalog(data)
	if err != nil {
		return err
	}
	SetDefaultAbortCatalog(catalog)
	return nil
}

// DefaultAbortCatalog returns the installed catalog, falling back to the embedded one.
func DefaultAbortCatalog() *AbortCatalog {
	defaultCatalogOnce.Do(func() {
		catalog, err := ParseAbortCatalog(defaultAbortCodes)
		if err != nil {
			catalog = &AbortCatalog{entries: map[string]map[uint64]string{}}
		}
		defaultCatalogMu.Lock()
		if defaultCatalog == nil {
			defaultCatalog = catalog
		}
		defaultCatalogMu.Unlock()
	})
	defaultCatalogMu.RLock()
	defer defaultCatalogMu.RUnlock()
	return defaultCatalog
}

func SetDefaultAbortCatalog(catalog *AbortCatalog) {
	defaultCatalogMu.Lock()
	defer defaultCatalogMu.Unlock()
	defaultCatalog = catalog
}

// Explain returns the message registered for the module/code pair.
func (c *AbortCatalog) Explain(module string, code uint64) (string, bool) {
	if c == nil {
		return "", false
	}
	codes, ok := c.entries[module]
	if !ok {
		return "", false
	}
	msg, ok := codes[code]
	return msg, ok
}
