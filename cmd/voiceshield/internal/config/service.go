package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/voiceshield/pkg/perturb"
)

// ErrServiceNotFound is returned by LoadService when the service file
// does not exist.
var ErrServiceNotFound = errors.New("config: service not found")

// Service names.
const (
	ServiceRun     = "run"
	ServiceOracle  = "oracle"
	ServiceVerify  = "verify"
	ServiceStorage = "storage"
	ServiceLedger  = "ledger"
)

// ServicePath returns the YAML file path for a service within a context.
// For example, ServicePath("dev", "oracle") → ".../contexts/dev/oracle.yaml".
func (c *Config) ServicePath(context, service string) string {
	return filepath.Join(c.ContextDir(context), service+".yaml")
}

// ValidateServiceName checks that a service name is non-empty and safe
// for use as a filename.
func ValidateServiceName(service string) error {
	if service == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if strings.ContainsAny(service, `/\`) {
		return fmt.Errorf("service name %q must not contain path separators", service)
	}
	if strings.HasPrefix(service, ".") {
		return fmt.Errorf("service name %q must not start with '.'", service)
	}
	return nil
}

// LoadService loads a service configuration from the given context directory.
// The service name maps to a YAML file: "{contextDir}/{service}.yaml".
func LoadService[T any](contextDir, service string) (*T, error) {
	path := filepath.Join(contextDir, service+".yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q (expected: %s)", ErrServiceNotFound, service, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var v T
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &v, nil
}

// loadOptional loads a service into v, leaving v untouched when the
// file does not exist.
func loadOptional[T any](contextDir, service string, v *T) error {
	if contextDir == "" {
		return nil
	}
	loaded, err := LoadService[T](contextDir, service)
	if errors.Is(err, ErrServiceNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	*v = *loaded
	return nil
}

// SaveService writes a service configuration to the given context directory.
func SaveService[T any](contextDir, service string, v *T) error {
	if err := os.MkdirAll(contextDir, 0755); err != nil {
		return fmt.Errorf("create context dir: %w", err)
	}

	path := filepath.Join(contextDir, service+".yaml")

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s config: %w", service, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ListServices returns the service names configured in a context directory.
// Each .yaml file corresponds to one service.
func ListServices(contextDir string) ([]string, error) {
	entries, err := os.ReadDir(contextDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list services: %w", err)
	}

	var services []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext == ".yaml" || ext == ".yml" {
			services = append(services, name[:len(name)-len(ext)])
		}
	}
	return services, nil
}

// Run holds default optimization parameters. Zero fields keep the
// built-in defaults.
type Run struct {
	Steps      int     `yaml:"steps,omitempty" json:"steps,omitempty"`
	Epsilon    float64 `yaml:"epsilon,omitempty" json:"epsilon,omitempty"`
	LR         float64 `yaml:"lr,omitempty" json:"lr,omitempty"`
	NoiseScale float64 `yaml:"noise_scale,omitempty" json:"noise_scale,omitempty"`
	Seed       uint64  `yaml:"seed,omitempty" json:"seed,omitempty"`
	LogEvery   int     `yaml:"log_every,omitempty" json:"log_every,omitempty"`
}

// Apply overlays the non-zero fields of r onto cfg.
func (r Run) Apply(cfg perturb.Config) perturb.Config {
	if r.Steps != 0 {
		cfg.Steps = r.Steps
	}
	if r.Epsilon != 0 {
		cfg.Epsilon = r.Epsilon
	}
	if r.LR != 0 {
		cfg.LR = r.LR
	}
	if r.NoiseScale != 0 {
		cfg.NoiseScale = r.NoiseScale
	}
	if r.Seed != 0 {
		cfg.Seed = r.Seed
	}
	if r.LogEvery != 0 {
		cfg.LogEvery = r.LogEvery
	}
	return cfg
}

// Oracle kinds.
const (
	OracleProjector = "projector"
	OracleRemote    = "remote"
)

// Oracle selects the embedding oracle.
type Oracle struct {
	// Kind is "projector" (default) or "remote".
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`

	// URL is the ws:// or wss:// address of a remote oracle.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Timeout bounds each remote request, e.g. "30s".
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// SampleRate is the rate input is resampled to before embedding.
	SampleRate int `yaml:"sample_rate,omitempty" json:"sample_rate,omitempty"`

	// Projector parameters.
	Seed      uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`
	Dimension int    `yaml:"dimension,omitempty" json:"dimension,omitempty"`
	Frame     int    `yaml:"frame,omitempty" json:"frame,omitempty"`
	Hop       int    `yaml:"hop,omitempty" json:"hop,omitempty"`
}

// Validate checks the oracle selection.
func (o Oracle) Validate() error {
	switch o.Kind {
	case "", OracleProjector:
	case OracleRemote:
		if !strings.HasPrefix(o.URL, "ws://") && !strings.HasPrefix(o.URL, "wss://") {
			return fmt.Errorf("oracle: remote url must start with ws:// or wss://, got %q", o.URL)
		}
	default:
		return fmt.Errorf("oracle: unknown kind %q", o.Kind)
	}
	if _, err := o.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// TimeoutDuration parses Timeout; empty means zero.
func (o Oracle) TimeoutDuration() (time.Duration, error) {
	if o.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(o.Timeout)
	if err != nil {
		return 0, fmt.Errorf("oracle: timeout: %w", err)
	}
	return d, nil
}

// Verify configures speaker fingerprints and verification.
type Verify struct {
	Threshold float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	HashBits  int     `yaml:"hash_bits,omitempty" json:"hash_bits,omitempty"`
	HashSeed  uint64  `yaml:"hash_seed,omitempty" json:"hash_seed,omitempty"`
}

// Storage kinds.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Storage selects where protected recordings are kept.
type Storage struct {
	// Kind is "local" (default) or "s3".
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`

	// Dir is the root of a local store.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`

	// Depth is the bit depth of stored WAV files (default 16).
	Depth int `yaml:"depth,omitempty" json:"depth,omitempty"`

	// S3 parameters; credentials come from the AWS_* environment.
	Bucket    string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty" json:"path_style,omitempty"`
}

// Ledger kinds.
const (
	LedgerBadger = "badger"
	LedgerMemory = "memory"
)

// Ledger selects the run ledger.
type Ledger struct {
	// Kind is "badger" (default) or "memory".
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`

	// Dir is the badger database directory.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`
}

// Services is the resolved configuration of one context.
type Services struct {
	Context string  `yaml:"context,omitempty" json:"context,omitempty"`
	Run     Run     `yaml:"run" json:"run"`
	Oracle  Oracle  `yaml:"oracle" json:"oracle"`
	Verify  Verify  `yaml:"verify" json:"verify"`
	Storage Storage `yaml:"storage" json:"storage"`
	Ledger  Ledger  `yaml:"ledger" json:"ledger"`
}

// LoadServices resolves the named context (or the current one) and loads
// its services. Missing service files and an unset context yield
// defaults, with storage and ledger under the context's data directory.
func (c *Config) LoadServices(context string) (*Services, error) {
	name, dir, err := c.ResolveContext(context)
	if err != nil {
		return nil, err
	}
	s := &Services{Context: name}
	if err := loadOptional(dir, ServiceRun, &s.Run); err != nil {
		return nil, err
	}
	if err := loadOptional(dir, ServiceOracle, &s.Oracle); err != nil {
		return nil, err
	}
	if err := loadOptional(dir, ServiceVerify, &s.Verify); err != nil {
		return nil, err
	}
	if err := loadOptional(dir, ServiceStorage, &s.Storage); err != nil {
		return nil, err
	}
	if err := loadOptional(dir, ServiceLedger, &s.Ledger); err != nil {
		return nil, err
	}

	if s.Oracle.Kind == "" {
		s.Oracle.Kind = OracleProjector
	}
	if err := s.Oracle.Validate(); err != nil {
		return nil, err
	}
	if s.Storage.Kind == "" {
		s.Storage.Kind = StorageLocal
	}
	if s.Storage.Kind == StorageLocal && s.Storage.Dir == "" {
		s.Storage.Dir = filepath.Join(c.DataDir(name), "artifacts")
	}
	if s.Ledger.Kind == "" {
		s.Ledger.Kind = LedgerBadger
	}
	if s.Ledger.Kind == LedgerBadger && s.Ledger.Dir == "" {
		s.Ledger.Dir = filepath.Join(c.DataDir(name), "ledger")
	}
	return s, nil
}
