package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidProfile is returned when a pipeline profile fails validation.
var ErrInvalidProfile = errors.New("config: invalid profile")

// Profile holds the tunables of the mvad pipeline. It is read from a YAML
// file so corpus-specific settings can travel with the data.
type Profile struct {
	// ArtifactSources are shard URL substrings whose first and last VAD
	// segment are boundary artifacts and get dropped.
	ArtifactSources []string `yaml:"artifact_sources" validate:"dive,required"`
	// MinDurationSec and MinPower define near-silence: a segment shorter
	// than MinDurationSec with power below MinPower is dropped.
	MinDurationSec float64 `yaml:"min_duration_sec" validate:"gte=0"`
	MinPower       float64 `yaml:"min_power"`
	// MaxChunkSec is the nominal chunk cap of the eq and max chunkings.
	MaxChunkSec float64 `yaml:"max_chunk_sec" validate:"gt=0"`
}

// DefaultProfile returns the profile used when no file is configured.
func DefaultProfile() Profile {
	return Profile{
		ArtifactSources: []string{"librilight", "test-shard.tar"},
		MinDurationSec:  1,
		MinPower:        -6,
		MaxChunkSec:     30,
	}
}

// LoadProfile reads a YAML profile from path on top of DefaultProfile.
// An empty path returns the defaults.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return Profile{}, fmt.Errorf("config: read profile: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("config: decode profile %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks profile values against their constraints.
func (p Profile) Validate() error {
	if err := validator.New().Struct(p); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidProfile, err.Error())
	}
	return nil
}
