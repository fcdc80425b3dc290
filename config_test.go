package treehash

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"

	treeerrors "github.com/tamirms/treehash/errors"
)

func TestPipelineConfigYAML(t *testing.T) {
	const doc = `
mode: booster
max_ram_bytes: 268435456
algorithm: shake256
output_bytes: 64
allow_expansion: true
threads: 6
`
	var cfg PipelineConfig
	if err := yaml.Unmarshal([]byte(doc), &cfg); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	want := PipelineConfig{
		Mode:           ModeBooster,
		MaxRAMBytes:    256 << 20,
		Algorithm:      "shake256",
		OutputBytes:    64,
		AllowExpansion: true,
		Threads:        6,
	}
	if cfg != want {
		t.Errorf("cfg = %+v, want %+v", cfg, want)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal: %v", err)
	}
	var back PipelineConfig
	if err := yaml.Unmarshal(out, &back); err != nil || back != cfg {
		t.Errorf("round trip = %+v, %v", back, err)
	}
}

func TestPipelineConfigYAMLInvalidMode(t *testing.T) {
	var cfg PipelineConfig
	err := yaml.Unmarshal([]byte("mode: turbo\n"), &cfg)
	if !errors.Is(err, treeerrors.ErrInvalidMode) {
		t.Errorf("error = %v, want ErrInvalidMode", err)
	}
}

func TestPipelineConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PipelineConfig)
		wantErr error
	}{
		{"defaults", func(*PipelineConfig) {}, nil},
		{"unknown algorithm", func(c *PipelineConfig) { c.Algorithm = "crc32" }, treeerrors.ErrUnknownAlgorithm},
		{"invalid mode", func(c *PipelineConfig) { c.Mode = MemoryMode(7) }, treeerrors.ErrInvalidMode},
		{"negative threads", func(c *PipelineConfig) { c.Threads = -2 }, treeerrors.ErrInvalidThreads},
		{"expansion not allowed", func(c *PipelineConfig) {
			c.Algorithm = "blake2b"
			c.OutputBytes = 128
		}, treeerrors.ErrExpansionNotAllowed},
		{"expansion allowed", func(c *PipelineConfig) {
			c.Algorithm = "blake2b"
			c.OutputBytes = 128
			c.AllowExpansion = true
		}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultPipelineConfig()
			tc.mutate(&cfg)
			_, err := cfg.Validate(DefaultRegistry())
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Validate error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
