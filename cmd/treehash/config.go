package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/tamirms/treehash"
)

const envPrefix = "TREEHASH_"

// options is everything the command needs, resolved from defaults, an
// optional YAML file, TREEHASH_* environment variables and flags, in
// increasing order of precedence.
type options struct {
	treehash.PipelineConfig `yaml:",inline"`

	// MaxRAM is a human-readable budget ("512MiB", "2GB"). When set it
	// replaces max_ram_bytes.
	MaxRAM string `yaml:"max_ram"`

	Exclude        []string `yaml:"exclude"`
	FollowSymlinks bool     `yaml:"follow_symlinks"`
	MaxDepth       int      `yaml:"max_depth"`
	Format         string   `yaml:"format"`
	Output         string   `yaml:"output"`
	LogLevel       string   `yaml:"log_level"`
	Progress       bool     `yaml:"progress"`
	NoColor        bool     `yaml:"no_color"`
}

func defaultOptions() options {
	return options{
		PipelineConfig: treehash.DefaultPipelineConfig(),
		Format:         "text",
		LogLevel:       "warning",
	}
}

// loadConfigFile decodes path over opts. Unknown keys are rejected.
func loadConfigFile(path string, opts *options) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(opts); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays TREEHASH_* variables. lookup is os.LookupEnv outside
// tests.
func applyEnv(lookup func(string) (string, bool), opts *options) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(envPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("ALG", &opts.Algorithm)
	num("XOF_LENGTH", &opts.OutputBytes)
	num("THREADS", &opts.Threads)
	str("MAX_RAM", &opts.MaxRAM)
	flag("ALLOW_EXPANSION", &opts.AllowExpansion)
	flag("FOLLOW_SYMLINKS", &opts.FollowSymlinks)
	str("LOG_LEVEL", &opts.LogLevel)
	if v, ok := lookup(envPrefix + "MEM_MODE"); ok {
		if err := opts.Mode.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("%sMEM_MODE: %w", envPrefix, err))
		}
	}
	if v, ok := lookup(envPrefix + "EXCLUDE"); ok {
		opts.Exclude = splitList(v)
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// flagValues holds the raw flag targets. Only flags the user actually set
// are applied over the lower layers.
type flagValues struct {
	config         string
	alg            string
	outputBytes    int
	mode           string
	maxRAM         string
	threads        int
	allowExpansion bool
	exclude        []string
	followSymlinks bool
	maxDepth       int
	format         string
	output         string
	logLevel       string
	progress       bool
	noColor        bool
	algList        bool
}

func registerFlags(fs *pflag.FlagSet, v *flagValues) {
	fs.StringVarP(&v.config, "config", "c", "", "YAML configuration file")
	fs.StringVarP(&v.alg, "alg", "a", "blake3", "hash algorithm (see --alg-list)")
	fs.IntVarP(&v.outputBytes, "xof-length", "l", 0, "digest length in bytes (0 = algorithm default)")
	fs.StringVarP(&v.mode, "mem-mode", "m", "balanced", "memory mode: stream, balanced or booster")
	fs.StringVar(&v.maxRAM, "max-ram", "", "buffer memory budget, e.g. 512MiB")
	fs.IntVarP(&v.threads, "threads", "j", 0, "worker count (0 = planned from memory mode)")
	fs.BoolVar(&v.allowExpansion, "force-expand", false, "allow non-standard expansion of fixed-size digests")
	fs.StringArrayVarP(&v.exclude, "exclude", "x", nil, "glob of paths to skip; repeatable, ** matches across directories")
	fs.BoolVarP(&v.followSymlinks, "follow-symlinks", "L", false, "follow symbolic links")
	fs.IntVar(&v.maxDepth, "max-depth", 0, "descend at most this many directory levels (0 = unlimited)")
	fs.StringVarP(&v.format, "format", "f", "text", "output format: text or json")
	fs.StringVarP(&v.output, "output", "o", "", "write the hash map to this file instead of stdout; a .zst suffix compresses it")
	fs.StringVar(&v.logLevel, "log-level", "warning", "log level: debug, info, warning or error")
	fs.BoolVar(&v.progress, "progress", false, "log progress while hashing")
	fs.BoolVar(&v.noColor, "no-color", false, "never color FAILED lines")
	fs.BoolVar(&v.algList, "alg-list", false, "list available algorithms and exit")
}

func applyFlags(fs *pflag.FlagSet, v *flagValues, opts *options) error {
	if fs.Changed("alg") {
		opts.Algorithm = v.alg
	}
	if fs.Changed("xof-length") {
		opts.OutputBytes = v.outputBytes
	}
	if fs.Changed("mem-mode") {
		if err := opts.Mode.UnmarshalText([]byte(v.mode)); err != nil {
			return err
		}
	}
	if fs.Changed("max-ram") {
		opts.MaxRAM = v.maxRAM
	}
	if fs.Changed("threads") {
		opts.Threads = v.threads
	}
	if fs.Changed("force-expand") {
		opts.AllowExpansion = v.allowExpansion
	}
	if fs.Changed("exclude") {
		opts.Exclude = v.exclude
	}
	if fs.Changed("follow-symlinks") {
		opts.FollowSymlinks = v.followSymlinks
	}
	if fs.Changed("max-depth") {
		opts.MaxDepth = v.maxDepth
	}
	if fs.Changed("format") {
		opts.Format = v.format
	}
	if fs.Changed("output") {
		opts.Output = v.output
	}
	if fs.Changed("log-level") {
		opts.LogLevel = v.logLevel
	}
	if fs.Changed("progress") {
		opts.Progress = v.progress
	}
	if fs.Changed("no-color") {
		opts.NoColor = v.noColor
	}
	return nil
}

// resolveOptions layers defaults, file, environment and flags.
func resolveOptions(fs *pflag.FlagSet, v *flagValues, lookup func(string) (string, bool)) (options, error) {
	opts := defaultOptions()
	if v.config != "" {
		if err := loadConfigFile(v.config, &opts); err != nil {
			return opts, err
		}
	}
	if err := applyEnv(lookup, &opts); err != nil {
		return opts, err
	}
	if err := applyFlags(fs, v, &opts); err != nil {
		return opts, err
	}

	if opts.MaxRAM != "" {
		n, err := humanize.ParseBytes(opts.MaxRAM)
		if err != nil {
			return opts, fmt.Errorf("max-ram %q: %w", opts.MaxRAM, err)
		}
		opts.MaxRAMBytes = n
	}
	switch opts.Format {
	case "text", "json":
	default:
		return opts, fmt.Errorf("unknown output format %q (want text or json)", opts.Format)
	}
	if opts.MaxDepth < 0 {
		return opts, fmt.Errorf("max-depth must not be negative: %d", opts.MaxDepth)
	}
	return opts, nil
}
