package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/davecgh/go-spew/spew"
	"github.com/pcj/mobyprogress"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/stackb/jvm-abi/pkg/config"
	"github.com/stackb/jvm-abi/pkg/java"
	"github.com/stackb/jvm-abi/pkg/library"
	"github.com/stackb/jvm-abi/pkg/logger"
	"github.com/stackb/jvm-abi/pkg/progress"
	"github.com/stackb/jvm-abi/pkg/stubjar"
)

type flags struct {
	library           string
	outputFile        string
	configFile        string
	reportFile        string
	digestFile        string
	classPath         string
	workers           int
	excludes          []string
	inlineAnnotations []string
	dryRun            bool
	debug             bool
	printConfig       bool
}

func main() {
	f := flags{}
	fs := newFlagSet(&f)

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "stubjar:", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(fs, &f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stubjar:", err)
		os.Exit(1)
	}
	log := logger.New(os.Stderr, cfg.Debug).With().Str("tool", "stubjar").Logger()
	if cfg.Debug {
		log.Debug().Msg("effective configuration:\n" + spew.Sdump(cfg))
	}

	if f.printConfig {
		data, err := cfg.Starlark()
		if err != nil {
			log.Fatal().Err(err).Msg("print config")
		}
		os.Stdout.Write(data)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, log, cfg, &f); err != nil {
		log.Fatal().Err(err).Msg("stub jar failed")
	}
}

func newFlagSet(f *flags) *flag.FlagSet {
	fs := flag.NewFlagSet("stubjar", flag.ContinueOnError)

	fs.StringVar(&f.library, "library", "", "the compiled class directory or jar to reduce")
	fs.StringVar(&f.outputFile, "output_file", "", "the stub jar to write")
	fs.StringVar(&f.configFile, "config", "", "optional configuration file (.yaml, .yml, .star, .bzl)")
	fs.StringVar(&f.reportFile, "report_file", "", "optional JSON file describing every written entry")
	fs.StringVar(&f.digestFile, "digest_file", "", "optional file to receive the BLAKE3 digest of the stub jar")
	fs.StringVar(&f.classPath, "classpath", "", "dependency class path used to resolve supertypes")
	fs.IntVar(&f.workers, "workers", 0, "number of library members processed concurrently")
	fs.StringSliceVar(&f.excludes, "exclude", nil, "doublestar pattern of library members to leave out (replaces the configured list)")
	fs.StringSliceVar(&f.inlineAnnotations, "inline_annotation", nil, "annotation descriptor marking inline methods (replaces the configured list)")
	fs.BoolVar(&f.dryRun, "dry_run", false, "list the entries without writing a jar")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&f.printConfig, "print_config", false, "print the effective configuration as Starlark and exit")
	return fs
}

// loadConfig layers the configuration file, the environment and then the
// flags that were set explicitly.
func loadConfig(fs *flag.FlagSet, f *flags) (*config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		loaded, err := config.LoadFile(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if fs.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fs.Changed("exclude") {
		cfg.Excludes = f.excludes
	}
	if fs.Changed("inline_annotation") {
		cfg.InlineAnnotations = f.inlineAnnotations
	}
	if f.classPath != "" {
		cfg.ClassPath = append(cfg.ClassPath, java.SplitClassPath(f.classPath)...)
	}
	if fs.Changed("debug") {
		cfg.Debug = f.debug
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, log zerolog.Logger, cfg *config.Config, f *flags) error {
	if f.library == "" {
		return fmt.Errorf("-library is required")
	}
	if f.outputFile == "" && !f.dryRun {
		return fmt.Errorf("-output_file is required unless -dry_run is set")
	}

	reader, err := library.Open(f.library,
		library.WithExcludes(cfg.Excludes...),
		library.WithLogger(log))
	if err != nil {
		return err
	}
	defer reader.Close()

	options := []stubjar.AssemblerOption{
		stubjar.WithLogger(log),
		stubjar.WithWorkers(cfg.Workers),
		stubjar.WithInlineAnnotations(cfg.InlineAnnotations...),
		stubjar.WithProgress(progressOutput(log)),
	}
	if len(cfg.ClassPath) > 0 {
		classPath, err := java.OpenClassPath(cfg.ClassPath, library.WithLogger(log))
		if err != nil {
			return err
		}
		defer classPath.Close()
		options = append(options, stubjar.WithClassPath(classPath))
	}

	var w stubjar.StubJarWriter
	if f.dryRun {
		w = &stubjar.DryRunWriter{}
	} else {
		jw, err := stubjar.NewJarWriter(f.outputFile)
		if err != nil {
			return err
		}
		w = jw
	}

	result, err := stubjar.NewAssembler(options...).Assemble(ctx, reader, w)
	if err != nil {
		return err
	}
	log.Info().
		Str("library", f.library).
		Int("entries", len(result.Entries)).
		Strs("unresolved", result.Unresolved).
		Msg("stub jar assembled")

	if f.dryRun {
		for _, e := range result.Entries {
			fmt.Fprintln(os.Stdout, e.Path)
		}
	}
	if f.reportFile != "" {
		if err := writeReport(f.reportFile, result); err != nil {
			return err
		}
	}
	if f.digestFile != "" && !f.dryRun {
		digest, err := stubjar.DigestFile(f.outputFile)
		if err != nil {
			return err
		}
		if err := os.WriteFile(f.digestFile, []byte(digest+"\n"), 0o644); err != nil {
			return fmt.Errorf("write digest: %w", err)
		}
	}
	return nil
}

func progressOutput(log zerolog.Logger) mobyprogress.Output {
	if progress.IsTerminal(os.Stderr) {
		return progress.NewOutput(os.Stderr, true)
	}
	return progress.NewLogOutput(log)
}

func writeReport(filename string, result *stubjar.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, append(data, '\n'), 0o644)
}
