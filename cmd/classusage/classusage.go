package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/stackb/jvm-abi/pkg/classusage"
	"github.com/stackb/jvm-abi/pkg/logger"
	"github.com/stackb/jvm-abi/pkg/procutil"
)

type config struct {
	inputFile            string
	outputFile           string
	rootPath             string
	configuredOutputRoot string
	debug                bool
}

// observation is one compiler report: a source file and the class files it
// loaded. Comments and trailing commas are accepted in the input file.
type observation struct {
	Source     string   `json:"source"`
	ClassFiles []string `json:"class_files"`
}

func main() {
	conf := config{}
	fs := flag.NewFlagSet("classusage", flag.ContinueOnError)

	fs.StringVar(&conf.inputFile, "input_file", "", "JSON (with comments) list of {source, class_files} observations")
	fs.StringVar(&conf.outputFile, "output_file", "", "manifest path, relative to --root (.json or .pb)")
	fs.StringVar(&conf.rootPath, "root", "", "absolute project root")
	fs.StringVar(&conf.configuredOutputRoot, "configured_output_root", "", "build output root, relative to --root or absolute under it")
	fs.BoolVar(&conf.debug, "debug", procutil.LookupBoolEnv(procutil.JVM_ABI_DEBUG, false), "enable debug logging")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "classusage:", err)
		os.Exit(1)
	}

	log := logger.New(os.Stderr, conf.debug).With().Str("tool", "classusage").Logger()
	if err := run(log, &conf); err != nil {
		log.Fatal().Err(err).Msg("class usage manifest failed")
	}
}

func run(log zerolog.Logger, conf *config) error {
	if conf.inputFile == "" || conf.outputFile == "" || conf.rootPath == "" || conf.configuredOutputRoot == "" {
		return fmt.Errorf("--input_file, --output_file, --root and --configured_output_root are required")
	}
	observations, err := readObservations(conf.inputFile)
	if err != nil {
		return err
	}

	recorder := classusage.NewRecorder()
	for _, o := range observations {
		for _, classFile := range o.ClassFiles {
			recorder.Record(o.Source, classFile)
		}
	}
	usages := recorder.Snapshot()
	log.Debug().Int("sources", usages.Len()).Msg("recorded observations")

	w := classusage.NewFileWriter(classusage.WithLogger(log))
	return w.WriteFile(usages, conf.outputFile, conf.rootPath, conf.configuredOutputRoot)
}

func readObservations(filename string) ([]observation, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	var observations []observation
	if err := json.Unmarshal(jsonc.ToJSON(data), &observations); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return observations, nil
}
