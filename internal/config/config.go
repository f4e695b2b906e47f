package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LevelEnvVar overrides the default optimization level for an entire run.
const LevelEnvVar = "ORT_CONVERT_ONNX_MODELS_TO_ORT_OPTIMIZATION_LEVEL"

type Config struct {
	LogLevel string        `mapstructure:"log_level"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	Convert  ConvertConfig `mapstructure:"convert"`
	Output   OutputConfig  `mapstructure:"output"`
}

type RuntimeConfig struct {
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
	ORTAPIVersion  int    `mapstructure:"ort_api_version"`
	PythonBin      string `mapstructure:"python_bin"`
}

type ConvertConfig struct {
	OptimizationStyles       []string `mapstructure:"optimization_styles"`
	OptimizationLevel        string   `mapstructure:"optimization_level"`
	EnableTypeReduction      bool     `mapstructure:"enable_type_reduction"`
	CustomOpLibrary          string   `mapstructure:"custom_op_library"`
	SaveOptimizedONNXModel   bool     `mapstructure:"save_optimized_onnx_model"`
	AllowConversionFailures  bool     `mapstructure:"allow_conversion_failures"`
	NNAPIPartitioningStopOps string   `mapstructure:"nnapi_partitioning_stop_ops"`
	TargetPlatform           string   `mapstructure:"target_platform"`
	Verify                   bool     `mapstructure:"verify"`
}

type OutputConfig struct {
	ReportFile  string `mapstructure:"report_file"`
	MetricsFile string `mapstructure:"metrics_file"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Runtime: RuntimeConfig{
			ORTLibraryPath: "",
			ORTVersion:     "",
			ORTAPIVersion:  23,
			PythonBin:      "",
		},
		Convert: ConvertConfig{
			OptimizationStyles:       []string{"Fixed", "Runtime"},
			OptimizationLevel:        "all",
			EnableTypeReduction:      false,
			CustomOpLibrary:          "",
			SaveOptimizedONNXModel:   false,
			AllowConversionFailures:  false,
			NNAPIPartitioningStopOps: "",
			TargetPlatform:           "",
			Verify:                   false,
		},
		Output: OutputConfig{
			ReportFile:  "",
			MetricsFile: "",
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.String("runtime-ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Int("runtime-ort-api-version", defaults.Runtime.ORTAPIVersion, "ONNX Runtime C API version requested by the native loader")
	fs.String("python-bin", defaults.Runtime.PythonBin, "Python interpreter with the onnxruntime package (auto-detected by default)")
	fs.StringSlice("optimization-style", defaults.Convert.OptimizationStyles, "Optimization styles to run, in order (Fixed|Runtime)")
	fs.String("optimization-level", defaults.Convert.OptimizationLevel, "Graph optimization level (none|basic|extended|all)")
	fs.Bool("enable-type-reduction", defaults.Convert.EnableTypeReduction, "Add operator type information to the generated config file")
	fs.String("custom-op-library", defaults.Convert.CustomOpLibrary, "Shared library containing custom operator kernels to register")
	fs.Bool("save-optimized-onnx-model", defaults.Convert.SaveOptimizedONNXModel, "Also save the optimized ONNX model next to each ORT format model")
	fs.Bool("allow-conversion-failures", defaults.Convert.AllowConversionFailures, "Continue after a model fails to convert")
	fs.String("nnapi-partitioning-stop-ops", defaults.Convert.NNAPIPartitioningStopOps, "Value for the ep.nnapi.partitioning_stop_ops session config entry")
	fs.String("target-platform", defaults.Convert.TargetPlatform, "Target platform for the converted models (arm|amd64)")
	fs.Bool("verify", defaults.Convert.Verify, "Load every converted model in the native runtime after conversion")
	fs.String("report-file", defaults.Output.ReportFile, "Write a YAML run report to this path")
	fs.String("metrics-file", defaults.Output.MetricsFile, "Write conversion metrics in Prometheus text format to this path")
}

// binding ties a nested config key to its flag and environment variables.
// The first env var is derived from the flag name; the rest are extra names.
type binding struct {
	key  string
	flag string
	env  []string
}

var bindings = []binding{
	{key: "log_level", flag: "log-level"},
	{key: "runtime.ort_library_path", flag: "runtime-ort-library-path", env: []string{"ORTCONVERT_ORT_LIB", "ORT_LIBRARY_PATH"}},
	{key: "runtime.ort_version", flag: "runtime-ort-version"},
	{key: "runtime.ort_api_version", flag: "runtime-ort-api-version"},
	{key: "runtime.python_bin", flag: "python-bin"},
	{key: "convert.optimization_styles", flag: "optimization-style"},
	{key: "convert.optimization_level", flag: "optimization-level", env: []string{LevelEnvVar}},
	{key: "convert.enable_type_reduction", flag: "enable-type-reduction"},
	{key: "convert.custom_op_library", flag: "custom-op-library"},
	{key: "convert.save_optimized_onnx_model", flag: "save-optimized-onnx-model"},
	{key: "convert.allow_conversion_failures", flag: "allow-conversion-failures"},
	{key: "convert.nnapi_partitioning_stop_ops", flag: "nnapi-partitioning-stop-ops"},
	{key: "convert.target_platform", flag: "target-platform"},
	{key: "convert.verify", flag: "verify"},
	{key: "output.report_file", flag: "report-file"},
	{key: "output.metrics_file", flag: "metrics-file"},
}

// ortLibAliasFlag is a second flag for runtime.ort_library_path.
const ortLibAliasFlag = "ort-lib"

const envPrefix = "ORTCONVERT"

// Load resolves the configuration. Precedence, highest first: flags set on
// the command line, environment, config file, defaults. Every key is also
// read from ORTCONVERT_<KEY> with dots replaced by underscores, e.g.
// ORTCONVERT_CONVERT_OPTIMIZATION_LEVEL.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, b := range bindings {
		names := append([]string{flagEnvName(b.flag)}, b.env...)
		if err := v.BindEnv(append([]string{b.key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind env for %s: %w", b.key, err)
		}
	}

	if opts.Cmd != nil {
		flags := opts.Cmd.Flags()
		for _, b := range bindings {
			f := flags.Lookup(b.flag)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(b.key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag --%s: %w", b.flag, err)
			}
		}
		if f := flags.Lookup(ortLibAliasFlag); f != nil && f.Changed {
			v.Set("runtime.ort_library_path", f.Value.String())
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("ortconvert")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// flagEnvName maps optimization-level to ORTCONVERT_OPTIMIZATION_LEVEL.
func flagEnvName(flag string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("runtime.python_bin", c.Runtime.PythonBin)
	v.SetDefault("convert.optimization_styles", c.Convert.OptimizationStyles)
	v.SetDefault("convert.optimization_level", c.Convert.OptimizationLevel)
	v.SetDefault("convert.enable_type_reduction", c.Convert.EnableTypeReduction)
	v.SetDefault("convert.custom_op_library", c.Convert.CustomOpLibrary)
	v.SetDefault("convert.save_optimized_onnx_model", c.Convert.SaveOptimizedONNXModel)
	v.SetDefault("convert.allow_conversion_failures", c.Convert.AllowConversionFailures)
	v.SetDefault("convert.nnapi_partitioning_stop_ops", c.Convert.NNAPIPartitioningStopOps)
	v.SetDefault("convert.target_platform", c.Convert.TargetPlatform)
	v.SetDefault("convert.verify", c.Convert.Verify)
	v.SetDefault("output.report_file", c.Output.ReportFile)
	v.SetDefault("output.metrics_file", c.Output.MetricsFile)
}
