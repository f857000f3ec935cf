package util

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ValentinKolb/shmkv/lib/codec"
	"github.com/ValentinKolb/shmkv/lib/common"
	"github.com/ValentinKolb/shmkv/lib/mutex"
	"github.com/ValentinKolb/shmkv/lib/plog"
	"github.com/ValentinKolb/shmkv/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupGlobalFlags adds the flags shared by all commands
func SetupGlobalFlags(cmd *cobra.Command) {
	defaults := common.DefaultConfig()

	key := "backend"
	cmd.PersistentFlags().String(key, string(defaults.Backend), WrapString("Backend for mutexes and segments (auto, native, file). auto uses SysV IPC if available"))

	key = "dir"
	cmd.PersistentFlags().String(key, defaults.Dir, WrapString("Directory for lock and segment files of the file backend"))

	key = "serializer"
	cmd.PersistentFlags().String(key, defaults.Serializer, WrapString("Serializer for stored values (msgpack, json). All processes sharing a segment must use the same serializer"))

	key = "log-level"
	cmd.PersistentFlags().String(key, defaults.LogLevel, WrapString("Log level (debug, info, warn, error)"))

	key = "log-file"
	cmd.PersistentFlags().String(key, "", WrapString("Append logs to this file instead of stdout. The file can be shared by several processes"))

	key = "print-metrics"
	cmd.PersistentFlags().Bool(key, false, WrapString("Print metrics in Prometheus text format before exiting"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("shmkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetConfig reads the configuration from viper
func GetConfig() (*common.Config, error) {
	backend, err := common.ParseBackend(viper.GetString("backend"))
	if err != nil {
		return nil, err
	}
	return &common.Config{
		Backend:    backend,
		Dir:        viper.GetString("dir"),
		Serializer: viper.GetString("serializer"),
		SizeHint:   viper.GetInt("size"),
		LogLevel:   viper.GetString("log-level"),
		LogFile:    viper.GetString("log-file"),
	}, nil
}

// GetSerializer creates a serializer based on configuration
func GetSerializer(config *common.Config) (codec.IValueSerializer, error) {
	return codec.ByName(config.Serializer)
}

// MutexOptions converts the configuration into mutex options
func MutexOptions(config *common.Config) *mutex.Options {
	return &mutex.Options{
		Backend: config.Backend,
		Dir:     config.Dir,
	}
}

// StoreOptions converts the configuration into store options
func StoreOptions(config *common.Config) (*store.Options, error) {
	s, err := GetSerializer(config)
	if err != nil {
		return nil, err
	}
	return &store.Options{
		SizeHint:   config.SizeHint,
		Backend:    config.Backend,
		Dir:        config.Dir,
		Serializer: s,
	}, nil
}

// SetupLogging configures all loggers. If a log file is configured, the returned closer must
// be closed before the process exits to flush buffered lines.
func SetupLogging(config *common.Config) (io.Closer, error) {
	if err := common.InitLoggers(config); err != nil {
		return nil, err
	}
	if config.LogFile == "" {
		common.SetLogOutput(os.Stdout)
		return closerFunc(func() error { return nil }), nil
	}

	w, err := plog.NewWriter(config.LogFile, &plog.Options{MutexOptions: MutexOptions(config)})
	if err != nil {
		return nil, fmt.Errorf("cannot open log file: %w", err)
	}
	common.SetLogOutput(w)
	return closerFunc(func() error {
		common.SetLogOutput(os.Stdout)
		return w.Close()
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// PrintMetrics writes all metrics to stdout if --print-metrics is set
func PrintMetrics() {
	if viper.GetBool("print-metrics") {
		fmt.Println()
		metrics.WritePrometheus(os.Stdout, false)
	}
}

// ParseLockParam converts a command line argument into a lock parameter:
// decimal numbers become manual keys, everything else is used as a name.
func ParseLockParam(arg string) any {
	if n, err := strconv.ParseUint(arg, 10, 32); err == nil {
		return uint32(n)
	}
	return arg
}

// ParseValue converts a command line argument into a store value.
// It is parsed as integer, float, JSON and finally used as plain string.
func ParseValue(arg string) any {
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(arg, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err == nil && v != nil {
		return v
	}
	return arg
}

// FormatValue renders a store value for output
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "<nil>"
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

// --------------------------------------------------------------------------
// Exit Hooks
// --------------------------------------------------------------------------

var exitHooks []func()

// AtExit registers f to run after the command finished, also when it failed.
// Hooks run in reverse order of registration.
func AtExit(f func()) {
	exitHooks = append(exitHooks, f)
}

// RunExitHooks runs and clears all registered exit hooks
func RunExitHooks() {
	for i := len(exitHooks) - 1; i >= 0; i-- {
		exitHooks[i]()
	}
	exitHooks = nil
}

// Setup binds the flags of cmd, reads the configuration and configures logging.
// It is called by the PersistentPreRunE of every command group.
func Setup(cmd *cobra.Command) (*common.Config, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	config, err := GetConfig()
	if err != nil {
		return nil, err
	}

	closer, err := SetupLogging(config)
	if err != nil {
		return nil, err
	}
	AtExit(func() {
		PrintMetrics()
		_ = closer.Close()
	})
	return config, nil
}
