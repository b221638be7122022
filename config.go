// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (C) 2015-2020 The Lightning Network Developers

package recoverd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/custodyhq/recoverd/build"
	"github.com/custodyhq/recoverd/derive"
	"github.com/custodyhq/recoverd/signal"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "recoverd.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "recoverd.log"
	defaultPubKeyFilename = "master_pub.json"
	defaultLogLevel       = "info"

	defaultRESTPort       = 8080
	defaultPrometheusPort = 8989

	defaultRequiredDisk = 0.1
	defaultDiskInterval = time.Hour * 12
	defaultDiskTimeout  = time.Second * 5
	defaultDiskBackoff  = time.Minute
	defaultDiskAttempts = 0
)

var (
	// DefaultRecoverdDir is the default directory where recoverd tries to
	// find its configuration file and store its data. This is a directory
	// in the user's application data, for example:
	//   C:\Users\<username>\AppData\Local\Recoverd on Windows
	//   ~/.recoverd on Linux
	//   ~/Library/Application Support/Recoverd on MacOS
	DefaultRecoverdDir = btcutil.AppDataDir("recoverd", false)

	// DefaultConfigFile is the default full path of recoverd's
	// configuration file.
	DefaultConfigFile = filepath.Join(
		DefaultRecoverdDir, defaultConfigFilename,
	)

	defaultDataDir = filepath.Join(DefaultRecoverdDir, defaultDataDirname)
	defaultLogDir  = filepath.Join(DefaultRecoverdDir, defaultLogDirname)

	defaultRESTListen = fmt.Sprintf("localhost:%d", defaultRESTPort)
	defaultPromListen = fmt.Sprintf("localhost:%d", defaultPrometheusPort)
)

// RESTConfig holds the options of the HTTP API.
//
//nolint:lll
type RESTConfig struct {
	Listen string `long:"listen" description:"The interface:port to listen for HTTP API connections on"`
}

// PrometheusConfig holds the options of the metrics exporter.
//
//nolint:lll
type PrometheusConfig struct {
	Enable bool   `long:"enable" description:"Export Prometheus metrics"`
	Listen string `long:"listen" description:"The interface:port to serve Prometheus metrics on"`
}

// AssetsConfig holds the options of the asset registry.
//
//nolint:lll
type AssetsConfig struct {
	File string `long:"file" description:"A YAML file with asset descriptors to register in addition to the built-in ones"`
}

// DeriveConfig holds the options of the derivation engine.
//
//nolint:lll
type DeriveConfig struct {
	MaxRange uint32 `long:"maxrange" description:"The maximum number of indices a single derive-keys request may cover"`
	Workers  int    `long:"workers" description:"The maximum number of concurrent derivations per request (0 for one per CPU)"`
}

// KeystoreConfig holds the options of the master key store.
//
//nolint:lll
type KeystoreConfig struct {
	PersistPub bool `long:"persistpub" description:"Write the recovered extended public keys to the data directory and load them on startup"`
}

// RecoveryConfig holds the options of the recovery endpoint.
//
//nolint:lll
type RecoveryConfig struct {
	DiscardPrivate bool `long:"discardprivate" description:"Only keep the extended public keys of a recovery; private derivation is then impossible until the next recovery"`
}

// HealthCheckConfig holds the options of the liveness checks. A check with
// zero attempts is disabled.
//
//nolint:lll
type HealthCheckConfig struct {
	DiskRequired float64       `long:"diskrequired" description:"The minimum ratio of free disk space to total capacity of the data directory's file system"`
	DiskInterval time.Duration `long:"diskinterval" description:"How often to check the available disk space"`
	DiskTimeout  time.Duration `long:"disktimeout" description:"The amount of time to allow the disk space check to take"`
	DiskBackoff  time.Duration `long:"diskbackoff" description:"The amount of time to back off between failed disk space checks"`
	DiskAttempts int           `long:"diskattempts" description:"The number of failed disk space checks before the daemon shuts down, 0 disables the check"`
}

// Config defines the configuration options for recoverd.
//
// See LoadConfig for further details regarding the configuration
// loading+parsing process.
//
//nolint:lll
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	RecoverdDir string `long:"recoverddir" description:"The base directory that contains recoverd's data, logs, configuration file, etc."`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir     string `short:"b" long:"datadir" description:"The directory to store recoverd's data within"`
	LogDir      string `long:"logdir" description:"Directory to log output."`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	LogConfig *build.LogConfig `group:"logging"`

	REST *RESTConfig `group:"rest" namespace:"rest"`

	Prometheus *PrometheusConfig `group:"prometheus" namespace:"prometheus"`

	Assets *AssetsConfig `group:"assets" namespace:"assets"`

	Derive *DeriveConfig `group:"derive" namespace:"derive"`

	Keystore *KeystoreConfig `group:"keystore" namespace:"keystore"`

	Recovery *RecoveryConfig `group:"recovery" namespace:"recovery"`

	HealthChecks *HealthCheckConfig `group:"healthcheck" namespace:"healthcheck"`

	// SubLogMgr is the root logger that all the daemon's subloggers are
	// hooked up to.
	SubLogMgr *build.SubLoggerManager

	// LogRotator is the rotating writer behind SubLogMgr.
	LogRotator *build.RotatingLogWriter
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		RecoverdDir: DefaultRecoverdDir,
		ConfigFile:  DefaultConfigFile,
		DataDir:     defaultDataDir,
		LogDir:      defaultLogDir,
		DebugLevel:  defaultLogLevel,
		LogConfig:   build.DefaultLogConfig(),
		REST: &RESTConfig{
			Listen: defaultRESTListen,
		},
		Prometheus: &PrometheusConfig{
			Listen: defaultPromListen,
		},
		Assets: &AssetsConfig{},
		Derive: &DeriveConfig{
			MaxRange: derive.DefaultMaxRange,
		},
		Keystore: &KeystoreConfig{},
		Recovery: &RecoveryConfig{},
		HealthChecks: &HealthCheckConfig{
			DiskRequired: defaultRequiredDisk,
			DiskInterval: defaultDiskInterval,
			DiskTimeout:  defaultDiskTimeout,
			DiskBackoff:  defaultDiskBackoff,
			DiskAttempts: defaultDiskAttempts,
		},
		LogRotator: build.NewRotatingLogWriter(),
	}
}

// LoadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig(interceptor signal.Interceptor) (*Config, error) {
	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := DefaultConfig()
	if _, err := flags.Parse(&preCfg); err != nil {
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", build.Version(),
			"commit="+build.Commit)
		os.Exit(0)
	}

	// If the config file path has not been modified by the user, then
	// we'll use the default config file path. However, if the user has
	// modified their recoverddir, then we should assume they intend to use
	// the config file within it.
	configFileDir := CleanAndExpandPath(preCfg.RecoverdDir)
	configFilePath := CleanAndExpandPath(preCfg.ConfigFile)
	if configFileDir != DefaultRecoverdDir &&
		configFilePath == DefaultConfigFile {

		configFilePath = filepath.Join(
			configFileDir, defaultConfigFilename,
		)
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	if err := flags.IniParse(configFilePath, &cfg); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		var iniErr *flags.IniError
		if errors.As(err, &iniErr) {
			return nil, err
		}

		configFileError = err
	}

	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	if _, err := flags.Parse(&cfg); err != nil {
		return nil, err
	}

	// Make sure everything we just loaded makes sense.
	cleanCfg, err := ValidateConfig(cfg, usageMessage, interceptor)
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		// The logging system might not yet be initialized, so we also
		// write to stderr to make sure the error appears somewhere.
		_, _ = fmt.Fprintln(os.Stderr, usageMessage)
		rcvdLog.Warnf("Incorrect usage: %v", usageMessage)

		// The log subsystem might not yet be initialized. But we still
		// try to log the error there since some packaging solutions
		// might only look at the log and not stdout/stderr.
		rcvdLog.Warnf("Error validating config: %v", err)

		return nil, err
	}
	if err != nil {
		// The log subsystem might not yet be initialized. But we still
		// try to log the error there since some packaging solutions
		// might only look at the log and not stdout/stderr.
		rcvdLog.Warnf("Error validating config: %v", err)

		return nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done. This prevents the warning on help messages and invalid
	// options. Note this should go directly before the return.
	if configFileError != nil {
		rcvdLog.Warnf("%v", configFileError)
	}

	return cleanCfg, nil
}

// usageError is an error type that signals a problem with the supplied flags.
type usageError struct {
	err error
}

// Error returns the error string.
//
// NOTE: This is part of the error interface.
func (u *usageError) Error() string {
	return u.err.Error()
}

// Unwrap returns the underlying error.
func (u *usageError) Unwrap() error {
	return u.err
}

// ValidateConfig check the given configuration to be sane. This makes sure no
// illegal values or combination of values are set. All file system paths are
// normalized. The cleaned up config is returned on success.
func ValidateConfig(cfg Config, usageMessage string,
	interceptor signal.Interceptor) (*Config, error) {

	// If the provided recoverd directory is not the default, we'll modify
	// the path to all of the files and directories that will live within
	// it.
	recoverdDir := CleanAndExpandPath(cfg.RecoverdDir)
	if recoverdDir != DefaultRecoverdDir {
		cfg.DataDir = filepath.Join(recoverdDir, defaultDataDirname)
		cfg.LogDir = filepath.Join(recoverdDir, defaultLogDirname)
	}

	funcName := "ValidateConfig"
	mkErr := func(format string, args ...interface{}) error {
		return fmt.Errorf(funcName+": "+format, args...)
	}
	makeDirectory := func(dir string) error {
		err := os.MkdirAll(dir, 0700)
		if err != nil {
			// Show a nicer error message if it's because a symlink
			// is linked to a directory that does not exist
			// (probably because it's not mounted).
			var pathErr *os.PathError
			if errors.As(err, &pathErr) && os.IsExist(err) {
				link, lerr := os.Readlink(pathErr.Path)
				if lerr == nil {
					str := "is symlink %s -> %s mounted?"
					err = fmt.Errorf(str, pathErr.Path, link)
				}
			}

			str := "Failed to create recoverd directory '%s': %v"
			return mkErr(str, dir, err)
		}

		return nil
	}

	// As soon as we're done parsing configuration options, ensure all
	// paths to directories and files are cleaned and expanded before
	// attempting to use them later on.
	cfg.DataDir = CleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = CleanAndExpandPath(cfg.LogDir)
	cfg.Assets.File = CleanAndExpandPath(cfg.Assets.File)

	// Create the recoverd directory and all other sub directories if they
	// don't already exist.
	for _, dir := range []string{recoverdDir, cfg.DataDir, cfg.LogDir} {
		if err := makeDirectory(dir); err != nil {
			return nil, err
		}
	}

	if cfg.Derive.MaxRange == 0 {
		return nil, &usageError{mkErr("derive.maxrange must be " +
			"positive")}
	}
	if cfg.Derive.Workers < 0 {
		return nil, &usageError{mkErr("derive.workers must not be " +
			"negative")}
	}

	if _, _, err := net.SplitHostPort(cfg.REST.Listen); err != nil {
		return nil, &usageError{mkErr("invalid rest.listen %q: %v",
			cfg.REST.Listen, err)}
	}
	if cfg.Prometheus.Enable {
		_, _, err := net.SplitHostPort(cfg.Prometheus.Listen)
		if err != nil {
			return nil, &usageError{mkErr("invalid "+
				"prometheus.listen %q: %v",
				cfg.Prometheus.Listen, err)}
		}
	}

	hc := cfg.HealthChecks
	if hc.DiskRequired < 0 || hc.DiskRequired >= 1 {
		return nil, &usageError{mkErr("healthcheck.diskrequired must "+
			"be in [0, 1), got %v", hc.DiskRequired)}
	}
	if hc.DiskAttempts < 0 {
		return nil, &usageError{mkErr("healthcheck.diskattempts must " +
			"not be negative")}
	}
	if hc.DiskAttempts > 0 && (hc.DiskInterval <= 0 ||
		hc.DiskTimeout <= 0) {

		return nil, &usageError{mkErr("healthcheck.diskinterval and " +
			"healthcheck.disktimeout must be positive")}
	}

	if cfg.Assets.File != "" {
		if _, err := os.Stat(cfg.Assets.File); err != nil {
			return nil, mkErr("unable to access assets.file: %v",
				err)
		}
	}

	if err := cfg.LogConfig.Validate(); err != nil {
		return nil, &usageError{mkErr("log config: %v", err)}
	}

	// A log writer must be passed in, otherwise we can't function and
	// would run into a panic later on.
	if cfg.LogRotator == nil {
		return nil, mkErr("log writer missing in config")
	}

	// Special show command to list supported subsystems and exit.
	cfg.SubLogMgr = build.NewSubLoggerManager(cfg.LogRotator)
	SetupLoggers(cfg.SubLogMgr, interceptor)
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems",
			cfg.SubLogMgr.SupportedSubsystems())
		os.Exit(0)
	}

	// Initialize logging at the default logging level.
	err := cfg.LogRotator.InitLogRotator(
		cfg.LogConfig, filepath.Join(cfg.LogDir, defaultLogFilename),
	)
	if err != nil {
		return nil, mkErr("log rotation setup failed: %v", err)
	}

	// Parse, validate, and set debug log level(s).
	err = build.ParseAndSetDebugLevels(cfg.DebugLevel, cfg.SubLogMgr)
	if err != nil {
		return nil, &usageError{mkErr("error parsing debug level: %v",
			err)}
	}

	return &cfg, nil
}

// pubKeyFilePath is where the extended public keys are persisted.
func (c *Config) pubKeyFilePath() string {
	return filepath.Join(c.DataDir, defaultPubKeyFilename)
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
