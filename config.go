package bsda

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

const (
	DefaultApiServer  = "https://api.basespace.illumina.com"
	DefaultApiVersion = "v1pre3"
	DefaultConfigName = ".basespace.cfg"
)

// Config lists every option of a run. Fields left empty on the command line
// are filled from the BaseSpace configuration file and then from defaults,
// see Merge.
type Config struct {
	ConfigPath string

	// credentials
	ClientKey    string
	ClientSecret string
	AccessToken  string

	// connection, only settable from the configuration file
	AppSessionId string
	ApiServer    string
	ApiVersion   string

	Projects Filter
	Samples  Filter

	DryRun bool

	// empty means the current working directory
	OutputDirectory string

	RecreateTree bool

	// record completed downloads in the output directory
	Ledger bool

	LogFile string
	Verbose bool
}

// FileConfig holds the keys read from the [DEFAULT] section of a BaseSpace
// configuration file:
//
//	[DEFAULT]
//	clientKey = ...
//	clientSecret = ...
//	accessToken = ...
//	appSessionId =
//	apiServer = https://api.basespace.illumina.com/
//	apiVersion = v1pre3
type FileConfig struct {
	ClientKey    string
	ClientSecret string
	AccessToken  string
	AppSessionId string
	ApiServer    string
	ApiVersion   string
}

// MissingCredentialsError names the required credentials absent from both the
// command line and the configuration file.
type MissingCredentialsError struct {
	ConfigPath string
	Fields     []string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("Required parameters not supplied either in config file (%s) or via arguments: %s",
		e.ConfigPath, strings.Join(e.Fields, ", "))
}

// DefaultConfigPath is $HOME/.basespace.cfg
func DefaultConfigPath() string {
	return filepath.Join(os.Getenv("HOME"), DefaultConfigName)
}

// ReadConfigFile parses a BaseSpace configuration file. A file that does not
// exist yields an empty configuration.
func ReadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	if path == "" {
		return fc, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fc, nil
	}

	iniFile, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, path)
	if err != nil {
		return fc, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	section := iniFile.Section(ini.DefaultSection)
	fc.ClientKey = section.Key("clientkey").String()
	fc.ClientSecret = section.Key("clientsecret").String()
	fc.AccessToken = section.Key("accesstoken").String()
	fc.AppSessionId = section.Key("appsessionid").String()
	fc.ApiServer = section.Key("apiserver").String()
	fc.ApiVersion = section.Key("apiversion").String()
	return fc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Merge fills the connection fields: command line value if present, else the
// configuration file value, else the built-in default.
func (c Config) Merge(fc FileConfig) Config {
	c.ClientKey = firstNonEmpty(c.ClientKey, fc.ClientKey)
	c.ClientSecret = firstNonEmpty(c.ClientSecret, fc.ClientSecret)
	c.AccessToken = firstNonEmpty(c.AccessToken, fc.AccessToken)
	c.AppSessionId = firstNonEmpty(c.AppSessionId, fc.AppSessionId)
	c.ApiServer = strings.TrimRight(firstNonEmpty(c.ApiServer, fc.ApiServer, DefaultApiServer), "/")
	c.ApiVersion = firstNonEmpty(c.ApiVersion, fc.ApiVersion, DefaultApiVersion)
	return c
}

// Validate checks the configuration as a unit, before any network call.
func (c Config) Validate() error {
	var missing []string
	if c.ClientKey == "" {
		missing = append(missing, "client_key")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if c.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if len(missing) > 0 {
		return &MissingCredentialsError{ConfigPath: c.ConfigPath, Fields: missing}
	}
	return nil
}

// LoadConfig reads the configuration file named by c.ConfigPath, merges it
// under the command line values and validates the result.
func LoadConfig(c Config) (Config, error) {
	fc, err := ReadConfigFile(c.ConfigPath)
	if err != nil {
		return c, err
	}
	merged := c.Merge(fc)
	if err := merged.Validate(); err != nil {
		return merged, err
	}
	return merged, nil
}

// ResolveOutputDirectory returns the absolute output directory, and whether
// the current directory was used because none was given.
func ResolveOutputDirectory(dir string) (string, bool, error) {
	if dir == "" {
		wd, err := os.Getwd()
		return wd, true, err
	}
	abs, err := filepath.Abs(dir)
	return abs, false, err
}

// Create a directory tree if it doesn't exist. A directory created
// concurrently by another process is not an error.
func SafeMakedir(dname string) error {
	if err := os.MkdirAll(dname, 0777); err != nil {
		if info, statErr := os.Stat(dname); statErr == nil && info.IsDir() {
			return nil
		}
		return err
	}
	return nil
}
