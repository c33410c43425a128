package bsda

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `[DEFAULT]
name = my app
clientKey = key-from-file
clientSecret = secret-from-file
accessToken = token-from-file
appSessionId =
apiServer = https://api.euc1.sh.basespace.illumina.com/
apiVersion = v1pre3
`

func writeConfig(t *testing.T, content string) string {
	fname := filepath.Join(t.TempDir(), "basespace.cfg")
	require.NoError(t, os.WriteFile(fname, []byte(content), 0600))
	return fname
}

func TestReadConfigFile(t *testing.T) {
	fc, err := ReadConfigFile(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "key-from-file", fc.ClientKey)
	assert.Equal(t, "secret-from-file", fc.ClientSecret)
	assert.Equal(t, "token-from-file", fc.AccessToken)
	assert.Equal(t, "", fc.AppSessionId)
	assert.Equal(t, "https://api.euc1.sh.basespace.illumina.com/", fc.ApiServer)
}

func TestReadConfigFileMissingIsEmpty(t *testing.T) {
	fc, err := ReadConfigFile(filepath.Join(t.TempDir(), "absent.cfg"))
	require.NoError(t, err)
	assert.Equal(t, FileConfig{}, fc)
}

func TestMergeCommandLineWins(t *testing.T) {
	cfg := Config{ClientKey: "key-from-cli"}.Merge(FileConfig{
		ClientKey:   "key-from-file",
		AccessToken: "token-from-file",
		ApiServer:   "https://example.org/",
	})

	assert.Equal(t, "key-from-cli", cfg.ClientKey)
	assert.Equal(t, "token-from-file", cfg.AccessToken)
	assert.Equal(t, "", cfg.ClientSecret)
	assert.Equal(t, "https://example.org", cfg.ApiServer)
	assert.Equal(t, DefaultApiVersion, cfg.ApiVersion)
}

func TestMergeDefaults(t *testing.T) {
	cfg := Config{}.Merge(FileConfig{})
	assert.Equal(t, DefaultApiServer, cfg.ApiServer)
	assert.Equal(t, DefaultApiVersion, cfg.ApiVersion)
	assert.Equal(t, "", cfg.AppSessionId)
}

func TestLoadConfigMissingCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.cfg")
	_, err := LoadConfig(Config{ConfigPath: path})
	require.Error(t, err)

	var missing *MissingCredentialsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"client_key", "client_secret", "access_token"}, missing.Fields)
	assert.Contains(t, err.Error(), path)
	assert.Contains(t, err.Error(), "client_key, client_secret, access_token")
}

func TestLoadConfigPartialCredentials(t *testing.T) {
	path := writeConfig(t, "[DEFAULT]\nclientKey = k\n")
	_, err := LoadConfig(Config{ConfigPath: path, AccessToken: "t"})

	var missing *MissingCredentialsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"client_secret"}, missing.Fields)
}

func TestLoadConfigComplete(t *testing.T) {
	cfg, err := LoadConfig(Config{ConfigPath: writeConfig(t, sampleConfig), AccessToken: "cli-token"})
	require.NoError(t, err)
	assert.Equal(t, "cli-token", cfg.AccessToken)
	assert.Equal(t, "key-from-file", cfg.ClientKey)
	assert.Equal(t, "https://api.euc1.sh.basespace.illumina.com", cfg.ApiServer)
}

func TestResolveOutputDirectory(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	dir, isDefault, err := ResolveOutputDirectory("")
	require.NoError(t, err)
	assert.True(t, isDefault)
	assert.Equal(t, wd, dir)

	dir, isDefault, err = ResolveOutputDirectory("out")
	require.NoError(t, err)
	assert.False(t, isDefault)
	assert.Equal(t, filepath.Join(wd, "out"), dir)
}

func TestSafeMakedirExisting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, SafeMakedir(dir))
	require.NoError(t, SafeMakedir(dir))
	assert.DirExists(t, dir)

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	assert.Error(t, SafeMakedir(file))
}

func TestReadConfigFileKeysIgnoreCase(t *testing.T) {
	fc, err := ReadConfigFile(writeConfig(t, "[DEFAULT]\nCLIENTKEY = k\nclientsecret = s\nAccessToken = t\nappSessionId = as-1\napiVersion = v2\n"))
	require.NoError(t, err)

	assert.Equal(t, FileConfig{
		ClientKey:    "k",
		ClientSecret: "s",
		AccessToken:  "t",
		AppSessionId: "as-1",
		ApiVersion:   "v2",
	}, fc)
}

func TestLoadConfigFromFileOnly(t *testing.T) {
	cfg, err := LoadConfig(Config{ConfigPath: writeConfig(t, sampleConfig)})
	require.NoError(t, err)
	assert.Equal(t, "key-from-file", cfg.ClientKey)
	assert.Equal(t, "secret-from-file", cfg.ClientSecret)
	assert.Equal(t, "token-from-file", cfg.AccessToken)
	assert.Equal(t, "v1pre3", cfg.ApiVersion)
}
