package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, ":8000", cfg.HTTPAddr)
	require.Equal(t, 2, cfg.Workers)
	require.False(t, cfg.MySQL.Enable)
}

func TestLoadFileYAMLOverridesNonZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
env: prod
workers: 4
upstream:
  property_url: http://upstream.local/props/
  timeout: 3s
cache:
  enable: false
report:
  timezone: America/New_York
  render_timeout: bogus
mysql:
  enable: true
  password: s3cret
limits:
  report_per_minute: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, "http://upstream.local/props", cfg.Upstream.PropertyURL)
	require.Equal(t, Default().Upstream.ComparisonsURL, cfg.Upstream.ComparisonsURL)
	require.Equal(t, 3*time.Second, cfg.Upstream.Timeout)
	require.False(t, cfg.Cache.Enable)
	// 非法时长保持默认
	require.Equal(t, 30*time.Second, cfg.Report.RenderTimeout)
	require.Equal(t, "America/New_York", cfg.Report.Location().String())
	require.True(t, cfg.MySQL.Enable)
	require.Equal(t, 5, cfg.Limits.ReportPerMinute)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"http_addr":":9000","cors":{"enable":true,"allowed_origins":["https://a.example"]}}`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTPAddr)
	require.True(t, cfg.CORS.Enable)
	require.Equal(t, []string{"https://a.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsInsecureProdMySQL(t *testing.T) {
	cfg := Default()
	cfg.Env = "prod"
	cfg.MySQL.Enable = true
	require.Error(t, cfg.Validate())

	cfg.MySQL.Password = "a-strong-one"
	require.NoError(t, cfg.Validate())

	cfg.Workers = 0
	require.Error(t, cfg.Validate())
}

func TestMySQLDSNMasked(t *testing.T) {
	m := MySQLConfig{User: "app", Password: "pw", Host: "db", Port: 3307, DBName: "x", Params: "parseTime=true"}
	require.Equal(t, "app:pw@tcp(db:3307)/x?parseTime=true", m.DSN())
	require.Equal(t, "app:******@tcp(db:3307)/x?parseTime=true", m.DSNMasked())
}

func TestReportLocationFallback(t *testing.T) {
	require.Equal(t, time.Local, ReportConfig{}.Location())
	require.Equal(t, time.Local, ReportConfig{Timezone: "Not/AZone"}.Location())
	require.Equal(t, "UTC", ReportConfig{Timezone: "UTC"}.Location().String())
}

func TestTrustedProxies(t *testing.T) {
	require.Empty(t, Default().TrustedProxies)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trusted_proxies:\n  - 10.0.0.0/8\n  - 127.0.0.1\n"), 0o600))
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.TrustedProxies)
	require.NoError(t, cfg.Validate())

	cfg.TrustedProxies = append(cfg.TrustedProxies, "not-an-ip")
	require.Error(t, cfg.Validate())
}
