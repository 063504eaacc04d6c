package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config 保存进程级配置（配置文件 + 内置默认值）。
// 字段提供开发友好的默认值；生产环境请在 config.yaml 中覆盖。
type Config struct {
	Env      string
	HTTPAddr string
	// Workers 限制同时运行的 PDF 渲染任务数（对应容器启动参数中的 worker 数）
	Workers  int
	Upstream UpstreamConfig
	Cache    CacheConfig
	Report   ReportConfig
	MySQL    MySQLConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Auth     AuthConfig
	Limits   LimitConfig
	Security SecurityConfig
	// TrustedProxies 为可信反向代理的 IP/CIDR；为空时忽略 X-Forwarded-For，客户端 IP 取连接地址
	TrustedProxies []string
}

// UpstreamConfig 描述估值 API 的地址与超时。
type UpstreamConfig struct {
	// 源房产接口；单条记录为 PropertyURL + "/{id}"
	PropertyURL string
	// 可比房产接口
	ComparisonsURL string
	Timeout        time.Duration
}

type CacheConfig struct {
	Enable bool
	TTL    time.Duration
	Prefix string
}

type ReportConfig struct {
	// Chromium 可执行文件路径；为空时由 chromedp 自动查找
	ChromePath    string
	RenderTimeout time.Duration
	// sales_date 等时间戳格式化所用时区（IANA 名称），为空表示本地时区
	Timezone string
}

// Location 解析报表时区；无法识别时回退到本地时区。
func (r ReportConfig) Location() *time.Location {
	if r.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

type MySQLConfig struct {
	// 是否启用报表审计落库；关闭时不连接 MySQL
	Enable   bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	Params   string
}

func (m MySQLConfig) DSN() string {
	port := m.Port
	if port == 0 {
		port = 3306
	}
	host := m.Host
	if host == "" {
		host = "127.0.0.1"
	}
	db := m.DBName
	if db == "" {
		db = "valuations"
	}
	params := m.Params
	if params == "" {
		params = "parseTime=true&loc=Local&charset=utf8mb4,utf8"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", m.User, m.Password, host, port, db, params)
}

func (m MySQLConfig) DSNMasked() string {
	masked := m
	if masked.Password != "" {
		masked.Password = "******"
	}
	return masked.DSN()
}

type RedisConfig struct {
	// 关闭后不使用缓存与限流
	Enable   bool
	Addr     string
	DB       int
	Password string
}

type CORSConfig struct {
	// 是否为 /property/* 启用 CORS（跨域）；默认关闭
	Enable bool
	// 允许的来源，为空表示回显任意 Origin
	AllowedOrigins []string
}

// AuthConfig 配置可选的 Bearer JWT（HS256）校验。
type AuthConfig struct {
	// 为空则不校验
	JWTSecret string
	Issuer    string
}

type LimitConfig struct {
	ReportPerMinute int
	Window          time.Duration
}

type SecurityConfig struct {
	HSTS struct {
		Enabled           bool
		MaxAgeSeconds     int
		IncludeSubdomains bool
	}
}

// Default 返回内置默认配置（本地开发可直接运行）。
func Default() Config {
	cfg := Config{
		Env:      "dev",
		HTTPAddr: ":8000",
		Workers:  2,
		Upstream: UpstreamConfig{
			PropertyURL:    "https://xano.anant.systems/api:gqF_nDUq/ripos/valuations_property",
			ComparisonsURL: "https://xano.anant.systems/api:rhC7uFD7/ripos/valuations_property_comparisons",
			Timeout:        15 * time.Second,
		},
		Cache:  CacheConfig{Enable: true, TTL: 30 * time.Second, Prefix: "upstream"},
		Report: ReportConfig{RenderTimeout: 30 * time.Second},
		MySQL:  MySQLConfig{Enable: false, Host: "127.0.0.1", Port: 3306, User: "root", Password: "123456", DBName: "valuations", Params: "parseTime=true&loc=Local&charset=utf8mb4,utf8"},
		Redis:  RedisConfig{Enable: true, Addr: "127.0.0.1:6379", DB: 0, Password: ""},
		CORS:   CORSConfig{Enable: false},
		Limits: LimitConfig{ReportPerMinute: 20, Window: time.Minute},
	}
	cfg.Security.HSTS.Enabled = true
	cfg.Security.HSTS.MaxAgeSeconds = 31536000
	cfg.Security.HSTS.IncludeSubdomains = true
	return cfg
}

// Load 生成配置：先使用内置默认值，再用工作目录下的配置文件（config.yaml/yml/json）覆盖。
func Load() Config {
	cfg := Default()
	if path := FirstExisting("config.yaml", "config.yml", "config.json"); path != "" {
		_ = loadFromFile(path, &cfg)
	}
	return cfg
}

// LoadFile 与 Load 相同，但使用显式给定的配置文件；文件不存在或格式错误时返回错误。
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if err := loadFromFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate 做启动前的基线检查。
func (c Config) Validate() error {
	if strings.TrimSpace(c.Upstream.PropertyURL) == "" || strings.TrimSpace(c.Upstream.ComparisonsURL) == "" {
		return errors.New("upstream.property_url and upstream.comparisons_url must be set")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(p); err != nil {
			return fmt.Errorf("trusted_proxies: invalid ip or cidr %q", p)
		}
	}
	if c.Env == "prod" && c.MySQL.Enable {
		if c.MySQL.Password == "123456" || c.MySQL.Password == "password" || c.MySQL.Password == "" {
			return errors.New("insecure mysql password in prod; configure mysql.password in config.yaml")
		}
	}
	return nil
}

// 配置文件格式：YAML 或 JSON。仅非零值会覆盖现有字段。
func loadFromFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(path))
	var fm fileModel
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(b, &fm); err != nil {
			return err
		}
	} else if ext == ".json" || ext == "" {
		if err := json.Unmarshal(b, &fm); err != nil {
			return err
		}
	} else {
		return errors.New("unsupported config file format")
	}
	fm.apply(cfg)
	return nil
}

// --- 配置文件模型与合并逻辑 ---

type fileModel struct {
	Env      string        `yaml:"env" json:"env"`
	HTTPAddr string        `yaml:"http_addr" json:"http_addr"`
	Workers  int           `yaml:"workers" json:"workers"`
	Upstream *fileUpstream `yaml:"upstream" json:"upstream"`
	Cache    *fileCache    `yaml:"cache" json:"cache"`
	Report   *fileReport   `yaml:"report" json:"report"`
	MySQL    *fileMySQL    `yaml:"mysql" json:"mysql"`
	Redis    *fileRedis    `yaml:"redis" json:"redis"`
	CORS     *fileCORS     `yaml:"cors" json:"cors"`
	Auth     *fileAuth     `yaml:"auth" json:"auth"`
	Limits   *fileLimits   `yaml:"limits" json:"limits"`
	Security *fileSecurity `yaml:"security" json:"security"`

	TrustedProxies []string `yaml:"trusted_proxies" json:"trusted_proxies"`
}

type fileUpstream struct {
	PropertyURL    string `yaml:"property_url" json:"property_url"`
	ComparisonsURL string `yaml:"comparisons_url" json:"comparisons_url"`
	Timeout        string `yaml:"timeout" json:"timeout"`
}
type fileCache struct {
	Enable *bool  `yaml:"enable" json:"enable"`
	TTL    string `yaml:"ttl" json:"ttl"`
	Prefix string `yaml:"prefix" json:"prefix"`
}
type fileReport struct {
	ChromePath    string `yaml:"chrome_path" json:"chrome_path"`
	RenderTimeout string `yaml:"render_timeout" json:"render_timeout"`
	Timezone      string `yaml:"timezone" json:"timezone"`
}
type fileMySQL struct {
	Enable   *bool  `yaml:"enable" json:"enable"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	DBName   string `yaml:"db" json:"db"`
	Params   string `yaml:"params" json:"params"`
}
type fileRedis struct {
	Enable   *bool  `yaml:"enable" json:"enable"`
	Addr     string `yaml:"addr" json:"addr"`
	DB       int    `yaml:"db" json:"db"`
	Password string `yaml:"password" json:"password"`
}
type fileCORS struct {
	Enable         *bool    `yaml:"enable" json:"enable"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}
type fileAuth struct {
	JWTSecret string `yaml:"jwt_secret" json:"jwt_secret"`
	Issuer    string `yaml:"issuer" json:"issuer"`
}
type fileLimits struct {
	ReportPerMinute int    `yaml:"report_per_minute" json:"report_per_minute"`
	Window          string `yaml:"window" json:"window"`
}
type fileSecurity struct {
	HSTS struct {
		Enabled           *bool `yaml:"enabled" json:"enabled"`
		MaxAge            int   `yaml:"max_age" json:"max_age"`
		IncludeSubdomains *bool `yaml:"include_subdomains" json:"include_subdomains"`
	} `yaml:"hsts" json:"hsts"`
}

func (fm *fileModel) apply(cfg *Config) {
	if fm.Env != "" {
		cfg.Env = fm.Env
	}
	if fm.HTTPAddr != "" {
		cfg.HTTPAddr = fm.HTTPAddr
	}
	if fm.Workers != 0 {
		cfg.Workers = fm.Workers
	}
	if fm.Upstream != nil {
		if fm.Upstream.PropertyURL != "" {
			cfg.Upstream.PropertyURL = strings.TrimRight(fm.Upstream.PropertyURL, "/")
		}
		if fm.Upstream.ComparisonsURL != "" {
			cfg.Upstream.ComparisonsURL = fm.Upstream.ComparisonsURL
		}
		setDuration(fm.Upstream.Timeout, &cfg.Upstream.Timeout)
	}
	if fm.Cache != nil {
		if fm.Cache.Enable != nil {
			cfg.Cache.Enable = *fm.Cache.Enable
		}
		setDuration(fm.Cache.TTL, &cfg.Cache.TTL)
		if fm.Cache.Prefix != "" {
			cfg.Cache.Prefix = fm.Cache.Prefix
		}
	}
	if fm.Report != nil {
		if fm.Report.ChromePath != "" {
			cfg.Report.ChromePath = fm.Report.ChromePath
		}
		setDuration(fm.Report.RenderTimeout, &cfg.Report.RenderTimeout)
		if fm.Report.Timezone != "" {
			cfg.Report.Timezone = fm.Report.Timezone
		}
	}
	if fm.MySQL != nil {
		if fm.MySQL.Enable != nil {
			cfg.MySQL.Enable = *fm.MySQL.Enable
		}
		if fm.MySQL.Host != "" {
			cfg.MySQL.Host = fm.MySQL.Host
		}
		if fm.MySQL.Port != 0 {
			cfg.MySQL.Port = fm.MySQL.Port
		}
		if fm.MySQL.User != "" {
			cfg.MySQL.User = fm.MySQL.User
		}
		if fm.MySQL.Password != "" {
			cfg.MySQL.Password = fm.MySQL.Password
		}
		if fm.MySQL.DBName != "" {
			cfg.MySQL.DBName = fm.MySQL.DBName
		}
		if fm.MySQL.Params != "" {
			cfg.MySQL.Params = fm.MySQL.Params
		}
	}
	if fm.Redis != nil {
		if fm.Redis.Enable != nil {
			cfg.Redis.Enable = *fm.Redis.Enable
		}
		if fm.Redis.Addr != "" {
			cfg.Redis.Addr = fm.Redis.Addr
		}
		if fm.Redis.DB != 0 {
			cfg.Redis.DB = fm.Redis.DB
		}
		if fm.Redis.Password != "" {
			cfg.Redis.Password = fm.Redis.Password
		}
	}
	if fm.CORS != nil {
		if fm.CORS.Enable != nil {
			cfg.CORS.Enable = *fm.CORS.Enable
		}
		if len(fm.CORS.AllowedOrigins) > 0 {
			cfg.CORS.AllowedOrigins = fm.CORS.AllowedOrigins
		}
	}
	if fm.Auth != nil {
		if fm.Auth.JWTSecret != "" {
			cfg.Auth.JWTSecret = fm.Auth.JWTSecret
		}
		if fm.Auth.Issuer != "" {
			cfg.Auth.Issuer = fm.Auth.Issuer
		}
	}
	if fm.Limits != nil {
		if fm.Limits.ReportPerMinute != 0 {
			cfg.Limits.ReportPerMinute = fm.Limits.ReportPerMinute
		}
		setDuration(fm.Limits.Window, &cfg.Limits.Window)
	}
	if len(fm.TrustedProxies) > 0 {
		cfg.TrustedProxies = append([]string(nil), fm.TrustedProxies...)
	}
	if fm.Security != nil {
		if fm.Security.HSTS.Enabled != nil {
			cfg.Security.HSTS.Enabled = *fm.Security.HSTS.Enabled
		}
		if fm.Security.HSTS.MaxAge != 0 {
			cfg.Security.HSTS.MaxAgeSeconds = fm.Security.HSTS.MaxAge
		}
		if fm.Security.HSTS.IncludeSubdomains != nil {
			cfg.Security.HSTS.IncludeSubdomains = *fm.Security.HSTS.IncludeSubdomains
		}
	}
}

// setDuration 解析时长字符串，非法值保持原有配置。
func setDuration(v string, dst *time.Duration) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

// FirstExisting 按顺序返回第一个存在的文件路径；若都不存在则返回空字符串。
func FirstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
