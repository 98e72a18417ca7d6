package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "config/config.yaml"

	ModeDev     = "dev"
	ModeRelease = "release"

	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"

	defaultJWTSecret = "change-me"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql | sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Path     string `yaml:"path"` // sqlite のみ
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LedgerConfig struct {
	// "Local" ならサーバーのローカルタイムゾーン
	Timezone  string        `yaml:"timezone"`
	ClockSkew time.Duration `yaml:"clock_skew"`
}

type CheckpointConfig struct {
	CodePattern    string  `yaml:"code_pattern"`
	MinConfidence  float64 `yaml:"min_confidence"`
	DefaultMethod  string  `yaml:"default_method"`
	DefaultStation string  `yaml:"default_station"`
}

type BootstrapAdmin struct {
	ID       string `yaml:"id"`
	Password string `yaml:"password"`
}

type AuthConfig struct {
	JWTSecret      string         `yaml:"jwt_secret"`
	TokenTTL       time.Duration  `yaml:"token_ttl"`
	BootstrapAdmin BootstrapAdmin `yaml:"bootstrap_admin"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

type Config struct {
	Version     string           `yaml:"version"`
	Mode        string           `yaml:"mode"`
	Server      ServerConfig     `yaml:"server"`
	DB          DatabaseConfig   `yaml:"database"`
	Certificate Certs            `yaml:"certificate"`
	Ledger      LedgerConfig     `yaml:"ledger"`
	Checkpoint  CheckpointConfig `yaml:"checkpoint"`
	Auth        AuthConfig       `yaml:"auth"`
	CORS        CORSConfig       `yaml:"cors"`
}

// LoadDefaults: 開発用の既定値。本番では config.yaml で上書きすること
func (c *Config) LoadDefaults() {
	c.Mode = ModeDev
	c.Server.Addr = ":8443"
	c.DB.Driver = DriverSQLite
	c.DB.Port = 3306
	c.DB.Path = "./data/smartid.db"
	c.Ledger.Timezone = "Local"
	c.Ledger.ClockSkew = 5 * time.Minute
	c.Checkpoint.CodePattern = `^APP\d{8}$`
	c.Checkpoint.DefaultMethod = "qr_and_face"
	c.Checkpoint.DefaultStation = "main_entrance"
	c.Auth.JWTSecret = defaultJWTSecret
	c.Auth.TokenTTL = 24 * time.Hour
	c.CORS.AllowOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
}

// LoadConfig: 既定値 → YAML の順で適用する。
// ファイルが存在しない場合は既定値のみで起動する。
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Mode != ModeDev && c.Mode != ModeRelease {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeDev, ModeRelease, c.Mode)
	}
	switch c.DB.Driver {
	case DriverMySQL:
		if c.DB.Host == "" || c.DB.DBName == "" {
			return fmt.Errorf("database.host and database.dbname are required for mysql")
		}
	case DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.DB.Driver)
	}
	if c.Ledger.ClockSkew < 0 {
		return fmt.Errorf("ledger.clock_skew must be >= 0")
	}
	if c.Checkpoint.MinConfidence < 0 || c.Checkpoint.MinConfidence > 100 {
		return fmt.Errorf("checkpoint.min_confidence must be within 0..100")
	}
	if c.Auth.JWTSecret == "" || (c.Mode == ModeRelease && c.Auth.JWTSecret == defaultJWTSecret) {
		return fmt.Errorf("auth.jwt_secret must be set in release mode")
	}
	return nil
}

// Location: ledger.timezone を解決する
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Ledger.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// PathFromArgs: -c / -config だけを拾う（他のフラグは無視）
func PathFromArgs(args []string) string {
	filtered := filterArgs(args, []string{"-c", "-config", "--config"})

	var path string
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(nopWriter{})
	fs.StringVar(&path, "config", DefaultPath, "path to config file")
	fs.StringVar(&path, "c", DefaultPath, "path to config file (short)")
	_ = fs.Parse(filtered)
	return path
}

func filterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}
		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}
	return filtered
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
