package config

import (
	_ "embed"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

//go:embed version
var version string

//go:embed name
var name string

type LogLevel string

const (
	Debug  LogLevel = "debug"
	Info   LogLevel = "info"
	Notice LogLevel = "notice"
	Warn   LogLevel = "warn"
	Error  LogLevel = "error"
)

const (
	defaultInviteTTL = 72 * time.Hour
	defaultResetTTL  = time.Hour
	defaultSweepSpec = "@hourly"
)

func GetVersion() string {
	return strings.TrimSpace(version)
}

func GetName() string {
	return strings.TrimSpace(name)
}

// LoadEnvFile merges key=value pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func GetLogLevel() LogLevel {
	if IsDebug() {
		return Debug
	}
	logLevel := os.Getenv("PARALEGAL_LOG_LEVEL")
	if logLevel == "" {
		return Info
	}
	return LogLevel(logLevel)
}

func IsDebug() bool {
	return os.Getenv("PARALEGAL_DEBUG") == "true"
}

func GetDBFolderPath() string {
	dbFolderPath := os.Getenv("PARALEGAL_DB_FOLDER")
	if dbFolderPath == "" {
		dbFolderPath = "/etc/paralegal"
	}
	return dbFolderPath
}

func GetDBPath() string {
	if p := os.Getenv("PARALEGAL_DB_PATH"); p != "" {
		return p
	}
	return fmt.Sprintf("%s/%s.db", GetDBFolderPath(), GetName())
}

func GetLogFolder() string {
	logFolderPath := os.Getenv("PARALEGAL_LOG_FOLDER")
	if logFolderPath == "" {
		logFolderPath = "/var/log"
	}
	return logFolderPath
}

// Bootstrap is the fallback identity used while the users table is empty.
type Bootstrap struct {
	Username string
	Password string
	// AdminUsername is granted admin whenever it has no row of its own.
	AdminUsername string
	// AllowOpenMode lets an empty, unconfigured deployment accept every login
	// and treat every caller as admin. Never enable it in production.
	AllowOpenMode bool
}

// HasCredentials reports whether a fallback username/password pair is configured.
func (b Bootstrap) HasCredentials() bool {
	return b.Username != ""
}

func GetBootstrap() Bootstrap {
	b := Bootstrap{
		Username:      os.Getenv("AUTH_USERNAME"),
		Password:      os.Getenv("AUTH_PASSWORD"),
		AdminUsername: os.Getenv("AUTH_ADMIN"),
		AllowOpenMode: os.Getenv("PARALEGAL_INSECURE_OPEN_MODE") == "true",
	}
	if b.AdminUsername == "" {
		b.AdminUsername = b.Username
	}
	return b
}

// TokenConfig controls lifetimes of invite and reset tokens and the purge schedule.
type TokenConfig struct {
	InviteTTL time.Duration
	ResetTTL  time.Duration
	SweepSpec string
}

func GetTokenConfig() (TokenConfig, error) {
	c := TokenConfig{
		InviteTTL: defaultInviteTTL,
		ResetTTL:  defaultResetTTL,
		SweepSpec: defaultSweepSpec,
	}
	var err error
	if c.InviteTTL, err = durationEnv("PARALEGAL_INVITE_TTL", defaultInviteTTL); err != nil {
		return c, err
	}
	if c.ResetTTL, err = durationEnv("PARALEGAL_RESET_TTL", defaultResetTTL); err != nil {
		return c, err
	}
	if spec := os.Getenv("PARALEGAL_TOKEN_SWEEP"); spec != "" {
		c.SweepSpec = spec
	}
	return c, nil
}

// ServerConfig holds the listener and cookie session settings of the web server.
type ServerConfig struct {
	Listen        string
	Port          int
	BasePath      string
	SessionSecret string
	// SessionMaxAge is in minutes; 0 keeps browser-session cookies.
	SessionMaxAge int
	// Domain, when set, is the only Host the server answers to.
	Domain string
	// Metrics exposes Prometheus metrics at /metrics.
	Metrics bool
	// CertFile and KeyFile, when both set, switch the listener to HTTPS.
	CertFile string
	KeyFile  string
	// LoginRate is the sustained number of login and reset attempts per
	// minute allowed from one client.
	LoginRate int
	// BaseURL is the public URL of the panel root used in mailed links. When
	// empty, links are built from the request Host.
	BaseURL string
	// TrustedProxies are the IPs or CIDRs whose X-Forwarded-For is believed.
	// Empty means the client IP is always the connection's remote address.
	TrustedProxies []string
}

func GetServerConfig() (ServerConfig, error) {
	c := ServerConfig{
		Listen:        os.Getenv("PARALEGAL_LISTEN"),
		Port:          8080,
		BasePath:      os.Getenv("PARALEGAL_BASE_PATH"),
		SessionSecret: os.Getenv("PARALEGAL_SESSION_SECRET"),
		Domain:        os.Getenv("PARALEGAL_DOMAIN"),
		Metrics:       os.Getenv("PARALEGAL_METRICS") == "true",
		CertFile:      os.Getenv("PARALEGAL_CERT_FILE"),
		KeyFile:       os.Getenv("PARALEGAL_KEY_FILE"),
		LoginRate:     10,
		BaseURL:       os.Getenv("PARALEGAL_BASE_URL"),
	}
	if c.BasePath == "" {
		c.BasePath = "/"
	}
	if !strings.HasPrefix(c.BasePath, "/") {
		c.BasePath = "/" + c.BasePath
	}
	if !strings.HasSuffix(c.BasePath, "/") {
		c.BasePath += "/"
	}
	if v := os.Getenv("PARALEGAL_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return c, fmt.Errorf("invalid PARALEGAL_PORT %q", v)
		}
		c.Port = port
	}
	if v := os.Getenv("PARALEGAL_SESSION_MAX_AGE"); v != "" {
		age, err := strconv.Atoi(v)
		if err != nil || age < 0 {
			return c, fmt.Errorf("invalid PARALEGAL_SESSION_MAX_AGE %q", v)
		}
		c.SessionMaxAge = age
	}
	if v := os.Getenv("PARALEGAL_LOGIN_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c, fmt.Errorf("invalid PARALEGAL_LOGIN_RATE %q", v)
		}
		c.LoginRate = n
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return c, fmt.Errorf("invalid PARALEGAL_BASE_URL %q", c.BaseURL)
		}
	}
	for _, p := range strings.Split(os.Getenv("PARALEGAL_TRUSTED_PROXIES"), ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return c, fmt.Errorf("invalid PARALEGAL_TRUSTED_PROXIES entry %q", p)
			}
		}
		c.TrustedProxies = append(c.TrustedProxies, p)
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return c, fmt.Errorf("PARALEGAL_CERT_FILE and PARALEGAL_KEY_FILE must be set together")
	}
	if c.SessionSecret == "" {
		if !IsDebug() {
			return c, fmt.Errorf("PARALEGAL_SESSION_SECRET must be set")
		}
		c.SessionSecret = "dev-secret-for-local"
	}
	return c, nil
}

// HasTLS reports whether a certificate is configured.
func (c ServerConfig) HasTLS() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return d, nil
}
