package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Dataset     string

	HTTPAddr    string
	MetricsAddr string
	CORSOrigins []string

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	RoutingURL     string
	RoutingAPI     string
	RoutingProfile string
	RoutingTimeout time.Duration
	RouteCacheSize int
	RouteCacheTTL  time.Duration
	ChatURL        string

	MinZoom        float64
	FocusZoom      float64
	FlyDuration    time.Duration
	FocusRetry     time.Duration
	FocusTimeout   time.Duration
	NearbyRadiusKm float64

	// map-simulator only
	SimInterval     time.Duration
	SimMountDelay   time.Duration
	SimViewRadiusKm float64

	Location *time.Location
}

// source resolves a key from the environment first and then from the
// optional TOML file, whose keys are the lower-cased variable names.
type source struct {
	file map[string]any
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		src.file = file
	}
	return src.load()
}

func loadFile(path string) (map[string]any, error) {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (s source) load() (*Config, error) {
	cfg := &Config{}

	// Database: DATABASE_URL / PG_DSN / SQLITE_DATABASE, else build from PG* vars
	dsn := firstNonEmpty(
		s.getenv("DATABASE_URL"),
		s.getenv("PG_DSN"),
	)
	if dsn == "" && s.getenv("SQLITE_DATABASE") != "" {
		dsn = "sqlite://" + s.getenv("SQLITE_DATABASE")
	}
	cfg.Dataset = firstNonEmpty(s.getenv("DATASET"), s.getenv("DATASET_NAME"))
	if dsn == "" {
		host := s.getenvDefault("PGHOST", "127.0.0.1")
		port := s.getenvDefault("PGPORT", "5432")
		user := s.getenvDefault("PGUSER", "postgres")
		pass := s.getenv("PGPASSWORD")
		db := s.getenv("PGDATABASE")
		// With DATASET the base DB only hosts the import catalogue.
		if db == "" && cfg.Dataset != "" {
			db = "postgres"
		}
		if db == "" {
			return nil, errors.New("PGDATABASE, DATABASE_URL or SQLITE_DATABASE must be set")
		}
		sslmode := s.getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	cfg.HTTPAddr = s.getenvDefault("HTTP_ADDR", ":8080")
	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = s.getenv("METRICS_ADDR")
	cfg.CORSOrigins = splitList(s.getenvDefault("CORS_ORIGINS", "*"))

	// Empty NATS_URL disables event publishing.
	cfg.NATSURL = s.getenv("NATS_URL")
	cfg.NATSSubjectPrefix = s.getenvDefault("NATS_SUBJECT_PREFIX", "congestion")
	cfg.LogNATSSubjects = parseBool(s.getenv("LOG_NATS_SUBJECTS"))

	cfg.RoutingURL = strings.TrimRight(s.getenv("ROUTING_URL"), "/")
	cfg.RoutingAPI = strings.ToLower(s.getenvDefault("ROUTING_API", "gh"))
	if cfg.RoutingAPI != "gh" && cfg.RoutingAPI != "ors" {
		return nil, fmt.Errorf("invalid ROUTING_API: %q", cfg.RoutingAPI)
	}
	cfg.RoutingProfile = s.getenvDefault("ROUTING_PROFILE", "foot-walking")
	cfg.ChatURL = strings.TrimRight(s.getenv("CHAT_URL"), "/")

	var err error
	if cfg.RoutingTimeout, err = s.millis("ROUTING_TIMEOUT_MS", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RouteCacheSize, err = s.positiveInt("ROUTE_CACHE_SIZE", 256); err != nil {
		return nil, err
	}
	ttl, err := s.positiveInt("ROUTE_CACHE_TTL_MIN", 10)
	if err != nil {
		return nil, err
	}
	cfg.RouteCacheTTL = time.Duration(ttl) * time.Minute

	if cfg.MinZoom, err = s.positiveFloat("MIN_ZOOM", 14); err != nil {
		return nil, err
	}
	if cfg.FocusZoom, err = s.positiveFloat("FOCUS_ZOOM", 15); err != nil {
		return nil, err
	}
	if cfg.FocusZoom < cfg.MinZoom {
		return nil, fmt.Errorf("FOCUS_ZOOM %.1f is below MIN_ZOOM %.1f", cfg.FocusZoom, cfg.MinZoom)
	}
	if cfg.FlyDuration, err = s.millis("FLY_DURATION_MS", 1200*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.FocusRetry, err = s.millis("FOCUS_RETRY_MS", 200*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.FocusTimeout, err = s.millis("FOCUS_TIMEOUT_MS", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.NearbyRadiusKm, err = s.positiveFloat("NEARBY_RADIUS_KM", 1.0); err != nil {
		return nil, err
	}

	if cfg.SimInterval, err = s.millis("SIM_INTERVAL_MS", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.SimMountDelay, err = s.millis("SIM_MOUNT_DELAY_MS", 300*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.SimViewRadiusKm, err = s.positiveFloat("SIM_VIEW_RADIUS_KM", 2.0); err != nil {
		return nil, err
	}

	// Time zone
	tzName := s.getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

func (s source) getenv(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	if v, ok := s.file[strings.ToLower(k)]; ok {
		switch v := v.(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			return strings.Join(parts, ",")
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func (s source) getenvDefault(k, def string) string {
	if v := s.getenv(k); v != "" {
		return v
	}
	return def
}

func (s source) millis(k string, def time.Duration) (time.Duration, error) {
	v := s.getenv(k)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (s source) positiveInt(k string, def int) (int, error) {
	v := s.getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

func (s source) positiveFloat(k string, def float64) (float64, error) {
	v := s.getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return f, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
