package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrConfig = errors.New("config")

type EventsCfg struct {
	Enabled bool   `yaml:"enabled"`
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
	Queue   int    `yaml:"queue"`
}

type WorkerCfg struct {
	Topic         string `yaml:"topic"`
	GroupID       string `yaml:"group_id"`
	InitialOldest bool   `yaml:"initial_oldest"`
}

type Config struct {
	Addr            string        `yaml:"addr"`
	LogLevel        string        `yaml:"log_level"`
	LogConsole      bool          `yaml:"log_console"`
	HostProgramDir  string        `yaml:"host_program_dir"`
	HostExecutable  string        `yaml:"host_executable"`
	ScriptPath      string        `yaml:"script_path"`
	ScriptTimeout   time.Duration `yaml:"script_timeout"`
	ExportDir       string        `yaml:"export_dir"`
	FileListPath    string        `yaml:"file_list"`
	NamePattern     string        `yaml:"name_pattern"`
	BlockNames      []string      `yaml:"block_names"`
	IncludeGeometry bool          `yaml:"include_geometry"`
	Workbook        bool          `yaml:"workbook"`
	RedisAddr       string        `yaml:"redis_addr"`
	CacheEnabled    bool          `yaml:"cache_enabled"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	Events          EventsCfg     `yaml:"events"`
	Worker          WorkerCfg     `yaml:"worker"`
	MetricsTextfile string        `yaml:"metrics_textfile"`
	NodeScale       float64       `yaml:"node_scale"`
	AppName         string        `yaml:"app_name"`
}

func FromEnv() Config {
	return Config{
		Addr:            getenv("ADDR", ":8090"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogConsole:      getbool("LOG_CONSOLE", false),
		HostProgramDir:  getenv("HOST_PROGRAM_DIR", ""),
		HostExecutable:  getenv("HOST_EXECUTABLE", "accoreconsole.exe"),
		ScriptPath:      getenv("SCRIPT_PATH", ""),
		ScriptTimeout:   getduration("SCRIPT_TIMEOUT", time.Minute),
		ExportDir:       getenv("EXPORT_DIR", "exports"),
		FileListPath:    getenv("FILE_LIST", ""),
		NamePattern:     getenv("NAME_PATTERN", ""),
		BlockNames:      getlist("BLOCK_NAMES"),
		IncludeGeometry: getbool("INCLUDE_GEOMETRY", false),
		Workbook:        getbool("EXPORT_WORKBOOK", false),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		CacheEnabled:    getbool("CACHE_ENABLED", false),
		CacheTTL:        getduration("CACHE_TTL", 24*time.Hour),
		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "raceway-events"),
			Queue:   getint("EVENTS_QUEUE", 256),
		},
		Worker: WorkerCfg{
			Topic:         getenv("WORKER_TOPIC", "raceway-scan-jobs"),
			GroupID:       getenv("WORKER_GROUP_ID", "racewaycad-scan"),
			InitialOldest: getbool("WORKER_INITIAL_OLDEST", true),
		},
		MetricsTextfile: getenv("METRICS_TEXTFILE", ""),
		NodeScale:       getfloat("NODE_SCALE", 1),
		AppName:         getenv("APP_NAME", "RACEWAY"),
	}
}

// LoadFile overlays the YAML document at path onto base. Keys missing from
// the file keep their base value.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("loading config: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.ScriptTimeout <= 0 {
		errs = append(errs, fmt.Errorf("script_timeout must be positive, got %s", c.ScriptTimeout))
	}
	if c.NodeScale <= 0 {
		errs = append(errs, fmt.Errorf("node_scale must be positive, got %g", c.NodeScale))
	}
	if strings.TrimSpace(c.AppName) == "" {
		errs = append(errs, errors.New("app_name is required"))
	}
	if c.CacheEnabled {
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required when the cache is enabled"))
		}
		if c.CacheTTL <= 0 {
			errs = append(errs, fmt.Errorf("cache_ttl must be positive, got %s", c.CacheTTL))
		}
	}
	if c.Events.Enabled {
		if len(c.Events.BrokerList()) == 0 {
			errs = append(errs, errors.New("events.brokers is required when events are enabled"))
		}
		if c.Events.Topic == "" {
			errs = append(errs, errors.New("events.topic is required when events are enabled"))
		}
	}
	for i, n := range c.BlockNames {
		if strings.TrimSpace(n) == "" {
			errs = append(errs, fmt.Errorf("block_names[%d] is empty", i))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
}

func (e EventsCfg) BrokerList() []string {
	var out []string
	for b := range strings.SplitSeq(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "A,B , C" into [A B C]
func getlist(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	var out []string
	for p := range strings.SplitSeq(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
