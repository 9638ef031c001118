package config

import (
	"fmt"
	"time"

	"github.com/battlearena/combat-engine/internal/rules"
	"github.com/battlearena/combat-engine/pkg/core"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "combat_engine.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds the embedded gorm backend settings.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// NATSConfig holds the JetStream key-value backend settings.
type NATSConfig struct {
	URL     string        `json:"url" mapstructure:"url"`
	Bucket  string        `json:"bucket" mapstructure:"bucket"`
	History int           `json:"history" mapstructure:"history"`
	TTL     time.Duration `json:"ttl" mapstructure:"ttl"`
}

// StorageConfig selects and configures a storage backend.
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
	DB     DBConfig     `json:"db" mapstructure:"db"`
	NATS   NATSConfig   `json:"nats" mapstructure:"nats"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB connection settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// MonitorConfig holds the status monitor settings.
type MonitorConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
}

// GameConfig holds the match tunables.
type GameConfig struct {
	ArenaDir      string
	ArenaWidth    float64
	ArenaHeight   float64
	DefaultStatus string
	ActiveStatus  string

	DefaultHealth         int
	DefaultMaxHealth      int
	DefaultMovesRemaining int
	DefaultScore          int
	MoveSpeedPerMs        float64

	TurnDurationMs int64
	TurnNumber     int

	Gravity       float64
	AirResistance float64
	Restitution   float64
	BodyRadius    float64
	MaxVelocity   float64
	StepMs        float64
	MaxFlightMs   float64

	HitRadius        float64
	HeroRadius       float64
	TerrainThreshold float64
	TerrainEnabled   bool
	MaxSamples       int
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("arena.dir", "./arenas")
	viper.SetDefault("arena.defaultWidth", 800)
	viper.SetDefault("arena.defaultHeight", 600)

	viper.SetDefault("hero.defaultHealth", 100)
	viper.SetDefault("hero.defaultMaxHealth", 100)
	viper.SetDefault("hero.defaultMovesRemaining", 4)
	viper.SetDefault("hero.defaultScore", 0)
	viper.SetDefault("hero.moveSpeedPerMs", 0.25)

	viper.SetDefault("turn.defaultDurationMs", 15000)
	viper.SetDefault("turn.defaultTurnNumber", 1)

	viper.SetDefault("game.defaultStatus", core.StatusWaiting)
	viper.SetDefault("game.activeStatus", core.StatusActive)

	viper.SetDefault("physics.gravity", 0.001)
	viper.SetDefault("physics.airResistance", 0.01)
	viper.SetDefault("physics.restitution", 0.5)
	viper.SetDefault("physics.bodyRadius", 5)
	viper.SetDefault("physics.maxVelocity", 1.0)
	viper.SetDefault("physics.stepMs", 1000.0/60.0)
	viper.SetDefault("physics.maxFlightMs", 10000)

	viper.SetDefault("collision.hitRadius", 50)
	viper.SetDefault("collision.heroRadius", 25)
	viper.SetDefault("collision.terrainThreshold", 500)
	viper.SetDefault("collision.terrainEnabled", true)

	viper.SetDefault("trajectory.maxSamples", 100)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./recordings/combat.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "combat")

	viper.SetDefault("nats.url", "nats://localhost:4222")
	viper.SetDefault("nats.bucket", "combat_state")
	viper.SetDefault("nats.history", 1)
	viper.SetDefault("nats.ttl", "1h")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "combat-metrics")
	viper.SetDefault("influx.bucket", "fires")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("monitor.enabled", false)
	viper.SetDefault("monitor.interval", "10s")
	viper.SetDefault("monitor.statusFile", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "combat-engine")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		DB: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
		NATS: NATSConfig{
			URL:     viper.GetString("nats.url"),
			Bucket:  viper.GetString("nats.bucket"),
			History: viper.GetInt("nats.history"),
			TTL:     viper.GetDuration("nats.ttl"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetMonitorConfig returns the status monitor settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

// GetGameConfig returns the match tunables.
func GetGameConfig() GameConfig {
	return GameConfig{
		ArenaDir:      viper.GetString("arena.dir"),
		ArenaWidth:    viper.GetFloat64("arena.defaultWidth"),
		ArenaHeight:   viper.GetFloat64("arena.defaultHeight"),
		DefaultStatus: viper.GetString("game.defaultStatus"),
		ActiveStatus:  viper.GetString("game.activeStatus"),

		DefaultHealth:         viper.GetInt("hero.defaultHealth"),
		DefaultMaxHealth:      viper.GetInt("hero.defaultMaxHealth"),
		DefaultMovesRemaining: viper.GetInt("hero.defaultMovesRemaining"),
		DefaultScore:          viper.GetInt("hero.defaultScore"),
		MoveSpeedPerMs:        viper.GetFloat64("hero.moveSpeedPerMs"),

		TurnDurationMs: viper.GetInt64("turn.defaultDurationMs"),
		TurnNumber:     viper.GetInt("turn.defaultTurnNumber"),

		Gravity:       viper.GetFloat64("physics.gravity"),
		AirResistance: viper.GetFloat64("physics.airResistance"),
		Restitution:   viper.GetFloat64("physics.restitution"),
		BodyRadius:    viper.GetFloat64("physics.bodyRadius"),
		MaxVelocity:   viper.GetFloat64("physics.maxVelocity"),
		StepMs:        viper.GetFloat64("physics.stepMs"),
		MaxFlightMs:   viper.GetFloat64("physics.maxFlightMs"),

		HitRadius:        viper.GetFloat64("collision.hitRadius"),
		HeroRadius:       viper.GetFloat64("collision.heroRadius"),
		TerrainThreshold: viper.GetFloat64("collision.terrainThreshold"),
		TerrainEnabled:   viper.GetBool("collision.terrainEnabled"),
		MaxSamples:       viper.GetInt("trajectory.maxSamples"),
	}
}

// GetWeapons returns the configured weapon table.
func GetWeapons() ([]core.Weapon, error) {
	var ws []core.Weapon
	if err := viper.UnmarshalKey("weapons", &ws); err != nil {
		return nil, fmt.Errorf("decoding weapons: %w", err)
	}
	return ws, nil
}

// GetSynergyRules returns the configured synergy table.
func GetSynergyRules() ([]rules.SynergyRule, error) {
	var rs []rules.SynergyRule
	if err := viper.UnmarshalKey("synergies", &rs); err != nil {
		return nil, fmt.Errorf("decoding synergies: %w", err)
	}
	return rs, nil
}
