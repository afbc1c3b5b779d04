package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	CORS      CORSConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Health    HealthConfig
	Reports   ReportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// AuthConfig holds the service account allowed to mint access tokens.
type AuthConfig struct {
	ClientID         string
	ClientSecretHash string
	Role             string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig tunes the scheduling engine.
type SchedulerConfig struct {
	PeriodsPerDay      int
	SchoolDays         []int
	DayStart           string
	PeriodMinutes      int
	PassingMinutes     int
	BlockMinutes       int
	BlocksPerDay       int
	BlockEpoch         time.Time
	BalanceTolerance   int
	MinPlanningPeriods int
	LockTimeout        time.Duration
	JobTTL             time.Duration
	JobCapacity        int
	Workers            int
	WorkerRetries      int
	CacheEnabled       bool
	HeatmapCacheTTL    time.Duration
	NotifyChannel      string
}

// HealthConfig drives the composite health score.
type HealthConfig struct {
	Weights               HealthWeights
	AcceptableScore       float64
	BalanceTolerance      int
	ExpectedCourseLoad    int
	TeacherWeeklyCapacity int
	RoomWeeklyCapacity    int
	PeriodsPerDay         int
	ConflictPenalty       float64
	TeacherBandLow        float64
	TeacherBandHigh       float64
	RoomBandLow           float64
	RoomBandHigh          float64
}

// HealthWeights are the per-component weights of the overall score.
type HealthWeights struct {
	Conflict    float64
	Balance     float64
	Utilization float64
	Compliance  float64
	Coverage    float64
}

// Sum returns the total weight.
func (w HealthWeights) Sum() float64 {
	return w.Conflict + w.Balance + w.Utilization + w.Compliance + w.Coverage
}

// ReportsConfig configures rendered report storage.
type ReportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.Auth = AuthConfig{
		ClientID:         v.GetString("AUTH_CLIENT_ID"),
		ClientSecretHash: v.GetString("AUTH_CLIENT_SECRET_HASH"),
		Role:             v.GetString("AUTH_CLIENT_ROLE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	epoch, err := time.Parse("2006-01-02", v.GetString("SCHEDULER_BLOCK_EPOCH"))
	if err != nil {
		return nil, fmt.Errorf("parse SCHEDULER_BLOCK_EPOCH: %w", err)
	}

	cfg.Scheduler = SchedulerConfig{
		PeriodsPerDay:      v.GetInt("SCHEDULER_PERIODS_PER_DAY"),
		SchoolDays:         parseInts(v.GetString("SCHEDULER_SCHOOL_DAYS")),
		DayStart:           v.GetString("SCHEDULER_DAY_START"),
		PeriodMinutes:      v.GetInt("SCHEDULER_PERIOD_MINUTES"),
		PassingMinutes:     v.GetInt("SCHEDULER_PASSING_MINUTES"),
		BlockMinutes:       v.GetInt("SCHEDULER_BLOCK_MINUTES"),
		BlocksPerDay:       v.GetInt("SCHEDULER_BLOCKS_PER_DAY"),
		BlockEpoch:         epoch,
		BalanceTolerance:   v.GetInt("SCHEDULER_BALANCE_TOLERANCE"),
		MinPlanningPeriods: v.GetInt("SCHEDULER_MIN_PLANNING_PERIODS"),
		LockTimeout:        parseDuration(v.GetString("SCHEDULER_LOCK_TIMEOUT"), 10*time.Second),
		JobTTL:             parseDuration(v.GetString("SCHEDULER_JOB_TTL"), 30*time.Minute),
		JobCapacity:        v.GetInt("SCHEDULER_JOB_CAPACITY"),
		Workers:            v.GetInt("SCHEDULER_WORKERS"),
		WorkerRetries:      v.GetInt("SCHEDULER_WORKER_RETRIES"),
		CacheEnabled:       v.GetBool("SCHEDULER_CACHE_ENABLED"),
		HeatmapCacheTTL:    parseDuration(v.GetString("SCHEDULER_HEATMAP_CACHE_TTL"), 10*time.Minute),
		NotifyChannel:      v.GetString("SCHEDULER_NOTIFY_CHANNEL"),
	}

	weights, err := parseWeights(v.GetString("HEALTH_WEIGHTS"))
	if err != nil {
		return nil, err
	}
	cfg.Health = HealthConfig{
		Weights:               weights,
		AcceptableScore:       v.GetFloat64("HEALTH_ACCEPTABLE_SCORE"),
		BalanceTolerance:      cfg.Scheduler.BalanceTolerance,
		ExpectedCourseLoad:    v.GetInt("HEALTH_EXPECTED_COURSE_LOAD"),
		TeacherWeeklyCapacity: v.GetInt("HEALTH_TEACHER_WEEKLY_CAPACITY"),
		RoomWeeklyCapacity:    v.GetInt("HEALTH_ROOM_WEEKLY_CAPACITY"),
		PeriodsPerDay:         cfg.Scheduler.PeriodsPerDay,
		ConflictPenalty:       v.GetFloat64("HEALTH_CONFLICT_PENALTY"),
		TeacherBandLow:        v.GetFloat64("HEALTH_TEACHER_BAND_LOW"),
		TeacherBandHigh:       v.GetFloat64("HEALTH_TEACHER_BAND_HIGH"),
		RoomBandLow:           v.GetFloat64("HEALTH_ROOM_BAND_LOW"),
		RoomBandHigh:          v.GetFloat64("HEALTH_ROOM_BAND_HIGH"),
	}

	cfg.Reports = ReportsConfig{
		StorageDir:      v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "heronix_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "1h")
	v.SetDefault("JWT_ISSUER", "heronix-scheduler")

	v.SetDefault("AUTH_CLIENT_ID", "")
	v.SetDefault("AUTH_CLIENT_SECRET_HASH", "")
	v.SetDefault("AUTH_CLIENT_ROLE", "REGISTRAR")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_PERIODS_PER_DAY", 8)
	v.SetDefault("SCHEDULER_SCHOOL_DAYS", "1,2,3,4,5")
	v.SetDefault("SCHEDULER_DAY_START", "08:00")
	v.SetDefault("SCHEDULER_PERIOD_MINUTES", 50)
	v.SetDefault("SCHEDULER_PASSING_MINUTES", 10)
	v.SetDefault("SCHEDULER_BLOCK_MINUTES", 90)
	v.SetDefault("SCHEDULER_BLOCKS_PER_DAY", 4)
	v.SetDefault("SCHEDULER_BLOCK_EPOCH", "2024-09-01")
	v.SetDefault("SCHEDULER_BALANCE_TOLERANCE", 3)
	v.SetDefault("SCHEDULER_MIN_PLANNING_PERIODS", 1)
	v.SetDefault("SCHEDULER_LOCK_TIMEOUT", "10s")
	v.SetDefault("SCHEDULER_JOB_TTL", "30m")
	v.SetDefault("SCHEDULER_JOB_CAPACITY", 256)
	v.SetDefault("SCHEDULER_WORKERS", 2)
	v.SetDefault("SCHEDULER_WORKER_RETRIES", 1)
	v.SetDefault("SCHEDULER_CACHE_ENABLED", true)
	v.SetDefault("SCHEDULER_HEATMAP_CACHE_TTL", "10m")
	v.SetDefault("SCHEDULER_NOTIFY_CHANNEL", "scheduler:notifications")

	v.SetDefault("HEALTH_WEIGHTS", "0.35,0.20,0.20,0.15,0.10")
	v.SetDefault("HEALTH_ACCEPTABLE_SCORE", 70)
	v.SetDefault("HEALTH_EXPECTED_COURSE_LOAD", 6)
	v.SetDefault("HEALTH_TEACHER_WEEKLY_CAPACITY", 30)
	v.SetDefault("HEALTH_ROOM_WEEKLY_CAPACITY", 30)
	v.SetDefault("HEALTH_CONFLICT_PENALTY", 10)
	v.SetDefault("HEALTH_TEACHER_BAND_LOW", 70)
	v.SetDefault("HEALTH_TEACHER_BAND_HIGH", 85)
	v.SetDefault("HEALTH_ROOM_BAND_LOW", 60)
	v.SetDefault("HEALTH_ROOM_BAND_HIGH", 80)

	v.SetDefault("REPORTS_STORAGE_DIR", "./reports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func parseInts(raw string) []int {
	var result []int
	for _, part := range splitAndTrim(raw) {
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		result = append(result, n)
	}
	return result
}

// parseWeights reads "conflict,balance,utilization,compliance,coverage".
func parseWeights(raw string) (HealthWeights, error) {
	parts := splitAndTrim(raw)
	if len(parts) != 5 {
		return HealthWeights{}, fmt.Errorf("HEALTH_WEIGHTS needs 5 comma separated values, got %d", len(parts))
	}
	values := make([]float64, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return HealthWeights{}, fmt.Errorf("parse HEALTH_WEIGHTS[%d]: %w", i, err)
		}
		values[i] = f
	}
	return HealthWeights{
		Conflict:    values[0],
		Balance:     values[1],
		Utilization: values[2],
		Compliance:  values[3],
		Coverage:    values[4],
	}, nil
}
