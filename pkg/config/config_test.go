package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_WithDefaults(t *testing.T) {
	envVars := []string{
		"APP_NAME", "APP_ENVIRONMENT", "APP_DEBUG",
		"SERVER_HOST", "SERVER_PORT",
		"DATABASE_HOST", "DATABASE_PORT",
		"REDIS_HOST", "REDIS_PORT",
		"KAFKA_ENABLED", "KAFKA_BROKERS",
		"JWT_SECRET",
		"GATEWAY_TIMEOUT",
		"VALIDATION_SCAN_TIME_WINDOW_DAYS", "VALIDATION_TIME_ZONE",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.App.Name != "eventgate" {
		t.Errorf("App.Name = %q, want %q", cfg.App.Name, "eventgate")
	}

	if cfg.App.Environment != "development" {
		t.Errorf("App.Environment = %q, want %q", cfg.App.Environment, "development")
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}

	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 5432)
	}

	if cfg.Redis.Port != 6379 {
		t.Errorf("Redis.Port = %d, want %d", cfg.Redis.Port, 6379)
	}

	if cfg.Gateway.Timeout != 10*time.Second {
		t.Errorf("Gateway.Timeout = %s, want %s", cfg.Gateway.Timeout, 10*time.Second)
	}

	if cfg.Validation.ScanTimeWindowDays != 1 {
		t.Errorf("Validation.ScanTimeWindowDays = %d, want %d", cfg.Validation.ScanTimeWindowDays, 1)
	}

	if !cfg.Validation.RequireValidatorRole {
		t.Error("Validation.RequireValidatorRole = false, want true")
	}

	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("Kafka.Brokers = %v, want [localhost:9092]", cfg.Kafka.Brokers)
	}
}

func TestLoad_WithEnvOverride(t *testing.T) {
	os.Setenv("APP_NAME", "test-app")
	os.Setenv("SERVER_PORT", "9090")
	os.Setenv("DATABASE_HOST", "db.example.com")
	os.Setenv("VALIDATION_SCAN_TIME_WINDOW_DAYS", "-1")
	os.Setenv("VALIDATION_TIME_ZONE", "Europe/Belgrade")
	os.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	defer func() {
		os.Unsetenv("APP_NAME")
		os.Unsetenv("SERVER_PORT")
		os.Unsetenv("DATABASE_HOST")
		os.Unsetenv("VALIDATION_SCAN_TIME_WINDOW_DAYS")
		os.Unsetenv("VALIDATION_TIME_ZONE")
		os.Unsetenv("KAFKA_BROKERS")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.App.Name != "test-app" {
		t.Errorf("App.Name = %q, want %q", cfg.App.Name, "test-app")
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}

	if cfg.Database.Host != "db.example.com" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "db.example.com")
	}

	if cfg.Validation.ScanTimeWindowDays != -1 {
		t.Errorf("Validation.ScanTimeWindowDays = %d, want %d", cfg.Validation.ScanTimeWindowDays, -1)
	}

	loc, err := cfg.Validation.Location()
	if err != nil {
		t.Fatalf("Location() failed: %v", err)
	}
	if loc.String() != "Europe/Belgrade" {
		t.Errorf("Location() = %q, want %q", loc.String(), "Europe/Belgrade")
	}

	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka.Brokers = %v, want [k1:9092 k2:9092]", cfg.Kafka.Brokers)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	if dsn := cfg.DSN(); dsn != expected {
		t.Errorf("DSN() = %q, want %q", dsn, expected)
	}
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{
		Host: "redis.example.com",
		Port: 6380,
	}

	expected := "redis.example.com:6380"
	if addr := cfg.Addr(); addr != expected {
		t.Errorf("Addr() = %q, want %q", addr, expected)
	}
}

func TestValidationConfig_Location(t *testing.T) {
	empty := ValidationConfig{}
	loc, err := empty.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location() with empty zone = %v, %v, want UTC", loc, err)
	}

	bad := ValidationConfig{TimeZone: "Mars/Olympus"}
	if _, err := bad.Location(); err == nil {
		t.Error("Location() with unknown zone should fail")
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() Config {
		return Config{
			App:     AppConfig{Name: "test", Environment: "development"},
			Server:  ServerConfig{Port: 8080},
			JWT:     JWTConfig{Secret: "secret"},
			Gateway: GatewayConfig{Timeout: 10 * time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing app name", mutate: func(c *Config) { c.App.Name = "" }, wantErr: true},
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = -1 }, wantErr: true},
		{name: "port too high", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "missing JWT secret", mutate: func(c *Config) { c.JWT.Secret = "" }, wantErr: true},
		{
			name: "default JWT secret in production",
			mutate: func(c *Config) {
				c.App.Environment = "production"
				c.JWT.Secret = "your-secret-key-change-in-production"
				c.Gateway.BaseURL = "https://bank.example.com"
			},
			wantErr: true,
		},
		{
			name: "missing gateway URL in production",
			mutate: func(c *Config) {
				c.App.Environment = "production"
			},
			wantErr: true,
		},
		{name: "negative gateway timeout", mutate: func(c *Config) { c.Gateway.Timeout = -time.Second }, wantErr: true},
		{name: "unknown time zone", mutate: func(c *Config) { c.Validation.TimeZone = "Nowhere/Land" }, wantErr: true},
		{
			name: "kafka enabled without brokers",
			mutate: func(c *Config) {
				c.Kafka.Enabled = true
				c.Kafka.Brokers = nil
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Environment: "production"},
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}

	cfg.App.Environment = "development"
	if cfg.IsProduction() {
		t.Error("IsProduction() = true, want false")
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Environment: "development"},
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true")
	}

	cfg.App.Environment = "production"
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true, want false")
	}
}
