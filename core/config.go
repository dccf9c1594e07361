package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName                   string
		Build                     string
		Env                       string // DEV (local; default), TEST, QA, PROD
		Debug                     bool
		TestMode                  bool
		SecretKey                 string
		WorkDir                   string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		AdminEmail                string
		AllowedEmailDomains       []string
		PasswordResetTimeoutDelta time.Duration
		RollbarToken              string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Session  SessionConfig
		Email    EmailConfig
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		// LoginRateLimit is the number of login/password-reset attempts allowed per minute and per IP.
		LoginRateLimit int
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
	}

	SessionConfig struct {
		CookieName         string
		RememberCookieName string
		TTL                time.Duration
		RememberTTL        time.Duration
		Secure             bool
	}

	EmailConfig struct {
		Enabled        bool
		SendgridApiKey string
	}
)

func (c DatabaseConfig) Address() string {
	return c.Host + ":" + c.Port
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("appName", "CS61AS")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "m8#q@x!2c+0v^kz&6tj=hs4(w1n)b-py7e$ra%9ldu5*gfo3i")
	v.SetDefault("frontendBaseURL", "http://localhost:8084")
	v.SetDefault("defaultFromEmail", "CS61AS <noreply@localhost>")
	v.SetDefault("adminEmail", "")
	v.SetDefault("allowedEmailDomains", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "0.0.0.0:8084")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 5*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.loginRateLimit", 10)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "cs61as")
	v.SetDefault("database.user", "cs61as")
	v.SetDefault("database.password", "cs61as")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.cookieName", "cs61as_session")
	v.SetDefault("session.rememberCookieName", "cs61as_remember")
	v.SetDefault("session.ttl", 14*24*time.Hour)
	v.SetDefault("session.rememberTTL", 24*time.Hour)
	v.SetDefault("session.secure", false)

	v.SetDefault("email.enabled", true)
	v.SetDefault("email.sendgridApiKey", "")
}

// NewConfig loads the app configuration from defaults, the optional `config/.env.<env>` file and the environment.
// Environment variables are prefixed with the env name, e.g. PROD_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
		v.SetDefault("email.enabled", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	return &Config{
		AppName:                   v.GetString("appName"),
		Build:                     v.GetString("build"),
		Env:                       env,
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		SecretKey:                 v.GetString("secretKey"),
		WorkDir:                   wd,
		FrontendBaseURL:           strings.TrimSuffix(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail:          *fromEmail,
		AdminEmail:                v.GetString("adminEmail"),
		AllowedEmailDomains:       splitList(v.GetString("allowedEmailDomains")),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		RollbarToken:              v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			DebugHost:       v.GetString("server.debugHost"),
			ReadTimeout:     v.GetDuration("server.readTimeout"),
			WriteTimeout:    v.GetDuration("server.writeTimeout"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			LoginRateLimit:  v.GetInt("server.loginRateLimit"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Session: SessionConfig{
			CookieName:         v.GetString("session.cookieName"),
			RememberCookieName: v.GetString("session.rememberCookieName"),
			TTL:                v.GetDuration("session.ttl"),
			RememberTTL:        v.GetDuration("session.rememberTTL"),
			Secure:             v.GetBool("session.secure"),
		},
		Email: EmailConfig{
			Enabled:        v.GetBool("email.enabled"),
			SendgridApiKey: v.GetString("email.sendgridApiKey"),
		},
	}
}

// NewTestConfig returns a deterministic Config for tests: no dotenv, no environment, emails disabled.
func NewTestConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)
	conf := &Config{
		AppName:                   v.GetString("appName"),
		Build:                     "test",
		Env:                       "TEST",
		TestMode:                  true,
		SecretKey:                 "test-secret",
		FrontendBaseURL:           "http://localhost:8084",
		DefaultFromEmail:          mail.Address{Name: "CS61AS", Address: "noreply@localhost"},
		AdminEmail:                "staff@cs61as.test",
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			Host:            ":0",
			ShutdownTimeout: time.Second,
			LoginRateLimit:  1000,
		},
		Session: SessionConfig{
			CookieName:         v.GetString("session.cookieName"),
			RememberCookieName: v.GetString("session.rememberCookieName"),
			TTL:                v.GetDuration("session.ttl"),
			RememberTTL:        v.GetDuration("session.rememberTTL"),
		},
	}
	return conf
}

func (c *Config) String() string {
	return fmt.Sprintf("%s [%s] build=%s debug=%t", c.AppName, c.Env, c.Build, c.Debug)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = CleanString(part, true /* lower */); part != "" {
			out = append(out, part)
		}
	}
	return out
}
