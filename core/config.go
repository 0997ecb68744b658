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

// Conf holds the app configuration. It is loaded once at startup from
// defaults, an optional config/.env.<env> file and environment variables.
var Conf *Config

type (
	Config struct {
		Debug           bool
		TestMode        bool
		Env             string
		AppName         string
		SecretKey       string
		Build           string
		FrontendBaseURL string
		DefaultFromName string
		DefaultFromAddr string
		SendgridApiKey  string
		RollbarToken    string

		Server   ServerConfig
		Database DatabaseConfig
		Library  LibraryConfig
	}

	ServerConfig struct {
		Host               string
		Port               int
		JWTExpirationDelta time.Duration
		ShutdownTimeout    time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          int
		DisableTLS    bool
	}

	LibraryConfig struct {
		// FinePerDay is the overdue penalty, in the smallest currency unit, accrued per day late.
		FinePerDay int
		// DefaultLoanDays is the loan period used when an issue request omits the due date.
		DefaultLoanDays int
	}
)

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.DefaultFromName, Address: c.DefaultFromAddr}
}

func init() {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Pathshala")
	v.SetDefault("secretKey", "f#wb9q$+8t=yp#v&0n(ol@c^4x_1z*ke5du2s!7gm)hr6ja3i")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromName", "Pathshala")
	v.SetDefault("defaultFromAddr", "noreply@localhost")

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.shutdownTimeout", 20*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.name", "pathshala")
	v.SetDefault("database.user", "pathshala")
	v.SetDefault("database.password", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("library.finePerDay", 5)
	v.SetDefault("library.defaultLoanDays", 14)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "QA", "PROD":
		v.SetDefault("debug", false)
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	Conf = &Config{Env: env}
	if err := v.Unmarshal(Conf); err != nil {
		log.Fatalf("config.Unmarshal: %v", err)
	}
}
