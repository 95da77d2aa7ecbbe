package core

import (
	"log"
	"net"
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
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		Currency         string
		WorkDir          string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string
		Storage          string // postgres | memory

		Server   ServerConfig
		Database DatabaseConfig
		Ledger   LedgerConfig
		Pricing  PricingConfig
	}

	ServerConfig struct {
		Host            string
		Port            string
		DebugHost       string
		ShutdownTimeout time.Duration
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

	// LedgerConfig bounds the years the engine accepts.
	LedgerConfig struct {
		MinYear int
		MaxYear int
	}

	PricingConfig struct {
		EnrollmentFee      int64 // used until a fee version is recorded
		DiscountTablesPath string
	}
)

func (c ServerConfig) Address() string   { return net.JoinHostPort(c.Host, c.Port) }
func (c DatabaseConfig) Address() string { return net.JoinHostPort(c.Host, c.Port) }

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("build", "develop")
	conf.SetDefault("appName", "Cooperadora")
	conf.SetDefault("currency", "ARS")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("storage", "postgres")
	conf.SetDefault("server_host", "0.0.0.0")
	conf.SetDefault("server_port", "8000")
	conf.SetDefault("server_debugHost", "0.0.0.0:4000")
	conf.SetDefault("server_shutdownTimeout", 5*time.Second)
	conf.SetDefault("database_engine", "postgres")
	conf.SetDefault("database_host", "localhost")
	conf.SetDefault("database_port", "5432")
	conf.SetDefault("database_name", "cooperadora")
	conf.SetDefault("database_user", "cooperadora")
	conf.SetDefault("database_disableTLS", true)
	conf.SetDefault("ledger_minYear", 2000)
	conf.SetDefault("ledger_maxYear", 2100)
	conf.SetDefault("pricing_enrollmentFee", 0)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)

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
	conf.AutomaticEnv()

	return &Config{
		Env:              env,
		Build:            conf.GetString("build"),
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		AppName:          conf.GetString("appName"),
		Currency:         strings.ToUpper(conf.GetString("currency")),
		WorkDir:          wd,
		DefaultFromEmail: mail.Address{Name: conf.GetString("appName"), Address: conf.GetString("defaultFromEmail")},
		SendgridApiKey:   conf.GetString("sendgridApiKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		Storage:          strings.ToLower(conf.GetString("storage")),
		Server: ServerConfig{
			Host:            conf.GetString("server_host"),
			Port:            conf.GetString("server_port"),
			DebugHost:       conf.GetString("server_debugHost"),
			ShutdownTimeout: conf.GetDuration("server_shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database_engine"),
			Host:          conf.GetString("database_host"),
			Port:          conf.GetString("database_port"),
			Name:          conf.GetString("database_name"),
			User:          conf.GetString("database_user"),
			Password:      conf.GetString("database_password"),
			AdminUser:     conf.GetString("database_adminUser"),
			AdminPassword: conf.GetString("database_adminPassword"),
			DisableTLS:    conf.GetBool("database_disableTLS"),
		},
		Ledger: LedgerConfig{
			MinYear: conf.GetInt("ledger_minYear"),
			MaxYear: conf.GetInt("ledger_maxYear"),
		},
		Pricing: PricingConfig{
			EnrollmentFee:      conf.GetInt64("pricing_enrollmentFee"),
			DiscountTablesPath: conf.GetString("pricing_discountTablesPath"),
		},
	}
}
