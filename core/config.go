package core

import (
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
	// Config holds all the settings consumed across the application.
	// Values come from defaults, an optional config/.env.<env> file and
	// ENV-prefixed environment variables, in increasing order of precedence.
	Config struct {
		Debug            bool
		TestMode         bool
		Env              string // DEV (default), TEST, QA, PROD
		Build            string
		AppName          string
		Hostname         string
		WorkDir          string
		SecretKey        []byte
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridAPIKey   string
		RollbarToken     string

		InviteTimeoutDelta time.Duration

		LRS       LRSConfig
		Analytics AnalyticsConfig
	}

	// LRSConfig configures the Learning Record Store client, the only
	// network dependency of this application.
	LRSConfig struct {
		Endpoint   string
		AuthScheme string // "basic" | "jwt"
		Username   string
		Password   string
		Secret     []byte        // JWT signing secret, shared with the LRS
		TokenTTL   time.Duration // lifetime of minted bearer tokens
		Timeout    time.Duration // per-request timeout
		MaxRetries int           // extra attempts on retryable failures
		PageSize   int           // statements fetched per query page
	}

	AnalyticsConfig struct {
		CacheTTL    time.Duration
		MaxScan     int // statement scan ceiling per aggregation
		ScanTimeout time.Duration
	}
)

func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "HuLab")
	v.SetDefault("secretKey", "w#05+i+mw2zp1+4o&1fr=sj5$kqmck3*13=bnjys&9dyh84h-d")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@hulab.polyu.edu.hk")
	v.SetDefault("sendgridAPIKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("inviteTimeoutDelta", 7*24*time.Hour)

	v.SetDefault("lrs.endpoint", "http://localhost:8085/xapi")
	v.SetDefault("lrs.authScheme", "basic")
	v.SetDefault("lrs.username", "hulab")
	v.SetDefault("lrs.password", "")
	v.SetDefault("lrs.secret", "")
	v.SetDefault("lrs.tokenTTL", 5*time.Minute)
	v.SetDefault("lrs.timeout", 30*time.Second)
	v.SetDefault("lrs.maxRetries", 2)
	v.SetDefault("lrs.pageSize", 100)

	v.SetDefault("analytics.cacheTTL", 5*time.Minute)
	v.SetDefault("analytics.maxScan", 10000)
	v.SetDefault("analytics.scanTimeout", 30*time.Second)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	var testMode bool
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		testMode = true
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

	hostname, _ := os.Hostname()
	fromAddr := v.GetString("defaultFromEmail")
	appName := v.GetString("appName")

	conf := &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         testMode,
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          appName,
		Hostname:         hostname,
		WorkDir:          wd,
		SecretKey:        []byte(v.GetString("secretKey")),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{Name: appName, Address: fromAddr},
		SendgridAPIKey:   v.GetString("sendgridAPIKey"),
		RollbarToken:     v.GetString("rollbarToken"),

		InviteTimeoutDelta: v.GetDuration("inviteTimeoutDelta"),

		LRS: LRSConfig{
			Endpoint:   strings.TrimRight(v.GetString("lrs.endpoint"), "/"),
			AuthScheme: v.GetString("lrs.authScheme"),
			Username:   v.GetString("lrs.username"),
			Password:   v.GetString("lrs.password"),
			Secret:     []byte(v.GetString("lrs.secret")),
			TokenTTL:   v.GetDuration("lrs.tokenTTL"),
			Timeout:    v.GetDuration("lrs.timeout"),
			MaxRetries: v.GetInt("lrs.maxRetries"),
			PageSize:   v.GetInt("lrs.pageSize"),
		},
		Analytics: AnalyticsConfig{
			CacheTTL:    v.GetDuration("analytics.cacheTTL"),
			MaxScan:     v.GetInt("analytics.maxScan"),
			ScanTimeout: v.GetDuration("analytics.scanTimeout"),
		},
	}
	return conf
}
