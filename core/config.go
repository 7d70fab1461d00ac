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
	serverConfig struct {
		Address                   string
		DebugHost                 string
		Host                      string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	databaseConfig struct {
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

	uploadsConfig struct {
		Backend                string // local | supabase
		Dir                    string
		MaxBytes               int64
		AllowUnknownExtensions bool
	}

	supabaseConfig struct {
		URL    string
		Key    string
		Bucket string
	}

	classroomsConfig struct {
		// SymmetricTeacherUnassign clears a teacher's primary-teacher reference on the
		// classrooms they are no longer assigned to.
		SymmetricTeacherUnassign bool
	}

	tasksConfig struct {
		// RequireMembership rejects submissions from students outside the task's classroom.
		RequireMembership bool
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		WorkDir          string
		Location         *time.Location
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string

		Server     serverConfig
		Database   databaseConfig
		Uploads    uploadsConfig
		Supabase   supabaseConfig
		Classrooms classroomsConfig
		Tasks      tasksConfig
	}
)

func (dc databaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

// NewConfig loads the configuration of the current environment (ENV: DEV (default), TEST, QA, PROD).
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Darasa")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("defaultFromEmail", "Darasa <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "darasa")
	v.SetDefault("database.user", "darasa")
	v.SetDefault("database.password", "darasa")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("uploads.backend", "local")
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.maxBytes", 16*1024*1024)
	v.SetDefault("uploads.allowUnknownExtensions", false)

	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.key", "")
	v.SetDefault("supabase.bucket", "uploads")

	v.SetDefault("classrooms.symmetricTeacherUnassign", true)
	v.SetDefault("tasks.requireMembership", false)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}

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

	loc, err := time.LoadLocation(v.GetString("timezone"))
	if err != nil {
		log.Fatalf("config.time.LoadLocation(%s): %v", v.GetString("timezone"), err)
	}
	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.mail.ParseAddress(%s): %v", v.GetString("defaultFromEmail"), err)
	}

	return &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		WorkDir:          wd,
		Location:         loc,
		DefaultFromEmail: *from,
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Server: serverConfig{
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			Host:                      v.GetString("server.host"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: databaseConfig{
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
		Uploads: uploadsConfig{
			Backend:                v.GetString("uploads.backend"),
			Dir:                    v.GetString("uploads.dir"),
			MaxBytes:               v.GetInt64("uploads.maxBytes"),
			AllowUnknownExtensions: v.GetBool("uploads.allowUnknownExtensions"),
		},
		Supabase: supabaseConfig{
			URL:    v.GetString("supabase.url"),
			Key:    v.GetString("supabase.key"),
			Bucket: v.GetString("supabase.bucket"),
		},
		Classrooms: classroomsConfig{
			SymmetricTeacherUnassign: v.GetBool("classrooms.symmetricTeacherUnassign"),
		},
		Tasks: tasksConfig{
			RequireMembership: v.GetBool("tasks.requireMembership"),
		},
	}
}

// NewTestConfig returns the configuration used by package tests; it never reads the environment.
func NewTestConfig() *Config {
	return &Config{
		AppName:          "Darasa",
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		SecretKey:        "secret",
		Location:         time.UTC,
		DefaultFromEmail: mail.Address{Name: "Darasa", Address: "noreply@localhost"},
		Server: serverConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			ShutdownTimeout:           time.Second,
		},
		Uploads: uploadsConfig{
			Backend:  "local",
			MaxBytes: 1024 * 1024,
		},
		Classrooms: classroomsConfig{SymmetricTeacherUnassign: true},
	}
}
