// Package config resolves runtime settings from flags, the environment and
// an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/erazemk/oprema/internal/authz"
)

// Config holds the service settings.
type Config struct {
	DBPath    string
	Addr      string
	AdminUser string
	LogPath   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GrantTTL time.Duration
	DenyTTL  time.Duration

	RecipientApproval bool
}

// Lookup reads one setting by environment variable name.
type Lookup func(key string) (string, bool)

// EnvLookup reads the process environment, falling back to the given
// dotenv files. Missing files are skipped.
func EnvLookup(files ...string) (Lookup, error) {
	fileEnv := map[string]string{}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		for k, v := range vals {
			if _, ok := fileEnv[k]; !ok {
				fileEnv[k] = v
			}
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}, nil
}

const usage = `Usage: oprema [flags]

Flags:
  -d, -db <path>          SQLite database path (default: oprema.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        admin username on first run (default: Admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -r, -redis <host:port>  Redis address for the authorization cache (default: none)
  -h, -help               show this help and exit

Environment (overridden by flags, read from .env if present):
  OPREMA_DB, OPREMA_ADDR, OPREMA_ADMIN_USER, OPREMA_LOG,
  OPREMA_REDIS_ADDR, OPREMA_REDIS_PASSWORD, OPREMA_REDIS_DB,
  OPREMA_AUTHZ_GRANT_TTL, OPREMA_AUTHZ_DENY_TTL, OPREMA_RECIPIENT_APPROVAL
`

// Parse builds a Config from defaults, then env, then args. It returns
// flag.ErrHelp when help was requested.
func Parse(args []string, env Lookup, out io.Writer) (*Config, error) {
	cfg := &Config{
		DBPath:    "oprema.sqlite3",
		Addr:      ":8080",
		AdminUser: "Admin",
		GrantTTL:  authz.DefaultGrantTTL,
		DenyTTL:   authz.DefaultDenyTTL,
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("oprema", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usage) }

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "")
	fs.StringVar(&cfg.Addr, "a", cfg.Addr, "")
	fs.StringVar(&cfg.AdminUser, "user", cfg.AdminUser, "")
	fs.StringVar(&cfg.AdminUser, "u", cfg.AdminUser, "")
	fs.StringVar(&cfg.LogPath, "log", cfg.LogPath, "")
	fs.StringVar(&cfg.LogPath, "l", cfg.LogPath, "")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "")
	fs.StringVar(&cfg.RedisAddr, "r", cfg.RedisAddr, "")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return cfg, nil
}

func (c *Config) applyEnv(env Lookup) error {
	str := func(key string, dst *string) {
		if v, ok := env(key); ok && v != "" {
			*dst = v
		}
	}
	str("OPREMA_DB", &c.DBPath)
	str("OPREMA_ADDR", &c.Addr)
	str("OPREMA_ADMIN_USER", &c.AdminUser)
	str("OPREMA_LOG", &c.LogPath)
	str("OPREMA_REDIS_ADDR", &c.RedisAddr)
	str("OPREMA_REDIS_PASSWORD", &c.RedisPassword)

	if v, ok := env("OPREMA_REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("OPREMA_REDIS_DB: invalid database number %q", v)
		}
		c.RedisDB = n
	}
	for key, dst := range map[string]*time.Duration{
		"OPREMA_AUTHZ_GRANT_TTL": &c.GrantTTL,
		"OPREMA_AUTHZ_DENY_TTL":  &c.DenyTTL,
	} {
		if v, ok := env(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return fmt.Errorf("%s: invalid duration %q", key, v)
			}
			*dst = d
		}
	}
	if v, ok := env("OPREMA_RECIPIENT_APPROVAL"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("OPREMA_RECIPIENT_APPROVAL: invalid boolean %q", v)
		}
		c.RecipientApproval = b
	}
	return nil
}
