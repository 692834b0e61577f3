// Package config reads the configuration of a quorra node from command line
// flags, QUORRA_* environment variables and the .env / .env.local files.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable, e.g. QUORRA_PORT.
const EnvPrefix = "quorra"

// Record and membership store kinds
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config is the configuration of one node.
type Config struct {
	// Node identity
	Name    string `validate:"required"`
	Address string `validate:"required"`
	Central bool
	Port    int `validate:"min=1,max=65535"`

	// Cluster
	CentralAddress      string `validate:"required_if=Central false"`
	CheckIntervalSecond int    `validate:"gt=0"`
	TimeoutSecond       int    `validate:"gt=0"`

	// Logging
	LogLevel string `validate:"oneof=debug info warn warning error"`

	// Storage
	RecordStore     string `validate:"oneof=memory postgres"`
	DatabaseURL     string `validate:"required_if=RecordStore postgres"`
	MembershipStore string `validate:"oneof=memory redis"`
	RedisAddr       string `validate:"required_if=MembershipStore redis"`
	RedisDB         int    `validate:"min=0"`
	RedisKey        string `validate:"required"`
}

// BindFlags adds the node flags to cmd. central selects the defaults of the
// central binary.
func BindFlags(cmd *cobra.Command, central bool) {
	defaultName, defaultPort := "", 9000
	if central {
		defaultName, defaultPort = "central", 8000
	}

	flags := cmd.PersistentFlags()
	flags.String("name", defaultName, "Name of this node, unique in the cluster")
	flags.String("address", "", "Address other nodes reach this node at (default 127.0.0.1:<port>)")
	flags.Int("port", defaultPort, "Port the HTTP API listens on")
	flags.Int("check-interval", 1, "Seconds between health checks")
	flags.Int("timeout", 5, "Timeout in seconds of a single RPC")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")

	if central {
		flags.String("membership-store", StoreMemory, "Where the membership is kept (memory, redis)")
		flags.String("redis-addr", "127.0.0.1:6379", "Redis address for the redis membership store")
		flags.Int("redis-db", 0, "Redis database for the redis membership store")
		flags.String("redis-key", "node", "Redis hash holding the membership")
		return
	}

	flags.String("central-address", "127.0.0.1:8000", "Address of the central node")
	flags.String("record-store", StoreMemory, "Where records are kept (memory, postgres)")
	flags.String("database-url", "", "PostgreSQL connection string for the postgres record store")
}

// Load reads the configuration of cmd. BindFlags must have been called on
// cmd before it was executed.
func Load(cmd *cobra.Command, central bool) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	c := &Config{
		Name:                v.GetString("name"),
		Address:             v.GetString("address"),
		Central:             central,
		Port:                v.GetInt("port"),
		CentralAddress:      v.GetString("central-address"),
		CheckIntervalSecond: v.GetInt("check-interval"),
		TimeoutSecond:       v.GetInt("timeout"),
		LogLevel:            strings.ToLower(v.GetString("log-level")),
		RecordStore:         v.GetString("record-store"),
		DatabaseURL:         v.GetString("database-url"),
		MembershipStore:     v.GetString("membership-store"),
		RedisAddr:           v.GetString("redis-addr"),
		RedisDB:             v.GetInt("redis-db"),
		RedisKey:            v.GetString("redis-key"),
	}
	if c.Address == "" {
		c.Address = "127.0.0.1:" + strconv.Itoa(c.Port)
	}
	if c.RecordStore == "" {
		c.RecordStore = StoreMemory
	}
	if c.MembershipStore == "" {
		c.MembershipStore = StoreMemory
	}
	if c.RedisKey == "" {
		c.RedisKey = "node"
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

var validate = validator.New()

// Validate checks the configuration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s=%v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
}

// ListenAddr is the address the HTTP server binds.
func (c *Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

// CheckInterval is the period of the background health checks.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSecond) * time.Second
}

// Timeout is the timeout of a single RPC.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	role := "peer"
	if c.Central {
		role = "central"
	}
	addSection("Node")
	addField("Name", c.Name)
	addField("Role", role)
	addField("Address", c.Address)
	addField("Listen", c.ListenAddr())

	addSection("Cluster")
	if !c.Central {
		addField("Central Address", c.CentralAddress)
	}
	addField("Check Interval", fmt.Sprintf("%d sec", c.CheckIntervalSecond))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Storage")
	if c.Central {
		addField("Membership Store", c.MembershipStore)
		if c.MembershipStore == StoreRedis {
			addField("Redis Address", c.RedisAddr)
			addField("Redis DB", strconv.Itoa(c.RedisDB))
			addField("Redis Key", c.RedisKey)
		}
	} else {
		addField("Record Store", c.RecordStore)
		if c.RecordStore == StorePostgres {
			addField("Database", redactURL(c.DatabaseURL))
		}
	}

	return sb.String()
}

// redactURL hides the password of a connection string.
func redactURL(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || scheme > at {
		return url
	}
	creds := url[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		creds = creds[:colon] + ":***"
	}
	return url[:scheme+3] + creds + url[at:]
}
