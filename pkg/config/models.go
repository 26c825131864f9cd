package config

import (
	"time"

	"github.com/a-essam23/go-pulse/pkg/pipeline"
)

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Presence  PresenceConfig
	Rooms     RoomsConfig
	Router    RouterConfig
	Directory DirectoryConfig
	Log       LogConfig
	Events    map[string]EventConfig `mapstructure:"events"`

	// Pipelines holds the compiled modifier steps per event, filled by CompilePipelines.
	Pipelines map[string][]pipeline.Step `mapstructure:"-"`
}

type ServerConfig struct {
	Address       string
	Auth          AuthConfig
	InternalToken string `mapstructure:"internalToken"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type TransportConfig struct {
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	SendBuffer   int           `mapstructure:"sendBuffer"`
}

// DuplicatePolicy decides what happens when a user opens a second connection.
type DuplicatePolicy string

const (
	DuplicateOverwrite DuplicatePolicy = "overwrite" // last connected wins
	DuplicateEvict     DuplicatePolicy = "evict"     // close the superseded connection
	DuplicateReject    DuplicatePolicy = "reject"    // refuse the new handshake
)

type PresenceConfig struct {
	DuplicatePolicy DuplicatePolicy `mapstructure:"duplicatePolicy"`
}

type RoomsConfig struct {
	ValidateTargets bool `mapstructure:"validateTargets"`
}

type RouterConfig struct {
	ReportErrors bool `mapstructure:"reportErrors"`
}

type DirectoryConfig struct {
	Driver string        `mapstructure:"driver"` // memory, sqlite or badger
	Path   string        `mapstructure:"path"`
	Seed   []GroupConfig `mapstructure:"seed"`
}

type GroupConfig struct {
	ID      string   `mapstructure:"id"`
	Name    string   `mapstructure:"name"`
	Admin   string   `mapstructure:"admin"`
	Image   string   `mapstructure:"image"`
	Members []string `mapstructure:"members"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type EventConfig struct {
	Modifiers []ModifierConfig `mapstructure:"modifiers"`
}

type ModifierConfig struct {
	Name   string   `mapstructure:"name"`
	Params []string `mapstructure:"params"`
}
