package configuration

import (
	"time"
)

// TimestampConfig entry in system.log.console.timestamp
type TimestampConfig struct {
	Format string `yaml:"format,omitempty" toml:"format"`
}

// ConsoleLogConfig entry in system.log.console
type ConsoleLogConfig struct {
	Level     string           `yaml:"level,omitempty" toml:"level" validate:"oneof=debug info warn error dpanic panic fatal"`
	Timestamp *TimestampConfig `yaml:"timestamp,omitempty" toml:"timestamp"`
}

// LogConfig entry in system.log
type LogConfig struct {
	Console ConsoleLogConfig `yaml:"console,omitempty" toml:"console"`
}

// HTTPConfig entry in system.http
type HTTPConfig struct {
	Addr string `yaml:"addr,omitempty" toml:"addr" validate:"omitempty,hostname_port"`
}

// AcceptorConfig entry in system.acceptor
type AcceptorConfig struct {
	// MaxIncoming size of session pool
	MaxIncoming int `yaml:"maxIncoming,omitempty" toml:"maxIncoming" validate:"min=1"`

	// PreSpawn allocate pool workers upfront
	PreSpawn int `yaml:"preSpawn,omitempty" toml:"preSpawn" validate:"min=0,ltefield=MaxIncoming"`
}

// StatsConfig entry in system.stats
type StatsConfig struct {
	Interval time.Duration `yaml:"interval" toml:"interval" validate:"omitempty,min=1s"`
}

// SystemConfig entry in system
type SystemConfig struct {
	Log      LogConfig      `yaml:"log,omitempty" toml:"log"`
	HTTP     HTTPConfig     `yaml:"http,omitempty" toml:"http"`
	Acceptor AcceptorConfig `yaml:"acceptor,omitempty" toml:"acceptor"`
	Stats    StatsConfig    `yaml:"stats,omitempty" toml:"stats"`
}

// NatsConfig protocol related options
type NatsConfig struct {
	ServerName         string        `yaml:"serverName,omitempty" toml:"serverName" validate:"required,max=256"`
	ClusterName        string        `yaml:"clusterName,omitempty" toml:"clusterName" validate:"max=256"`
	MaxPayload         int           `yaml:"maxPayload,omitempty" toml:"maxPayload" validate:"min=1,max=67108864"`
	MaxControlLine     int           `yaml:"maxControlLine,omitempty" toml:"maxControlLine" validate:"min=64"`
	MaxPending         int           `yaml:"maxPending,omitempty" toml:"maxPending" validate:"min=1"`
	Heartbeat          time.Duration `yaml:"heartbeat,omitempty" toml:"heartbeat" validate:"min=1s"`
	WriteDeadline      time.Duration `yaml:"writeDeadline,omitempty" toml:"writeDeadline" validate:"min=1ms"`
	FlushTimeout       time.Duration `yaml:"flushTimeout,omitempty" toml:"flushTimeout" validate:"min=1ms"`
	CloseSlowConsumers bool          `yaml:"closeSlowConsumers" toml:"closeSlowConsumers"`
	NoResponders       bool          `yaml:"noResponders" toml:"noResponders"`
}

// KeystoreConfig entry in keystore
type KeystoreConfig struct {
	// File with server seed. Empty generates key on each start
	File string `yaml:"file,omitempty" toml:"file"`
}

// PortConfig entry in listeners.tcp and listeners.ws
type PortConfig struct {
	Port int    `yaml:"port" toml:"port" validate:"min=0,max=65535"`
	Path string `yaml:"path,omitempty" toml:"path"`
}

// ListenersConfig entry in listeners
type ListenersConfig struct {
	Host string     `yaml:"host,omitempty" toml:"host" validate:"omitempty,ip|hostname"`
	TCP  PortConfig `yaml:"tcp" toml:"tcp"`
	WS   PortConfig `yaml:"ws" toml:"ws"`
}

// Config system-wide config
type Config struct {
	Version   string          `yaml:"version,omitempty" toml:"version"`
	System    SystemConfig    `yaml:"system,omitempty" toml:"system"`
	Nats      NatsConfig      `yaml:"nats,omitempty" toml:"nats"`
	Keystore  KeystoreConfig  `yaml:"keystore,omitempty" toml:"keystore"`
	Listeners ListenersConfig `yaml:"listeners,omitempty" toml:"listeners"`
}
