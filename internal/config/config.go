// Package config handles configuration loading for the PeSIT server.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). This allows sensitive
// values like database credentials and partner passwords to be injected
// at runtime.
//
// # Configuration Sections
//
//   - server: TCP listener settings (address, TLS, timeouts)
//   - storage: Transfer history backend (memory or MongoDB)
//   - transfer: Data phase defaults (entity size, sync points)
//   - partners: Known partner identifications
//
// # Example Configuration
//
//	server:
//	  address: ":1761"
//	  name: CETOM1
//	  tls:
//	    enabled: true
//	    certFile: /etc/ssl/server.crt
//	    keyFile: /etc/ssl/server.key
//
//	storage:
//	  type: mongodb
//	  mongodb:
//	    uri: ${MONGODB_URI}
//	    database: pesit
//
//	transfer:
//	  maxEntitySize: 4096
//	  syncIntervalKB: 16
//	  syncWindow: 4
//
//	partners:
//	  - name: LOOP
//	    password: ${LOOP_PASSWORD}
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Storage  StorageConfig   `yaml:"storage"`
	Transfer TransferConfig  `yaml:"transfer"`
	Partners []PartnerConfig `yaml:"partners"`
}

// ServerConfig holds TCP listener settings
type ServerConfig struct {
	Address string `yaml:"address"`
	// Name is the PI_04 server identification answered to requesters
	Name string `yaml:"name"`
	TLS  struct {
		Enabled  bool   `yaml:"enabled"`
		CertFile string `yaml:"certFile"`
		KeyFile  string `yaml:"keyFile"`
	} `yaml:"tls"`

	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// StorageConfig holds transfer history backend settings
type StorageConfig struct {
	// Type selects the backend: "memory" or "mongodb"
	Type    string        `yaml:"type"`
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
	GridFS   struct {
		BucketName     string `yaml:"bucketName"`
		ChunkSizeBytes int    `yaml:"chunkSizeBytes"`
	} `yaml:"gridfs"`
}

// TransferConfig holds data phase defaults
type TransferConfig struct {
	// MaxEntitySize is the PI_25 entity size offered in CREATE
	MaxEntitySize int `yaml:"maxEntitySize"`
	// SyncIntervalKB enables sync points when non-zero (PI_07)
	SyncIntervalKB uint16 `yaml:"syncIntervalKB"`
	SyncWindow     uint8  `yaml:"syncWindow"`
	// Resync advertises PI_23 resynchronization support
	Resync bool `yaml:"resync"`
}

// PartnerConfig identifies one remote partner
type PartnerConfig struct {
	// Name is the PI_03 requester identification
	Name string `yaml:"name"`
	// Password is checked against PI_05 when set
	Password string `yaml:"password"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":1761"
	}
	if c.Server.Name == "" {
		c.Server.Name = "PESIT"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 2 * time.Minute
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 2 * time.Minute
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "pesit"
	}
	if c.Storage.MongoDB.GridFS.BucketName == "" {
		c.Storage.MongoDB.GridFS.BucketName = "files"
	}
	if c.Storage.MongoDB.GridFS.ChunkSizeBytes == 0 {
		c.Storage.MongoDB.GridFS.ChunkSizeBytes = 261120 // 255KB
	}
	if c.Transfer.MaxEntitySize == 0 {
		c.Transfer.MaxEntitySize = 4096
	}
	if c.Transfer.SyncWindow == 0 {
		c.Transfer.SyncWindow = 4
	}
}

func (c *Config) validate() error {
	switch c.Storage.Type {
	case "memory":
	case "mongodb":
		if c.Storage.MongoDB.URI == "" {
			return fmt.Errorf("storage.mongodb.uri is required when type is 'mongodb'")
		}
	default:
		return fmt.Errorf("storage.type must be 'memory' or 'mongodb', got '%s'", c.Storage.Type)
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.certFile and keyFile are required when TLS is enabled")
		}
	}

	if c.Transfer.MaxEntitySize < 6 || c.Transfer.MaxEntitySize > 0xFFFF {
		return fmt.Errorf("transfer.maxEntitySize %d out of range", c.Transfer.MaxEntitySize)
	}

	for i, p := range c.Partners {
		if p.Name == "" {
			return fmt.Errorf("partners[%d].name is required", i)
		}
		if len(p.Name) > 24 {
			return fmt.Errorf("partners[%d].name exceeds 24 characters", i)
		}
	}
	return nil
}

// Partner returns the configuration for the named partner, if any.
func (c *Config) Partner(name string) (PartnerConfig, bool) {
	for _, p := range c.Partners {
		if p.Name == name {
			return p, true
		}
	}
	return PartnerConfig{}, false
}
