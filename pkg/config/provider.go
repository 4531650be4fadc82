// Package config defines the configuration model and the provider
// abstraction that backs it.
package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetMounts() ([]MountData, error)
	GetStorageConfig() (*StorageData, error)
	GetControllers() ([]ControllerData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Mounts      []MountData      `json:"mounts" yaml:"mounts"`
	Storage     StorageData      `json:"storage,omitempty" yaml:"storage,omitempty"`
	Controllers []ControllerData `json:"controllers,omitempty" yaml:"controllers,omitempty"`
}

// MountData holds configuration specific to one telescope mount
type MountData struct {
	Name         string  `json:"name" yaml:"name"`
	Type         string  `json:"type,omitempty" yaml:"type,omitempty"`
	Hostname     string  `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Port         string  `json:"port,omitempty" yaml:"port,omitempty"`
	SerialDevice string  `json:"serial_device,omitempty" yaml:"serial_device,omitempty"`
	Baud         int     `json:"baud,omitempty" yaml:"baud,omitempty"`
	Latitude     float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`

	// Simulated runs the driver against the built-in protocol emulator
	// instead of a physical transport.
	Simulated bool `json:"simulated,omitempty" yaml:"simulated,omitempty"`
}

// StorageData holds the configuration for storage backends
type StorageData struct {
	SQLite *SQLiteData `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
}

// SQLiteData configures the slew-history database
type SQLiteData struct {
	Path string `json:"path" yaml:"path"`
}

// ControllerData holds the configuration for controller backends
type ControllerData struct {
	Type       string          `json:"type,omitempty" yaml:"type,omitempty"`
	RESTServer *RESTServerData `json:"rest,omitempty" yaml:"rest,omitempty"`
}

// RESTServerData configures the REST API controller
type RESTServerData struct {
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
}
