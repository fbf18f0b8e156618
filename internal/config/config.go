package config

import "fmt"

// Database holds PostgreSQL server connection parameters. The persistence
// core receives this struct from the embedding application; it never reads
// environment variables or files itself.
type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// SSLMode is passed through to the driver (disable, require, ...).
	SSLMode string `yaml:"ssl_mode"`

	// AdminDB is the maintenance database used for CREATE/DROP DATABASE.
	AdminDB string `yaml:"admin_db"`
}

type Config struct {
	Env      string   `yaml:"env"`
	Database Database `yaml:"database"`
}

func (d Database) withDefaults() Database {
	if d.Host == "" {
		d.Host = "localhost"
	}
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.User == "" {
		d.User = "postgres"
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.AdminDB == "" {
		d.AdminDB = "postgres"
	}
	return d
}

// DSN builds a driver connection string for the given database name.
func (d Database) DSN(dbName string) string {
	d = d.withDefaults()
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, dbName, d.SSLMode,
	)
}
