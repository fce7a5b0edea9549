// Package config defines the pipeline configuration for a load run and its
// validation rules.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"cafeload/internal/storage"
)

// Pipeline is the root configuration document.
type Pipeline struct {
	Job     string        `json:"job" yaml:"job"`
	Source  Source        `json:"source" yaml:"source"`
	Storage Storage       `json:"storage" yaml:"storage"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
}

type Source struct {
	Kind string      `json:"kind" yaml:"kind"`
	File *FileSource `json:"file,omitempty" yaml:"file,omitempty"`
}

type FileSource struct {
	Path string `json:"path" yaml:"path"`
}

type Storage struct {
	// Backend kind: "postgres" | "mssql" | "sqlite"
	Kind string `json:"kind" yaml:"kind"`
	DB   DB     `json:"db" yaml:"db"`
}

// DB locates the target database. Either a full DSN or discrete host
// credentials; DSN wins when both are set. ${VAR} references in the DSN and
// secret are expanded from the environment.
type DB struct {
	DSN      string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	User     string `json:"user,omitempty" yaml:"user,omitempty"`
	Secret   string `json:"secret,omitempty" yaml:"secret,omitempty"`
	Database string `json:"database" yaml:"database"`

	// IgnoreDuplicates lists tables whose inserts tolerate duplicate-key
	// rows. Empty means the loader default (products, locations).
	IgnoreDuplicates []string `json:"ignore_duplicates,omitempty" yaml:"ignore_duplicates,omitempty"`
}

// RuntimeConfig controls load execution behavior.
type RuntimeConfig struct {
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// Load reads a pipeline config from path. Files ending in .yaml or .yml are
// parsed as YAML, everything else as JSON.
func Load(path string) (Pipeline, error) {
	var p Pipeline

	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return p, fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, fmt.Errorf("decode json config: %w", err)
		}
	}

	return p, nil
}

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path uses dotted notation into the
// config document.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

var knownStorageKinds = map[string]bool{
	"postgres": true,
	"mssql":    true,
	"sqlite":   true,
}

// ValidatePipeline checks p for problems a run would hit. It returns all
// findings rather than stopping at the first; callers decide whether any
// SeverityError findings abort the run.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if p.Job == "" {
		issues = append(issues, Issue{SeverityWarning, "job", "job name is empty; metrics will use the default job tag"})
	}

	switch p.Source.Kind {
	case "file":
		if p.Source.File == nil || p.Source.File.Path == "" {
			issues = append(issues, Issue{SeverityError, "source.file.path", "file source requires a path"})
		}
	case "":
		issues = append(issues, Issue{SeverityError, "source.kind", "source kind is required"})
	default:
		issues = append(issues, Issue{SeverityError, "source.kind", fmt.Sprintf("unknown source kind %q", p.Source.Kind)})
	}

	if p.Storage.Kind == "" {
		issues = append(issues, Issue{SeverityError, "storage.kind", "storage kind is required"})
	} else if !knownStorageKinds[p.Storage.Kind] {
		issues = append(issues, Issue{SeverityError, "storage.kind", fmt.Sprintf("unknown storage kind %q", p.Storage.Kind)})
	}

	db := p.Storage.DB
	if db.DSN == "" {
		switch p.Storage.Kind {
		case "sqlite":
			if db.Database == "" {
				issues = append(issues, Issue{SeverityError, "storage.db.database", "sqlite requires a database file path"})
			}
		case "postgres", "mssql":
			if db.Host == "" {
				issues = append(issues, Issue{SeverityError, "storage.db.host", "host is required when no dsn is given"})
			}
			if db.User == "" {
				issues = append(issues, Issue{SeverityError, "storage.db.user", "user is required when no dsn is given"})
			}
			if db.Database == "" {
				issues = append(issues, Issue{SeverityError, "storage.db.database", "database name is required"})
			}
		}
	}

	for _, table := range db.IgnoreDuplicates {
		if _, ok := storage.TableByName(table); !ok {
			issues = append(issues, Issue{SeverityWarning, "storage.db.ignore_duplicates",
				fmt.Sprintf("unknown table %q", table)})
		}
	}

	if p.Runtime.BatchSize < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.batch_size", "batch size must not be negative"})
	}

	return issues
}

// StorageConfig composes the storage.Config for the pipeline's backend.
//
// An explicit DSN passes through as-is (after ${VAR} expansion) with no admin
// DSN, so EnsureDatabase becomes a no-op; we cannot derive a server-level
// connection from an opaque DSN. Discrete host credentials compose both the
// target DSN and an admin DSN pointing at the server's maintenance database.
func (p Pipeline) StorageConfig() (storage.Config, error) {
	db := p.Storage.DB

	if db.DSN != "" {
		return storage.Config{
			Kind:     p.Storage.Kind,
			DSN:      os.ExpandEnv(db.DSN),
			Database: db.Database,
		}, nil
	}

	switch p.Storage.Kind {
	case "sqlite":
		if db.Database == "" {
			return storage.Config{}, fmt.Errorf("storage: sqlite requires a database file path")
		}
		return storage.Config{
			Kind:     "sqlite",
			DSN:      db.Database,
			Database: db.Database,
		}, nil

	case "postgres":
		target := composePostgresDSN(db, db.Database)
		admin := composePostgresDSN(db, "postgres")
		return storage.Config{Kind: "postgres", DSN: target, AdminDSN: admin, Database: db.Database}, nil

	case "mssql":
		target := composeMSSQLDSN(db, db.Database)
		admin := composeMSSQLDSN(db, "master")
		return storage.Config{Kind: "mssql", DSN: target, AdminDSN: admin, Database: db.Database}, nil

	default:
		return storage.Config{}, fmt.Errorf("storage: cannot compose dsn for kind %q", p.Storage.Kind)
	}
}

func composePostgresDSN(db DB, database string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   hostPort(db.Host, db.Port, 5432),
		Path:   "/" + database,
	}
	if db.User != "" {
		u.User = url.UserPassword(db.User, os.ExpandEnv(db.Secret))
	}
	return u.String()
}

func composeMSSQLDSN(db DB, database string) string {
	u := url.URL{
		Scheme: "sqlserver",
		Host:   hostPort(db.Host, db.Port, 1433),
	}
	if db.User != "" {
		u.User = url.UserPassword(db.User, os.ExpandEnv(db.Secret))
	}
	q := url.Values{}
	q.Set("database", database)
	u.RawQuery = q.Encode()
	return u.String()
}

func hostPort(host string, port, defaultPort int) string {
	if port <= 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", host, port)
}
