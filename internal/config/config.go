// Package config resolves runtime settings from defaults, an optional HCL
// file and EPOC_* environment variables, in increasing precedence.
package config

import (
	"epoccore/internal/blob"
	"epoccore/pkg/domain"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Storage drivers understood by core.OpenStorage.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config is the fully resolved configuration.
type Config struct {
	Engine  domain.EngineConfig
	Storage StorageConfig
	Blob    blob.Config
	Log     LogConfig
}

// StorageConfig selects the object storage back end.
type StorageConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string
	Format string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Engine:  domain.DefaultEngineConfig(),
		Storage: StorageConfig{Driver: StorageSQLite},
		Blob:    blob.Config{Driver: blob.DriverFilesystem},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// file mirrors the HCL layout:
//
//	engine  { auto_match_templates = true  template_linked_objects = false }
//	storage { driver = "sqlite"  sqlite_path = "epoc.db" }
//	blob    { driver = "fs"  fs_root = "./archives" }
//	log     { level = "debug"  format = "json" }
type file struct {
	Engine  *engineBlock  `hcl:"engine,block"`
	Storage *storageBlock `hcl:"storage,block"`
	Blob    *blobBlock    `hcl:"blob,block"`
	Log     *logBlock     `hcl:"log,block"`
}

type engineBlock struct {
	AutoMatchTemplates    *bool `hcl:"auto_match_templates,optional"`
	TemplateLinkedObjects *bool `hcl:"template_linked_objects,optional"`
}

type storageBlock struct {
	Driver      *string `hcl:"driver,optional"`
	SQLitePath  *string `hcl:"sqlite_path,optional"`
	PostgresDSN *string `hcl:"postgres_dsn,optional"`
}

type blobBlock struct {
	Driver      *string `hcl:"driver,optional"`
	FSRoot      *string `hcl:"fs_root,optional"`
	S3Bucket    *string `hcl:"s3_bucket,optional"`
	S3Region    *string `hcl:"s3_region,optional"`
	S3Endpoint  *string `hcl:"s3_endpoint,optional"`
	S3PathStyle *bool   `hcl:"s3_path_style,optional"`
}

type logBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

// Load resolves the configuration. path names an HCL file; when empty,
// EPOC_CONFIG is consulted, and with neither set only defaults and the
// environment apply.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path == "" {
		path, _ = lookup("EPOC_CONFIG")
	}
	if path != "" {
		f, err := decodeFile(path)
		if err != nil {
			return Config{}, err
		}
		f.apply(&cfg)
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string) (*file, error) {
	parser := hclparse.NewParser()
	hf, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse config %s: %s", path, diags.Error())
	}
	var f file
	if diags := gohcl.DecodeBody(hf.Body, nil, &f); diags.HasErrors() {
		return nil, fmt.Errorf("decode config %s: %s", path, diags.Error())
	}
	return &f, nil
}

func (f *file) apply(cfg *Config) {
	if e := f.Engine; e != nil {
		setBool(&cfg.Engine.AutoMatchTemplates, e.AutoMatchTemplates)
		setBool(&cfg.Engine.TemplateLinkedObjects, e.TemplateLinkedObjects)
	}
	if s := f.Storage; s != nil {
		setString(&cfg.Storage.Driver, s.Driver)
		setString(&cfg.Storage.SQLitePath, s.SQLitePath)
		setString(&cfg.Storage.PostgresDSN, s.PostgresDSN)
	}
	if b := f.Blob; b != nil {
		if b.Driver != nil {
			cfg.Blob.Driver = blob.Driver(*b.Driver)
		}
		setString(&cfg.Blob.FSRoot, b.FSRoot)
		setString(&cfg.Blob.S3.Bucket, b.S3Bucket)
		setString(&cfg.Blob.S3.Region, b.S3Region)
		setString(&cfg.Blob.S3.Endpoint, b.S3Endpoint)
		setBool(&cfg.Blob.S3.PathStyle, b.S3PathStyle)
	}
	if l := f.Log; l != nil {
		setString(&cfg.Log.Level, l.Level)
		setString(&cfg.Log.Format, l.Format)
	}
}

// applyEnv overlays the EPOC_* variables that are set.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"EPOC_STORAGE_DRIVER":   &cfg.Storage.Driver,
		"EPOC_SQLITE_PATH":      &cfg.Storage.SQLitePath,
		"EPOC_POSTGRES_DSN":     &cfg.Storage.PostgresDSN,
		"EPOC_BLOB_FS_ROOT":     &cfg.Blob.FSRoot,
		"EPOC_BLOB_S3_BUCKET":   &cfg.Blob.S3.Bucket,
		"EPOC_BLOB_S3_REGION":   &cfg.Blob.S3.Region,
		"EPOC_BLOB_S3_ENDPOINT": &cfg.Blob.S3.Endpoint,
		"EPOC_LOG_LEVEL":        &cfg.Log.Level,
		"EPOC_LOG_FORMAT":       &cfg.Log.Format,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("EPOC_BLOB_DRIVER"); ok && v != "" {
		cfg.Blob.Driver = blob.Driver(v)
	}
	bools := map[string]*bool{
		"EPOC_BLOB_S3_PATH_STYLE":      &cfg.Blob.S3.PathStyle,
		"EPOC_AUTO_MATCH_TEMPLATES":    &cfg.Engine.AutoMatchTemplates,
		"EPOC_TEMPLATE_LINKED_OBJECTS": &cfg.Engine.TemplateLinkedObjects,
	}
	for name, dst := range bools {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = b
	}
	return nil
}

// Validate rejects unknown drivers and log settings.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverS3, blob.DriverMemory:
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Blob.Driver == blob.DriverS3 && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("blob driver s3 requires a bucket")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
