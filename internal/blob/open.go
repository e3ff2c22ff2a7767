package blob

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and configures a driver.
type Config struct {
	Driver Driver   `yaml:"driver"`
	Root   string   `yaml:"root"` // directory for the fs driver
	S3     S3Config `yaml:"s3"`
}

// Open constructs the configured store. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// ApplyEnv overlays environment variables for one store role (DATA or
// ARTIFACT):
//
//	OMICSREPORT_<ROLE>_DRIVER: fs|s3|memory
//	OMICSREPORT_<ROLE>_ROOT: directory root when driver=fs
//	OMICSREPORT_S3_BUCKET, OMICSREPORT_S3_REGION, OMICSREPORT_S3_ENDPOINT,
//	OMICSREPORT_S3_PATH_STYLE: shared by both roles
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY: default credential chain
func (c *Config) ApplyEnv(role string, getenv func(string) string) {
	prefix := "OMICSREPORT_" + strings.ToUpper(role) + "_"
	if v := getenv(prefix + "DRIVER"); v != "" {
		c.Driver = Driver(strings.ToLower(v))
	}
	if v := getenv(prefix + "ROOT"); v != "" {
		c.Root = v
	}
	if v := getenv("OMICSREPORT_S3_BUCKET"); v != "" {
		c.S3.Bucket = v
	}
	if v := getenv("OMICSREPORT_S3_REGION"); v != "" {
		c.S3.Region = v
	}
	if v := getenv("OMICSREPORT_S3_ENDPOINT"); v != "" {
		c.S3.Endpoint = v
	}
	if v := getenv("OMICSREPORT_S3_PATH_STYLE"); v != "" {
		c.S3.PathStyle = strings.EqualFold(v, "true")
	}
}

// Validate rejects unknown drivers and an s3 driver without a bucket.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverFilesystem, DriverMemory, "":
		return nil
	case DriverS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("blob driver s3 requires a bucket")
		}
		return nil
	}
	return fmt.Errorf("unknown blob driver %q", c.Driver)
}
