package config

import (
	"fmt"
	"strings"
)

// Validate checks cross-field rules. Load calls it.
func (c *Config) Validate() error {
	switch c.Repo.Layout {
	case "per-category", "combined":
	default:
		return fmt.Errorf("repo.layout must be per-category or combined (got %q)", c.Repo.Layout)
	}
	if strings.TrimSpace(c.Repo.Dir) == "" {
		return fmt.Errorf("repo.dir is required")
	}
	if c.Repo.Layout == "combined" && strings.ContainsAny(c.Repo.CombinedName, `/\`) {
		return fmt.Errorf("repo.combined_name must be a plain directory name (got %q)", c.Repo.CombinedName)
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0 (got %d)", c.Fetch.Concurrency)
	}
	if c.Fetch.Attempts <= 0 {
		return fmt.Errorf("fetch.attempts must be > 0 (got %d)", c.Fetch.Attempts)
	}
	if c.Message.Summarize && c.Anthropic.APIKey == "" {
		return fmt.Errorf("message.summarize requires anthropic.api_key")
	}
	if c.MinIO.Enabled() && (c.MinIO.AccessKey == "" || c.MinIO.SecretKey == "") {
		return fmt.Errorf("minio.access_key and minio.secret_key are required when minio.endpoint is set")
	}
	if c.SMTP.To != "" && c.SMTP.Host == "" {
		return fmt.Errorf("smtp.to requires smtp.host")
	}
	return nil
}
