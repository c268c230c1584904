package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeUpload()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("MARKERFLOW_EXPORT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.ExportDir = strings.TrimSpace(value)
	}
	fields := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.export_dir", &c.Paths.ExportDir, defaultExportDir},
		{"paths.config_dir", &c.Paths.ConfigDir, defaultConfigDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.Extractor = strings.TrimSpace(c.Tools.Extractor)
	if c.Tools.Extractor == "" {
		c.Tools.Extractor = defaultExtractor
	}
	c.Tools.NotionUploader = strings.TrimSpace(c.Tools.NotionUploader)
	if c.Tools.NotionUploader == "" {
		c.Tools.NotionUploader = defaultNotionUploader
	}
	c.Tools.AirtableUploader = strings.TrimSpace(c.Tools.AirtableUploader)
	if c.Tools.AirtableUploader == "" {
		c.Tools.AirtableUploader = defaultAirtableUploader
	}
}

func (c *Config) normalizeUpload() {
	if c.Upload.Parallelism <= 0 {
		c.Upload.Parallelism = defaultUploadParallelism
	}
	if c.Upload.Parallelism > maxUploadParallelism {
		c.Upload.Parallelism = maxUploadParallelism
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("MARKERFLOW_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
