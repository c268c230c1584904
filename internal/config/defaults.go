package config

const (
	defaultConfigFile           = "~/.config/markerflow/config.toml"
	defaultExportDir            = "~/Movies/Markers"
	defaultConfigDir            = "~/.config/markerflow"
	defaultLogDir               = "~/.local/share/markerflow/logs"
	defaultStateDir             = "~/.local/share/markerflow"
	defaultExtractor            = "markers-extractor"
	defaultNotionUploader       = "notion-upload"
	defaultAirtableUploader     = "airtable-upload"
	defaultUploadParallelism    = 2
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	maxUploadParallelism        = 16
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ExportDir: defaultExportDir,
			ConfigDir: defaultConfigDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
		},
		Tools: Tools{
			Extractor:        defaultExtractor,
			NotionUploader:   defaultNotionUploader,
			AirtableUploader: defaultAirtableUploader,
		},
		Upload: Upload{
			Parallelism: defaultUploadParallelism,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completion:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
