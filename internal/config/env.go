package config

import (
	"path/filepath"
	"strconv"
	"strings"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg fields from environment variables. Legacy variable
// names are honored when the REVELATION_ prefixed ones are unset.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&cfg.Gallery.SourceRoot, "REVELATION_GALLERY_ROOT", "GALLERY_ROOT")
	str(&cfg.Gallery.CachePath, "REVELATION_GALLERY_CACHE")
	str(&cfg.Model.ModelPath, "REVELATION_MODEL_PATH")
	if v, ok := lookup("REVELATION_MODEL_PATH"); !ok || v == "" {
		if dir, ok := lookup("MODEL_DIR"); ok && dir != "" {
			cfg.Model.ModelPath = filepath.Join(dir, filepath.Base(cfg.Model.ModelPath))
		}
	}
	str(&cfg.Model.RuntimeLibrary, "ONNXRUNTIME_LIB")
	str(&cfg.Feedback.Storage, "STORAGE_TYPE")
	str(&cfg.Feedback.Dir, "FEEDBACK_STORAGE_DIR")
	str(&cfg.Feedback.DatabasePath, "FEEDBACK_DB_PATH")
	str(&cfg.Feedback.NATSURL, "NATS_URL")
	str(&cfg.Metadata.TablePath, "GEAR_MODEL_INFO_CSV")

	if v, ok := lookup("PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v, ok := lookup("DEBUG"); ok {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			cfg.Debug = true
		case "0", "false", "no", "off":
			cfg.Debug = false
		}
	}
}
