package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/msomdec/gallery-manager/internal/domain"
)

// Config holds the server and gallery settings read from the environment.
type Config struct {
	// Server
	Port         string
	DatabasePath string

	// Redis, optional. Without an address galleries are locked in-process.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	// Gallery storage
	PKGlue    string
	Directory string
	URL       string
	Table     string

	// Upload throttling per client
	UploadRate  float64
	UploadBurst int

	// Pending rows older than this are purged at startup.
	PendingMaxAge time.Duration

	Galleries []domain.GalleryType
}

// Load reads the configuration from the environment. Gallery types are
// listed in GALLERY_TYPES and configured through GALLERY_<TYPE>_* variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "gallery.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		LockTTL:       getEnvAsDuration("GALLERY_LOCK_TTL", "30s"),

		PKGlue:    getEnv("GALLERY_PK_GLUE", "_"),
		Directory: getEnv("GALLERY_DIRECTORY", "uploads/gallery"),
		URL:       strings.TrimRight(getEnv("GALLERY_URL", "/uploads/gallery"), "/"),
		Table:     getEnv("GALLERY_TABLE", "gallery_image"),

		UploadRate:    getEnvAsFloat("UPLOAD_RATE", 1),
		UploadBurst:   getEnvAsInt("UPLOAD_BURST", 10),
		PendingMaxAge: getEnvAsDuration("PENDING_MAX_AGE", "1h"),
	}

	for _, name := range getEnvAsSlice("GALLERY_TYPES", nil) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		gt, err := loadGalleryType(name)
		if err != nil {
			return nil, err
		}
		cfg.Galleries = append(cfg.Galleries, gt)
	}

	if cfg.PKGlue == "" {
		return nil, fmt.Errorf("%w: GALLERY_PK_GLUE must not be empty", domain.ErrInvalidInput)
	}
	if cfg.UploadBurst < 1 {
		return nil, fmt.Errorf("%w: UPLOAD_BURST must be at least 1", domain.ErrInvalidInput)
	}
	return cfg, nil
}

func loadGalleryType(name string) (domain.GalleryType, error) {
	prefix := "GALLERY_" + strings.ToUpper(name) + "_"

	gt := domain.GalleryType{
		Name:          name,
		OwnerTable:    getEnv(prefix+"OWNER_TABLE", name),
		PKColumns:     trimAll(getEnvAsSlice(prefix+"PK", []string{"id"})),
		OwnerFirstSrc: getEnv(prefix+"FIRST_SRC", ""),
		OwnerTimeHash: getEnv(prefix+"TIME_HASH", ""),
		Policy: domain.UploadPolicy{
			AllowedMimeTypes:  trimAll(getEnvAsSlice(prefix+"ALLOWED_MIME", []string{"image/jpeg", "image/png", "image/gif"})),
			AllowedExtensions: trimAll(getEnvAsSlice(prefix+"ALLOWED_EXT", []string{"jpg", "jpeg", "png", "gif"})),
			MaxSize:           int64(getEnvAsInt(prefix+"MAX_SIZE", 10<<20)),
			MinWidth:          getEnvAsInt(prefix+"MIN_WIDTH", 0),
			MinHeight:         getEnvAsInt(prefix+"MIN_HEIGHT", 0),
			MaxWidth:          getEnvAsInt(prefix+"MAX_WIDTH", 0),
			MaxHeight:         getEnvAsInt(prefix+"MAX_HEIGHT", 0),
		},
	}
	if len(gt.PKColumns) == 0 {
		return gt, fmt.Errorf("%w: gallery type %q has no primary key columns", domain.ErrInvalidInput, name)
	}
	if gt.OwnerTimeHash != "" && gt.OwnerFirstSrc == "" {
		return gt, fmt.Errorf("%w: gallery type %q sets %sTIME_HASH without %sFIRST_SRC", domain.ErrInvalidInput, name, prefix, prefix)
	}
	return gt, nil
}

func trimAll(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	if duration, err := time.ParseDuration(defaultValue); err == nil {
		return duration
	}
	return time.Hour
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
