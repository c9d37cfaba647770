package app

import (
	"strings"
	"time"

	"scrblit/cmd/internal/archive"
	"scrblit/cmd/internal/canvas"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Browser origins allowed on the HTTP API. Entries may use a ":*" port wildcard.
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	CanvasWidth       int
	CanvasHeight      int
	PenWidth          float64
	CoverageThreshold float64
	CoverageModel     string

	ArchiveBackend    string
	ArchiveCredential string
	ArchiveUploadURL  string
	ArchiveDir        string
	ArchiveBucket     string
	ArchivePrefix     string
	ArchiveFormat     string
	ArchiveTimeout    time.Duration
	ArchiveOnFailure  string

	SaveRateLimit int
	TrustProxy    bool

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless Postgres is configured and reachable.
	ReadinessRequireDB bool

	MDNSEnabled  bool
	MDNSInstance string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  httpAddrFromEnv(),
		LogLevel:  EnvString("SCRBLIT_LOG_LEVEL", "info"),
		LogFormat: EnvString("SCRBLIT_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("SCRBLIT_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("SCRBLIT_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("SCRBLIT_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("SCRBLIT_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("SCRBLIT_HTTP_MAX_HEADER_BYTES", 1<<20),

		CORSAllowedOrigins:   EnvCSV("SCRBLIT_CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		CORSAllowCredentials: EnvBool("SCRBLIT_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("SCRBLIT_CORS_MAX_AGE_SECONDS", 600),

		CanvasWidth:       EnvInt("SCRBLIT_CANVAS_WIDTH", canvas.DefaultWidth),
		CanvasHeight:      EnvInt("SCRBLIT_CANVAS_HEIGHT", canvas.DefaultHeight),
		PenWidth:          EnvFloat("SCRBLIT_PEN_WIDTH", canvas.DefaultPenWidth),
		CoverageThreshold: EnvFloat("SCRBLIT_COVERAGE_THRESHOLD", canvas.DefaultThreshold),
		CoverageModel:     EnvString("SCRBLIT_COVERAGE_MODEL", canvas.ModelRaster),

		ArchiveBackend:    EnvString("SCRBLIT_ARCHIVE_BACKEND", archive.BackendHTTP),
		ArchiveCredential: EnvString("SCRBLIT_ARCHIVE_CREDENTIAL", ""),
		ArchiveUploadURL:  EnvString("SCRBLIT_ARCHIVE_UPLOAD_URL", ""),
		ArchiveDir:        EnvString("SCRBLIT_ARCHIVE_DIR", "./archive"),
		ArchiveBucket:     EnvString("SCRBLIT_ARCHIVE_BUCKET", ""),
		ArchivePrefix:     EnvString("SCRBLIT_ARCHIVE_PREFIX", "scribbles"),
		ArchiveFormat:     EnvString("SCRBLIT_ARCHIVE_FORMAT", string(archive.FormatPNG)),
		ArchiveTimeout:    EnvDuration("SCRBLIT_ARCHIVE_TIMEOUT", archive.DefaultTimeout),
		ArchiveOnFailure:  EnvString("SCRBLIT_ARCHIVE_ON_FAILURE", canvas.PolicyReset.String()),

		SaveRateLimit: EnvInt("SCRBLIT_SAVE_RATE_LIMIT", 6),
		TrustProxy:    EnvBool("SCRBLIT_TRUST_PROXY", false),

		DatabaseURL: EnvString("SCRBLIT_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("SCRBLIT_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("SCRBLIT_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("SCRBLIT_READINESS_REQUIRE_DB", false),

		MDNSEnabled:  EnvBool("SCRBLIT_MDNS_ENABLED", false),
		MDNSInstance: EnvString("SCRBLIT_MDNS_INSTANCE", "scrblit"),
	}
}

// httpAddrFromEnv prefers SCRBLIT_HTTP_ADDR and falls back to PORT, which hosting
// platforms set.
func httpAddrFromEnv() string {
	if addr := EnvString("SCRBLIT_HTTP_ADDR", ""); addr != "" {
		return addr
	}
	if port := strings.TrimPrefix(EnvString("PORT", ""), ":"); port != "" {
		return "0.0.0.0:" + port
	}
	return "0.0.0.0:8080"
}
