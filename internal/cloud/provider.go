package cloud

import "strings"

// providerDescriptor captures the endpoint/addressing quirks of an
// S3-compatible provider (spec.md §4.B "Provider quirks").
type providerDescriptor struct {
	defaultEndpoint string
	pathStyle       bool
}

var providerDescriptors = map[string]providerDescriptor{
	"s3":        {defaultEndpoint: "", pathStyle: false},
	"aws":       {defaultEndpoint: "", pathStyle: false},
	"minio":     {defaultEndpoint: "http://localhost:9000", pathStyle: true},
	"localstack": {defaultEndpoint: "http://localhost:9000", pathStyle: true},
	"r2":        {defaultEndpoint: "", pathStyle: true},
	"gcs":       {defaultEndpoint: "", pathStyle: true},
	"gs":        {defaultEndpoint: "", pathStyle: true},
	"b2":        {defaultEndpoint: "", pathStyle: true},
	"backblaze": {defaultEndpoint: "", pathStyle: true},
}

// resolveProvider fills in endpoint and path-style defaults for cfg.Provider
// when the caller left them unset. AWS is left to derive its endpoint from
// region; every other provider quirk forces path-style addressing.
func resolveProvider(cfg *Config) {
	desc, ok := providerDescriptors[strings.ToLower(cfg.Provider)]
	if !ok {
		return
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = desc.defaultEndpoint
	}
	if desc.pathStyle {
		cfg.PathStyle = true
	}
}

// contentTypeForExtension maps a backup artifact's file extension to a
// content type, per spec.md §4.B "Backup-oriented operations". Unknown
// extensions carry no content type.
func contentTypeForExtension(name string) string {
	switch {
	case strings.HasSuffix(name, ".sql"):
		return "text/plain"
	case strings.HasSuffix(name, ".dump"):
		return "application/octet-stream"
	case strings.HasSuffix(name, ".tar"):
		return "application/x-tar"
	case strings.HasSuffix(name, ".gz"):
		return "application/gzip"
	default:
		return ""
	}
}
