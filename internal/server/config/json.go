package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/filecatalog/internal/flagx"
	"github.com/dmitrijs2005/filecatalog/internal/timex"
)

// JsonConfig mirrors Config for JSON files. Durations accept both "90s"
// style strings and integer nanoseconds. Pointer fields distinguish
// "absent" from an explicit zero value.
type JsonConfig struct {
	EndpointAddrHTTP        string            `json:"endpoint_addr_http"`
	EndpointAddrGRPC        string            `json:"endpoint_addr_grpc"`
	DatabaseDSN             string            `json:"database_dsn"`
	SecretKey               string            `json:"secret_key"`
	SessionValidityDuration *timex.Duration   `json:"session_validity_duration"`
	S3AccessKey             string            `json:"s3_access_key"`
	S3SecretKey             string            `json:"s3_secret_key"`
	S3Bucket                string            `json:"s3_bucket"`
	S3Region                string            `json:"s3_region"`
	S3BaseEndpoint          string            `json:"s3_base_endpoint"`
	S3UsePathStyle          *bool             `json:"s3_use_path_style"`
	Folders                 map[string]string `json:"folders"`
	IdentifierPolicy        string            `json:"identifier_policy"`
	CredentialMode          string            `json:"credential_mode"`
	PresignTTL              *timex.Duration   `json:"presign_ttl"`
	OperationTimeout        *timex.Duration   `json:"operation_timeout"`
	UploadConcurrency       *int              `json:"upload_concurrency"`
	MaxMultipartMemory      *int64            `json:"max_multipart_memory"`
	LogLevel                string            `json:"log_level"`
}

// parseJson overlays the file named by -c/-config onto config. Keys missing
// from the file leave the current values untouched. An unreadable or
// malformed file panics, matching the flag layer.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.IdentifierPolicy, c.IdentifierPolicy)
	setString(&config.CredentialMode, c.CredentialMode)
	setString(&config.LogLevel, c.LogLevel)

	if c.SessionValidityDuration != nil {
		config.SessionValidityDuration = c.SessionValidityDuration.Duration
	}
	if c.PresignTTL != nil {
		config.PresignTTL = c.PresignTTL.Duration
	}
	if c.OperationTimeout != nil {
		config.OperationTimeout = c.OperationTimeout.Duration
	}
	if c.S3UsePathStyle != nil {
		config.S3UsePathStyle = *c.S3UsePathStyle
	}
	if c.UploadConcurrency != nil {
		config.UploadConcurrency = *c.UploadConcurrency
	}
	if c.MaxMultipartMemory != nil {
		config.MaxMultipartMemory = *c.MaxMultipartMemory
	}
	if len(c.Folders) > 0 {
		config.Folders = c.Folders
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
