package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/flagx"
)

var recognizedFlags = []string{
	"-a", "-l", "-d", "-s", "-t", "-u", "-p", "-b", "-g", "-e", "-y",
	"-m", "-i", "-r", "-n", "-o", "-w", "-v",
}

// parseFlags overlays command-line flags onto config.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-l string   gRPC health bind address (e.g. ":50051")
//	-d string   PostgreSQL DSN
//	-s string   session signing secret
//	-t int      session validity, minutes
//	-u string   ambient S3 access key
//	-p string   ambient S3 secret key
//	-b string   default S3 bucket
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g. "http://127.0.0.1:9000")
//	-y bool     path-style S3 addressing (use -y=true / -y=false)
//	-m string   identifier folders, "1=Folder-1,2=Folder-2"
//	-i string   identifier policy: strict | lenient
//	-r string   credential mode: optional | required
//	-n int      presigned URL lifetime, minutes
//	-o int      per-operation timeout, seconds
//	-w int      files processed in parallel per batch
//	-v string   log level
//
// Only the flags above are taken from os.Args (see flagx.FilterArgs), so
// -c/-config can coexist.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], recognizedFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "l", config.EndpointAddrGRPC, "gRPC health address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionValidity := fs.Int("t", int(config.SessionValidityDuration.Minutes()), "session validity (in minutes)")

	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 default bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.BoolVar(&config.S3UsePathStyle, "y", config.S3UsePathStyle, "S3 path-style addressing")

	folders := flagx.KeyValues(config.Folders)
	fs.Var(&folders, "m", "identifier to folder mapping")

	fs.StringVar(&config.IdentifierPolicy, "i", config.IdentifierPolicy, "identifier policy (strict|lenient)")
	fs.StringVar(&config.CredentialMode, "r", config.CredentialMode, "credential mode (optional|required)")

	presignTTL := fs.Int("n", int(config.PresignTTL.Minutes()), "presigned URL lifetime (in minutes)")
	opTimeout := fs.Int("o", int(config.OperationTimeout.Seconds()), "per-operation timeout (in seconds)")

	fs.IntVar(&config.UploadConcurrency, "w", config.UploadConcurrency, "files processed in parallel per batch")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.Folders = folders
	config.SessionValidityDuration = time.Duration(*sessionValidity) * time.Minute
	config.PresignTTL = time.Duration(*presignTTL) * time.Minute
	config.OperationTimeout = time.Duration(*opTimeout) * time.Second
}
