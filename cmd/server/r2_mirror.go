package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"cyberfarm.ai/internal/persistence/r2s3"
)

// buildRunLogMirror returns nil unless CF_R2_MIRROR is set.
func buildRunLogMirror(runsDir string, logger *log.Logger) (*r2s3.Mirror, error) {
	if !envBool("CF_R2_MIRROR", false) {
		return nil, nil
	}
	cfg := r2s3.Config{
		Endpoint:        os.Getenv("CF_R2_ENDPOINT"),
		Bucket:          os.Getenv("CF_R2_BUCKET"),
		AccessKeyID:     os.Getenv("CF_R2_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("CF_R2_SECRET_ACCESS_KEY"),
	}
	client, err := r2s3.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("CF_R2_MIRROR=true: %w", err)
	}
	return r2s3.NewMirror(client, r2s3.MirrorConfig{
		BaseDir: runsDir,
		Prefix:  strings.TrimSpace(os.Getenv("CF_R2_PREFIX")),
		Workers: envInt("CF_R2_UPLOAD_WORKERS", 2),
		Logger:  logger,
	}), nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
