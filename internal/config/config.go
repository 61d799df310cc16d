package config

import (
	"os"
	"strconv"
)

// Config adt-records (HTTP API) configuration.
type Config struct {
	HTTP struct {
		Addr string
	}
	Drive DriveConfig
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Predict PredictConfig
	Log     struct {
		Level  string
		Format string
	}
}

// DriveConfig locates the blob-storage provider and the shared
// patients table inside it.
type DriveConfig struct {
	APIBase    string // metadata/search/download endpoint
	UploadBase string // resumable upload endpoint
	FolderName string // container holding the patients file
	FileName   string // the shared XLSX table
}

// PredictConfig locates the hosted diagnostic model.
type PredictConfig struct {
	BaseURL string
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Drive.APIBase = getEnv("DRIVE_API_BASE", "https://www.googleapis.com/drive/v3")
	cfg.Drive.UploadBase = getEnv("DRIVE_UPLOAD_BASE", "https://www.googleapis.com/upload/drive/v3")
	cfg.Drive.FolderName = getEnv("DRIVE_FOLDER_NAME", "ADT")
	cfg.Drive.FileName = getEnv("DRIVE_FILE_NAME", "patients.xlsx")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Predict.BaseURL = getEnv("PREDICT_API_BASE", "http://localhost:8501")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
