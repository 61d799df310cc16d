package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Criser2013/adt-records/internal/config"
	"github.com/Criser2013/adt-records/internal/drive"
	httpapi "github.com/Criser2013/adt-records/internal/http"
	"github.com/Criser2013/adt-records/internal/logger"
	"github.com/Criser2013/adt-records/internal/recordstore"
	"github.com/Criser2013/adt-records/internal/repository"
	"github.com/Criser2013/adt-records/internal/service"
	"github.com/Criser2013/adt-records/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "adt-records")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	kv := store.NewRedisKV(redisClient)
	diagnoses := repository.NewDiagnosisRepo(kv)

	driveClient := drive.NewClient(cfg.Drive.APIBase, cfg.Drive.UploadBase, log)
	patients := recordstore.NewStore(driveClient, cfg.Drive.FolderName, cfg.Drive.FileName, log)
	predictor := service.NewPredictionClient(cfg.Predict.BaseURL, log)

	router := httpapi.NewRouter(log)
	router.RegisterPatientRoutes(httpapi.NewPatientsHandler(patients, diagnoses, log))
	router.RegisterDiagnosisRoutes(httpapi.NewDiagnosisHandler(patients, predictor, diagnoses, log))
	router.RegisterOpsRoutes()

	server := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatal("HTTP server failed", zap.Error(err))
	case sig := <-quit:
		log.Info("Shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Error("Shutdown failed", zap.Error(err))
	}
	patients.Invalidate()
	_ = redisClient.Close()
}
