package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Criser2013/adt-records/internal/conditions"
	"github.com/Criser2013/adt-records/internal/domain"
	"github.com/Criser2013/adt-records/internal/metrics"
)

// PredictionRequest is the flat feature vector the hosted model takes.
// Feature names follow the model's training schema; the comorbidity
// block is the one-hot encoding in vocabulary order.
type PredictionRequest struct {
	Features map[string]float64 `json:"features"`
}

// PredictionResponse is the model's verdict.
type PredictionResponse struct {
	Probability float64 `json:"probability"`
	Prediction  bool    `json:"prediction"`
}

// PredictionClient calls the externally hosted diagnostic model.
// The model is a black box: one POST in, one probability out.
type PredictionClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewPredictionClient(baseURL string, logger *zap.Logger) *PredictionClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &PredictionClient{
		httpClient: client,
		logger:     logger,
	}
}

// BuildFeatures flattens a patient record into the model's feature
// vector: age in years, sex as 0/1, one flag per vocabulary condition,
// and the other-conditions flag.
func BuildFeatures(rec domain.PatientRecord, now time.Time) map[string]float64 {
	features := make(map[string]float64, len(conditions.Vocabulary())+3)

	if birth, err := time.Parse("2006-01-02", rec.BirthDate); err == nil {
		features["age"] = float64(int(now.Sub(birth).Hours() / 24 / 365.25))
	}
	if rec.Sex == "M" {
		features["sex"] = 1
	} else {
		features["sex"] = 0
	}
	for _, name := range conditions.Vocabulary() {
		features[name] = float64(rec.Conditions[name])
	}
	if rec.OtherConditions {
		features[domain.ColOtherConditions] = 1
	} else {
		features[domain.ColOtherConditions] = 0
	}
	return features
}

// Predict submits a feature vector and returns the model's outcome.
func (c *PredictionClient) Predict(ctx context.Context, features map[string]float64) (*PredictionResponse, error) {
	var result PredictionResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(PredictionRequest{Features: features}).
		SetResult(&result).
		Post("/predict")
	if err != nil {
		metrics.PredictionRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error("Prediction API call failed", zap.Error(err))
		return nil, fmt.Errorf("failed to call prediction API: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		metrics.PredictionRequestsTotal.WithLabelValues("error").Inc()
		c.logger.Error("Prediction API returned error",
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("body", resp.Body()),
		)
		return nil, fmt.Errorf("prediction API error: status %d", resp.StatusCode())
	}

	metrics.PredictionRequestsTotal.WithLabelValues("success").Inc()
	c.logger.Info("Prediction received",
		zap.Float64("probability", result.Probability),
		zap.Bool("prediction", result.Prediction),
	)
	return &result, nil
}
