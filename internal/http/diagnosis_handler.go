package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Criser2013/adt-records/internal/recordstore"
	"github.com/Criser2013/adt-records/internal/repository"
	"github.com/Criser2013/adt-records/internal/service"
)

// Predictor is the slice of the prediction client the handler needs.
type Predictor interface {
	Predict(ctx context.Context, features map[string]float64) (*service.PredictionResponse, error)
}

// DiagnosisHandler requests predictions from the hosted model and keeps
// the outcomes in the document store.
type DiagnosisHandler struct {
	store     *recordstore.Store
	predictor Predictor
	diagnoses *repository.DiagnosisRepo
	logger    *zap.Logger
}

func NewDiagnosisHandler(store *recordstore.Store, predictor Predictor, diagnoses *repository.DiagnosisRepo, logger *zap.Logger) *DiagnosisHandler {
	return &DiagnosisHandler{store: store, predictor: predictor, diagnoses: diagnoses, logger: logger}
}

// Predict POST /api/v1/diagnosis/predict {"patient_id": "..."}
func (h *DiagnosisHandler) Predict(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, FailExpired("missing bearer token"))
		return
	}

	var payload struct {
		PatientID string `json:"patient_id"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil || payload.PatientID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("patient_id is required"))
		return
	}

	rec, ok := h.store.Find(payload.PatientID)
	if !ok {
		// Cache may be cold for this session; refresh once before
		// reporting the patient missing.
		if _, err := h.store.Load(r.Context(), token); err != nil {
			writeError(w, err)
			return
		}
		if rec, ok = h.store.Find(payload.PatientID); !ok {
			writeJSON(w, http.StatusNotFound, Fail("patient not found"))
			return
		}
	}

	outcome, err := h.predictor.Predict(r.Context(), service.BuildFeatures(rec, time.Now()))
	if err != nil {
		writeJSON(w, http.StatusBadGateway, Fail(err.Error()))
		return
	}

	diagnosis := &repository.Diagnosis{
		PatientID:   rec.DocumentID,
		Probability: outcome.Probability,
		Prediction:  outcome.Prediction,
	}
	if err := h.diagnoses.Save(r.Context(), diagnosis); err != nil {
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}

	h.logger.Info("Diagnosis stored",
		zap.String("patient_id", rec.DocumentID),
		zap.Float64("probability", outcome.Probability),
	)
	writeJSON(w, http.StatusOK, Ok(diagnosis))
}

// List GET /api/v1/diagnosis/{patientID}
func (h *DiagnosisHandler) List(w http.ResponseWriter, r *http.Request, patientID string) {
	items, err := h.diagnoses.ListByPatient(r.Context(), patientID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(items))
}
