package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Criser2013/adt-records/internal/conditions"
	"github.com/Criser2013/adt-records/internal/domain"
	"github.com/Criser2013/adt-records/internal/recordstore"
	"github.com/Criser2013/adt-records/internal/repository"
)

// PatientsHandler serves the patients table CRUD over the record store.
type PatientsHandler struct {
	store     *recordstore.Store
	diagnoses *repository.DiagnosisRepo
	logger    *zap.Logger
}

func NewPatientsHandler(store *recordstore.Store, diagnoses *repository.DiagnosisRepo, logger *zap.Logger) *PatientsHandler {
	return &PatientsHandler{store: store, diagnoses: diagnoses, logger: logger}
}

// patientPayload is the JSON body for create/update. Conditions carries
// the selected names; the one-hot expansion happens server-side.
type patientPayload struct {
	DocumentID      string   `json:"document_id"`
	FullName        string   `json:"full_name"`
	Sex             string   `json:"sex"`
	Phone           string   `json:"phone"`
	BirthDate       string   `json:"birth_date"`
	CreatedAt       string   `json:"created_at"`
	Conditions      []string `json:"conditions"`
	OtherConditions bool     `json:"other_conditions"`
}

func (p patientPayload) validate() error {
	if p.DocumentID == "" {
		return fmt.Errorf("document_id is required")
	}
	if p.FullName == "" {
		return fmt.Errorf("full_name is required")
	}
	if p.Sex != "F" && p.Sex != "M" {
		return fmt.Errorf("sex must be F or M")
	}
	if p.BirthDate != "" {
		if _, err := time.Parse("2006-01-02", p.BirthDate); err != nil {
			return fmt.Errorf("birth_date must be YYYY-MM-DD")
		}
	}
	return nil
}

func (p patientPayload) toRecord() domain.PatientRecord {
	createdAt := p.CreatedAt
	if createdAt == "" {
		createdAt = time.Now().Format("2006-01-02 15:04:05")
	}
	return domain.PatientRecord{
		DocumentID:      p.DocumentID,
		FullName:        p.FullName,
		Sex:             p.Sex,
		Phone:           p.Phone,
		BirthDate:       p.BirthDate,
		CreatedAt:       createdAt,
		Conditions:      conditions.Encode(p.Conditions),
		OtherConditions: p.OtherConditions,
	}
}

// List GET /api/v1/patients
func (h *PatientsHandler) List(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, FailExpired("missing bearer token"))
		return
	}

	rows, err := h.store.Load(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(rows))
}

// Create POST /api/v1/patients
func (h *PatientsHandler) Create(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, FailExpired("missing bearer token"))
		return
	}

	var payload patientPayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if err := payload.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	rec := payload.toRecord()
	if err := h.store.Upsert(r.Context(), token, rec, false, ""); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("Patient created", zap.String("document_id", rec.DocumentID))
	writeJSON(w, http.StatusCreated, Ok(rec))
}

// Update PUT /api/v1/patients/{id}; the path id is the identity the row
// held before the edit, so identity changes are an in-place replace.
func (h *PatientsHandler) Update(w http.ResponseWriter, r *http.Request, previousID string) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, FailExpired("missing bearer token"))
		return
	}

	var payload patientPayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if err := payload.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	rec := payload.toRecord()
	if err := h.store.Upsert(r.Context(), token, rec, true, previousID); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("Patient updated",
		zap.String("document_id", rec.DocumentID),
		zap.String("previous_id", previousID),
	)
	writeJSON(w, http.StatusOK, Ok(rec))
}

// DeleteOne DELETE /api/v1/patients/{id}
func (h *PatientsHandler) DeleteOne(w http.ResponseWriter, r *http.Request, id string) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, FailExpired("missing bearer token"))
		return
	}

	if err := h.store.DeleteRecords(r.Context(), token, id); err != nil {
		writeError(w, err)
		return
	}
	if err := h.diagnoses.DeleteByPatient(r.Context(), id); err != nil {
		// The table row is already gone; orphaned diagnosis documents
		// are logged rather than failing the delete.
		h.logger.Warn("Failed to remove diagnoses for deleted patient",
			zap.String("document_id", id), zap.Error(err))
	}
	h.logger.Info("Patient deleted", zap.String("document_id", id))
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": id}))
}

// DeleteBulk POST /api/v1/patients/delete {"ids":[...]}
func (h *PatientsHandler) DeleteBulk(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, FailExpired("missing bearer token"))
		return
	}

	var payload struct {
		IDs []string `json:"ids"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if len(payload.IDs) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("ids is required"))
		return
	}

	if err := h.store.DeleteRecords(r.Context(), token, payload.IDs...); err != nil {
		writeError(w, err)
		return
	}
	for _, id := range payload.IDs {
		if err := h.diagnoses.DeleteByPatient(r.Context(), id); err != nil {
			h.logger.Warn("Failed to remove diagnoses for deleted patient",
				zap.String("document_id", id), zap.Error(err))
		}
	}
	h.logger.Info("Patients deleted", zap.Int("count", len(payload.IDs)))
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": payload.IDs}))
}
