package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Criser2013/adt-records/internal/store"
)

// Diagnosis is one stored prediction outcome for a patient.
type Diagnosis struct {
	ID          string  `json:"id"`
	PatientID   string  `json:"patient_id"`
	Probability float64 `json:"probability"`
	Prediction  bool    `json:"prediction"`
	CreatedAt   string  `json:"created_at"` // "2006-01-02 15:04:05"
}

// DiagnosisRepo persists diagnoses as JSON documents in the KV store,
// keyed diagnosis:<patientID>:<uuid>. Plain get/set per document;
// listing is a key scan.
type DiagnosisRepo struct {
	kv store.KV
}

func NewDiagnosisRepo(kv store.KV) *DiagnosisRepo {
	return &DiagnosisRepo{kv: kv}
}

func diagnosisKey(patientID, id string) string {
	return fmt.Sprintf("diagnosis:%s:%s", patientID, id)
}

// Save assigns an id and creation time and writes the document.
func (r *DiagnosisRepo) Save(ctx context.Context, d *Diagnosis) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt == "" {
		d.CreatedAt = time.Now().Format("2006-01-02 15:04:05")
	}
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling diagnosis: %w", err)
	}
	return r.kv.Set(ctx, diagnosisKey(d.PatientID, d.ID), string(body), 0)
}

// ListByPatient returns every stored diagnosis for a patient, newest first.
func (r *DiagnosisRepo) ListByPatient(ctx context.Context, patientID string) ([]Diagnosis, error) {
	keys, err := r.kv.ScanKeys(ctx, diagnosisKey(patientID, "*"))
	if err != nil {
		return nil, err
	}
	out := make([]Diagnosis, 0, len(keys))
	for _, key := range keys {
		raw, err := r.kv.Get(ctx, key)
		if err != nil {
			if err == store.ErrMiss {
				continue // expired between scan and get
			}
			return nil, err
		}
		var d Diagnosis
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("unmarshaling diagnosis %s: %w", key, err)
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}

// Delete removes one diagnosis document.
func (r *DiagnosisRepo) Delete(ctx context.Context, patientID, id string) error {
	return r.kv.Del(ctx, diagnosisKey(patientID, id))
}

// DeleteByPatient removes every diagnosis for a patient. Used when the
// patient row itself is deleted from the table.
func (r *DiagnosisRepo) DeleteByPatient(ctx context.Context, patientID string) error {
	keys, err := r.kv.ScanKeys(ctx, diagnosisKey(patientID, "*"))
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := r.kv.Del(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
