// pkg/serving/handlers.go
package serving

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/features"
	"github.com/David-Botos/churn-pipeline/pkg/validation"
)

// maxBodyBytes caps prediction request bodies
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	writeJSON(w, status, &validation.APIError{Code: code, Message: message, Details: details})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleContract(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.predictor.Contract())
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var customer validation.CustomerRecord
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&customer); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not a valid customer document",
			map[string]interface{}{"error": err.Error()})
		return
	}
	if verr := customer.Validate(); verr != nil {
		writeJSON(w, http.StatusUnprocessableEntity, verr.ToAPIError())
		return
	}

	pred, err := s.score(&customer)
	if err != nil {
		s.writePredictError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (s *Server) score(customer *validation.CustomerRecord) (*Prediction, error) {
	pred, err := s.predictor.PredictCustomer(customer)
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePrediction(pred)
	return pred, nil
}

func (s *Server) writePredictError(w http.ResponseWriter, err error) {
	var schemaErr *features.SchemaError
	if errors.As(err, &schemaErr) {
		writeError(w, http.StatusUnprocessableEntity, "SCHEMA_ERROR", err.Error(),
			map[string]interface{}{"missing_fields": schemaErr.Fields})
		return
	}
	s.logger.Error("Prediction failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "PREDICTION_FAILED", "prediction failed", nil)
}
