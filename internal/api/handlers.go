package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nvandessel/colonysim/internal/export"
	"github.com/nvandessel/colonysim/internal/models"
	"github.com/nvandessel/colonysim/internal/simulation"
	"github.com/nvandessel/colonysim/internal/store"
)

// SimulateRequest is the body of POST /api/simulate. Params is applied
// over the preset (or the defaults), so it may name only the fields that
// differ.
type SimulateRequest struct {
	Preset string          `json:"preset,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Save   bool            `json:"save,omitempty"`
	Name   string          `json:"name,omitempty"`
}

// SimulateResponse carries the result and, when saved, the run ID.
type SimulateResponse struct {
	ID     string                   `json:"id,omitempty"`
	Result *models.SimulationResult `json:"result"`
}

// CompareRequest is the body of POST /api/compare.
type CompareRequest struct {
	Scenarios []ScenarioRequest `json:"scenarios"`
}

// ScenarioRequest names one parameter set in a comparison.
type ScenarioRequest struct {
	Name   string          `json:"name"`
	Preset string          `json:"preset,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ComparisonRow is one scenario's summary in a comparison response.
type ComparisonRow struct {
	Name     string         `json:"name"`
	Summary  models.Summary `json:"summary"`
	Warnings int            `json:"warnings"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.DefaultParameters())
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	presets := simulation.Presets()
	out := make([]simulation.Scenario, 0, len(presets))
	for _, name := range simulation.PresetNames() {
		out = append(out, presets[name])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	params, err := simulation.ResolveParameters(req.Preset, req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.trace.Log(map[string]any{"event": "run_started", "source": "api", "preset": req.Preset, "duration_steps": params.DurationSteps})
	result, err := simulation.RunContext(r.Context(), params)
	if err != nil {
		var verrs models.ValidationErrors
		if errors.As(err, &verrs) {
			s.metrics.simulations.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.metrics.simulations.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.simulations.WithLabelValues("ok").Inc()
	s.metrics.simSteps.Add(float64(params.DurationSteps))
	s.trace.Log(map[string]any{"event": "run_finished", "source": "api", "final_size": result.Summary.FinalSize, "warnings": len(result.Warnings)})

	resp := SimulateResponse{Result: result}
	if req.Save {
		id, err := s.runs.Save(r.Context(), store.NewRecord(req.Name, result))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("saving run: %w", err))
			return
		}
		resp.ID = id
		s.logger.Info("saved run", "id", id, "name", req.Name)
		writeJSON(w, http.StatusCreated, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Scenarios) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("at least one scenario is required"))
		return
	}
	if len(req.Scenarios) > maxCompareScenarios {
		writeError(w, http.StatusBadRequest, fmt.Errorf("at most %d scenarios may be compared", maxCompareScenarios))
		return
	}

	scenarios := make([]simulation.Scenario, len(req.Scenarios))
	for i, sr := range req.Scenarios {
		params, err := simulation.ResolveParameters(sr.Preset, sr.Params)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("scenario %d: %w", i, err))
			return
		}
		name := sr.Name
		if name == "" {
			name = fmt.Sprintf("scenario-%d", i+1)
		}
		scenarios[i] = simulation.Scenario{Name: name, Params: params}
	}

	comparisons, err := simulation.Compare(r.Context(), scenarios, s.concurrency)
	if err != nil {
		var verrs models.ValidationErrors
		if errors.As(err, &verrs) {
			s.metrics.simulations.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.metrics.simulations.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	rows := make([]ComparisonRow, len(comparisons))
	for i, c := range comparisons {
		s.metrics.simulations.WithLabelValues("ok").Inc()
		s.metrics.simSteps.Add(float64(c.Result.Parameters.DurationSteps))
		rows[i] = ComparisonRow{Name: c.Name, Summary: c.Result.Summary, Warnings: len(c.Result.Warnings)}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	infos, err := s.runs.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*store.RunRecord, bool) {
	rec, err := s.runs.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return rec, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	err := s.runs.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunCSV(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, rec.Result); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.ID+".csv"))
	w.Write(buf.Bytes())
}
