// Package httpapi is the HTTP surface alongside the WS channel: zip upload,
// topology save/validate, and the container-originated logging sink, all
// served off one gorilla/mux router with a request-id middleware.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/pborman/uuid"

	"github.com/mauriceyap/diorama/internal/api"
	"github.com/mauriceyap/diorama/internal/connparams"
	"github.com/mauriceyap/diorama/internal/hub"
	"github.com/mauriceyap/diorama/internal/logging"
	"github.com/mauriceyap/diorama/internal/repo"
	"github.com/mauriceyap/diorama/internal/topology"
)

// Handler holds the dependencies the HTTP routes need.
type Handler struct {
	Store      *repo.Store
	ConnParams *connparams.Store
	Hub        *hub.Hub
	OutputsDir string
}

// Router builds the mux.Router for the HTTP surface, with a request-id
// header set on every request.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Set("X-Request-ID", uuid.New()[:8])
			next.ServeHTTP(w, r)
		})
	})

	r.HandleFunc("/uploadZipFile/{programName}", h.uploadZipFile).Methods("POST")
	r.HandleFunc("/saveNetworkTopology", h.saveNetworkTopology).Methods("POST")
	r.HandleFunc("/loggingMessage", h.loggingMessage).Methods("POST")
	return r
}

// uploadZipFile stores the raw zip body under
// <outputsDir>/program_zip_files/<name>.zip, the location
// materialiseBuildContext reads from for code_source=zip programs.
func (h *Handler) uploadZipFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["programName"]

	dir := filepath.Join(h.OutputsDir, "program_zip_files")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	dst := filepath.Join(dir, name+".zip")
	f, err := os.Create(dst)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	if _, err := io.Copy(f, r.Body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type saveNetworkTopologyRequest struct {
	Language          api.Language `json:"language"`
	RawNetworkTopology string      `json:"rawNetworkTopology"`
}

type saveNetworkTopologyResponse struct {
	IsValidAndSaved  bool                  `json:"isValidAndSaved"`
	UnpackedTopology *api.UnpackedTopology `json:"unpackedTopology,omitempty"`
	ErrorMessage     string                `json:"errorMessage,omitempty"`
	ErrorData        interface{}           `json:"errorData,omitempty"`
}

// saveNetworkTopology validates, expands and persists a topology document;
// on success the connection-parameter store is reconciled against the new
// node set.
func (h *Handler) saveNetworkTopology(w http.ResponseWriter, r *http.Request) {
	var req saveNetworkTopologyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	doc, verr := topology.Validate(req.RawNetworkTopology, req.Language)
	if verr != nil {
		writeJSON(w, http.StatusOK, saveNetworkTopologyResponse{
			IsValidAndSaved: false,
			ErrorMessage:    verr.Code,
			ErrorData:       verr.Data,
		})
		return
	}

	cfg, err := h.Store.GetCustomConfig()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	unpacked, err := topology.Expand(doc, cfg.SelfConnectedNodes)
	if err != nil {
		writeJSON(w, http.StatusOK, saveNetworkTopologyResponse{
			IsValidAndSaved: false,
			ErrorMessage:    err.Error(),
		})
		return
	}

	if err := h.Store.PutRawTopology(api.RawTopology{Language: req.Language, Raw: req.RawNetworkTopology}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.Store.PutUnpackedTopology(unpacked); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.ConnParams.Reconcile(unpacked.Nodes); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.Hub.Broadcast(hub.EventRawNetworkTopology, req.RawNetworkTopology)
	h.Hub.Broadcast(hub.EventUnpackedNetworkTopology, unpacked)

	writeJSON(w, http.StatusOK, saveNetworkTopologyResponse{
		IsValidAndSaved:  true,
		UnpackedTopology: &unpacked,
	})
}

// loggingMessage sinks a container-originated log line and rebroadcasts it
// as simulationLogs, the same event the WS streamNodeLogs tail uses.
func (h *Handler) loggingMessage(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	logging.S().Debugw("container log message", "body", body)
	h.Hub.Broadcast(hub.EventSimulationLogs, body)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
