package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/itsneelabh/docrouter/agents"
	"github.com/itsneelabh/docrouter/core"
	"github.com/itsneelabh/docrouter/memory"
)

// Endpoint paths
const (
	PathProcess     = "/process"
	PathProcessFile = "/process/file"
	PathEntries     = "/memory/entries/"
	PathThreads     = "/memory/threads/"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files
const multipartMemory = 8 << 20

// ProcessRequest is the body of POST /process
type ProcessRequest struct {
	Content  *string                `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ThreadResponse is the body of GET /memory/threads/{thread_id}
type ThreadResponse struct {
	ThreadID string                `json:"thread_id"`
	Entries  []*memory.MemoryEntry `json:"entries"`
}

// Handlers serves the pipeline and the shared memory over HTTP
type Handlers struct {
	pipeline *Pipeline
	memory   *memory.SharedMemory
	logger   core.Logger
}

// NewHandlers creates handlers for p
func NewHandlers(p *Pipeline, logger core.Logger) *Handlers {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Handlers{pipeline: p, memory: p.Memory(), logger: logger}
}

// Register adds the routes and their capabilities to svc
func (h *Handlers) Register(svc *core.Service) error {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"POST " + PathProcess, h.handleProcess},
		{"POST " + PathProcessFile, h.handleProcessFile},
		{"GET " + PathEntries + "{id}", h.handleGetEntry},
		{"PATCH " + PathEntries + "{id}", h.handleUpdateEntry},
		{"DELETE " + PathEntries + "{id}", h.handleDeleteEntry},
		{"GET " + PathThreads + "{thread_id}", h.handleGetThread},
		{"DELETE " + PathThreads + "{thread_id}", h.handleClearThread},
	}
	for _, r := range routes {
		if err := svc.HandleFunc(r.pattern, r.handler); err != nil {
			return err
		}
	}
	svc.AddHealthCheck("memory", h.memory.Ping)

	svc.RegisterCapability(core.Capability{
		Name:        "process",
		Description: "Classify a JSON or email document and extract it with the matching agent",
		Endpoint:    PathProcess,
		Method:      http.MethodPost,
		InputTypes:  []string{"application/json"},
		OutputTypes: []string{"application/json"},
	})
	svc.RegisterCapability(core.Capability{
		Name:        "process_file",
		Description: "Classify and extract an uploaded JSON, email or PDF file",
		Endpoint:    PathProcessFile,
		Method:      http.MethodPost,
		InputTypes:  []string{"multipart/form-data"},
		OutputTypes: []string{"application/json"},
	})
	svc.RegisterCapability(core.Capability{
		Name:        "memory_entries",
		Description: "Read, patch and delete shared memory entries",
		Endpoint:    PathEntries + "{id}",
		Method:      "GET, PATCH, DELETE",
		OutputTypes: []string{"application/json"},
	})
	svc.RegisterCapability(core.Capability{
		Name:        "memory_threads",
		Description: "List or clear the entries of a thread",
		Endpoint:    PathThreads + "{thread_id}",
		Method:      "GET, DELETE",
		OutputTypes: []string{"application/json"},
	})
	return nil
}

func (h *Handlers) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, bodyError(err))
		return
	}
	if req.Content == nil {
		h.writeError(w, r, core.NewRequestError(core.CategoryInputError, "content is required", nil))
		return
	}

	result, err := h.pipeline.ProcessText(r.Context(), *req.Content, agents.Metadata(req.Metadata))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, result, h.logger)
}

func (h *Handlers) handleProcessFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.writeError(w, r, bodyError(err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, core.NewRequestError(core.CategoryInputError, "file is required", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, bodyError(err))
		return
	}

	metadata := agents.Metadata{}
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			h.writeError(w, r, core.NewRequestError(core.CategoryInputError, "metadata must be a JSON object", err))
			return
		}
	}
	if _, ok := metadata["filename"]; !ok && header.Filename != "" {
		metadata["filename"] = header.Filename
	}

	result, err := h.pipeline.ProcessFile(r.Context(), header.Filename, data, metadata)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, result, h.logger)
}

func (h *Handlers) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := h.memory.GetEntry(r.Context(), id)
	if err != nil {
		h.writeError(w, r, serviceError(err))
		return
	}
	if entry == nil {
		h.writeError(w, r, entryNotFound(id))
		return
	}
	core.WriteJSON(w, http.StatusOK, entry, h.logger)
}

func (h *Handlers) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		h.writeError(w, r, bodyError(err))
		return
	}

	ok, err := h.memory.UpdateEntry(r.Context(), id, updates)
	if err != nil {
		if errors.Is(err, core.ErrInvalidPatch) {
			h.writeError(w, r, core.NewRequestError(core.CategoryInputError, err.Error(), err))
			return
		}
		h.writeError(w, r, serviceError(err))
		return
	}
	if !ok {
		h.writeError(w, r, entryNotFound(id))
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]bool{"updated": true}, h.logger)
}

func (h *Handlers) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := h.memory.DeleteEntry(r.Context(), id)
	if err != nil {
		h.writeError(w, r, serviceError(err))
		return
	}
	if !ok {
		h.writeError(w, r, entryNotFound(id))
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true}, h.logger)
}

func (h *Handlers) handleGetThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	entries, err := h.memory.GetThreadHistory(r.Context(), threadID)
	if err != nil {
		h.writeError(w, r, serviceError(err))
		return
	}
	if entries == nil {
		entries = []*memory.MemoryEntry{}
	}
	core.WriteJSON(w, http.StatusOK, ThreadResponse{ThreadID: threadID, Entries: entries}, h.logger)
}

func (h *Handlers) handleClearThread(w http.ResponseWriter, r *http.Request) {
	n, err := h.memory.ClearThread(r.Context(), r.PathValue("thread_id"))
	if err != nil {
		h.writeError(w, r, serviceError(err))
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]int{"deleted": n}, h.logger)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	category := core.CategoryForError(err)
	fields := map[string]interface{}{
		"path":     r.URL.Path,
		"category": string(category),
		"error":    err.Error(),
	}
	if category == core.CategoryProcessingError || category == core.CategoryServiceError {
		h.logger.ErrorWithContext(r.Context(), "Request failed", fields)
	} else {
		h.logger.DebugWithContext(r.Context(), "Request rejected", fields)
	}
	core.WriteError(w, err, h.logger)
}

// bodyError maps request body failures to 413 or 400
func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return core.NewRequestError(core.CategoryPayloadTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), err)
	}
	return core.NewRequestError(core.CategoryInputError, "invalid request body: "+err.Error(), err)
}

// serviceError reports memory backends that cannot be reached as 503
func serviceError(err error) error {
	if errors.Is(err, core.ErrConnectionFailed) {
		return core.NewRequestError(core.CategoryServiceError, err.Error(), err)
	}
	return err
}

func entryNotFound(id string) error {
	return core.NewRequestError(core.CategoryNotFound, "Entry not found",
		fmt.Errorf("entry %s: %w", id, core.ErrEntryNotFound))
}
