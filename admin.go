// admin.go: HTTP administration API for a running host
//
// Routes:
//
//	GET    /pieces                         every piece, grouped by kind
//	GET    /pieces/{kind}                  pieces of one kind, in dispatch order
//	POST   /pieces/{kind}                  fresh load, body {"dir": "...", "file": "..."}
//	GET    /pieces/{kind}/{name}           one piece
//	POST   /pieces/{kind}/{name}/enable
//	POST   /pieces/{kind}/{name}/disable
//	POST   /pieces/{kind}/{name}/reload
//	DELETE /pieces/{kind}/{name}           unload
//	GET    /pieces/monitor/{name}/breaker  run breaker state
//	POST   /events                         publish an event
//	GET    /metrics, /live, /ready
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type adminAPI struct {
	host *Host
}

type loadRequest struct {
	Dir  string `json:"dir"`
	File string `json:"file"`
}

type errorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"error"`
}

// NewAdminHandler builds the admin router for h.
func NewAdminHandler(h *Host) http.Handler {
	api := &adminAPI{host: h}
	r := mux.NewRouter()

	r.HandleFunc("/pieces", api.handleListAll).Methods(http.MethodGet)
	r.HandleFunc("/pieces/{kind}", api.handleList).Methods(http.MethodGet)
	r.HandleFunc("/pieces/{kind}", api.handleAdd).Methods(http.MethodPost)
	r.HandleFunc("/pieces/{kind}/{name}", api.handleDescribe).Methods(http.MethodGet)
	r.HandleFunc("/pieces/{kind}/{name}", api.handleUnload).Methods(http.MethodDelete)
	r.HandleFunc("/pieces/{kind}/{name}/enable", api.handleEnable).Methods(http.MethodPost)
	r.HandleFunc("/pieces/{kind}/{name}/disable", api.handleDisable).Methods(http.MethodPost)
	r.HandleFunc("/pieces/{kind}/{name}/reload", api.handleReload).Methods(http.MethodPost)
	r.HandleFunc("/pieces/monitor/{name}/breaker", api.handleBreaker).Methods(http.MethodGet)
	r.HandleFunc("/events", api.handlePublish).Methods(http.MethodPost)

	r.Handle("/metrics", h.Metrics().Handler()).Methods(http.MethodGet)
	r.Handle("/live", h.Health().Handler()).Methods(http.MethodGet)
	r.Handle("/ready", h.Health().Handler()).Methods(http.MethodGet)
	return r
}

func (a *adminAPI) handleListAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.host.SnapshotAll())
}

func (a *adminAPI) handleList(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, err)
		return
	}
	infos, err := a.host.Snapshot(kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (a *adminAPI) handleAdd(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, err)
		return
	}
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	p, err := a.host.Add(r.Context(), kind, req.Dir, req.File)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Describe(p))
}

func (a *adminAPI) handleDescribe(w http.ResponseWriter, r *http.Request) {
	kind, name, ok := pieceRef(w, r)
	if !ok {
		return
	}
	info, err := a.host.Describe(kind, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *adminAPI) handleEnable(w http.ResponseWriter, r *http.Request) {
	kind, name, ok := pieceRef(w, r)
	if !ok {
		return
	}
	p, err := a.host.Enable(kind, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Describe(p))
}

func (a *adminAPI) handleDisable(w http.ResponseWriter, r *http.Request) {
	kind, name, ok := pieceRef(w, r)
	if !ok {
		return
	}
	p, err := a.host.Disable(kind, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Describe(p))
}

func (a *adminAPI) handleReload(w http.ResponseWriter, r *http.Request) {
	kind, name, ok := pieceRef(w, r)
	if !ok {
		return
	}
	p, err := a.host.Reload(r.Context(), kind, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Describe(p))
}

func (a *adminAPI) handleUnload(w http.ResponseWriter, r *http.Request) {
	kind, name, ok := pieceRef(w, r)
	if !ok {
		return
	}
	removed, err := a.host.Unload(kind, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (a *adminAPI) handleBreaker(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := a.host.Get(KindMonitor, name); err != nil {
		writeError(w, err)
		return
	}
	cb, ok := a.host.Breaker(name)
	if !ok {
		writeJSON(w, http.StatusOK, BreakerStats{State: BreakerClosed.String()})
		return
	}
	writeJSON(w, http.StatusOK, cb.Stats())
}

func (a *adminAPI) handlePublish(w http.ResponseWriter, r *http.Request) {
	var event Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid event"})
		return
	}
	if err := a.host.Publish(&event); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": event.ID})
}

func pieceRef(w http.ResponseWriter, r *http.Request) (Kind, string, bool) {
	vars := mux.Vars(r)
	kind, err := ParseKind(vars["kind"])
	if err != nil {
		writeError(w, err)
		return "", "", false
	}
	return kind, vars["name"], true
}

// statusFor maps error codes onto HTTP statuses.
func statusFor(err error) int {
	switch ErrorCode(err) {
	case ErrCodePieceNotFound, ErrCodeManifestNotFound:
		return http.StatusNotFound
	case ErrCodeDuplicatePiece:
		return http.StatusConflict
	case ErrCodeUnknownKind, ErrCodeMissingLocator, ErrCodeInvalidPieceName,
		ErrCodeMalformedOption, ErrCodeMissingOption, ErrCodeManifestParse,
		ErrCodeUnsupportedManifest, ErrCodeUnknownConstructor, ErrCodeKindMismatch,
		ErrCodeIdentityMismatch:
		return http.StatusBadRequest
	case ErrCodeInitFailed, ErrCodeProviderConnection:
		return http.StatusBadGateway
	case ErrCodeQueueClosed:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Code: ErrorCode(err), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
