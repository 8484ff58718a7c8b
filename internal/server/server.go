package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"transclip/internal/classify"
	"transclip/internal/service"
	"transclip/internal/storage"
	"transclip/pkg/types"
)

// Server exposes the clipping store to UI and share-extension clients
// over HTTP, with a websocket channel pushing freshly captured clippings.
type Server struct {
	clipService *service.ClipService
	hub         *Hub
	srv         *http.Server
	config      Config
}

type Config struct {
	Addr string
}

func New(clipService *service.ClipService, config Config) *Server {
	s := &Server{
		clipService: clipService,
		hub:         newHub(),
		config:      config,
	}
	clipService.RegisterHandler(s.hub)
	return s
}

func (s *Server) Start() error {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/status", s.handleStatus)
	r.Get("/ws", s.serveWs)
	r.Route("/api", func(r chi.Router) {
		r.Post("/clippings", s.handleCapture)
		r.Get("/clippings", s.handleList)
		r.Post("/clippings/batch-delete", s.handleBatchDelete)
		r.Get("/clippings/{uid}", s.handleGet)
		r.Patch("/clippings/{uid}", s.handleEdit)
		r.Delete("/clippings/{uid}", s.handleRemove)

		r.Get("/boards", s.handleListBoards)
		r.Post("/boards", s.handleCreateBoard)
		r.Patch("/boards/{id}", s.handleRenameBoard)
		r.Delete("/boards/{id}", s.handleDeleteBoard)
	})

	s.srv = &http.Server{
		Addr:    s.config.Addr,
		Handler: r,
	}

	go s.hub.run()

	serverErr := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("http server error on %s: %w", s.config.Addr, err)
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-time.After(100 * time.Millisecond):
		slog.Info("server started", "addr", s.config.Addr)
		return nil
	}
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// captureRequest is the payload shared by the foreground capture flow
// and the share extension. Payload is base64; Kind is the declared
// pasteboard tag, which the classifier may override.
type captureRequest struct {
	Payload string `json:"payload"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Token   string `json:"token"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		http.Error(w, "payload is not valid base64", http.StatusBadRequest)
		return
	}

	clip, err := s.clipService.Capture(r.Context(), payload, req.Kind, req.Title, req.Token)
	switch {
	case errors.Is(err, classify.ErrNoContent):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, storage.ErrDuplicate):
		http.Error(w, "duplicate clipping", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, summarize(clip))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	scope := r.URL.Query().Get("scope")

	clips := s.clipService.List(r.Context(), search, scope)
	out := make([]*types.Clipping, len(clips))
	for i, c := range clips {
		out[i] = summarize(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	clip, err := s.clipService.Get(r.Context(), chi.URLParam(r, "uid"))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "clipping not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

type editRequest struct {
	Title      *string `json:"title"`
	Content    *string `json:"content"`
	BoardID    *uint   `json:"board_id"`
	ClearBoard bool    `json:"clear_board"`
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	uid := chi.URLParam(r, "uid")
	clip, err := s.clipService.Edit(r.Context(), uid, req.Title, req.Content)
	if err == nil && (req.BoardID != nil || req.ClearBoard) {
		boardID := req.BoardID
		if req.ClearBoard {
			boardID = nil
		}
		clip, err = s.clipService.AssignBoard(r.Context(), uid, boardID)
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "clipping not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrBoardNotFound):
		http.Error(w, "board not found", http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, summarize(clip))
	}
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	err := s.clipService.Remove(r.Context(), chi.URLParam(r, "uid"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "clipping not found", http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UIDs []string `json:"uids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	n, err := s.clipService.RemoveMany(r.Context(), req.UIDs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handleListBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.clipService.Boards(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

func (s *Server) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	board, err := s.clipService.CreateBoard(r.Context(), req.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, board)
}

func (s *Server) handleRenameBoard(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid board id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	board, err := s.clipService.RenameBoard(r.Context(), uint(id), req.Name)
	switch {
	case errors.Is(err, storage.ErrBoardNotFound):
		http.Error(w, "board not found", http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, board)
	}
}

func (s *Server) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid board id", http.StatusBadRequest)
		return
	}

	err = s.clipService.RemoveBoard(r.Context(), uint(id))
	switch {
	case errors.Is(err, storage.ErrBoardNotFound):
		http.Error(w, "board not found", http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// summarize strips blob payloads from list/capture responses; the full
// payload is served by the single-clipping endpoint.
func summarize(clip *types.Clipping) *types.Clipping {
	out := *clip
	out.Data = nil
	return &out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
