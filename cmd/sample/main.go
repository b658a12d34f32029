// Command sample demonstrates the github.com/weftlabs/weft framework
// with a realistic API covering every major feature.
//
// Run:
//
//	go run ./cmd/sample
//	go run ./cmd/sample -config server.yaml
//
// Then explore:
//
//	GET  http://localhost:8080/v1/health              — health check
//	GET  http://localhost:8080/v1/notes               — list notes (query params, defaults, constraints)
//	POST http://localhost:8080/v1/notes               — create note (JSON body with checks)
//	GET  http://localhost:8080/v1/notes/{id}          — get note (regex-constrained path param)
//	PUT  http://localhost:8080/v1/notes/{id}          — update note
//	DELETE http://localhost:8080/v1/notes/{id}        — delete note
//	POST http://localhost:8080/v1/notes/{id}/file     — attach a file (multipart upload)
//	GET  http://localhost:8080/v1/notes/{id}/file     — download the attachment
//	GET  http://localhost:8080/v1/events              — SSE event stream
//	GET  http://localhost:8080/metrics                — Prometheus metrics
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weftlabs/weft"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML server config")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() {
		//nolint:errcheck,gosec // best-effort flush
		logger.Sync()
	}()

	cfg := weft.DefaultConfig()
	if *configPath != "" {
		cfg, err = weft.LoadConfig(*configPath)
		if err != nil {
			logger.Fatal("load config", zap.Error(err))
		}
	}

	r := newRouter(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("starting server", zap.String("addr", cfg.Addr))
	if err := r.Serve(ctx, cfg); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newRouter(logger *zap.Logger) *weft.Router {
	r := weft.New(
		weft.WithLogger(logger),
	)

	metrics := weft.NewMetrics()

	// Global middleware.
	r.Use(weft.Recovery(logger))
	r.Use(weft.RequestID())
	r.Use(weft.Logger(logger))
	r.Use(metrics.Middleware())
	r.Use(weft.Compress())

	weft.Raw(r, http.MethodGet, "/metrics", metrics.Handler().ServeHTTP)
	weft.Pprof(r, "")

	// ---------- v1 group ----------

	v1 := r.Group("/v1", weft.WithGroupMiddleware(
		weft.RateLimit(weft.RateLimitConfig{Rate: 100, Burst: 20}),
	))

	weft.Get(v1, "/health", handleHealth)

	weft.Get(v1, "/notes", handleListNotes)
	weft.Post(v1, "/notes", handleCreateNote, weft.WithStatus(http.StatusCreated))
	weft.Get(v1, "/notes/{id:[0-9]+}", handleGetNote)
	weft.Put(v1, "/notes/{id:[0-9]+}", handleUpdateNote)
	weft.Delete(v1, "/notes/{id:[0-9]+}", handleDeleteNote)

	weft.Post(v1, "/notes/{id:[0-9]+}/file", handleAttachFile, weft.WithStatus(http.StatusNoContent))
	weft.Get(v1, "/notes/{id:[0-9]+}/file", handleDownloadFile)

	weft.Get(v1, "/events", handleEvents)

	return r
}

// In-memory store
// ---------------------------------------------------------------------------

var store = &noteStore{
	notes: map[string]*Note{
		"1": {ID: "1", Title: "hello", Text: "first note", Tags: []string{"intro"}, CreatedAt: time.Now()},
	},
	files:  map[string][]byte{},
	nextID: 2,
}

type noteStore struct {
	mu     sync.RWMutex
	notes  map[string]*Note
	files  map[string][]byte
	nextID int
}

func (s *noteStore) list(tag string) []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Note, 0, len(s.notes))
	for _, n := range s.notes {
		if tag != "" && !hasTag(n, tag) {
			continue
		}
		out = append(out, *n)
	}
	return out
}

func hasTag(n *Note, tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (s *noteStore) get(id string) (*Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	if !ok {
		return nil, false
	}
	cp := *n
	return &cp, true
}

func (s *noteStore) create(title, text string, tags []string) *Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := &Note{
		ID:        fmt.Sprintf("%d", s.nextID),
		Title:     title,
		Text:      text,
		Tags:      tags,
		CreatedAt: time.Now(),
	}
	s.nextID++
	s.notes[n.ID] = n
	cp := *n
	return &cp
}

func (s *noteStore) update(id, title, text string) (*Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return nil, false
	}
	if title != "" {
		n.Title = title
	}
	if text != "" {
		n.Text = text
	}
	cp := *n
	return &cp, true
}

func (s *noteStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[id]; !ok {
		return false
	}
	delete(s.notes, id)
	delete(s.files, id)
	return true
}

func (s *noteStore) setFile(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = data
}

func (s *noteStore) getFile(id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[id]
	return data, ok
}

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Note is the core domain entity.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

// ---------------------------------------------------------------------------
// Request / Response types
// ---------------------------------------------------------------------------

type HealthResp struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

type ListNotesReq struct {
	Tag    string `query:"tag"`
	Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
	Offset int    `query:"offset" default:"0" minimum:"0"`
}

type ListNotesResp struct {
	Notes []Note `json:"notes"`
	Total int    `json:"total"`
}

type CreateNoteReq struct {
	Body struct {
		Title string   `json:"title" required:"true" minLength:"1" maxLength:"120"`
		Text  string   `json:"text" maxLength:"10000"`
		Tags  []string `json:"tags" maxItems:"16"`
	} `maxBytes:"1048576"`
}

type NoteByIDReq struct {
	ID string `path:"id"`
}

type UpdateNoteReq struct {
	ID   string `path:"id"`
	Body struct {
		Title string `json:"title" maxLength:"120"`
		Text  string `json:"text" maxLength:"10000"`
	} `optional:"true"`
}

type AttachFileReq struct {
	ID   string          `path:"id"`
	File weft.FileUpload `form:"file"`
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func handleHealth(_ context.Context, _ *weft.Void) (*HealthResp, error) {
	return &HealthResp{Status: "ok", Time: time.Now()}, nil
}

func handleListNotes(_ context.Context, req *ListNotesReq) (*ListNotesResp, error) {
	notes := store.list(req.Tag)
	total := len(notes)

	if req.Offset > len(notes) {
		notes = nil
	} else {
		notes = notes[req.Offset:]
	}
	if req.Limit > 0 && req.Limit < len(notes) {
		notes = notes[:req.Limit]
	}

	return &ListNotesResp{Notes: notes, Total: total}, nil
}

func handleCreateNote(_ context.Context, req *CreateNoteReq) (*Note, error) {
	return store.create(req.Body.Title, req.Body.Text, req.Body.Tags), nil
}

func handleGetNote(_ context.Context, req *NoteByIDReq) (*Note, error) {
	note, ok := store.get(req.ID)
	if !ok {
		return nil, weft.Errorf(http.StatusNotFound, "note %s not found", req.ID)
	}
	return note, nil
}

func handleUpdateNote(_ context.Context, req *UpdateNoteReq) (*Note, error) {
	note, ok := store.update(req.ID, req.Body.Title, req.Body.Text)
	if !ok {
		return nil, weft.Errorf(http.StatusNotFound, "note %s not found", req.ID)
	}
	return note, nil
}

func handleDeleteNote(_ context.Context, req *NoteByIDReq) (*weft.Void, error) {
	if !store.delete(req.ID) {
		return nil, weft.Errorf(http.StatusNotFound, "note %s not found", req.ID)
	}
	return &weft.Void{}, nil
}

func handleAttachFile(_ context.Context, req *AttachFileReq) (*weft.Void, error) {
	if _, ok := store.get(req.ID); !ok {
		return nil, weft.Errorf(http.StatusNotFound, "note %s not found", req.ID)
	}

	rc, err := req.File.Open()
	if err != nil {
		return nil, weft.Errorf(http.StatusBadRequest, "open upload: %v", err)
	}
	defer func() {
		//nolint:errcheck,gosec // best-effort close
		rc.Close()
	}()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, weft.Errorf(http.StatusInternalServerError, "read upload: %v", err)
	}

	store.setFile(req.ID, data)
	return &weft.Void{}, nil
}

func handleDownloadFile(_ context.Context, req *NoteByIDReq) (*weft.Stream, error) {
	data, ok := store.getFile(req.ID)
	if !ok {
		return nil, weft.Errorf(http.StatusNotFound, "no file attached to note %s", req.ID)
	}

	return &weft.Stream{
		ContentType: "application/octet-stream",
		Status:      http.StatusOK,
		Body:        bytes.NewReader(data),
	}, nil
}

func handleEvents(ctx context.Context, _ *weft.Void) (*weft.SSEStream, error) {
	ch := make(chan weft.SSEEvent)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		i := 0
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				i++
				ch <- weft.SSEEvent{
					ID:    fmt.Sprintf("%d", i),
					Event: "tick",
					Data:  map[string]any{"time": t.Format(time.RFC3339), "seq": i},
				}
				if i >= 30 {
					return
				}
			}
		}
	}()

	return &weft.SSEStream{Events: ch}, nil
}
