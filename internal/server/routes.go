// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package server

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"path"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/vignette-dev/vignette/internal/analyzer"
	"github.com/vignette-dev/vignette/internal/generator"
	"github.com/vignette-dev/vignette/internal/index"
	"github.com/vignette-dev/vignette/internal/media"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

// maxUploadBytes caps multipart uploads at 32 MB.
const maxUploadBytes = 32 << 20

// RegisterServices sets the service dependencies and registers all routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
	s.registerRawRoutes()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Index statistics",
		Tags:        []string{"index"},
	}, s.handleStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-categories",
		Method:      http.MethodGet,
		Path:        "/api/v1/categories",
		Summary:     "List library categories",
		Tags:        []string{"index"},
	}, s.handleListCategories)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-images",
		Method:      http.MethodGet,
		Path:        "/api/v1/images",
		Summary:     "List indexed images",
		Tags:        []string{"index"},
	}, s.handleListImages)

	huma.Register(s.api, huma.Operation{
		OperationID: "reindex",
		Method:      http.MethodPost,
		Path:        "/api/v1/reindex",
		Summary:     "Rebuild the similarity index",
		Tags:        []string{"index"},
	}, s.handleReindex)

	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodPost,
		Path:        "/api/v1/search",
		Summary:     "Find reference thumbnails similar to a topic or image",
		Tags:        []string{"search"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "analyze",
		Method:      http.MethodPost,
		Path:        "/api/v1/analyze",
		Summary:     "Analyze a reference thumbnail for a new topic",
		Tags:        []string{"analysis"},
	}, s.handleAnalyze)

	huma.Register(s.api, huma.Operation{
		OperationID: "generate",
		Method:      http.MethodPost,
		Path:        "/api/v1/generate",
		Summary:     "Generate a new thumbnail from a prompt",
		Tags:        []string{"generation"},
	}, s.handleGenerate)

	huma.Register(s.api, huma.Operation{
		OperationID: "gallery",
		Method:      http.MethodGet,
		Path:        "/api/v1/gallery",
		Summary:     "List generated thumbnails",
		Tags:        []string{"generation"},
	}, s.handleGallery)
}

// --- Request/Response types for huma ---

// StatsBody extends the index statistics with service-level counters.
type StatsBody struct {
	index.Stats
	Generated          int      `json:"generated"`
	AnalysisBackend    string   `json:"analysis_backend,omitempty"`
	GenerationServices []string `json:"generation_services,omitempty"`
}

type statsOutput struct {
	Body StatsBody
}

type listCategoriesOutput struct {
	Body struct {
		Categories []string `json:"categories"`
	}
}

// ImageInfo is one indexed library image.
type ImageInfo struct {
	Path     string `json:"path"`
	Category string `json:"category,omitempty"`
	URL      string `json:"url"`
}

type listImagesOutput struct {
	Body struct {
		Images []ImageInfo `json:"images"`
	}
}

type reindexOutput struct {
	Body struct {
		Indexed int `json:"indexed"`
	}
}

// SearchResult is one search match.
type SearchResult struct {
	Path     string  `json:"path"`
	Category string  `json:"category,omitempty"`
	Score    float64 `json:"score"`
	URL      string  `json:"url"`
}

type searchInput struct {
	Body struct {
		Topic    string `json:"topic,omitempty" doc:"Video topic to search by"`
		POV      string `json:"pov,omitempty" doc:"Optional narrative perspective"`
		Upload   string `json:"upload,omitempty" doc:"Uploaded reference file name to search by instead of a topic"`
		Category string `json:"category,omitempty" doc:"Restrict matches to one category"`
		K        int    `json:"k,omitempty" minimum:"0" doc:"Number of matches to return"`
	}
}
type searchOutput struct {
	Body struct {
		Results []SearchResult `json:"results"`
	}
}

type analyzeInput struct {
	Body struct {
		Image  string `json:"image,omitempty" doc:"Library-relative path of the reference thumbnail"`
		Upload string `json:"upload,omitempty" doc:"Uploaded reference file name"`
		Topic  string `json:"topic" minLength:"1" doc:"New video topic"`
		POV    string `json:"pov,omitempty" doc:"Optional narrative perspective"`
	}
}
type analyzeOutput struct {
	Body analyzer.Analysis
}

type generateInput struct {
	Body struct {
		Prompt    string `json:"prompt" minLength:"1" doc:"Image generation prompt"`
		Topic     string `json:"topic,omitempty" doc:"Video topic, drives the output file name"`
		Service   string `json:"service,omitempty" doc:"Generation service, empty uses the default"`
		Reference string `json:"reference,omitempty" doc:"Library-relative path of a style reference"`
		Upload    string `json:"upload,omitempty" doc:"Uploaded reference file name used as style reference"`
	}
}

// GeneratedImage describes a finished generation.
type GeneratedImage struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Service  string `json:"service"`
	Model    string `json:"model"`
}

type generateOutput struct {
	Body GeneratedImage
}

type galleryImage struct {
	media.GalleryItem
	URL string `json:"url"`
}

type galleryOutput struct {
	Body struct {
		Images []galleryImage `json:"images"`
	}
}

// --- Handlers ---

// apiError maps a service error onto a huma status error using its code.
func apiError(err error, msg string) error {
	return huma.NewError(vgerr.HTTPStatus(err), msg, err)
}

func (s *Server) handleStats(_ context.Context, _ *struct{}) (*statsOutput, error) {
	body := StatsBody{
		Stats:              s.services.Index.Stats(),
		AnalysisBackend:    s.services.Analyzer.Backend(),
		GenerationServices: s.services.Generator.Services(),
	}
	// Gallery failures degrade to a zero count; stats must stay available.
	if items, err := s.services.Media.Gallery(); err == nil {
		body.Generated = len(items)
	}
	return &statsOutput{Body: body}, nil
}

func (s *Server) handleListCategories(_ context.Context, _ *struct{}) (*listCategoriesOutput, error) {
	out := &listCategoriesOutput{}
	out.Body.Categories = s.services.Index.Categories()
	return out, nil
}

func (s *Server) handleListImages(_ context.Context, _ *struct{}) (*listImagesOutput, error) {
	snap := s.services.Index.Snapshot()
	if snap == nil {
		return nil, huma.Error503ServiceUnavailable("index not ready")
	}

	out := &listImagesOutput{}
	for _, rec := range snap.Records() {
		out.Body.Images = append(out.Body.Images, ImageInfo{
			Path:     rec.Path,
			Category: rec.Category,
			URL:      thumbnailURL(rec.Path),
		})
	}
	return out, nil
}

func (s *Server) handleReindex(ctx context.Context, _ *struct{}) (*reindexOutput, error) {
	n, err := s.services.Index.Rebuild(ctx)
	if err != nil {
		return nil, apiError(err, "rebuilding index")
	}
	out := &reindexOutput{}
	out.Body.Indexed = n
	return out, nil
}

func (s *Server) handleSearch(ctx context.Context, input *searchInput) (*searchOutput, error) {
	q := index.SearchQuery{
		Category: input.Body.Category,
		K:        input.Body.K,
	}

	switch {
	case input.Body.Upload != "":
		abs, err := s.services.Media.ResolveUpload(input.Body.Upload)
		if err != nil {
			return nil, apiError(err, "resolving uploaded reference")
		}
		q.ImagePath = abs
	case input.Body.Topic != "":
		q.Text = index.QueryText(input.Body.Topic, input.Body.POV)
	default:
		return nil, huma.Error400BadRequest("either topic or upload is required")
	}

	results, err := s.services.Index.Search(ctx, q)
	if err != nil {
		return nil, apiError(err, "searching index")
	}

	out := &searchOutput{}
	out.Body.Results = make([]SearchResult, 0, len(results))
	for _, r := range results {
		out.Body.Results = append(out.Body.Results, SearchResult{
			Path:     r.Record.Path,
			Category: r.Record.Category,
			Score:    r.Score,
			URL:      thumbnailURL(r.Record.Path),
		})
	}
	return out, nil
}

func (s *Server) handleAnalyze(ctx context.Context, input *analyzeInput) (*analyzeOutput, error) {
	abs, err := s.resolveReference(input.Body.Image, input.Body.Upload)
	if err != nil {
		return nil, err
	}

	analysis, err := s.services.Analyzer.Analyze(ctx, analyzer.Request{
		ImagePath: abs,
		Topic:     input.Body.Topic,
		POV:       input.Body.POV,
	})
	if err != nil {
		return nil, apiError(err, "analyzing thumbnail")
	}

	return &analyzeOutput{Body: *analysis}, nil
}

func (s *Server) handleGenerate(ctx context.Context, input *generateInput) (*generateOutput, error) {
	req := generator.Request{
		Prompt:  input.Body.Prompt,
		Topic:   input.Body.Topic,
		Service: input.Body.Service,
	}

	if input.Body.Reference != "" || input.Body.Upload != "" {
		abs, err := s.resolveReference(input.Body.Reference, input.Body.Upload)
		if err != nil {
			return nil, err
		}
		req.ReferencePath = abs
	}

	result, err := s.services.Generator.Generate(ctx, req)
	if err != nil {
		return nil, apiError(err, "generating thumbnail")
	}

	return &generateOutput{Body: GeneratedImage{
		Filename: result.Filename,
		URL:      "/generated/" + result.Filename,
		Service:  result.Service,
		Model:    result.Model,
	}}, nil
}

func (s *Server) handleGallery(_ context.Context, _ *struct{}) (*galleryOutput, error) {
	items, err := s.services.Media.Gallery()
	if err != nil {
		return nil, apiError(err, "listing gallery")
	}

	out := &galleryOutput{}
	out.Body.Images = make([]galleryImage, 0, len(items))
	for _, item := range items {
		out.Body.Images = append(out.Body.Images, galleryImage{
			GalleryItem: item,
			URL:         "/generated/" + item.Filename,
		})
	}
	return out, nil
}

// resolveReference maps either a library-relative image path or an uploaded
// file name to an absolute path. Exactly one must be set.
func (s *Server) resolveReference(image, upload string) (string, error) {
	switch {
	case image != "" && upload != "":
		return "", huma.Error400BadRequest("image and upload are mutually exclusive")
	case image != "":
		abs, err := s.services.Media.ResolveThumbnail(image)
		if err != nil {
			return "", apiError(err, "resolving library image")
		}
		return abs, nil
	case upload != "":
		abs, err := s.services.Media.ResolveUpload(upload)
		if err != nil {
			return "", apiError(err, "resolving uploaded reference")
		}
		return abs, nil
	default:
		return "", huma.Error400BadRequest("either image or upload is required")
	}
}

func thumbnailURL(rel string) string {
	return "/thumbnails/" + path.Clean(rel)
}

// --- Raw chi routes ---
//
// File serving and multipart uploads bypass huma; they deal in bytes and
// form data rather than JSON schemas.

func (s *Server) registerRawRoutes() {
	s.router.Get("/thumbnails/*", s.handleServeThumbnail)
	s.router.Get("/generated/{name}", s.handleServeGenerated)
	s.router.Get("/download/{name}", s.handleDownload)
	s.router.Post("/api/v1/uploads/reference", s.handleUploadReference)
	s.router.Post("/api/v1/uploads/thumbnails", s.handleUploadThumbnail)
}

func (s *Server) handleServeThumbnail(w http.ResponseWriter, r *http.Request) {
	abs, err := s.services.Media.ResolveThumbnail(chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, err)
		return
	}
	http.ServeFile(w, r, abs)
}

func (s *Server) handleServeGenerated(w http.ResponseWriter, r *http.Request) {
	abs, err := s.services.Media.ResolveGenerated(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	http.ServeFile(w, r, abs)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	abs, err := s.services.Media.ResolveGenerated(name)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, abs)
}

func (s *Server) handleUploadReference(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.openUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer file.Close()

	abs, err := s.services.Media.SaveReference(header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"filename": path.Base(abs),
	})
}

func (s *Server) handleUploadThumbnail(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.openUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer file.Close()

	rel, err := s.services.Media.SaveThumbnail(r.FormValue("category"), header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"path": rel,
		"url":  thumbnailURL(rel),
	})
}

func (s *Server) openUpload(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, vgerr.Wrap(err, vgerr.CodeMediaUploadInvalid, "parsing multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, vgerr.Wrap(err, vgerr.CodeMediaUploadInvalid, "missing file field")
	}
	return file, header, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, vgerr.HTTPStatus(err), map[string]string{"error": err.Error()})
}
