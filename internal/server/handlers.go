package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/easygithub/easygithub/pkg/buildinfo"
	"github.com/easygithub/easygithub/pkg/diagram"
	"github.com/easygithub/easygithub/pkg/errors"
	"github.com/easygithub/easygithub/pkg/integrations/github"
	"github.com/easygithub/easygithub/pkg/pipeline"
	"github.com/easygithub/easygithub/pkg/storage"
	"github.com/easygithub/easygithub/pkg/storage/artifact"
)

const maxBodyBytes = 1 << 20

type generateRequest struct {
	RepoURL string `json:"repo_url"`
	Branch  string `json:"branch,omitempty"`
	Refresh bool   `json:"refresh,omitempty"`
}

type generateResponse struct {
	ID          string              `json:"id,omitempty"`
	Slug        string              `json:"slug,omitempty"`
	Repo        github.RepoRef      `json:"repo"`
	Branch      string              `json:"branch"`
	Model       string              `json:"model"`
	Explanation string              `json:"explanation"`
	Mapping     string              `json:"mapping"`
	Components  []diagram.Component `json:"components"`
	Mermaid     string              `json:"mermaid"`
	SVGURL      string              `json:"svg_url,omitempty"`
	Cache       pipeline.CacheInfo  `json:"cache"`
	Stats       pipeline.Stats      `json:"stats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, s.logger, errInvalidJSONBody)
		return
	}
	resp, err := s.generate(r.Context(), req, nil)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// generate runs the pipeline, persists the diagram and uploads the SVG
// component map when those backends are configured. A failed upload is
// logged and leaves SVGURL empty.
func (s *Server) generate(ctx context.Context, req generateRequest, obs pipeline.Observer) (*generateResponse, error) {
	if strings.TrimSpace(req.RepoURL) == "" {
		return nil, errMissingRepoURL
	}
	opts := pipeline.Options{
		RepoURL:        req.RepoURL,
		Branch:         req.Branch,
		Refresh:        req.Refresh,
		Formats:        []string{pipeline.FormatMermaid},
		MaxTreeLines:   s.opts.MaxTreeLines,
		MaxReadmeChars: s.opts.MaxReadmeChars,
		Logger:         s.logger,
		Observer:       obs,
	}
	if s.deps.Artifacts != nil {
		opts.Formats = append(opts.Formats, pipeline.FormatSVG)
	}

	res, err := s.deps.Pipeline.Execute(ctx, opts)
	if err != nil {
		return nil, err
	}

	resp := &generateResponse{
		Repo:        res.Repo,
		Branch:      res.Branch,
		Model:       res.Model,
		Explanation: res.Explanation,
		Mapping:     res.Mapping,
		Components:  res.Components,
		Mermaid:     res.Mermaid,
		Cache:       res.CacheInfo,
		Stats:       res.Stats,
	}

	if s.deps.Store != nil {
		d := &storage.Diagram{
			Owner:       res.Repo.Owner,
			Repo:        res.Repo.Repo,
			Branch:      res.Branch,
			Model:       res.Model,
			Explanation: res.Explanation,
			Mapping:     res.Mapping,
			Mermaid:     res.Mermaid,
		}
		if err := s.deps.Store.Save(ctx, d); err != nil {
			return nil, err
		}
		resp.ID, resp.Slug = d.ID, d.Slug
	}

	if svg, ok := res.Artifacts[pipeline.FormatSVG]; ok && s.deps.Artifacts != nil {
		name := resp.Slug
		if name == "" {
			name = res.Branch
		}
		key := artifact.Key(res.Repo.Owner, res.Repo.Repo, name+".svg")
		url, err := s.deps.Artifacts.Put(ctx, key, svg, "image/svg+xml")
		if err != nil {
			s.logger.Warn("store svg artifact", "key", key, "err", err)
		} else {
			resp.SVGURL = url
		}
	}
	return resp, nil
}

func (s *Server) handleListDiagrams(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, r, s.logger, errStoreDisabled)
		return
	}
	limit := storage.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, s.logger, errors.New(errors.ErrCodeInvalidInput, "limit must be an integer"))
			return
		}
		limit = storage.ClampLimit(n)
	}
	list, err := s.deps.Store.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if list == nil {
		list = []*storage.Diagram{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"diagrams": list})
}

func (s *Server) handleGetDiagram(w http.ResponseWriter, r *http.Request) {
	s.lookup(w, r, func(ctx context.Context, st storage.Store) (*storage.Diagram, error) {
		return st.Get(ctx, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleGetDiagramBySlug(w http.ResponseWriter, r *http.Request) {
	s.lookup(w, r, func(ctx context.Context, st storage.Store) (*storage.Diagram, error) {
		return st.GetBySlug(ctx, chi.URLParam(r, "slug"))
	})
}

func (s *Server) handleRepoDiagram(w http.ResponseWriter, r *http.Request) {
	ref, err := repoParam(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	s.lookup(w, r, func(ctx context.Context, st storage.Store) (*storage.Diagram, error) {
		return st.Latest(ctx, ref.Owner, ref.Repo)
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request, find func(context.Context, storage.Store) (*storage.Diagram, error)) {
	if s.deps.Store == nil {
		writeError(w, r, s.logger, errStoreDisabled)
		return
	}
	d, err := find(r.Context(), s.deps.Store)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDiagram(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, r, s.logger, errStoreDisabled)
		return
	}
	if err := s.deps.Store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type repoResponse struct {
	Info      *github.RepoInfo `json:"info"`
	Branch    string           `json:"branch"`
	Files     int              `json:"files"`
	Shown     int              `json:"shown"`
	Truncated bool             `json:"truncated"`
	Tree      *github.FileNode `json:"tree"`
}

func (s *Server) handleRepo(w http.ResponseWriter, r *http.Request) {
	ref, err := repoParam(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	depth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		depth, err = strconv.Atoi(v)
		if err != nil || depth < 0 {
			writeError(w, r, s.logger, errors.New(errors.ErrCodeInvalidInput, "depth must be a non-negative integer"))
			return
		}
	}

	info, err := s.deps.GitHub.RepoInfo(r.Context(), ref)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	tree, err := s.deps.GitHub.FileTree(r.Context(), ref)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	root := github.BuildFileTree(tree.Paths, depth)
	writeJSON(w, http.StatusOK, repoResponse{
		Info:      info,
		Branch:    tree.Branch,
		Files:     len(tree.Paths),
		Shown:     root.CountFiles(),
		Truncated: tree.Truncated,
		Tree:      root,
	})
}

func repoParam(r *http.Request) (github.RepoRef, error) {
	return github.ParseRepoURL(chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo"))
}
