package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
	"github.com/JakeFAU/netgraph-crawler/internal/id/uuid"
	"github.com/JakeFAU/netgraph-crawler/internal/network"
	"github.com/JakeFAU/netgraph-crawler/internal/submit"
	"github.com/JakeFAU/netgraph-crawler/internal/vault"
)

// Run outcomes as reported to callers.
const (
	resultSuccess = "success"
	resultFail    = "fail"
	resultPending = "pending"
)

type runResponse struct {
	Run    crawler.Run `json:"run"`
	Result string      `json:"result"`
}

func newRunResponse(run crawler.Run) runResponse {
	result := resultPending
	switch run.Status {
	case crawler.RunStatusSucceeded:
		result = resultSuccess
	case crawler.RunStatusFailed, crawler.RunStatusCanceled:
		result = resultFail
	}
	return runResponse{Run: run, Result: result}
}

func (s *Server) createGitHub(w http.ResponseWriter, r *http.Request) {
	var req githubCreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	login := strings.TrimSpace(req.Username)
	if req.Token != "" {
		if !s.storeCredential(w, crawler.PlatformGitHub, login, vault.Credential{Username: login, Secret: req.Token}) {
			return
		}
	}
	s.submit(w, r, submit.Request{
		Platform: crawler.PlatformGitHub,
		Seed:     login,
		Account:  login,
		MaxDepth: req.MaxDepth,
		Register: true,
	})
}

func (s *Server) syncGitHub(w http.ResponseWriter, r *http.Request) {
	req, err := parseSync(r, chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account := req.Account
	if account == "" {
		account = req.Username
	}
	s.submit(w, r, submit.Request{
		Platform: crawler.PlatformGitHub,
		Seed:     req.Username,
		Account:  account,
		MaxDepth: req.MaxDepth,
	})
}

// createLinkedIn stores the member's credentials and crawls outward from the
// identity the session signs in as.
func (s *Server) createLinkedIn(w http.ResponseWriter, r *http.Request) {
	var req linkedinCreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account := strings.TrimSpace(req.Username)
	if !s.storeCredential(w, crawler.PlatformLinkedIn, account, vault.Credential{Username: account, Secret: req.Password}) {
		return
	}
	s.submit(w, r, submit.Request{
		Platform: crawler.PlatformLinkedIn,
		Account:  account,
		MaxDepth: req.MaxDepth,
		Register: true,
	})
}

func (s *Server) syncLinkedIn(w http.ResponseWriter, r *http.Request) {
	req, err := parseSync(r, chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account := req.Account
	if account == "" && s.deps.Credentials != nil {
		if accounts := s.deps.Credentials.Accounts(crawler.PlatformLinkedIn); len(accounts) > 0 {
			account = accounts[0]
		}
	}
	s.submit(w, r, submit.Request{
		Platform: crawler.PlatformLinkedIn,
		Seed:     req.Username,
		Account:  account,
		MaxDepth: req.MaxDepth,
	})
}

func (s *Server) storeCredential(w http.ResponseWriter, platform crawler.Platform, account string, cred vault.Credential) bool {
	if s.deps.Credentials == nil {
		writeError(w, http.StatusServiceUnavailable, "credential vault unavailable")
		return false
	}
	if err := s.deps.Credentials.Put(platform, account, cred); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, req submit.Request) {
	run, err := s.deps.Submitter.Submit(r.Context(), req)
	if err != nil {
		s.logger.Error("submit run failed",
			zap.String("platform", string(req.Platform)),
			zap.String("seed", req.Seed),
			zap.Error(err),
		)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, newRunResponse(run))
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	run, err := s.deps.Runs.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, statusFor(err), "run not found")
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(run))
}

func (s *Server) listIndividuals(platform crawler.Platform, field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.deps.Graph.ListIndividuals(r.Context(), platform)
		if err != nil {
			s.logger.Error("list individuals failed", zap.String("platform", string(platform)), zap.Error(err))
			writeError(w, statusFor(err), "failed to list individuals")
			return
		}
		if list == nil {
			list = []crawler.Individual{}
		}
		writeJSON(w, http.StatusOK, map[string]any{field: list})
	}
}

func (s *Server) listCollections(platform crawler.Platform, field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.deps.Graph.ListCollections(r.Context(), platform)
		if err != nil {
			s.logger.Error("list collections failed", zap.String("platform", string(platform)), zap.Error(err))
			writeError(w, statusFor(err), "failed to list collections")
			return
		}
		if list == nil {
			list = []crawler.Collection{}
		}
		writeJSON(w, http.StatusOK, map[string]any{field: list})
	}
}

func (s *Server) resolveEmail(w http.ResponseWriter, r *http.Request) {
	if s.deps.Resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "email resolution unavailable")
		return
	}
	req := resolveRequest{Email: strings.TrimSpace(r.URL.Query().Get("email"))}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	login, err := s.deps.Resolver.ResolveIndividualByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": req.Email, "username": login})
}

func (s *Server) getNetwork(w http.ResponseWriter, r *http.Request) {
	if s.deps.Network == nil {
		writeError(w, http.StatusServiceUnavailable, "network view unavailable")
		return
	}
	q := r.URL.Query()
	req := networkRequest{
		GitHub:   strings.TrimSpace(q.Get("github")),
		LinkedIn: strings.TrimSpace(q.Get("linkedin")),
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := s.deps.Network.Build(r.Context(), network.Roots{GitHub: req.GitHub, LinkedIn: req.LinkedIn})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}
