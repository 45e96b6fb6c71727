package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

type apiUser struct {
	Login     string  `json:"login"`
	Name      *string `json:"name"`
	AvatarURL string  `json:"avatar_url"`
	Bio       *string `json:"bio"`
	Email     *string `json:"email"`
	HTMLURL   string  `json:"html_url"`
	Blog      *string `json:"blog"`
}

type apiRepo struct {
	FullName    string  `json:"full_name"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Stars       int     `json:"stargazers_count"`
	HTMLURL     string  `json:"html_url"`
	Fork        bool    `json:"fork"`
}

type apiContributor struct {
	Login         string `json:"login"`
	AvatarURL     string `json:"avatar_url"`
	Contributions int    `json:"contributions"`
	Type          string `json:"type"`
}

type apiLogin struct {
	Login string `json:"login"`
}

type apiCommitSearch struct {
	TotalCount int `json:"total_count"`
	Items      []struct {
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
		Author *apiLogin `json:"author"`
	} `json:"items"`
}

type apiUserSearch struct {
	TotalCount int        `json:"total_count"`
	Items      []apiLogin `json:"items"`
}

type apiPull struct {
	User *apiLogin `json:"user"`
}

type apiCommit struct {
	Commit struct {
		Author struct {
			Email string `json:"email"`
		} `json:"author"`
	} `json:"commit"`
}

type apiError struct {
	Message string `json:"message"`
}

// StatusError is a non-2xx answer from the GitHub API.
type StatusError struct {
	Code        int
	URL         string
	Message     string
	RateLimited bool
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github %s: status %d", e.URL, e.Code)
	}
	return fmt.Sprintf("github %s: status %d: %s", e.URL, e.Code, e.Message)
}

// Retryable reports whether repeating the request can succeed.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError || e.RateLimited
}

// Unwrap maps statuses onto the crawler's sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound, http.StatusGone, http.StatusUnprocessableEntity:
		return crawler.ErrNotFound
	case http.StatusUnauthorized:
		return crawler.ErrNotAuthenticated
	default:
		return nil
	}
}

func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// nextLink extracts the rel="next" target from an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			param = strings.TrimSpace(param)
			if param == `rel="next"` || param == "rel=next" {
				return strings.TrimSuffix(strings.TrimPrefix(target, "<"), ">")
			}
		}
	}
	return ""
}
