package crawler

import (
	"fmt"
	"strings"
	"time"
)

// Platform names one of the independent identity spaces the crawler ingests.
type Platform string

// Supported platforms.
const (
	PlatformGitHub   Platform = "github"
	PlatformLinkedIn Platform = "linkedin"
)

// ParsePlatform normalizes a platform name.
func ParsePlatform(raw string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(raw))); p {
	case PlatformGitHub, PlatformLinkedIn:
		return p, nil
	default:
		return "", fmt.Errorf("unknown platform %q", raw)
	}
}

// Individual is a person node keyed by its platform handle.
type Individual struct {
	Platform       Platform `json:"platform"`
	Key            string   `json:"key"`
	Name           *string  `json:"name,omitempty"`
	ProfilePicture *string  `json:"profile_picture,omitempty"`
	Header         *string  `json:"header,omitempty"`
	Email          *string  `json:"email,omitempty"`
	// Websites is nil when unknown; an empty slice is a known empty list.
	Websites []string `json:"websites,omitempty"`
}

// Collection is a group node: a repository or an organization.
type Collection struct {
	Platform     Platform `json:"platform"`
	Key          string   `json:"key"`
	URL          *string  `json:"url,omitempty"`
	Name         *string  `json:"name,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Stars        *int     `json:"stars,omitempty"`
	Industry     *string  `json:"industry,omitempty"`
	CompanySize  *string  `json:"company_size,omitempty"`
	Headquarters *string  `json:"headquarters,omitempty"`
	Specialties  *string  `json:"specialties,omitempty"`
	Website      *string  `json:"website,omitempty"`
	Logo         *string  `json:"logo,omitempty"`
}

// MembershipAttrs are the optional edge attributes an adapter may report.
type MembershipAttrs struct {
	Weight    *int       `json:"weight,omitempty"`
	Role      *string    `json:"role,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// Membership links an Individual to a Collection within one platform.
type Membership struct {
	Platform      Platform `json:"platform"`
	IndividualKey string   `json:"individual_key"`
	CollectionKey string   `json:"collection_key"`
	MembershipAttrs
}

// CollectionRef is what an adapter reports when listing an individual's affiliations.
type CollectionRef struct {
	Key        string
	URL        string
	Membership MembershipAttrs
}

// Member is an individual discovered inside a collection along with its edge attributes.
type Member struct {
	Individual Individual
	Membership MembershipAttrs
}

// Outcome summarizes what a crawl wrote.
type Outcome struct {
	// SeedKey is the key the seed resolved to, which differs from the
	// requested key when a session crawls from its own identity.
	SeedKey         string `json:"seed_key,omitempty"`
	Individuals     int    `json:"individuals"`
	Collections     int    `json:"collections"`
	Memberships     int    `json:"memberships"`
	Skipped         int    `json:"skipped"`
	MaxDepthReached int    `json:"max_depth_reached"`
}

// RunStatus represents the lifecycle state of a crawl run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// IsTerminal reports whether the status is final.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCanceled
}

// Run represents the metadata persisted for each submitted crawl.
type Run struct {
	ID        string     `json:"id"`
	Platform  Platform   `json:"platform"`
	Seed      string     `json:"seed"`
	Account   string     `json:"account,omitempty"`
	MaxDepth  int        `json:"max_depth"`
	Status    RunStatus  `json:"status"`
	Submitted time.Time  `json:"submitted_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
	ErrorText string     `json:"error_text,omitempty"`
	Outcome   Outcome    `json:"outcome"`
}

// Seed is an identity registered for periodic re-crawl.
type Seed struct {
	Platform     Platform   `json:"platform"`
	Key          string     `json:"key"`
	Account      string     `json:"account,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
}

// CrawlRequest wraps a run ready to execute. An empty Seed asks the adapter
// for the session's own identity; Register adds the resolved seed to the
// re-crawl registry once the run succeeds.
type CrawlRequest struct {
	RunID     string
	Platform  Platform
	Seed      string
	Account   string
	MaxDepth  int
	Attempt   int
	Register  bool
	Submitted int64
}
