// Package network assembles the stored graph around a person into the
// node/group view the UI renders, and exports it as JSON snapshots.
package network

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

// DefaultMaxOrder is how many co-membership hops are expanded from a root.
const DefaultMaxOrder = 2

// Node is one person in the view.
type Node struct {
	ID              int              `json:"id"`
	Platform        crawler.Platform `json:"platform"`
	IsLinkedIn      bool             `json:"is_linkedin"`
	Username        string           `json:"username"`
	Name            *string          `json:"individual_name,omitempty"`
	Header          *string          `json:"header,omitempty"`
	Email           *string          `json:"email,omitempty"`
	ProfilePicture  *string          `json:"profile_picture,omitempty"`
	Link            string           `json:"link"`
	ConnectionOrder int              `json:"connection_order"`
	// GroupID is the last group the node was seen in; GroupIDs lists all of them.
	GroupID       string   `json:"group_id,omitempty"`
	GroupIDs      []string `json:"group_ids"`
	Corresponding []int    `json:"corresponding_user_nodes"`
}

// Group is a repository or organization in the view.
type Group struct {
	ID           string           `json:"id"`
	Platform     crawler.Platform `json:"platform"`
	IsLinkedIn   bool             `json:"is_linkedin"`
	Name         *string          `json:"name,omitempty"`
	Description  *string          `json:"description,omitempty"`
	Link         *string          `json:"link,omitempty"`
	Logo         *string          `json:"logo,omitempty"`
	Stars        *int             `json:"stars,omitempty"`
	Industry     *string          `json:"industry,omitempty"`
	CompanySize  *string          `json:"company_size,omitempty"`
	Headquarters *string          `json:"headquarters,omitempty"`
	Specialties  *string          `json:"specialties,omitempty"`
}

// Network is the rendered view.
type Network struct {
	Nodes  []Node  `json:"nodes"`
	Groups []Group `json:"groups"`
}

// Roots names the identities a view starts from. Either may be empty.
type Roots struct {
	GitHub   string
	LinkedIn string
}

// Builder reads the stored graph. The email resolver is optional; without it
// LinkedIn nodes are cross-linked only to GitHub individuals stored with the same email.
type Builder struct {
	graph    crawler.GraphReader
	resolver crawler.EmailResolver
	maxOrder int
	logger   *zap.Logger
}

// NewBuilder constructs a Builder. maxOrder <= 0 selects DefaultMaxOrder.
func NewBuilder(graph crawler.GraphReader, resolver crawler.EmailResolver, maxOrder int, logger *zap.Logger) *Builder {
	if maxOrder <= 0 {
		maxOrder = DefaultMaxOrder
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{graph: graph, resolver: resolver, maxOrder: maxOrder, logger: logger}
}

type nodeKey struct {
	platform crawler.Platform
	key      string
}

type build struct {
	b      *Builder
	out    Network
	nodes  map[nodeKey]int
	groups map[nodeKey]struct{}
}

// Build walks outward from the roots. LinkedIn is processed first so GitHub
// nodes reached through an email cross-link keep the LinkedIn node's order.
func (b *Builder) Build(ctx context.Context, roots Roots) (Network, error) {
	st := &build{
		b:      b,
		out:    Network{Nodes: make([]Node, 0), Groups: make([]Group, 0)},
		nodes:  make(map[nodeKey]int),
		groups: make(map[nodeKey]struct{}),
	}
	if roots.LinkedIn != "" {
		if _, err := st.root(ctx, crawler.PlatformLinkedIn, roots.LinkedIn); err != nil {
			return Network{}, err
		}
	}
	if roots.GitHub != "" {
		if _, err := st.root(ctx, crawler.PlatformGitHub, roots.GitHub); err != nil {
			return Network{}, err
		}
	}
	return st.out, nil
}

func (st *build) root(ctx context.Context, platform crawler.Platform, key string) (int, error) {
	ind, err := st.b.graph.GetIndividual(ctx, platform, key)
	if err != nil {
		return -1, fmt.Errorf("load %s root %q: %w", platform, key, err)
	}
	return st.process(ctx, ind, 0)
}

// process adds ind and its groups, returning the node id. Already-processed
// individuals return their existing id.
func (st *build) process(ctx context.Context, ind crawler.Individual, order int) (int, error) {
	k := nodeKey{ind.Platform, ind.Key}
	if id, ok := st.nodes[k]; ok {
		return id, nil
	}
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	id := len(st.out.Nodes)
	st.nodes[k] = id
	st.out.Nodes = append(st.out.Nodes, Node{
		ID:              id,
		Platform:        ind.Platform,
		IsLinkedIn:      ind.Platform == crawler.PlatformLinkedIn,
		Username:        ind.Key,
		Name:            ind.Name,
		Header:          ind.Header,
		Email:           ind.Email,
		ProfilePicture:  ind.ProfilePicture,
		Link:            profileLink(ind.Platform, ind.Key),
		ConnectionOrder: order,
		GroupIDs:        make([]string, 0),
		Corresponding:   make([]int, 0),
	})

	if ind.Platform == crawler.PlatformLinkedIn && ind.Email != nil {
		if err := st.crossLink(ctx, id, *ind.Email, order); err != nil {
			return -1, err
		}
	}

	edges, err := st.b.graph.MembershipsOf(ctx, ind.Platform, ind.Key)
	if err != nil {
		return -1, fmt.Errorf("memberships of %s: %w", ind.Key, err)
	}
	for _, edge := range edges {
		col, err := st.b.graph.GetCollection(ctx, ind.Platform, edge.CollectionKey)
		if errors.Is(err, crawler.ErrNotFound) {
			continue
		}
		if err != nil {
			return -1, fmt.Errorf("collection %s: %w", edge.CollectionKey, err)
		}
		st.addGroup(col)
		node := &st.out.Nodes[id]
		node.GroupID = col.Key
		node.GroupIDs = append(node.GroupIDs, col.Key)

		if order >= st.b.maxOrder {
			continue
		}
		members, err := st.b.graph.MembersOf(ctx, ind.Platform, col.Key)
		if err != nil {
			return -1, fmt.Errorf("members of %s: %w", col.Key, err)
		}
		for _, m := range members {
			if _, seen := st.nodes[nodeKey{ind.Platform, m.IndividualKey}]; seen {
				continue
			}
			other, err := st.b.graph.GetIndividual(ctx, ind.Platform, m.IndividualKey)
			if errors.Is(err, crawler.ErrNotFound) {
				continue
			}
			if err != nil {
				return -1, fmt.Errorf("individual %s: %w", m.IndividualKey, err)
			}
			if _, err := st.process(ctx, other, order+1); err != nil {
				return -1, err
			}
		}
	}
	return id, nil
}

// crossLink connects a LinkedIn node to the stored GitHub individual its email belongs to.
// Resolution failures only mean no link.
func (st *build) crossLink(ctx context.Context, linkedInID int, email string, order int) error {
	gh, ok := st.githubByEmail(ctx, email)
	if !ok {
		return nil
	}
	ghID, err := st.process(ctx, gh, order)
	if err != nil {
		return err
	}
	st.out.Nodes[linkedInID].Corresponding = appendUnique(st.out.Nodes[linkedInID].Corresponding, ghID)
	st.out.Nodes[ghID].Corresponding = appendUnique(st.out.Nodes[ghID].Corresponding, linkedInID)
	return nil
}

func (st *build) githubByEmail(ctx context.Context, email string) (crawler.Individual, bool) {
	if ind, err := st.b.graph.FindIndividualByEmail(ctx, crawler.PlatformGitHub, email); err == nil {
		return ind, true
	}
	if st.b.resolver == nil {
		return crawler.Individual{}, false
	}
	login, err := st.b.resolver.ResolveIndividualByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, crawler.ErrUnresolvedEmail) {
			st.b.logger.Debug("email resolution failed", zap.String("email", email), zap.Error(err))
		}
		return crawler.Individual{}, false
	}
	ind, err := st.b.graph.GetIndividual(ctx, crawler.PlatformGitHub, login)
	if err != nil {
		return crawler.Individual{}, false
	}
	return ind, true
}

func (st *build) addGroup(col crawler.Collection) {
	k := nodeKey{col.Platform, col.Key}
	if _, ok := st.groups[k]; ok {
		return
	}
	st.groups[k] = struct{}{}
	g := Group{
		ID:           col.Key,
		Platform:     col.Platform,
		IsLinkedIn:   col.Platform == crawler.PlatformLinkedIn,
		Name:         col.Name,
		Description:  col.Description,
		Logo:         col.Logo,
		Stars:        col.Stars,
		Industry:     col.Industry,
		CompanySize:  col.CompanySize,
		Headquarters: col.Headquarters,
		Specialties:  col.Specialties,
		Link:         col.Website,
	}
	if col.Platform == crawler.PlatformGitHub {
		if g.Name == nil {
			g.Name = crawler.StrPtr(col.Key[strings.LastIndex(col.Key, "/")+1:])
		}
		g.Link = crawler.StrPtr("https://github.com/" + col.Key)
	}
	if g.Link == nil {
		g.Link = col.URL
	}
	st.out.Groups = append(st.out.Groups, g)
}

func profileLink(platform crawler.Platform, key string) string {
	if platform == crawler.PlatformLinkedIn {
		return "https://www.linkedin.com/in/" + key + "/"
	}
	return "https://github.com/" + key
}

func appendUnique(ids []int, id int) []int {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
