// Package mcpserver exposes the indexing core's search capability to AI
// clients over the Model Context Protocol, per §6.4.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"docsmcp/internal/embeddings"
	"docsmcp/internal/metadatastore"
	"docsmcp/internal/vectorstore"
)

// ListSitesInput takes no parameters; it exists so the tool has a typed
// input schema consistent with the rest of the surface.
type ListSitesInput struct{}

// SiteSummary describes one completed site for list_sites.
type SiteSummary struct {
	ID          int64  `json:"id" jsonschema:"site's numeric id"`
	Name        string `json:"name" jsonschema:"site display name"`
	Version     string `json:"version" jsonschema:"site version label"`
	URL         string `json:"url" jsonschema:"base url that was crawled"`
	Status      string `json:"status" jsonschema:"crawl/index status"`
	IndexedDate string `json:"indexed_date,omitempty" jsonschema:"RFC3339 timestamp of completion"`
	PageCount   int    `json:"page_count" jsonschema:"number of pages indexed"`
}

// ListSitesOutput wraps the site summaries returned by list_sites.
type ListSitesOutput struct {
	Sites []SiteSummary `json:"sites" jsonschema:"completed, searchable sites"`
}

// SearchDocsInput is the input schema for search_docs.
type SearchDocsInput struct {
	Query       string  `json:"query" jsonschema:"natural-language search query"`
	SiteID      int64   `json:"site_id,omitempty" jsonschema:"restrict results to a single site id"`
	SitesFilter []int64 `json:"sites_filter,omitempty" jsonschema:"restrict results to these site ids"`
	Limit       int     `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchDocsResult is one ranked chunk returned by search_docs.
type SearchDocsResult struct {
	Content        string  `json:"content" jsonschema:"matched chunk text"`
	URL            string  `json:"url" jsonschema:"page the chunk was indexed from"`
	PageTitle      string  `json:"page_title" jsonschema:"title of the source page"`
	HeadingPath    string  `json:"heading_path" jsonschema:"breadcrumb of headings leading to the chunk"`
	SiteName       string  `json:"site_name" jsonschema:"name of the owning site"`
	SiteVersion    string  `json:"site_version" jsonschema:"version of the owning site"`
	RelevanceScore float32 `json:"relevance_score" jsonschema:"cosine similarity, higher is more relevant"`
}

// SearchDocsOutput wraps the ranked results returned by search_docs.
type SearchDocsOutput struct {
	Results []SearchDocsResult `json:"results" jsonschema:"ranked matching chunks"`
}

// Server bridges the metadata store, vector store, and embedding client to
// an MCP tool surface.
type Server struct {
	mcp      *mcp.Server
	store    *metadatastore.Store
	vectors  *vectorstore.Store
	embedder *embeddings.Client
	log      *logrus.Logger
}

// New builds a Server and registers its tools.
func New(store *metadatastore.Store, vectors *vectorstore.Store, embedder *embeddings.Client, version string, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	s := &Server{store: store, vectors: vectors, embedder: embedder, log: log}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "docsmcp", Version: version}, nil)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_sites",
		Description: "List documentation sites that have finished indexing and are ready to search.",
	}, s.handleListSites)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_docs",
		Description: "Semantic search over indexed documentation. Returns ranked chunks with their section heading path.",
	}, s.handleSearchDocs)

	s.log.WithField("tools", []string{"list_sites", "search_docs"}).Info("mcp tools registered")
}

func (s *Server) handleListSites(ctx context.Context, _ *mcp.CallToolRequest, _ ListSitesInput) (*mcp.CallToolResult, ListSitesOutput, error) {
	sites, err := s.store.ListSitesByStatus(ctx, metadatastore.SiteStatusCompleted)
	if err != nil {
		s.log.WithError(err).Warn("list_sites failed")
		return nil, ListSitesOutput{}, err
	}

	out := ListSitesOutput{Sites: make([]SiteSummary, 0, len(sites))}
	for _, site := range sites {
		summary := SiteSummary{
			ID:        site.ID,
			Name:      site.Name,
			Version:   site.Version,
			URL:       site.BaseURL,
			Status:    site.Status,
			PageCount: site.IndexedPages,
		}
		if site.IndexedDate.Valid {
			summary.IndexedDate = site.IndexedDate.Time.Format("2006-01-02T15:04:05Z07:00")
		}
		out.Sites = append(out.Sites, summary)
	}
	return nil, out, nil
}

func (s *Server) handleSearchDocs(ctx context.Context, _ *mcp.CallToolRequest, input SearchDocsInput) (*mcp.CallToolResult, SearchDocsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	queryVec, err := s.embedder.Embed(ctx, input.Query)
	if err != nil {
		s.log.WithError(err).WithField("query", input.Query).Warn("search_docs embedding failed")
		return nil, SearchDocsOutput{}, err
	}

	var siteFilter *int64
	if input.SiteID != 0 {
		siteFilter = &input.SiteID
	}

	hits, err := s.vectors.Search(queryVec, limit, siteFilter)
	if err != nil {
		return nil, SearchDocsOutput{}, err
	}

	out := SearchDocsOutput{Results: make([]SearchDocsResult, 0, len(hits))}
	siteNames := map[int64]*metadatastore.Site{}
	for _, hit := range hits {
		if len(input.SitesFilter) > 0 && !containsSite(input.SitesFilter, hit.SiteID) {
			continue
		}

		site, ok := siteNames[hit.SiteID]
		if !ok {
			site, err = s.store.GetSiteByID(ctx, hit.SiteID)
			if err != nil {
				site = &metadatastore.Site{}
			}
			siteNames[hit.SiteID] = site
		}

		out.Results = append(out.Results, SearchDocsResult{
			Content:        hit.Content,
			URL:            hit.PageURL,
			PageTitle:      hit.PageTitle,
			HeadingPath:    hit.HeadingPath,
			SiteName:       site.Name,
			SiteVersion:    site.Version,
			RelevanceScore: hit.Similarity,
		})
	}
	return nil, out, nil
}

func containsSite(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Run serves the MCP protocol over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}
