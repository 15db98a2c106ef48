// Package consistency implements the consistency validator (C13): set
// reconciliation between the metadata store's chunk records and the vector
// store's embeddings, plus repair operations, per §4.13.
package consistency

import (
	"context"

	"github.com/sirupsen/logrus"

	"docsmcp/internal/chunker"
	"docsmcp/internal/embeddings"
	"docsmcp/internal/metadatastore"
	"docsmcp/internal/vectorstore"
)

// Report summarizes the result of one validation pass.
type Report struct {
	SQLiteChunks      int
	VecEmbeddings     int
	MissingInVec      []string
	OrphanedInVec     []string
	InconsistentSites []int64
	IsConsistent      bool
}

// Validator compares the metadata store's authoritative chunk set against
// the vector store's actual contents.
type Validator struct {
	store    *metadatastore.Store
	vectors  *vectorstore.Store
	embedder *embeddings.Client
	chunker  chunker.Config
	log      *logrus.Logger
}

// New builds a Validator over store and vectors. embedder is only needed
// for RegenerateMissing; pass a nil embedder if repair is never invoked.
// chunkerCfg is stored but not read by any method.
func New(store *metadatastore.Store, vectors *vectorstore.Store, embedder *embeddings.Client, chunkerCfg chunker.Config, log *logrus.Logger) *Validator {
	if log == nil {
		log = logrus.New()
	}
	return &Validator{store: store, vectors: vectors, embedder: embedder, chunker: chunkerCfg, log: log}
}

// Validate computes the Report for the current state of both stores.
func (v *Validator) Validate(ctx context.Context) (*Report, error) {
	m, err := v.completedVectorIDs(ctx)
	if err != nil {
		return nil, err
	}
	vSet := v.vectors.AllVectorIDs()

	report := &Report{
		SQLiteChunks:  len(m),
		VecEmbeddings: len(vSet),
	}

	for id := range m {
		if !vSet[id] {
			report.MissingInVec = append(report.MissingInVec, id)
		}
	}
	for id := range vSet {
		if !m[id] {
			report.OrphanedInVec = append(report.OrphanedInVec, id)
		}
	}

	if len(report.MissingInVec) > 0 || len(report.OrphanedInVec) > 0 {
		sites, err := v.sitesForVectorIDs(ctx, append(append([]string{}, report.MissingInVec...), report.OrphanedInVec...))
		if err != nil {
			return nil, err
		}
		report.InconsistentSites = sites
	}

	report.IsConsistent = len(report.MissingInVec) == 0 && len(report.OrphanedInVec) == 0
	return report, nil
}

// completedVectorIDs collects the vector_id set "M": every chunk recorded
// in the metadata store for a site that has finished indexing. In-flight
// sites are excluded since their chunk/vector pairs are naturally
// out-of-sync mid-run.
func (v *Validator) completedVectorIDs(ctx context.Context) (map[string]bool, error) {
	sites, err := v.store.ListSitesByStatus(ctx, metadatastore.SiteStatusCompleted)
	if err != nil {
		return nil, err
	}

	ids := map[string]bool{}
	for _, site := range sites {
		chunks, err := v.store.ListIndexedChunksBySite(ctx, site.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			ids[c.VectorID] = true
		}
	}
	return ids, nil
}

func (v *Validator) sitesForVectorIDs(ctx context.Context, ids []string) ([]int64, error) {
	seen := map[int64]bool{}
	var out []int64
	for _, id := range ids {
		chunk, err := v.store.GetIndexedChunkByVectorID(ctx, id)
		if err != nil || chunk == nil {
			continue
		}
		if !seen[chunk.SiteID] {
			seen[chunk.SiteID] = true
			out = append(out, chunk.SiteID)
		}
	}
	return out, nil
}

// CleanupOrphans deletes each vector_id from the vector store that has no
// corresponding metadata-store chunk.
func (v *Validator) CleanupOrphans(ids []string) (int, error) {
	removed := 0
	for _, id := range ids {
		if err := v.vectors.DeleteVector(id); err != nil {
			v.log.WithError(err).WithField("vector_id", id).Warn("failed to delete orphan vector")
			continue
		}
		removed++
	}
	return removed, nil
}

// RegenerateMissing re-embeds each missing id's stored chunk_content and
// writes the vector back to the vector store. A chunk whose metadata row
// can no longer be found is surfaced to the caller rather than silently
// skipped.
func (v *Validator) RegenerateMissing(ctx context.Context, ids []string) (regenerated []string, unresolved []string, err error) {
	if v.embedder == nil {
		return nil, ids, nil
	}

	for _, id := range ids {
		chunk, lookupErr := v.store.GetIndexedChunkByVectorID(ctx, id)
		if lookupErr != nil || chunk == nil {
			unresolved = append(unresolved, id)
			continue
		}

		vec, embedErr := v.embedder.Embed(ctx, chunk.ChunkContent)
		if embedErr != nil {
			v.log.WithError(embedErr).WithField("vector_id", id).Warn("failed to regenerate missing vector")
			unresolved = append(unresolved, id)
			continue
		}

		record := vectorstore.Record{
			VectorID:    chunk.VectorID,
			Vector:      vec,
			SiteID:      chunk.SiteID,
			PageURL:     chunk.URL,
			PageTitle:   chunk.PageTitle.String,
			HeadingPath: chunk.HeadingPath.String,
			Content:     chunk.ChunkContent,
			TokenCount:  chunker.Estimate(chunk.ChunkContent),
			ChunkIndex:  chunk.ChunkIndex,
		}
		if upsertErr := v.vectors.Upsert([]vectorstore.Record{record}); upsertErr != nil {
			v.log.WithError(upsertErr).WithField("vector_id", id).Warn("failed to persist regenerated vector")
			unresolved = append(unresolved, id)
			continue
		}
		regenerated = append(regenerated, id)
	}
	return regenerated, unresolved, nil
}
