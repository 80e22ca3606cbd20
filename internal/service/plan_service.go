// Package service wires document loading, chunking, embedding and the
// vector index into plan ingestion and search.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"

	"planrag/internal/chunkid"
	"planrag/internal/document"
	"planrag/internal/domain"
	"planrag/internal/embedding"
	"planrag/internal/modelloader"
	"planrag/internal/vectorstore"
)

// Stage names the ingestion step a Progress event belongs to.
type Stage string

const (
	StageExtracting Stage = "extracting"
	StageModel      Stage = "model"
	StageEmbedding  Stage = "embedding"
	StageIndexing   Stage = "indexing"
	StageDone       Stage = "done"
)

// Progress is reported during IngestFile.
type Progress struct {
	Stage      Stage
	Extraction domain.ExtractionProgress
	Model      modelloader.Progress
	Processed  int
	Total      int
}

// SearchRequest is one user query. Keyword skips the embedding model and
// ranks lexically; PlanID restricts results to one plan.
type SearchRequest struct {
	Text    string
	K       int
	Keyword bool
	PlanID  string
}

// Deps are the collaborators of a Service. Store may be nil, in which case
// nothing outlives the process.
type Deps struct {
	Chunker          domain.Chunker
	Generator        *embedding.Generator
	Tracker          *modelloader.Tracker
	Index            vectorstore.Index
	Store            vectorstore.Store
	Summarizer       domain.Summarizer
	SummarySentences int
	Logger           core.Logger
	Now              func() time.Time
}

type Service struct {
	chunker          domain.Chunker
	generator        *embedding.Generator
	tracker          *modelloader.Tracker
	index            vectorstore.Index
	store            vectorstore.Store
	summarizer       domain.Summarizer
	summarySentences int
	log              core.Logger
	now              func() time.Time
}

func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = logger.Global()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Tracker == nil {
		d.Tracker = modelloader.NewTracker(d.Generator, d.Logger)
	}
	return &Service{
		chunker:          d.Chunker,
		generator:        d.Generator,
		tracker:          d.Tracker,
		index:            d.Index,
		store:            d.Store,
		summarizer:       d.Summarizer,
		summarySentences: d.SummarySentences,
		log:              d.Logger,
		now:              d.Now,
	}
}

// IngestFile loads, chunks, embeds and indexes one document and returns the
// resulting plan. The plan is recorded with status error when any step
// fails after it was created.
func (s *Service) IngestFile(ctx context.Context, path string, onProgress func(Progress)) (domain.Plan, error) {
	doc, err := document.Load(path)
	if err != nil {
		return domain.Plan{}, err
	}
	return s.Ingest(ctx, doc, onProgress)
}

// Ingest runs the pipeline for an already loaded document.
func (s *Service) Ingest(ctx context.Context, doc *document.Document, onProgress func(Progress)) (domain.Plan, error) {
	report := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}
	filename := doc.Title
	if doc.Path != "" {
		filename = filepath.Base(doc.Path)
	}
	plan := domain.Plan{
		ID:         chunkid.NewPlanID(filename, s.now()),
		Title:      doc.Title,
		Filename:   filename,
		FileSize:   doc.Size,
		Status:     domain.PlanUploading,
		UploadedAt: s.now(),
	}
	if err := s.savePlan(ctx, plan); err != nil {
		return plan, err
	}
	log := s.log.With("plan_id", plan.ID)
	fail := func(err error) (domain.Plan, error) {
		plan.Status = domain.PlanError
		if serr := s.savePlan(context.WithoutCancel(ctx), plan); serr != nil {
			log.Warnw("failed to record plan error", "error", serr.Error())
		}
		log.Errorw("ingestion failed", "error", err.Error())
		return plan, err
	}

	plan.Status = domain.PlanProcessing
	if err := s.savePlan(ctx, plan); err != nil {
		return fail(err)
	}

	chunks, err := s.chunker.ExtractChunks(ctx, plan.ID, doc, func(p domain.ExtractionProgress) {
		report(Progress{Stage: StageExtracting, Extraction: p})
	})
	if err != nil {
		return fail(err)
	}
	if len(chunks) == 0 {
		return fail(fmt.Errorf("%s: %w", filename, domain.ErrEmptyDocument))
	}

	if err := s.tracker.LoadModels(ctx, func(p modelloader.Progress) {
		report(Progress{Stage: StageModel, Model: p})
	}); err != nil {
		return fail(err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	res, err := s.generator.EmbedStrings(ctx, texts, func(processed, total int) {
		report(Progress{Stage: StageEmbedding, Processed: processed, Total: total})
	})
	if err != nil {
		return fail(err)
	}

	entities := make([]domain.ChunkEntity, len(chunks))
	for i, c := range chunks {
		entities[i] = domain.ChunkEntity{Chunk: c, Vector: res.Embeddings[i]}
	}
	report(Progress{Stage: StageIndexing, Processed: 0, Total: len(entities)})
	if s.store != nil {
		if err := s.store.SaveEntities(ctx, entities); err != nil {
			return fail(err)
		}
	}
	s.index.InsertMany(entities)
	report(Progress{Stage: StageIndexing, Processed: len(entities), Total: len(entities)})

	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(doc.Text(), s.summarySentences)
		if err != nil {
			log.Warnw("summary failed", "error", err.Error())
		}
		plan.Summary = summary
	}
	processed := s.now()
	plan.Status = domain.PlanCompleted
	plan.ChunkCount = len(chunks)
	plan.ProcessedAt = &processed
	if err := s.savePlan(ctx, plan); err != nil {
		return plan, err
	}
	report(Progress{Stage: StageDone, Processed: len(entities), Total: len(entities)})
	log.Infow("plan ingested", "chunks", len(chunks), "embed_time", res.ProcessingTime.String())
	return plan, nil
}

// Search ranks indexed chunks against req. Semantic search waits for the
// embedding model; keyword search never touches it.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]domain.QueryResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	q := domain.Query{Text: text, K: req.K}
	if req.PlanID != "" {
		planID := req.PlanID
		q.Filter = func(e domain.ChunkEntity) bool { return e.DocumentID == planID }
	}
	if !req.Keyword {
		if err := s.tracker.LoadModels(ctx, nil); err != nil {
			return nil, err
		}
		vec, err := s.generator.EmbedSingle(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		q.Vector = vec
	}
	start := time.Now()
	results, err := s.index.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	s.log.Debugw("search", "keyword", req.Keyword, "plan_id", req.PlanID, "results", len(results), "elapsed", time.Since(start).String())
	return results, nil
}

// DeletePlan removes a plan's chunks from the index and the store and
// returns how many indexed chunks were removed.
func (s *Service) DeletePlan(ctx context.Context, planID string) (int, error) {
	removed := s.index.DeleteByPlanID(planID)
	var err error
	if s.store != nil {
		err = s.store.DeletePlan(ctx, planID)
	} else if removed == 0 {
		err = fmt.Errorf("plan %s: %w", planID, domain.ErrNotFound)
	}
	// A plan only present in the index still counts as deleted.
	if err != nil && (!errors.Is(err, domain.ErrNotFound) || removed == 0) {
		return removed, err
	}
	s.log.Infow("plan deleted", "plan_id", planID, "chunks", removed)
	return removed, nil
}

// Restore loads every stored entity into the index. Entities whose vector
// size does not match the active model are skipped.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	entities, err := s.store.LoadEntities(ctx, "")
	if err != nil {
		return 0, err
	}
	dim := s.generator.ModelInfo().Dimensions
	kept := entities[:0]
	skipped := 0
	for _, e := range entities {
		if dim > 0 && len(e.Vector) != dim {
			skipped++
			continue
		}
		kept = append(kept, e)
	}
	if skipped > 0 {
		s.log.Warnw("skipped stored chunks from a different embedding model", "skipped", skipped, "dimensions", dim)
	}
	s.index.InsertMany(kept)
	return len(kept), nil
}

// Plans lists stored plans, newest first.
func (s *Service) Plans(ctx context.Context) ([]domain.Plan, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListPlans(ctx)
}

// Plan returns one stored plan.
func (s *Service) Plan(ctx context.Context, planID string) (domain.Plan, error) {
	if s.store == nil {
		return domain.Plan{}, fmt.Errorf("plan %s: %w", planID, domain.ErrNotFound)
	}
	return s.store.GetPlan(ctx, planID)
}

// Chunks returns up to k indexed chunks of a plan ordered by page, then by
// chunk index.
func (s *Service) Chunks(planID string, k int) []domain.ChunkEntity {
	entities := s.index.GetByPlanID(planID, k)
	byID := make(map[string]domain.ChunkEntity, len(entities))
	ids := make([]string, len(entities))
	for i, e := range entities {
		byID[e.ID] = e
		ids[i] = e.ID
	}
	chunkid.Sort(ids)
	for i, id := range ids {
		entities[i] = byID[id]
	}
	return entities
}

func (s *Service) IndexedChunks() int { return s.index.Count() }

func (s *Service) ModelInfo() domain.ModelInfo { return s.tracker.ModelInfo() }

func (s *Service) ModelState() modelloader.State { return s.tracker.State() }

func (s *Service) savePlan(ctx context.Context, p domain.Plan) error {
	if s.store == nil {
		return nil
	}
	return s.store.SavePlan(ctx, p)
}
