// Package ingest wires the streaming pipeline: walk → chunk →
// reconcile → summarize → embed → upsert. Stages are connected by
// bounded channels; backpressure from slow LLMs or storage propagates
// upstream to the walker, keeping memory bounded on repositories of
// any size.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/kbhalerao/codesmriti/internal/chunker"
	"github.com/kbhalerao/codesmriti/internal/document"
	"github.com/kbhalerao/codesmriti/internal/embed"
	"github.com/kbhalerao/codesmriti/internal/errors"
	"github.com/kbhalerao/codesmriti/internal/gitrepo"
	"github.com/kbhalerao/codesmriti/internal/reconcile"
	"github.com/kbhalerao/codesmriti/internal/store"
	"github.com/kbhalerao/codesmriti/internal/summarize"
	"github.com/kbhalerao/codesmriti/internal/walker"
)

// Config tunes one pipeline instance.
type Config struct {
	ParserParallelism  int
	MinSymbolLines     int
	MaxFileBytes       int64
	MinFileBytes       int
	FileTokenThreshold int
	JunkPatterns       []string

	// ChunkChannelSize bounds the walker, chunk, and embed-ready
	// channels; the storage channel holds 100 groups.
	ChunkChannelSize int

	// StorageWriters is the upsert worker pool size.
	StorageWriters int
}

func (c *Config) applyDefaults() {
	if c.ParserParallelism <= 0 {
		c.ParserParallelism = 10
	}
	if c.MinSymbolLines <= 0 {
		c.MinSymbolLines = 5
	}
	if c.ChunkChannelSize <= 0 {
		c.ChunkChannelSize = 256
	}
	if c.StorageWriters <= 0 {
		c.StorageWriters = 4
	}
}

// Result summarizes one ingestion run. The upsert counters are shared
// by the storage worker pool and guarded; the file counters belong to
// the single summarize stage.
type Result struct {
	Files          int
	Chunks         int
	NewFiles       int
	UpdatedFiles   int
	UnchangedFiles int
	DeletedFiles   int
	SkippedFiles   int
	Upserted       int
	FailedDocs     []string
	Duration       time.Duration

	// changedPaths are the new/updated file paths of this run; only
	// their ancestor modules are re-aggregated. Written by the single
	// summarize stage.
	changedPaths []string

	mu sync.Mutex
}

// Pipeline executes ingestion runs for one process. The adapter,
// encoder, and summarizer are shared singletons; per-run state lives in
// the Run call.
type Pipeline struct {
	adapter    store.Adapter
	encoder    *embed.Encoder
	summarizer *summarize.Summarizer
	config     Config
}

// New creates a pipeline.
func New(adapter store.Adapter, encoder *embed.Encoder, summarizer *summarize.Summarizer, cfg Config) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		adapter:    adapter,
		encoder:    encoder,
		summarizer: summarizer,
		config:     cfg,
	}
}

// fileWork is one chunked file moving between stages.
type fileWork struct {
	chunks *chunker.FileChunks
	commit string
}

// docGroup is one file's documents: symbols first, then the file doc.
// Groups travel the embed and storage stages as units so per-file
// ordering holds without cross-file coordination.
type docGroup struct {
	path string
	docs []*document.Document
}

// Run executes one ingestion job for (tenant, repo) over the checkout
// at rootDir.
func (p *Pipeline) Run(ctx context.Context, tenant, repo, rootDir string, progress *Progress) (*Result, error) {
	start := time.Now()
	if progress == nil {
		progress = NewProgress()
	}
	result := &Result{}

	// One ingestion per checkout, across processes.
	lock := flock.New(rootDir + ".lock")
	locked, err := lock.TryLock()
	if err == nil && !locked {
		return nil, fmt.Errorf("checkout %s is already being ingested", rootDir)
	}
	if err == nil {
		defer func() { _ = lock.Unlock() }()
	}

	checkout, err := gitrepo.Open(rootDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRepoMissing, err)
	}
	if head := checkout.HeadCommit(); head != "" {
		slog.Info("ingesting checkout",
			slog.String("repo", repo), slog.String("head", head))
	}

	reconciler, err := reconcile.New(ctx, p.adapter, tenant, repo)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, err)
	}

	chunked := make(chan *fileWork, p.config.ChunkChannelSize)
	embedReady := make(chan *docGroup, p.config.ChunkChannelSize)
	storeReady := make(chan *docGroup, 100)

	g, gctx := errgroup.WithContext(ctx)

	// The walker runs under the group context so a failing stage
	// downstream unblocks its bounded sends.
	walkResults, err := walker.Walk(gctx, walker.Options{
		RootDir:      checkout.Root(),
		JunkPatterns: p.config.JunkPatterns,
		MaxFileBytes: p.config.MaxFileBytes,
		MinFileBytes: p.config.MinFileBytes,
		Parallelism:  p.config.ParserParallelism,
		BufferSize:   p.config.ChunkChannelSize,
	})
	if err != nil {
		return nil, err
	}

	// Stage: parallel parse workers.
	parseGroup, parseCtx := errgroup.WithContext(gctx)
	for i := 0; i < p.config.ParserParallelism; i++ {
		parseGroup.Go(func() error {
			return p.parseWorker(parseCtx, checkout, walkResults, chunked, progress)
		})
	}
	g.Go(func() error {
		defer close(chunked)
		return parseGroup.Wait()
	})

	// Stage: single summarizer consumer (LLM rate limits).
	g.Go(func() error {
		defer close(embedReady)
		return p.summarizeStage(gctx, tenant, repo, reconciler, chunked, embedReady, progress, result)
	})

	// Stage: single embedding worker (coherent batches).
	g.Go(func() error {
		defer close(storeReady)
		return p.embedStage(gctx, embedReady, storeReady)
	})

	// Stage: bounded pool of storage writers.
	storeGroup, storeCtx := errgroup.WithContext(gctx)
	for i := 0; i < p.config.StorageWriters; i++ {
		storeGroup.Go(func() error {
			return p.storeWorker(storeCtx, storeReady, result)
		})
	}
	g.Go(storeGroup.Wait)

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return result, errors.Wrap(errors.ErrCodeCancelled, ctx.Err())
		}
		return result, err
	}
	if ctx.Err() != nil {
		return result, errors.Wrap(errors.ErrCodeCancelled, ctx.Err())
	}
	result.SkippedFiles = progress.Snapshot().SkippedFiles

	// Cascade-delete files that vanished from the working tree.
	deleted, err := reconciler.DeleteVanished(ctx)
	if err != nil {
		return result, errors.Wrap(errors.ErrCodeStorageFailed, err)
	}
	result.DeletedFiles = len(deleted)

	// Roll up modules and the repo only when something changed;
	// an unchanged tree must produce zero upserts.
	if result.NewFiles+result.UpdatedFiles+result.DeletedFiles > 0 {
		progress.SetStage(StageAggregating)
		changed := append(append([]string{}, result.changedPaths...), deleted...)
		if err := p.aggregate(ctx, tenant, repo, changed, result); err != nil {
			return result, err
		}
	}

	if len(result.FailedDocs) > 0 {
		return result, errors.New(errors.ErrCodeStorageFailed,
			fmt.Sprintf("%d documents failed to persist", len(result.FailedDocs)), nil)
	}

	progress.SetStage(StageComplete)
	result.Duration = time.Since(start)
	return result, nil
}

// parseWorker chunks retained files; skips and walk errors are counted
// and logged, never fatal.
func (p *Pipeline) parseWorker(ctx context.Context, checkout *gitrepo.Checkout, in <-chan walker.Result, out chan<- *fileWork, progress *Progress) error {
	ck := chunker.New(chunker.Options{
		FileTokenThreshold: p.config.FileTokenThreshold,
		MinSymbolLines:     p.config.MinSymbolLines,
	})
	defer ck.Close()

	for r := range in {
		if r.Err != nil {
			slog.Warn("walk error", slog.String("error", r.Err.Error()))
			continue
		}
		if r.Skip != nil {
			progress.FileSkipped()
			continue
		}

		progress.FileDiscovered()

		fc, err := ck.Chunk(ctx, r.File.Path, r.File.Language, r.File.Content)
		if err != nil {
			slog.Warn("chunking failed", slog.String("path", r.File.Path), slog.String("error", err.Error()))
			continue
		}

		work := &fileWork{chunks: fc, commit: checkout.CommitFor(r.File.Content)}
		select {
		case out <- work:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// summarizeStage is the single consumer: reconciles each file, then
// summarizes symbols and the file bottom-up. Cancellation is checked at
// every file boundary; the file in flight always completes.
func (p *Pipeline) summarizeStage(ctx context.Context, tenant, repo string, reconciler *reconcile.Reconciler, in <-chan *fileWork, out chan<- *docGroup, progress *Progress, result *Result) error {
	for work := range in {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		path := work.chunks.Path
		progress.FileStarted(path)

		decision, err := reconciler.Classify(ctx, path, work.commit)
		if err != nil {
			return errors.Wrap(errors.ErrCodeStorageFailed, err)
		}

		result.Files++
		switch decision {
		case reconcile.DecisionUnchanged:
			result.UnchangedFiles++
			progress.FileProcessed(0, true)
			continue
		case reconcile.DecisionNew:
			result.NewFiles++
			result.changedPaths = append(result.changedPaths, path)
		case reconcile.DecisionUpdated:
			result.UpdatedFiles++
			result.changedPaths = append(result.changedPaths, path)
		}

		group := p.summarizeFile(ctx, tenant, repo, work)
		result.Chunks += len(work.chunks.Chunks)
		progress.FileProcessed(len(work.chunks.Chunks), false)

		select {
		case out <- group:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// summarizeFile builds the file's documents: one per qualifying symbol
// chunk, then the file_index, all in upsert order.
func (p *Pipeline) summarizeFile(ctx context.Context, tenant, repo string, work *fileWork) *docGroup {
	fc := work.chunks
	now := time.Now().UTC()

	var meta *chunker.Chunk
	var body string
	var symbolDocs []*document.Document
	var symbolChildren []summarize.Child

	for _, chunk := range fc.Chunks {
		switch chunk.Kind {
		case chunker.KindMetadata:
			meta = chunk
		case chunker.KindWholeFile:
			body = chunk.Source
		case chunker.KindFunction, chunker.KindMethod, chunker.KindClassHeader:
			summary := p.summarizer.Symbol(ctx, chunk)
			doc := symbolDocument(tenant, repo, fc, chunk, summary, now)
			symbolDocs = append(symbolDocs, doc)
			symbolChildren = append(symbolChildren, summarize.Child{Name: chunk.Name, Text: summary.Text})
		}
	}

	fileSummary := p.summarizer.File(ctx, fc.Path, meta, body, symbolChildren)

	childIDs := make([]string, 0, len(symbolDocs))
	for _, d := range symbolDocs {
		childIDs = append(childIDs, d.ID)
	}

	fileDoc := &document.Document{
		ID:                   document.FileDocID(tenant, repo, fc.Path),
		TenantID:             tenant,
		RepoID:               repo,
		Type:                 document.TypeFileIndex,
		Path:                 fc.Path,
		SummaryText:          fileSummary.Text,
		ParentID:             document.ModuleDocID(tenant, repo, document.ModulePathOf(fc.Path)),
		ChildrenIDs:          childIDs,
		ContentHash:          document.HashContent(fc.Content),
		Language:             fc.Language,
		LineCount:            fc.LineCount,
		FileCommit:           work.commit,
		AggregationTruncated: fileSummary.Truncated,
		SummaryDegraded:      fileSummary.Degraded,
		ParseDegraded:        fc.ParseDegraded,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	return &docGroup{path: fc.Path, docs: append(symbolDocs, fileDoc)}
}

func symbolDocument(tenant, repo string, fc *chunker.FileChunks, chunk *chunker.Chunk, summary summarize.Summary, now time.Time) *document.Document {
	kind := document.SymbolKindFunction
	switch chunk.Kind {
	case chunker.KindMethod:
		kind = document.SymbolKindMethod
	case chunker.KindClassHeader:
		kind = document.SymbolKindClass
	}

	return &document.Document{
		ID:              document.SymbolDocID(tenant, repo, fc.Path, chunk.Name),
		TenantID:        tenant,
		RepoID:          repo,
		Type:            document.TypeSymbolIndex,
		Path:            fc.Path,
		SummaryText:     summary.Text,
		ParentID:        document.FileDocID(tenant, repo, fc.Path),
		ContentHash:     document.HashContent([]byte(chunk.Source)),
		Language:        fc.Language,
		SymbolName:      chunk.Name,
		SymbolKind:      kind,
		StartLine:       chunk.StartLine,
		EndLine:         chunk.EndLine,
		ParentClass:     chunk.ParentSymbol,
		SummaryDegraded: summary.Degraded,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// embedStage encodes each group's summaries through the single encoder.
// Cancellation is checked at every group, which bounds work in flight
// to one embedding batch.
func (p *Pipeline) embedStage(ctx context.Context, in <-chan *docGroup, out chan<- *docGroup) error {
	for group := range in {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		texts := make([]string, len(group.docs))
		for i, d := range group.docs {
			texts[i] = d.SummaryText
		}

		vectors, err := p.encoder.EncodeDocuments(ctx, texts)
		if err != nil {
			return err
		}
		for i, d := range group.docs {
			d.Embedding = vectors[i]
		}

		select {
		case out <- group:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// storeWorker upserts groups. Symbols precede the file doc inside each
// group; the adapter preserves order within a call.
func (p *Pipeline) storeWorker(ctx context.Context, in <-chan *docGroup, result *Result) error {
	for group := range in {
		res, err := p.adapter.UpsertDocuments(ctx, group.docs)
		if err != nil {
			return err
		}
		result.addUpserts(res)
	}
	return nil
}

// aggregate rolls up module summaries bottom-up, then the repo summary.
// Only modules on the ancestor chain of a changed (new, updated, or
// deleted) file are recomputed; every other module's document is left
// untouched. File summaries are read back from the store so unchanged
// files keep contributing to their module without re-summarization.
func (p *Pipeline) aggregate(ctx context.Context, tenant, repo string, changed []string, result *Result) error {
	files, err := p.adapter.ListByType(ctx, tenant, repo, document.TypeFileIndex)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, err)
	}

	symbols, err := p.adapter.ListByType(ctx, tenant, repo, document.TypeSymbolIndex)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, err)
	}

	storedModules, err := p.adapter.ListByType(ctx, tenant, repo, document.TypeModuleSummary)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, err)
	}

	if len(files) == 0 {
		// Everything deleted: remove the stale roll-ups too.
		if err := p.adapter.DeleteByRepo(ctx, tenant, repo); err != nil {
			return errors.Wrap(errors.ErrCodeStorageFailed, err)
		}
		return nil
	}

	// Every ancestor folder of every file is a module.
	moduleFiles := make(map[string][]*document.Document)
	moduleSet := make(map[string]bool)
	languageSet := make(map[string]bool)
	for _, f := range files {
		if f.Language != "" {
			languageSet[f.Language] = true
		}
		dir := document.ModulePathOf(f.Path)
		moduleFiles[dir] = append(moduleFiles[dir], f)
		for path := dir; ; {
			moduleSet[path] = true
			parent, ok := document.ParentModulePath(path)
			if !ok {
				break
			}
			path = parent
		}
	}

	// A module is dirty when a changed file lives in it or below it.
	// The chain always reaches the root, so the repo roll-up follows.
	dirty := make(map[string]bool)
	for _, changedPath := range changed {
		for path := document.ModulePathOf(changedPath); ; {
			dirty[path] = true
			parent, ok := document.ParentModulePath(path)
			if !ok {
				break
			}
			path = parent
		}
	}

	// Deepest modules first so children are summarized before parents.
	modulePaths := make([]string, 0, len(moduleSet))
	for path := range moduleSet {
		modulePaths = append(modulePaths, path)
	}
	sort.Slice(modulePaths, func(i, j int) bool {
		di, dj := pathDepth(modulePaths[i]), pathDepth(modulePaths[j])
		if di != dj {
			return di > dj
		}
		return modulePaths[i] < modulePaths[j]
	})

	stored := make(map[string]*document.Document, len(storedModules))
	for _, m := range storedModules {
		stored[m.Path] = m
	}

	submodules := make(map[string][]*document.Document)
	moduleDocs := make(map[string]*document.Document)
	var recomputed []*document.Document
	now := time.Now().UTC()

	for _, path := range modulePaths {
		select {
		case <-ctx.Done():
			return errors.Wrap(errors.ErrCodeCancelled, ctx.Err())
		default:
		}

		// Untouched modules keep their stored document verbatim; it
		// still feeds the parent's aggregation input.
		if !dirty[path] && stored[path] != nil {
			moduleDoc := stored[path]
			moduleDocs[path] = moduleDoc
			if parent, ok := document.ParentModulePath(path); ok {
				submodules[parent] = append(submodules[parent], moduleDoc)
			}
			continue
		}

		var children []summarize.Child
		var childIDs, childSummaries []string

		for _, f := range moduleFiles[path] {
			children = append(children, summarize.Child{Name: f.Path, Text: f.SummaryText})
		}
		for _, m := range submodules[path] {
			children = append(children, summarize.Child{Name: m.Path, Text: m.SummaryText})
		}

		sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
		for _, c := range children {
			childSummaries = append(childSummaries, c.Text)
		}
		for _, f := range moduleFiles[path] {
			childIDs = append(childIDs, f.ID)
		}
		for _, m := range submodules[path] {
			childIDs = append(childIDs, m.ID)
		}
		childIDs = document.SortedCopy(childIDs)

		agg := p.summarizer.Module(ctx, path, children)

		parentID := document.RepoDocID(tenant, repo)
		if parent, ok := document.ParentModulePath(path); ok {
			parentID = document.ModuleDocID(tenant, repo, parent)
		}

		moduleDoc := &document.Document{
			ID:                   document.ModuleDocID(tenant, repo, path),
			TenantID:             tenant,
			RepoID:               repo,
			Type:                 document.TypeModuleSummary,
			Path:                 path,
			SummaryText:          agg.Text,
			ParentID:             parentID,
			ChildrenIDs:          childIDs,
			ContentHash:          document.HashChildren(childIDs, childSummaries),
			AggregationTruncated: agg.Truncated,
			SummaryDegraded:      agg.Degraded,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		moduleDocs[path] = moduleDoc
		recomputed = append(recomputed, moduleDoc)

		if parent, ok := document.ParentModulePath(path); ok {
			submodules[parent] = append(submodules[parent], moduleDoc)
		}
	}

	// Module documents whose folder emptied out are removed.
	var staleIDs []string
	for path, m := range stored {
		if !moduleSet[path] {
			staleIDs = append(staleIDs, m.ID)
		}
	}
	if err := p.adapter.DeleteDocuments(ctx, staleIDs); err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, err)
	}

	// Repo summary last: readers observing it observe all descendants.
	var repoChildren []summarize.Child
	root := moduleDocs[""]
	repoChildren = append(repoChildren, summarize.Child{Name: "", Text: root.SummaryText})
	for _, m := range submodules[""] {
		repoChildren = append(repoChildren, summarize.Child{Name: m.Path, Text: m.SummaryText})
	}

	repoAgg := p.summarizer.Repo(ctx, repo, repoChildren)

	languages := make([]string, 0, len(languageSet))
	for l := range languageSet {
		languages = append(languages, l)
	}
	sort.Strings(languages)

	repoDoc := &document.Document{
		ID:          document.RepoDocID(tenant, repo),
		TenantID:    tenant,
		RepoID:      repo,
		Type:        document.TypeRepoSummary,
		SummaryText: repoAgg.Text,
		ChildrenIDs: []string{root.ID},
		ContentHash: document.HashChildren([]string{root.ID}, []string{root.SummaryText}),
		Languages:   languages,
		DocCounts: map[string]int{
			string(document.TypeRepoSummary):   1,
			string(document.TypeModuleSummary): len(moduleSet),
			string(document.TypeFileIndex):     len(files),
			string(document.TypeSymbolIndex):   len(symbols),
		},
		AggregationTruncated: repoAgg.Truncated,
		SummaryDegraded:      repoAgg.Degraded,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	// Recomputed modules bottom-up (already deepest-first), repo
	// strictly last.
	ordered := append(recomputed, repoDoc)

	texts := make([]string, len(ordered))
	for i, d := range ordered {
		texts[i] = d.SummaryText
	}
	vectors, err := p.encoder.EncodeDocuments(ctx, texts)
	if err != nil {
		return err
	}
	for i, d := range ordered {
		d.Embedding = vectors[i]
	}

	res, err := p.adapter.UpsertDocuments(ctx, ordered)
	if err != nil {
		return err
	}
	result.addUpserts(res)
	return nil
}

func (r *Result) addUpserts(res *store.UpsertResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Upserted += res.Upserted
	r.FailedDocs = append(r.FailedDocs, res.FailedIDs...)
}

func pathDepth(path string) int {
	if path == "" {
		return 0
	}
	depth := 1
	for _, r := range path {
		if r == '/' {
			depth++
		}
	}
	return depth
}
