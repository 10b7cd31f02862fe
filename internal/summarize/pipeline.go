package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"websum/pkg/logx"
)

// Request is one /summarize invocation after command parsing.
type Request struct {
	URL         string
	Repo        string
	Branch      string
	Filename    string // empty: DefaultFilename
	AuthorName  string
	AuthorEmail string
	Tags        []string
	Categories  []string
	Keywords    []string
}

type Result struct {
	Title     string
	Repo      string
	Branch    string
	Path      string
	CommitURL string
}

type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, title, markdown string) (string, error)
}

type Committer interface {
	CommitFile(ctx context.Context, fr FileRequest) (CommitResult, error)
}

// Pipeline runs fetch, extract, summarize, render and commit for one URL.
type Pipeline struct {
	fetch  PageFetcher
	llm    Summarizer
	commit Committer
	log    logx.Logger
	now    func() time.Time

	chunkRunes int
}

func NewPipeline(f PageFetcher, s Summarizer, c Committer, log logx.Logger) *Pipeline {
	return &Pipeline{fetch: f, llm: s, commit: c, log: log, now: time.Now, chunkRunes: DefaultChunkRunes}
}

func (p *Pipeline) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Repo) == "" {
		return Result{}, fmt.Errorf("%w: no target repository", ErrGitHub)
	}
	log := p.log.With(logx.String("url", req.URL), logx.String("repo", req.Repo))
	start := p.now()

	page, err := p.fetch.Fetch(ctx, req.URL)
	if err != nil {
		return Result{}, err
	}
	base := page.URL
	if base == "" {
		base = req.URL
	}
	doc, err := Extract(page.HTML, base)
	if err != nil {
		return Result{}, err
	}
	log.Debug("page extracted", logx.String("title", doc.Title), logx.Int("markdown_len", len(doc.Markdown)))

	body, err := p.summarize(ctx, log, doc)
	if err != nil {
		return Result{}, err
	}

	created := p.now()
	note := Note{
		Title:      doc.Title,
		Source:     req.URL,
		CreatedAt:  created,
		Tags:       req.Tags,
		Categories: req.Categories,
		Keywords:   req.Keywords,
		Body:       body,
	}
	content, err := note.Render()
	if err != nil {
		return Result{}, err
	}

	filename := req.Filename
	if filename == "" {
		filename = DefaultFilename(doc.Title, req.URL, created)
	} else {
		filename = SanitizeFilename(filename)
	}

	cr, err := p.commit.CommitFile(ctx, FileRequest{
		Repo:        req.Repo,
		Branch:      req.Branch,
		Path:        filename,
		Content:     content,
		Message:     "Add summary for " + req.URL,
		AuthorName:  req.AuthorName,
		AuthorEmail: req.AuthorEmail,
	})
	if err != nil {
		return Result{}, err
	}

	log.Info("summary committed",
		logx.String("path", cr.Path),
		logx.String("commit_url", cr.CommitURL),
		logx.Duration("took", p.now().Sub(start)),
	)
	return Result{
		Title:     doc.Title,
		Repo:      req.Repo,
		Branch:    req.Branch,
		Path:      cr.Path,
		CommitURL: cr.CommitURL,
	}, nil
}

// summarize sends doc to the model in one call, or one call per chunk when
// the Markdown is longer than chunkRunes. Chunk summaries are joined under
// "## Part N" headings; empty ones are dropped.
func (p *Pipeline) summarize(ctx context.Context, log logx.Logger, doc Document) (string, error) {
	chunks := SplitMarkdown(doc.Markdown, p.chunkRunes)
	if len(chunks) <= 1 {
		return p.llm.Summarize(ctx, doc.Title, doc.Markdown)
	}
	log.Info("summarizing in chunks", logx.Int("chunks", len(chunks)))

	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		title := fmt.Sprintf("%s (part %d/%d)", doc.Title, i+1, len(chunks))
		out, err := p.llm.Summarize(ctx, strings.TrimSpace(title), chunk)
		if err != nil {
			return "", err
		}
		if out = strings.TrimSpace(out); out == "" {
			log.Warn("empty chunk summary", logx.Int("chunk", i+1))
			continue
		}
		parts = append(parts, out)
	}
	switch len(parts) {
	case 0:
		return "", fmt.Errorf("%w: no summary generated", ErrLLM)
	case 1:
		return parts[0], nil
	}
	for i := range parts {
		parts[i] = fmt.Sprintf("## Part %d\n\n%s", i+1, parts[i])
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}
