package knowledge

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/ratelimit"
	"github.com/fyrsmithlabs/diagramd/internal/supervisor"
)

const pass1SystemPrompt = `You are a code analysis expert producing structured XML summaries of source files.

For each file extract:
- Purpose: what the file does in 2-3 sentences
- Key classes and components with brief descriptions
- Every function with its purpose and notable implementation details
- Dependencies (imports)

You receive the current codebase knowledge XML and one or two new files.
UPDATE the XML by adding entries for the new files.

CRITICAL RULES:
1. PRESERVE all existing content in the XML. Only ADD new file entries.
2. Files marked SMALL keep their FULL content inside a CDATA block.
3. Files marked LARGE get a semantic summary, never full code.
4. NEVER skip a function.
5. Return ONLY valid XML, no extra text.`

const pass2SystemPrompt = `You are a software architecture analyst enriching a codebase knowledge document.

Identify from the XML:
1. Import relationships between files
2. Inheritance and composition between classes
3. Architectural patterns in use (MVC, Repository, Factory, pipeline, ...)

UPDATE the XML by adding <relationships> and <architecture> sections.
Return ONLY the complete, valid XML.`

// Result is the outcome of a full build.
type Result struct {
	XML         string
	Processed   int
	Failed      int
	FailedPaths []string
}

// Builder folds ordered file batches into the knowledge document. Every
// merge candidate goes through the supervisor before the accumulator
// accepts it.
type Builder struct {
	client    llm.Client
	sup       *supervisor.Supervisor
	pacer     *ratelimit.Pacer
	batchSize int
	smallMax  int
	log       *logging.Logger
}

// NewBuilder wires a builder. batchSize and smallMax fall back to the
// pipeline defaults when non-positive.
func NewBuilder(client llm.Client, sup *supervisor.Supervisor, pacer *ratelimit.Pacer, batchSize, smallMax int, log *logging.Logger) *Builder {
	if batchSize <= 0 {
		batchSize = 2
	}
	if smallMax <= 0 {
		smallMax = 50
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Builder{
		client:    client,
		sup:       sup,
		pacer:     pacer,
		batchSize: batchSize,
		smallMax:  smallMax,
		log:       log.Named("knowledge"),
	}
}

// Build runs pass 1 (per-file summaries, batched) and pass 2
// (relationship enrichment, best effort) and returns the final
// document. Individual batch failures degrade and are reported in the
// result rather than aborting the build.
func (b *Builder) Build(ctx context.Context, project, overview string, files []File) (*Result, error) {
	acc := NewAccumulator(project, overview)
	ordered := OrderFiles(files)
	batches := Batch(ordered, b.batchSize)

	res := &Result{}

	b.log.Info(ctx, "pass 1: building file summaries",
		zap.Int("files", len(ordered)), zap.Int("batches", len(batches)))

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.log.Info(ctx, "processing batch",
			zap.Int("batch", i+1), zap.Int("total", len(batches)),
			zap.Strings("files", paths(batch)))

		ok := b.processBatch(ctx, acc, batch)
		if ok {
			res.Processed += len(batch)
		} else {
			res.Failed += len(batch)
			res.FailedPaths = append(res.FailedPaths, paths(batch)...)
		}

		if i < len(batches)-1 {
			if err := b.pacer.Pace(ctx, ratelimit.OpSummarizerBatch); err != nil {
				return nil, err
			}
		}
	}

	b.log.Info(ctx, "pass 1 complete",
		zap.Int("processed", res.Processed), zap.Int("failed", res.Failed))

	b.log.Info(ctx, "pass 2: detecting cross-file relationships")
	b.addRelationships(ctx, acc)
	if err := b.pacer.Pace(ctx, ratelimit.OpSingleCall); err != nil {
		return nil, err
	}

	res.XML = acc.XML()
	return res, nil
}

// processBatch merges one batch into the accumulator. A failed merge of
// a multi-file batch retries with just the first file before giving up,
// trading coverage for progress.
func (b *Builder) processBatch(ctx context.Context, acc *Accumulator, batch []File) bool {
	if b.mergeBatch(ctx, acc, batch) {
		return true
	}
	if len(batch) > 1 {
		b.log.Warn(ctx, "batch failed, retrying with single file",
			zap.String("file", batch[0].Path))
		if err := b.pacer.Pace(ctx, ratelimit.OpOnError); err != nil {
			return false
		}
		return b.mergeBatch(ctx, acc, batch[:1])
	}
	return false
}

func (b *Builder) mergeBatch(ctx context.Context, acc *Accumulator, batch []File) bool {
	previous := acc.XML()
	prompt := b.buildMergePrompt(previous, batch)

	generate := func(ctx context.Context, extra string) (string, error) {
		p := prompt
		if extra != "" {
			p = prompt + "\n\n=== REVIEWER FEEDBACK ON YOUR PREVIOUS ATTEMPT ===\n" + extra
		}
		resp, err := b.client.Generate(ctx, llm.Request{
			Prompt:      p,
			System:      pass1SystemPrompt,
			Temperature: 0.3,
		})
		if err != nil {
			return "", err
		}
		return llm.StripFences(resp), nil
	}

	candidate, err := generate(ctx, "")
	if err != nil {
		b.log.Warn(ctx, "batch generation failed", zap.Error(err))
		return false
	}

	sctx := supervisor.Context{
		PreviousXML:    previous,
		BatchFiles:     paths(batch),
		OriginalPrompt: prompt,
	}
	validated, ok := b.sup.Supervise(ctx, candidate, sctx, generate)
	if !ok {
		// Accumulator keeps the pre-batch document; nothing merged
		// earlier is at risk.
		b.log.Warn(ctx, "merge rejected after correction attempts",
			zap.Strings("files", paths(batch)))
		return false
	}

	acc.Commit(validated, paths(batch))
	return true
}

func (b *Builder) buildMergePrompt(currentXML string, batch []File) string {
	var sb strings.Builder
	sb.WriteString("Current codebase knowledge:\n```xml\n")
	sb.WriteString(currentXML)
	sb.WriteString("\n```\n\nAnalyze these new files and UPDATE the XML by adding entries for them:\n\n")

	for _, f := range batch {
		if f.Lines <= b.smallMax {
			fmt.Fprintf(&sb, "FILE: %s (SMALL - %d lines, keep FULL content)\n```\n%s\n```\n\n",
				f.Path, f.Lines, f.Content)
		} else {
			fmt.Fprintf(&sb, "FILE: %s (LARGE - %d lines, create SUMMARY)\n```\n%s\n```\n\n",
				f.Path, f.Lines, f.Content)
		}
	}

	sb.WriteString("Return the COMPLETE updated XML with the new file entries added.")
	return sb.String()
}

// addRelationships is pass 2. Any failure leaves the pass 1 document
// untouched.
func (b *Builder) addRelationships(ctx context.Context, acc *Accumulator) {
	prompt := fmt.Sprintf(`Analyze this codebase knowledge and identify:
1. Import and dependency relationships between files
2. Class inheritance and composition
3. Architectural patterns used

Current knowledge:
`+"```xml\n%s\n```"+`

Add <relationships> and <architecture> sections to the XML.
Return the COMPLETE updated XML.`, acc.XML())

	resp, err := b.client.Generate(ctx, llm.Request{
		Prompt:      prompt,
		System:      pass2SystemPrompt,
		Temperature: 0.3,
	})
	if err != nil {
		b.log.Warn(ctx, "relationship detection failed", zap.Error(err))
		return
	}

	candidate := llm.StripFences(resp)
	if !strings.Contains(candidate, "<relationships>") && !strings.Contains(candidate, "<architecture>") {
		b.log.Warn(ctx, "relationship pass returned no new sections, keeping pass 1 document")
		return
	}
	if err := supervisor.ValidateKnowledgeXML(candidate); err != nil {
		b.log.Warn(ctx, "relationship pass produced invalid document", zap.Error(err))
		return
	}
	acc.Replace(candidate)
}

func paths(batch []File) []string {
	out := make([]string, len(batch))
	for i, f := range batch {
		out[i] = f.Path
	}
	return out
}
