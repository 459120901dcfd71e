package binnacle

import (
	"context"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/binnacle-dev/binnacle/internal/ids"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// docEncoder/docDecoder are shared across calls: klauspost/compress
// recommends reusing these over the cost of a new one per document.
var (
	docEncoder, _ = zstd.NewWriter(nil)
	docDecoder, _ = zstd.NewReader(nil)
)

// compressContent compresses body for storage in Doc.Content, matching the
// tar+zstd encoding already used by the snapshot pipeline.
func compressContent(body string) string {
	return string(docEncoder.EncodeAll([]byte(body), nil))
}

// decompressContent reverses compressContent. Pre-existing plain-text
// content (content that isn't valid zstd, e.g. from before this encoding
// was introduced) is returned unchanged.
func decompressContent(stored string) string {
	out, err := docDecoder.DecodeAll([]byte(stored), nil)
	if err != nil {
		return stored
	}
	return string(out)
}

const summaryHeader = "# Summary\n\n"

func hasSummarySection(body string) bool {
	return strings.HasPrefix(body, summaryHeader) || strings.Contains(body, "\n"+summaryHeader)
}

// NewDoc is the input to CreateDoc.
type NewDoc struct {
	Title       string
	ShortName   string
	Description string
	Tags        []string
	DocType     types.DocType
	Content     string
	Editor      types.Editor
	LinkTargets []string // at least one required (spec §4.8)
}

// CreateDoc appends a new doc version and creates a documents edge from it
// to each link target.
func (s *Store) CreateDoc(ctx context.Context, in NewDoc) (Result[*types.Doc], error) {
	if in.Title == "" {
		return Result[*types.Doc]{}, newErr(KindInvalidInput, "title must not be empty")
	}
	if len(in.LinkTargets) == 0 {
		return Result[*types.Doc]{}, newErr(KindInvalidInput, "a doc requires at least one link target")
	}
	if in.DocType == "" {
		in.DocType = types.DocNote
	}

	core, warnings := newCore(ids.PrefixWorkItem, types.KindDoc, in.Title, in.ShortName, in.Description, normalizeTags(in.Tags), s.Cache.Exists)
	d := &types.Doc{
		Core: core, DocType: in.DocType, Content: compressContent(in.Content),
		SummaryDirty: !hasSummarySection(in.Content),
	}
	if in.Editor.Identifier != "" {
		d.Editors = []types.Editor{in.Editor}
	}
	if err := s.Cache.PutDoc(ctx, d); err != nil {
		return Result[*types.Doc]{}, wrapIO(err, "create doc")
	}

	for _, target := range in.LinkTargets {
		if _, err := s.AddEdge(ctx, NewEdge{Source: d.ID, Target: target, EdgeType: types.EdgeDocuments}); err != nil {
			return Result[*types.Doc]{}, err
		}
	}

	s.logAction("doc.create", d.ID, string(in.DocType))
	return ok(d, warnings...), nil
}

// GetDoc returns the doc behind id, with Content decompressed.
func (s *Store) GetDoc(id string) (*types.Doc, error) {
	d, ok := s.Cache.Docs[id]
	if !ok {
		return nil, newErr(KindNotFound, "doc %s not found", id)
	}
	out := *d
	out.Content = decompressContent(d.Content)
	return &out, nil
}

// ListDocs returns every doc, optionally filtered by tag.
func (s *Store) ListDocs(tag string) []*types.Doc {
	var out []*types.Doc
	for _, d := range s.Cache.Docs {
		if tag != "" && !hasTag(d.Tags, tag) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// DocEdit mutates an existing doc's fields in place, without creating a new
// version (spec §4.8).
type DocEdit struct {
	Title       *string
	ShortName   *string
	Description *string
	Tags        []string
	ClearDirty  bool
}

// EditDoc applies patch to id in place.
func (s *Store) EditDoc(ctx context.Context, id string, patch DocEdit) (*types.Doc, error) {
	d, ok := s.Cache.Docs[id]
	if !ok {
		return nil, newErr(KindNotFound, "doc %s not found", id)
	}
	if patch.Title != nil {
		d.Title = *patch.Title
	}
	if patch.ShortName != nil {
		truncated, _ := types.TruncateShortName(*patch.ShortName)
		d.ShortName = truncated
	}
	if patch.Description != nil {
		d.Description = *patch.Description
	}
	if patch.Tags != nil {
		d.Tags = normalizeTags(patch.Tags)
	}
	if patch.ClearDirty {
		d.SummaryDirty = false
	}
	if err := s.Cache.PutDoc(ctx, d); err != nil {
		return nil, wrapIO(err, "edit doc %s", id)
	}
	return d, nil
}

// UpdateDocVersion clones id into a new doc whose supersedes points at id,
// rewrites every edge touching id to the new version, and recomputes
// summary_dirty from whether the body or the summary section changed
// (spec §4.8).
func (s *Store) UpdateDocVersion(ctx context.Context, id string, newBody string, editor types.Editor) (*types.Doc, error) {
	old, ok := s.Cache.Docs[id]
	if !ok {
		return nil, newErr(KindNotFound, "doc %s not found", id)
	}
	oldBody := decompressContent(old.Content)

	next := *old
	next.ID = ids.GenerateUnique(ids.PrefixWorkItem, old.Title+time.Now().String(), s.Cache.Exists)
	next.CreatedAt = time.Now()
	next.UpdatedAt = next.CreatedAt
	next.Supersedes = id
	next.Content = compressContent(newBody)
	next.Editors = append(append([]types.Editor{}, old.Editors...), editor)

	bodyChanged := newBody != oldBody
	summaryChanged := summarySection(newBody) != summarySection(oldBody)
	switch {
	case summaryChanged:
		next.SummaryDirty = false
	case bodyChanged:
		next.SummaryDirty = true
	default:
		next.SummaryDirty = old.SummaryDirty
	}

	if err := s.Cache.PutDoc(ctx, &next); err != nil {
		return nil, wrapIO(err, "create doc version")
	}

	for _, e := range append(append([]*types.Edge{}, s.Cache.EdgesFrom(id)...), s.Cache.EdgesTo(id)...) {
		rewritten := *e
		rewritten.ID = ids.GenerateUnique(ids.PrefixEdge, e.ID+"-v", s.Cache.Exists)
		if rewritten.Source == id {
			rewritten.Source = next.ID
		}
		if rewritten.Target == id {
			rewritten.Target = next.ID
		}
		if err := s.Cache.PutEdge(ctx, &rewritten); err != nil {
			return nil, wrapIO(err, "rewrite edge %s to new doc version", e.ID)
		}
		if err := s.Cache.RemoveEdge(ctx, e.ID); err != nil {
			return nil, wrapIO(err, "retire edge %s", e.ID)
		}
	}

	s.logAction("doc.version", next.ID, id)
	return &next, nil
}

func summarySection(body string) string {
	if !strings.HasPrefix(body, summaryHeader) {
		idx := strings.Index(body, "\n"+summaryHeader)
		if idx < 0 {
			return ""
		}
		body = body[idx+1:]
	}
	rest := strings.TrimPrefix(body, summaryHeader)
	if end := strings.Index(rest, "\n#"); end >= 0 {
		return rest[:end]
	}
	return rest
}

// DocHistory walks supersedes pointers back to the cycle-free root,
// oldest first.
func (s *Store) DocHistory(id string) []*types.Doc {
	var chain []*types.Doc
	seen := map[string]bool{}
	cur := id
	for cur != "" && !seen[cur] {
		seen[cur] = true
		d, ok := s.Cache.Docs[cur]
		if !ok {
			break
		}
		chain = append(chain, d)
		cur = d.Supersedes
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// AttachDoc adds a single documents edge from docID to targetID.
func (s *Store) AttachDoc(ctx context.Context, docID, targetID string) (*types.Edge, error) {
	res, err := s.AddEdge(ctx, NewEdge{Source: docID, Target: targetID, EdgeType: types.EdgeDocuments})
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// DetachDoc removes the documents edge from docID to targetID.
func (s *Store) DetachDoc(ctx context.Context, docID, targetID string) error {
	res, err := s.RemoveEdge(ctx, docID, targetID, types.EdgeDocuments)
	if err != nil {
		return err
	}
	if res.Removed == nil {
		return newErr(KindNotFound, "no documents edge from %s to %s", docID, targetID)
	}
	return nil
}

// DeleteDoc tombstones id.
func (s *Store) DeleteDoc(ctx context.Context, id string) error {
	if _, ok := s.Cache.Docs[id]; !ok {
		return newErr(KindNotFound, "doc %s not found", id)
	}
	return s.Cache.DeleteEntity(ctx, id, types.KindDoc)
}
