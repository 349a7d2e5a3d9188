package search

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	engerrors "github.com/scholargraph/scholarsearch/internal/errors"
	"github.com/scholargraph/scholarsearch/internal/store"
)

// PreviewLength is the maximum preview size in characters.
const PreviewLength = 500

// CitationAssembler resolves ranked fragments into display-ready citations
// with owner metadata.
type CitationAssembler struct {
	meta store.MetadataStore
}

// NewCitationAssembler creates an assembler over the metadata store.
func NewCitationAssembler(meta store.MetadataStore) *CitationAssembler {
	return &CitationAssembler{meta: meta}
}

// Assemble builds citations for the final ranked candidates, preserving
// their order. Missing owner records never drop a citation; the display
// blocks are simply absent. Rank is 1-indexed over the returned list.
func (a *CitationAssembler) Assemble(ctx context.Context, ranked []*FusedResult) ([]*Citation, error) {
	if len(ranked) == 0 {
		return []*Citation{}, nil
	}

	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.FragmentID
	}

	fragments, err := a.meta.GetFragments(ctx, ids)
	if err != nil {
		return nil, engerrors.InternalError("citation metadata lookup failed", err)
	}

	fragByID := make(map[string]*store.Fragment, len(fragments))
	for _, f := range fragments {
		fragByID[f.ID] = f
	}

	// Owner lookups are memoized per call; many fragments share a person
	// or publication.
	persons := make(map[string]*store.Person)
	pubs := make(map[string]*store.Publication)

	citations := make([]*Citation, 0, len(ranked))
	for _, r := range ranked {
		frag, ok := fragByID[r.FragmentID]
		if !ok {
			// Index and metadata disagree. Keep the slot visible rather
			// than silently shrinking the result list.
			citations = append(citations, &Citation{
				FragmentID: r.FragmentID,
				Rank:       len(citations) + 1,
				Scores:     scoresFromFused(r),
			})
			continue
		}

		c := &Citation{
			FragmentID: frag.ID,
			Rank:       len(citations) + 1,
			Type:       frag.Type,
			Preview:    makePreview(frag.Content),
			Scores:     scoresFromFused(r),
		}

		if frag.PersonID != "" {
			person, ok := persons[frag.PersonID]
			if !ok {
				person, err = a.meta.GetPerson(ctx, frag.PersonID)
				if err != nil {
					return nil, engerrors.InternalError("person lookup failed", err)
				}
				persons[frag.PersonID] = person
			}
			c.Person = person
		}

		if frag.PublicationID != "" {
			pub, ok := pubs[frag.PublicationID]
			if !ok {
				pub, err = a.meta.GetPublication(ctx, frag.PublicationID)
				if err != nil {
					return nil, engerrors.InternalError("publication lookup failed", err)
				}
				pubs[frag.PublicationID] = pub
			}
			c.Publication = pub
		}

		c.Formatted = FormatCitation(c)
		citations = append(citations, c)
	}

	return citations, nil
}

// Summarize produces the one-line breakdown of distinct sources behind
// the citation list, e.g. "3 publications, 2 researcher profiles".
func (a *CitationAssembler) Summarize(citations []*Citation) string {
	pubs := make(map[string]struct{})
	people := make(map[string]struct{})
	for _, c := range citations {
		if c.Publication != nil {
			pubs[c.Publication.ID] = struct{}{}
		} else if c.Person != nil {
			people[c.Person.ID] = struct{}{}
		}
	}

	parts := make([]string, 0, 2)
	if len(pubs) > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", len(pubs), plural(len(pubs), "publication")))
	}
	if len(people) > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", len(people), plural(len(people), "researcher profile")))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", ")
}

// FormatCitation renders an APA-style reference line for the citation.
// It degrades field by field: whatever metadata exists is rendered,
// whatever is missing is skipped.
func FormatCitation(c *Citation) string {
	if c.Publication != nil {
		return formatPublication(c.Publication)
	}
	if c.Person != nil {
		if c.Person.School != "" {
			return fmt.Sprintf("%s (%s)", c.Person.Name, c.Person.School)
		}
		return c.Person.Name
	}
	return ""
}

func formatPublication(p *store.Publication) string {
	var b strings.Builder

	if len(p.Authors) > 0 {
		b.WriteString(joinAuthors(p.Authors))
	}
	if p.Year > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "(%d).", p.Year)
	} else if b.Len() > 0 {
		b.WriteString(".")
	}
	if p.Title != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(p.Title)
		if !strings.HasSuffix(p.Title, ".") {
			b.WriteString(".")
		}
	}
	if p.Venue != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(p.Venue)
		b.WriteString(".")
	}
	if p.DOI != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString("https://doi.org/")
		b.WriteString(p.DOI)
	}

	return b.String()
}

// joinAuthors renders the author list APA style: "A", "A & B",
// "A, B, & C".
func joinAuthors(authors []string) string {
	switch len(authors) {
	case 1:
		return authors[0]
	case 2:
		return authors[0] + " & " + authors[1]
	default:
		return strings.Join(authors[:len(authors)-1], ", ") + ", & " + authors[len(authors)-1]
	}
}

// makePreview truncates content to PreviewLength characters on a rune
// boundary, appending an ellipsis when truncated.
func makePreview(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= PreviewLength {
		return content
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:PreviewLength])) + "..."
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func scoresFromFused(r *FusedResult) Scores {
	return Scores{
		Lexical:     r.LexScore,
		LexicalRank: r.LexRank,
		Vector:      r.VecScore,
		VectorRank:  r.VecRank,
		Fused:       r.RRFScore,
	}
}
