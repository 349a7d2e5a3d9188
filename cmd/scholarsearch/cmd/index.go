package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/scholargraph/scholarsearch/internal/output"
	"github.com/scholargraph/scholarsearch/internal/search"
	"github.com/scholargraph/scholarsearch/internal/store"
)

// indexBatchSize is the number of fragments written per store batch.
const indexBatchSize = 500

// corpusRecord is one line of a corpus JSONL file. Kind selects which
// payload is set. Fragment records carry their pre-computed embedding;
// the engine never embeds corpus text itself.
type corpusRecord struct {
	Kind        string             `json:"kind"`
	Fragment    *fragmentRecord    `json:"fragment,omitempty"`
	Embedding   []float32          `json:"embedding,omitempty"`
	Person      *personRecord      `json:"person,omitempty"`
	Publication *publicationRecord `json:"publication,omitempty"`
}

type fragmentRecord struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Content       string            `json:"content"`
	PersonID      string            `json:"person_id,omitempty"`
	PublicationID string            `json:"publication_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type personRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	School string `json:"school,omitempty"`
}

type publicationRecord struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Authors []string `json:"authors,omitempty"`
	Year    int      `json:"year,omitempty"`
	Venue   string   `json:"venue,omitempty"`
	DOI     string   `json:"doi,omitempty"`
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <corpus.jsonl>",
		Short: "Load a pre-embedded corpus into the indexes",
		Long: `Load a corpus file into the lexical index, vector index, and
metadata store.

The corpus is JSON Lines. Each line is one record:

  {"kind":"person","person":{"id":"p1","name":"...","school":"..."}}
  {"kind":"publication","publication":{"id":"w1","title":"...","authors":[...],"year":2021}}
  {"kind":"fragment","fragment":{"id":"w1-abstract","type":"work-abstract","content":"...","publication_id":"w1"},"embedding":[0.01,...]}

Fragments without an embedding remain lexically searchable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args[0])
		},
	}
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, corpusPath string) error {
	out := output.New(cmd.OutOrStdout())
	start := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := ensureDataDir(cfg); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	deps, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	indexer := search.NewIndexer(deps.lexical, deps.vector, deps.meta, cfg.Paths.DataDir, search.IndexerConfig{
		LexicalPath: cfg.LexicalIndexPath(),
		VectorPath:  cfg.VectorIndexPath(),
		Model:       cfg.Embeddings.Model,
		Logger:      slog.Default(),
	})

	out.Statusf("📚", "Indexing corpus from %s", corpusPath)

	stats, err := loadCorpus(ctx, corpusPath, indexer)
	if err != nil {
		return err
	}

	if err := indexer.Save(); err != nil {
		return fmt.Errorf("failed to persist indexes: %w", err)
	}

	out.Successf("Indexed %d fragments (%d with vectors), %d researchers, %d publications in %s",
		stats.fragments, stats.withVectors, stats.persons, stats.publications,
		time.Since(start).Round(time.Millisecond))
	return nil
}

type corpusStats struct {
	fragments    int
	withVectors  int
	persons      int
	publications int
}

// loadCorpus streams the JSONL file into the indexer in batches.
func loadCorpus(ctx context.Context, path string, indexer *search.Indexer) (*corpusStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer func() { _ = f.Close() }()

	stats := &corpusStats{}
	var (
		fragments  []*store.Fragment
		embeddings = map[string][]float32{}
		persons    []*store.Person
		pubs       []*store.Publication
	)

	flush := func() error {
		if len(persons) > 0 {
			if err := indexer.SavePersons(ctx, persons); err != nil {
				return err
			}
			persons = nil
		}
		if len(pubs) > 0 {
			if err := indexer.SavePublications(ctx, pubs); err != nil {
				return err
			}
			pubs = nil
		}
		if len(fragments) > 0 {
			if err := indexer.IndexFragments(ctx, fragments, embeddings); err != nil {
				return err
			}
			fragments = nil
			embeddings = map[string][]float32{}
		}
		return nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec corpusRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("corpus line %d: invalid JSON: %w", line, err)
		}

		switch rec.Kind {
		case "fragment":
			if rec.Fragment == nil {
				return nil, fmt.Errorf("corpus line %d: fragment record without fragment payload", line)
			}
			fragments = append(fragments, &store.Fragment{
				ID:            rec.Fragment.ID,
				Type:          store.ChunkType(rec.Fragment.Type),
				Content:       rec.Fragment.Content,
				PersonID:      rec.Fragment.PersonID,
				PublicationID: rec.Fragment.PublicationID,
				Metadata:      rec.Fragment.Metadata,
			})
			stats.fragments++
			if len(rec.Embedding) > 0 {
				embeddings[rec.Fragment.ID] = rec.Embedding
				stats.withVectors++
			}
		case "person":
			if rec.Person == nil {
				return nil, fmt.Errorf("corpus line %d: person record without person payload", line)
			}
			persons = append(persons, &store.Person{
				ID:     rec.Person.ID,
				Name:   rec.Person.Name,
				School: rec.Person.School,
			})
			stats.persons++
		case "publication":
			if rec.Publication == nil {
				return nil, fmt.Errorf("corpus line %d: publication record without publication payload", line)
			}
			pubs = append(pubs, &store.Publication{
				ID:      rec.Publication.ID,
				Title:   rec.Publication.Title,
				Authors: rec.Publication.Authors,
				Year:    rec.Publication.Year,
				Venue:   rec.Publication.Venue,
				DOI:     rec.Publication.DOI,
			})
			stats.publications++
		default:
			return nil, fmt.Errorf("corpus line %d: unknown record kind %q", line, rec.Kind)
		}

		if len(fragments) >= indexBatchSize {
			if err := flush(); err != nil {
				return nil, fmt.Errorf("corpus line %d: %w", line, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return stats, nil
}
