//go:build ignore

// Package main generates a synthetic pre-embedded corpus for benchmarking.
// Usage: go run scripts/generate-test-corpus.go -researchers 50 -publications 500 -dims 768 -output testdata/corpus.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numResearchers  = flag.Int("researchers", 50, "Number of researcher profiles to generate")
	numPublications = flag.Int("publications", 500, "Number of publications to generate")
	dims            = flag.Int("dims", 768, "Embedding dimension")
	outputPath      = flag.String("output", "testdata/corpus.jsonl", "Output corpus file")
	seed            = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var topics = []string{
	"graph neural networks", "reinforcement learning", "causal inference",
	"protein folding", "quantum error correction", "distributed consensus",
	"program synthesis", "information retrieval", "computational linguistics",
	"convex optimization", "bayesian nonparametrics", "compiler verification",
}

var venues = []string{"NeurIPS", "ICML", "ACL", "SIGIR", "PLDI", "SOSP", "Nature Methods", "JMLR"}

var schools = []string{
	"School of Computing", "Department of Statistics", "School of Engineering",
	"Department of Linguistics", "Institute for Data Science",
}

var surnames = []string{
	"Chen", "Okafor", "Nakamura", "Petrova", "Svensson", "Rahman",
	"Delgado", "Kowalski", "Haddad", "Osei", "Lindqvist", "Moreau",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(filepath.Dir(*outputPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
		os.Exit(1)
	}
	f, err := os.Create(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	emit := func(record map[string]any) {
		data, err := json.Marshal(record)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to marshal record: %v\n", err)
			os.Exit(1)
		}
		w.Write(data)
		w.WriteByte('\n')
	}

	for i := 0; i < *numResearchers; i++ {
		personID := fmt.Sprintf("p%04d", i)
		name := fmt.Sprintf("%s. %s", string(rune('A'+rng.Intn(26))), surnames[rng.Intn(len(surnames))])
		topic := topics[rng.Intn(len(topics))]

		emit(map[string]any{
			"kind": "person",
			"person": map[string]any{
				"id":     personID,
				"name":   name,
				"school": schools[rng.Intn(len(schools))],
			},
		})
		emit(map[string]any{
			"kind": "fragment",
			"fragment": map[string]any{
				"id":        personID + "-summary",
				"type":      "profile-summary",
				"content":   fmt.Sprintf("%s researches %s and its applications.", name, topic),
				"person_id": personID,
			},
			"embedding": randomVector(rng, *dims),
		})
	}

	for i := 0; i < *numPublications; i++ {
		pubID := fmt.Sprintf("w%05d", i)
		topic := topics[rng.Intn(len(topics))]
		title := fmt.Sprintf("Advances in %s: a %s approach", topic, topics[rng.Intn(len(topics))])
		author := fmt.Sprintf("%s, %s.", surnames[rng.Intn(len(surnames))], string(rune('A'+rng.Intn(26))))

		emit(map[string]any{
			"kind": "publication",
			"publication": map[string]any{
				"id":      pubID,
				"title":   title,
				"authors": []string{author},
				"year":    2015 + rng.Intn(11),
				"venue":   venues[rng.Intn(len(venues))],
			},
		})
		emit(map[string]any{
			"kind": "fragment",
			"fragment": map[string]any{
				"id":             pubID + "-title",
				"type":           "work-title",
				"content":        title,
				"publication_id": pubID,
			},
			"embedding": randomVector(rng, *dims),
		})
		emit(map[string]any{
			"kind": "fragment",
			"fragment": map[string]any{
				"id":             pubID + "-abstract",
				"type":           "work-abstract",
				"content":        fmt.Sprintf("We study %s. Our method improves on prior work in %s and evaluates on standard benchmarks.", topic, topics[rng.Intn(len(topics))]),
				"publication_id": pubID,
			},
			"embedding": randomVector(rng, *dims),
		})
	}

	fmt.Printf("Wrote corpus to %s (%d researchers, %d publications)\n",
		*outputPath, *numResearchers, *numPublications)
}

func randomVector(rng *rand.Rand, dims int) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}
