//go:build ignore

// Package main generates a synthetic course corpus for benchmarking.
// Usage: go run scripts/generate-corpus.go -docs 200 -output testdata/bench
//
// Documents come out as plain text with form-feed page breaks, the same
// shape pdftotext produces, so they feed straight into studyrag ingest.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numDocs   = flag.Int("docs", 200, "Number of documents to generate")
	numPages  = flag.Int("pages", 6, "Pages per document")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// Word pools for generating study prose with a varied vocabulary.
var (
	subjects = []string{
		"biology", "chemistry", "physics", "economics", "psychology",
		"statistics", "linguistics", "geology", "astronomy", "ecology",
	}
	concepts = []string{
		"the cell membrane", "oxidative phosphorylation", "the Krebs cycle",
		"natural selection", "supply and demand", "classical conditioning",
		"the central limit theorem", "plate tectonics", "stellar fusion",
		"trophic cascades", "enzyme kinetics", "covalent bonding",
		"the nitrogen cycle", "operant conditioning", "marginal utility",
		"genetic drift", "electromagnetic induction", "osmotic pressure",
		"the phoneme inventory", "sedimentary deposition",
	}
	processes = []string{
		"regulates", "accelerates", "inhibits", "transforms", "stabilizes",
		"amplifies", "constrains", "mediates", "drives", "counteracts",
	}
	subjectsOf = []string{
		"energy transfer", "population dynamics", "signal transduction",
		"market equilibrium", "memory consolidation", "sampling variance",
		"crustal movement", "nutrient uptake", "reaction rates",
		"species diversity", "price formation", "gene expression",
	}
	framings = []string{
		"Experimental evidence shows that %s %s %s under most conditions.",
		"In %s, %s %s %s, a relationship covered in depth this term.",
		"A common exam question asks how %s %s %s.",
		"Early models assumed otherwise, but %s clearly %s %s.",
		"Field observations confirm that %s %s %s across many systems.",
		"The key takeaway is that %s %s %s; memorize the mechanism.",
	}
	docKinds = []string{"lecture", "chapter", "review"}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generating %d documents of %d pages in %s...\n", *numDocs, *numPages, *outputDir)

	generated := 0
	for i := 0; i < *numDocs; i++ {
		if err := generateDocument(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating document %d: %v\n", i, err)
			continue
		}
		generated++
	}

	fmt.Printf("Generated %d documents successfully.\n", generated)
}

func randomWord(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

// sentence builds one study-prose sentence from the word pools. Framings
// take either three slots (concept, process, object) or four with a
// leading subject.
func sentence(rng *rand.Rand) string {
	framing := randomWord(rng, framings)
	concept := randomWord(rng, concepts)
	process := randomWord(rng, processes)
	object := randomWord(rng, subjectsOf)

	if strings.Count(framing, "%s") == 4 {
		return fmt.Sprintf(framing, randomWord(rng, subjects), concept, process, object)
	}
	return fmt.Sprintf(framing, concept, process, object)
}

// page builds one page of prose: a heading sentence plus enough body
// sentences to give the chunker something to split.
func page(rng *rand.Rand, pageNum int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Section %d covers %s. ", pageNum, randomWord(rng, concepts))

	sentences := 12 + rng.Intn(8)
	for i := 0; i < sentences; i++ {
		b.WriteString(sentence(rng))
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String())
}

func generateDocument(rng *rand.Rand, index int) error {
	kind := randomWord(rng, docKinds)
	subject := randomWord(rng, subjects)

	pages := make([]string, *numPages)
	for p := range pages {
		pages[p] = page(rng, p+1)
	}

	filename := filepath.Join(*outputDir, fmt.Sprintf("%s_%s_%03d.txt", subject, kind, index))
	content := strings.Join(pages, "\f")
	return os.WriteFile(filename, []byte(content), 0644)
}
