package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"cinelex/internal/services"
	"cinelex/internal/textutil"
)

// DifficultyTable maps folded words or phrases to a difficulty rating.
type DifficultyTable map[string]float64

// LoadDifficultyTable reads a CSV file with word and rating columns.
func LoadDifficultyTable(path string) (DifficultyTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open difficulty table: %w", err)
	}
	defer f.Close()
	table, err := ReadDifficultyTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// ReadDifficultyTable parses CSV rows with a header naming the word and
// rating columns. Rows with an empty word or unparsable rating are skipped.
func ReadDifficultyTable(r io.Reader) (DifficultyTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: difficulty table is empty", services.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("read difficulty header: %w", err)
	}
	wordCol, ratingCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "word":
			wordCol = i
		case "rating":
			ratingCol = i
		}
	}
	if wordCol < 0 || ratingCol < 0 {
		return nil, fmt.Errorf("%w: difficulty table needs word and rating columns", services.ErrValidation)
	}

	table := DifficultyTable{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read difficulty row: %w", err)
		}
		if wordCol >= len(record) || ratingCol >= len(record) {
			continue
		}
		word := textutil.Normalize(record[wordCol])
		rating, err := strconv.ParseFloat(strings.TrimSpace(record[ratingCol]), 64)
		if word == "" || err != nil || math.IsNaN(rating) {
			continue
		}
		table[word] = rating
	}
	return table, nil
}

func (t DifficultyTable) lookup(keys ...string) (float64, bool) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if rating, ok := t[key]; ok {
			return rating, true
		}
	}
	return 0, false
}

// heuristicDifficulty rates a word on a 1-10 scale from its length and how
// rarely it occurs in the analyzed text.
func heuristicDifficulty(word string, occurrences int) float64 {
	length := float64(utf8.RuneCountInString(word))
	rarity := 1 / math.Sqrt(float64(max(occurrences, 1)))
	return clamp(1+0.5*math.Max(0, length-3)+3*rarity, 1, 10)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
