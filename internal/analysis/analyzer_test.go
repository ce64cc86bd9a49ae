package analysis_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cinelex/internal/analysis"
	"cinelex/internal/services"
	"cinelex/internal/testsupport"
)

func findConcept(t *testing.T, profiles []analysis.ConceptProfile, concept string) analysis.ConceptProfile {
	t.Helper()
	for _, p := range profiles {
		if p.Concept == concept {
			return p
		}
	}
	t.Fatalf("concept %q not found in %+v", concept, profiles)
	return analysis.ConceptProfile{}
}

func TestAnalyzeSampleSubtitle(t *testing.T) {
	profile, err := analysis.NewLexicalAnalyzer().Analyze(context.Background(), testsupport.SampleSRT)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if profile.AnalysisVersion != analysis.Version {
		t.Fatalf("unexpected version %q", profile.AnalysisVersion)
	}
	if profile.SentencesCount != 4 || profile.SentencesAvgLength != 7 {
		t.Fatalf("unexpected sentence stats: count=%d avg=%v", profile.SentencesCount, profile.SentencesAvgLength)
	}
	wantPOS := map[string]int{analysis.POSWord: 7, analysis.POSFunction: 15, analysis.POSPunctuation: 5, analysis.POSNumber: 1}
	for kind, want := range wantPOS {
		if got := profile.POSStats[kind].Number; got != want {
			t.Fatalf("pos %s = %d, want %d (%+v)", kind, got, want, profile.POSStats)
		}
	}

	words := profile.Concepts[analysis.ConceptWord]
	if len(words) != 7 {
		t.Fatalf("expected 7 word concepts, got %+v", words)
	}
	look := findConcept(t, words, "look")
	if look.NumOccurrences != 1 || len(look.Examples) != 1 {
		t.Fatalf("unexpected look concept %+v", look)
	}
	example := look.Examples[0]
	if example.Context != "She looked up the address in 1994." || example.StartChar != 4 || example.EndChar != 10 {
		t.Fatalf("unexpected example %+v", example)
	}
	if example.Time == nil || *example.Time != 370 {
		t.Fatalf("expected example time 370, got %v", example.Time)
	}

	phrasal := profile.Concepts[analysis.ConceptPhrasalVerb]
	for _, concept := range []string{"get out", "give up", "look up"} {
		findConcept(t, phrasal, concept)
	}
	if idioms, ok := profile.Concepts[analysis.ConceptIdiom]; !ok || len(idioms) != 0 {
		t.Fatalf("expected empty idiom list, got %v (present=%v)", idioms, ok)
	}

	if profile.Duration == nil || *profile.Duration != 372 {
		t.Fatalf("expected duration 372, got %v", profile.Duration)
	}
	if len(profile.TimeRanges) != 2 || profile.TimeRanges[1].StartTime != 300 || profile.TimeRanges[1].EndTime != 372 {
		t.Fatalf("unexpected time ranges %+v", profile.TimeRanges)
	}
	for _, tr := range profile.TimeRanges {
		if tr.Difficulty == nil {
			t.Fatalf("expected rated time range %+v", tr)
		}
	}
	if profile.Difficulty == nil || *profile.Difficulty <= 0 {
		t.Fatalf("expected overall difficulty, got %v", profile.Difficulty)
	}
}

func TestAnalyzeCapsExamples(t *testing.T) {
	text := "Run home. Run home. Run home. Run home."
	profile, err := analysis.NewLexicalAnalyzer().Analyze(context.Background(), text)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	run := findConcept(t, profile.Concepts[analysis.ConceptWord], "run")
	if run.NumOccurrences != 4 || len(run.Examples) != 2 {
		t.Fatalf("expected 4 occurrences with 2 examples, got %+v", run)
	}
	if profile.Duration != nil || profile.TimeRanges != nil {
		t.Fatalf("plain text should carry no timing, got %+v", profile)
	}
}

func TestAnalyzeUsesDifficultyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "difficulty.csv")
	testsupport.WriteFile(t, path, []byte("word,rating\nmoney,2.5\ngive up,7\nbroken,\n"))
	table, err := analysis.LoadDifficultyTable(path)
	if err != nil {
		t.Fatalf("LoadDifficultyTable: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("expected unparsable rows skipped, got %v", table)
	}

	profile, err := analysis.NewLexicalAnalyzer(analysis.WithDifficultyTable(table)).
		Analyze(context.Background(), testsupport.SampleSRT)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	money := findConcept(t, profile.Concepts[analysis.ConceptWord], "money")
	if money.Difficulty == nil || *money.Difficulty != 2.5 {
		t.Fatalf("expected table rating for money, got %v", money.Difficulty)
	}
	giveUp := findConcept(t, profile.Concepts[analysis.ConceptPhrasalVerb], "give up")
	if giveUp.Difficulty == nil || *giveUp.Difficulty != 7 {
		t.Fatalf("expected table rating for give up, got %v", giveUp.Difficulty)
	}
	address := findConcept(t, profile.Concepts[analysis.ConceptWord], "address")
	if address.Difficulty == nil || *address.Difficulty != 6 {
		t.Fatalf("expected heuristic rating 6 for address, got %v", address.Difficulty)
	}
}

func TestReadDifficultyTableRequiresColumns(t *testing.T) {
	if _, err := analysis.ReadDifficultyTable(strings.NewReader("term,score\nx,1\n")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := analysis.ReadDifficultyTable(strings.NewReader("")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty table, got %v", err)
	}
}

func TestAnalyzeRejectsEmptyText(t *testing.T) {
	analyzer := analysis.NewLexicalAnalyzer()
	for _, text := range []string{"", "   \n", "1\n00:00:01,000 --> 00:00:02,000\n<i></i>\n"} {
		if _, err := analyzer.Analyze(context.Background(), text); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", text, err)
		}
	}
}

func TestAnalyzeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := analysis.NewLexicalAnalyzer().Analyze(ctx, testsupport.SampleSRT); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseCuesWebVTT(t *testing.T) {
	vtt := "WEBVTT\n\nNOTE a comment\n\n00:01.500 --> 00:03.000 align:start\n<v Bob>Hello there.</v>\n\n1\n00:00:04.000 --> 00:00:05.250\n{\\an8}- Bye!\n"
	cues := analysis.ParseCues(vtt)
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %+v", cues)
	}
	if cues[0].Start != 1500*time.Millisecond || cues[0].End != 3*time.Second || cues[0].Text != "Hello there." {
		t.Fatalf("unexpected first cue %+v", cues[0])
	}
	if cues[1].Text != "Bye!" || cues[1].End != 5250*time.Millisecond || !cues[1].Timed {
		t.Fatalf("unexpected second cue %+v", cues[1])
	}
}

func TestParseCuesPlainText(t *testing.T) {
	cues := analysis.ParseCues("First paragraph.\n\nSecond one.")
	if len(cues) != 2 || cues[0].Timed || cues[1].Text != "Second one." {
		t.Fatalf("unexpected plain cues %+v", cues)
	}
}

func TestDecode(t *testing.T) {
	profile, err := analysis.NewLexicalAnalyzer().Analyze(context.Background(), testsupport.SampleSRT)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	data, err := analysis.Encode(profile)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := analysis.Decode(analysis.Version, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.SentencesCount != profile.SentencesCount || len(decoded.Concepts[analysis.ConceptWord]) != 7 {
		t.Fatalf("decoded profile differs: %+v", decoded)
	}
	if _, err := analysis.Decode("0.1", data); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected unknown version rejected, got %v", err)
	}
	if _, err := analysis.Decode(analysis.Version, []byte(`{"analysis_version":"2"}`)); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected mismatched payload version rejected, got %v", err)
	}
}
