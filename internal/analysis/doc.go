// Package analysis derives versioned linguistic profiles from subtitle text.
//
// The TextAnalyzer interface is the seam used by the processing queue;
// LexicalAnalyzer is the built-in implementation. It parses SRT or WebVTT
// cues, splits sentences, classifies tokens into coarse parts of speech,
// and collects word and phrasal-verb concepts with examples and difficulty.
package analysis
