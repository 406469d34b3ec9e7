// Package batch reads the word list that drives a wordaudio run. The input
// is delimited text with a header row naming one language per column; the
// first column is the source language whose cell names each output file.
package batch
