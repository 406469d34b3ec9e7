// Package processor contains the job logic of wordaudio. It reads the word
// list, fans every row out to the speech backend through the job's rate
// limiter, and writes one audio file per row once all rows are synthesized.
package processor
