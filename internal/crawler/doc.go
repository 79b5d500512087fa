// Package crawler implements the thesis harvesting pipeline: a retrying
// fetcher, the listing scanner and record extractor, the per-keyword crawler
// and the campaign runner that accumulates matched records.
package crawler
