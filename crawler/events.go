package crawler

// ProgressFunc is called after every batch with the number of pages
// processed so far, the page budget, and the last URL of the batch.
type ProgressFunc func(processed, maxPages int, currentURL string)
