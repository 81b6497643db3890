// Package services holds the business layer: the analysis service that
// drives one pipeline run end to end, the data service backing the
// dashboard API, and the health service. Handlers stay thin; everything
// with a decision in it lives here.
package services
