package services

import "errors"

// Data service errors
var (
	ErrNoRunSummary   = errors.New("no run summary available, run the pipeline first")
	ErrNoEnrichedData = errors.New("no enriched data available, run the pipeline first")
	ErrTickerNotFound = errors.New("ticker not found")
	ErrEventNotFound  = errors.New("event not found")
	ErrFileNotFound   = errors.New("file not found")
	ErrInvalidInput   = errors.New("invalid input")
)
