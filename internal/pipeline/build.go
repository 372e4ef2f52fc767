package pipeline

import (
	"call-evaluator-go/internal/config"
	"call-evaluator-go/internal/extractor"
	"call-evaluator-go/internal/fetch"
	"call-evaluator-go/internal/logger"
	"call-evaluator-go/internal/transcode"
)

// FromConfig wires the production stages around persister.
func FromConfig(cfg config.Config, persister Persister, log *logger.Logger) *Runner {
	return &Runner{
		Fetcher: fetch.New(cfg.FetchTimeout, log,
			fetch.WithLocalRoot(cfg.LocalSourceDir),
			fetch.WithMaxBytes(cfg.MaxAudioBytes),
		),
		Normalizer: transcode.NewFFmpeg(cfg.FFmpegPath),
		Analyzer: extractor.NewAnalyzer(extractor.Options{
			GatewayURL: cfg.LLMGatewayURL,
			APIKey:     cfg.LLMAPIKey,
			Model:      cfg.LLMModel,
			UseMock:    cfg.UseMockLLM,
			Timeout:    cfg.AnalyzeTimeout,
			MaxBytes:   cfg.MaxAudioBytes,
		}, log),
		Persister: persister,
		WorkDir:   cfg.WorkDir,
		// one request plus the analyzer's retry budget
		AnalyzeTimeout: 3 * cfg.AnalyzeTimeout,
		Log:            log,
	}
}
