package runner

import "go.uber.org/zap"

// Failure pairs an account with the reason its update did not land.
type Failure struct {
	AccountID string
	Reason    string
}

// Summary is the final report of one run. Partial success is still a
// successful run; zero successes with at least one configured account is not.
type Summary struct {
	Configured int
	Succeeded  []string
	Failed     []Failure
	DryRun     bool
}

// Success reports whether the run counts as successful overall.
func (s *Summary) Success() bool {
	if s.Configured == 0 {
		return true
	}
	return len(s.Succeeded) > 0
}

// Log emits the per-account outcome report.
func (s *Summary) Log(logger *zap.Logger) {
	logger.Info("run summary",
		zap.Int("configured", s.Configured),
		zap.Int("succeeded", len(s.Succeeded)),
		zap.Int("failed", len(s.Failed)),
		zap.Bool("dry_run", s.DryRun))

	for _, id := range s.Succeeded {
		logger.Info("account ok", zap.String("account_id", id))
	}
	for _, f := range s.Failed {
		logger.Warn("account failed",
			zap.String("account_id", f.AccountID),
			zap.String("reason", f.Reason))
	}
}
