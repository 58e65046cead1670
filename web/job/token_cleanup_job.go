package job

import (
	"github.com/paralegal-agent/paralegal/logger"
	"github.com/paralegal-agent/paralegal/util/common"
	"github.com/paralegal-agent/paralegal/web/service"

	"go.uber.org/atomic"
)

// TokenCleanupJob deletes expired invite and reset tokens.
type TokenCleanupJob struct {
	tokens  *service.TokenService
	running atomic.Bool
}

func NewTokenCleanupJob(tokens *service.TokenService) *TokenCleanupJob {
	return &TokenCleanupJob{tokens: tokens}
}

// Run purges expired tokens. Overlapping runs are skipped.
func (j *TokenCleanupJob) Run() {
	if !j.running.CompareAndSwap(false, true) {
		logger.Debug("Token cleanup job already running, skipped")
		return
	}
	defer j.running.Store(false)
	defer common.Recover("token cleanup job")

	n, err := j.tokens.PurgeExpired()
	if err != nil {
		logger.Warning("Failed to purge expired tokens:", err)
		return
	}
	if n > 0 {
		logger.Infof("Purged %d expired tokens", n)
	} else {
		logger.Debug("Token cleanup found nothing to purge")
	}
}
