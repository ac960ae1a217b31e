package job

import (
	"context"

	"github.com/xxxsen/chatvec/internal/service"
)

type RetrySweepJob struct {
	sweeper *service.RetrySweeper
}

func NewRetrySweepJob(sweeper *service.RetrySweeper) *RetrySweepJob {
	return &RetrySweepJob{sweeper: sweeper}
}

func (j *RetrySweepJob) Name() string {
	return "retry_sweep"
}

func (j *RetrySweepJob) Run(ctx context.Context) error {
	if j.sweeper == nil {
		return nil
	}
	_, err := j.sweeper.Sweep(ctx)
	return err
}
