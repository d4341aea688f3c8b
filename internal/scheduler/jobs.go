package scheduler

import (
	"context"
	"time"

	"campuspay/internal/graduation"
	paymentService "campuspay/internal/payment/service"
)

const (
	JobGraduation   = "graduation"
	JobOverdueSweep = "overdue_sweep"
	JobReverify     = "payment_reverify"
)

type GraduationRunner interface {
	ProcessGraduationTransitions(ctx context.Context) (graduation.Summary, error)
}

type PaymentMaintainer interface {
	SweepOverdue(ctx context.Context) (int64, error)
	ReverifyPending(ctx context.Context, olderThan time.Duration, limit int) (paymentService.ReverifySummary, error)
}

func GraduationJob(g GraduationRunner) Job {
	return func(ctx context.Context) error {
		_, err := g.ProcessGraduationTransitions(ctx)
		return err
	}
}

func OverdueSweepJob(p PaymentMaintainer) Job {
	return func(ctx context.Context) error {
		_, err := p.SweepOverdue(ctx)
		return err
	}
}

func ReverifyJob(p PaymentMaintainer, olderThan time.Duration, limit int) Job {
	return func(ctx context.Context) error {
		_, err := p.ReverifyPending(ctx, olderThan, limit)
		return err
	}
}
