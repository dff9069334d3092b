package repo

import (
	"context"
	"time"

	"botfleet/pkg/riskgate"
)

// Snapshot implements orchestrator.PortfolioSource: the Risk Gate's
// portfolio-level view for one credential, assembled from the latest
// performance snapshot plus the live trade rows. Every input is
// best-effort; a missing snapshot yields a zero-risk portfolio rather than
// blocking the evaluation.
func (r *Repo) Snapshot(ctx context.Context, credentialID string) (riskgate.Portfolio, error) {
	var p riskgate.Portfolio

	balance := 0.0
	if r.Snapshots != nil {
		if snap, err := r.Snapshots.LatestByCredential(ctx, credentialID); err == nil {
			balance = snap.Balance
			p.CurrentDrawdownPct = snap.DrawdownPct
			if snap.Balance > 0 {
				p.DailyPnLPct = snap.DailyPnl / snap.Balance * 100
			}
		}
	}

	open, err := r.Trades.OpenByCredential(ctx, credentialID)
	if err != nil {
		return p, err
	}
	p.OpenPositions = len(open)

	if balance > 0 {
		var exposure, largest float64
		for i := range open {
			value := open[i].Quantity * open[i].EntryPrice
			exposure += value
			if value > largest {
				largest = value
			}
		}
		p.TotalExposurePct = exposure / balance * 100
		p.CurrentRiskPct = largest / balance * 100
	}

	p.ConsecutiveLosses = r.consecutiveLosses(ctx, credentialID)
	return p, nil
}

// consecutiveLosses counts the loss streak at the head of the last day's
// closed trades (newest first); the streak breaks on the first winner.
func (r *Repo) consecutiveLosses(ctx context.Context, credentialID string) int {
	closed, err := r.Trades.ClosedSince(ctx, credentialID, time.Now().Add(-24*time.Hour))
	if err != nil {
		return 0
	}
	streak := 0
	for i := range closed {
		if closed[i].ProfitLoss.Valid && closed[i].ProfitLoss.Float64 < 0 {
			streak++
			continue
		}
		break
	}
	return streak
}
