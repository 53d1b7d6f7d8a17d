package webhook

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// FleetReport summarizes one batch reconciliation run
type FleetReport struct {
	// Synced is the number of local records successfully reconciled
	Synced int
	// Failed is the number of records or tokens that errored
	Failed int
	// Discovered is the number of remote registrations adopted locally
	Discovered int
	// MissingRemote lists local record ids with no remote counterpart.
	// Informational only - nothing is deleted automatically.
	MissingRemote []string
}

/* SyncFleet reconciles every local record and then walks all known tokens
 * looking for remote registrations with no local counterpart, adopting
 * them as new records without re-triggering a push.
 *
 * Tokens come from the local records plus the operator-supplied extras.
 * One record or token failing does not abort the batch - it is logged,
 * counted, and the job proceeds. Cancelling the context stops the job
 * between iterations, never mid-call.
 */
func (e *SyncEngine) SyncFleet(ctx context.Context, extraTokens []string) (FleetReport, error) {
	var report FleetReport

	locals, err := e.repo.List(ctx)
	if err != nil {
		return report, fmt.Errorf("listing local webhooks: %w", err)
	}

	known := make(map[string]bool)
	tokens := make(map[string]bool)

	for _, w := range locals {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		tokens[w.AuthToken] = true

		synced, err := e.Sync(ctx, w, true)
		if err != nil {
			report.Failed++
			e.logger.Warn("fleet sync: record failed",
				"webhook_id", w.ID,
				"model_id", w.ModelID,
				"error", err,
			)
			// remember the stale remote id anyway so a transient failure
			// does not make the discovery pass re-adopt a known hook
			if w.TrelloID != "" && w.TrelloID != TrelloIDConflict {
				known[w.TrelloID] = true
			}
			continue
		}

		report.Synced++
		if synced.HasTrelloID() && synced.TrelloID != TrelloIDConflict {
			known[synced.TrelloID] = true
		}
		if synced.State() == Unregistered {
			report.MissingRemote = append(report.MissingRemote, synced.ID)
		}
	}

	for _, t := range extraTokens {
		if t != "" {
			tokens[t] = true
		}
	}

	// deterministic iteration order makes runs comparable in the logs
	ordered := make([]string, 0, len(tokens))
	for t := range tokens {
		ordered = append(ordered, t)
	}
	sort.Strings(ordered)

	for _, token := range ordered {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		hooks, err := e.remote.List(ctx, token)
		if err != nil {
			report.Failed++
			e.logger.Warn("fleet sync: token listing failed", "error", err)
			continue
		}

		for _, hook := range hooks {
			if known[hook.ID] {
				continue
			}

			adopted := Webhook{
				ID:          uuid.New().String(),
				ModelID:     hook.IDModel,
				TrelloID:    hook.ID,
				Description: hook.Description,
				AuthToken:   token,
				Active:      ActivationFromRemote(hook.Active),
			}
			if _, err := e.repo.Store(ctx, adopted); err != nil {
				/* A duplicate (model, token) pair means the registration is
				 * already represented locally - typically by a record parked
				 * on the conflict sentinel, which deliberately does not carry
				 * the real remote id. Not a discovery, not a failure.
				 */
				if errors.Is(err, ErrDuplicate) {
					known[hook.ID] = true
					continue
				}
				report.Failed++
				e.logger.Warn("fleet sync: unable to adopt remote webhook",
					"trello_id", hook.ID,
					"model_id", hook.IDModel,
					"error", err,
				)
				continue
			}

			known[hook.ID] = true
			report.Discovered++
			e.logger.Info("fleet sync: adopted remote webhook",
				"webhook_id", adopted.ID,
				"trello_id", hook.ID,
				"model_id", hook.IDModel,
			)
		}
	}

	e.logger.Info("fleet sync complete",
		"synced", report.Synced,
		"discovered", report.Discovered,
		"failed", report.Failed,
		"missing_remote", len(report.MissingRemote),
	)
	return report, nil
}
