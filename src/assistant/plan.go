package assistant

import (
	"context"
	"fmt"

	"github.com/elee1766/chainpilot/src/chatstore"
	"github.com/elee1766/chainpilot/src/proposal"
)

// planFromProposal builds a creation plan from the create actions of p, or
// nil when there are none. Planned ids are keyed by change index.
func planFromProposal(p *proposal.Proposal) *chatstore.ChainCreationPlan {
	plan := &chatstore.ChainCreationPlan{ChainID: p.ChainID, Status: chatstore.PlanCreating}
	for i, action := range p.Changes {
		switch act := action.(type) {
		case *proposal.CreateElement:
			plan.Elements = append(plan.Elements, chatstore.PlannedElement{
				ID:              plannedID(i),
				Type:            act.ElementType,
				Name:            act.Name,
				ParentElementID: act.ParentElementID,
				Properties:      act.Properties,
				Status:          chatstore.ElementPlanned,
			})
		case *proposal.CreateConnection:
			plan.Connections = append(plan.Connections, chatstore.PlannedConnection{
				ID:     plannedID(i),
				From:   act.From,
				To:     act.To,
				Status: chatstore.ConnectionPlanned,
			})
		}
	}
	if len(plan.Elements) == 0 && len(plan.Connections) == 0 {
		return nil
	}
	return plan
}

func plannedID(index int) string {
	return fmt.Sprintf("change-%d", index)
}

// apply runs the proposal and mirrors the progress of its create actions in
// the session's chain creation plan.
func (a *Assistant) apply(ctx context.Context, sessionID string, p *proposal.Proposal) (*proposal.Report, error) {
	logger := a.logger.With("session_id", sessionID, "chain_id", p.ChainID)
	store := a.cfg.Store

	plan := planFromProposal(p)
	if plan != nil {
		if err := store.UpdateChainCreationPlan(sessionID, plan); err != nil {
			logger.Warn("failed to record plan", "error", err)
			plan = nil
		}
	}

	start := func(index int, action proposal.Action) {
		if plan == nil {
			return
		}
		if _, ok := action.(*proposal.CreateElement); !ok {
			return
		}
		if err := store.UpdatePlannedElementStatus(sessionID, plannedID(index), chatstore.ElementCreating, "", ""); err != nil {
			logger.Warn("failed to update plan", "index", index, "error", err)
		}
	}

	connecting := false
	observe := func(res proposal.Result) {
		if plan == nil {
			return
		}
		errMsg := ""
		if res.Err != nil {
			errMsg = res.Err.Error()
		}
		var err error
		switch res.Action.(type) {
		case *proposal.CreateElement:
			status := chatstore.ElementCreated
			if res.Err != nil {
				status = chatstore.ElementFailed
			}
			err = store.UpdatePlannedElementStatus(sessionID, plannedID(res.Index), status, res.ElementID, errMsg)
		case *proposal.CreateConnection:
			if !connecting {
				connecting = true
				if err := store.UpdatePlanStatus(sessionID, chatstore.PlanConnecting); err != nil {
					logger.Warn("failed to update plan status", "error", err)
				}
			}
			status := chatstore.ConnectionCreated
			if res.Err != nil {
				status = chatstore.ConnectionFailed
			}
			err = store.UpdatePlannedConnectionStatus(sessionID, plannedID(res.Index), status, res.ConnectionID, errMsg)
		}
		if err != nil {
			logger.Warn("failed to update plan", "index", res.Index, "error", err)
		}
	}

	report, err := a.cfg.Applier.Apply(ctx, p, proposal.ApplyOptions{SessionID: sessionID, Before: start, Observer: observe})

	if plan != nil {
		status := chatstore.PlanCompleted
		if err != nil {
			status = chatstore.PlanFailed
		}
		if perr := store.UpdatePlanStatus(sessionID, status); perr != nil {
			logger.Warn("failed to finish plan", "error", perr)
		}
	}
	if err != nil {
		logger.Warn("proposal applied with failures", "error", err)
	}
	return report, err
}
