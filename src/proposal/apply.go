package proposal

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/elee1766/chainpilot/src/chainapi"
	"github.com/elee1766/chainpilot/src/events"
)

// ChainAPI is the part of the chain service a proposal needs.
type ChainAPI interface {
	GetChain(ctx context.Context, chainID string) (*chainapi.Chain, error)
	UpdateChain(ctx context.Context, chainID string, patch chainapi.ChainPatch) error
	CreateElement(ctx context.Context, chainID string, req chainapi.CreateElementRequest) (*chainapi.ElementsChange, error)
	GetElementsByType(ctx context.Context, chainID, elementType string) ([]chainapi.Element, error)
	UpdateElement(ctx context.Context, chainID, elementID string, patch chainapi.ElementPatch) (*chainapi.ElementsChange, error)
	DeleteElements(ctx context.Context, chainID string, elementIDs []string) error
	CreateConnection(ctx context.Context, chainID, from, to string) (*chainapi.Connection, error)
	DeleteConnections(ctx context.Context, chainID string, connectionIDs []string) error
}

var _ ChainAPI = (*chainapi.Client)(nil)

// Result reports the outcome of one change.
type Result struct {
	Index        int
	Action       Action
	ElementID    string
	ConnectionID string
	Err          error
}

// Report summarises an Apply call.
type Report struct {
	ChainID string
	Results []Result
	Applied int
	Failed  int
}

// ApplyOptions carries per-call settings.
type ApplyOptions struct {
	SessionID string
	// Before, if set, is called as each change starts.
	Before func(index int, action Action)
	// Observer, if set, is called after each change, in order.
	Observer func(Result)
}

// ApplierOptions configures an Applier.
type ApplierOptions struct {
	// Refresh reloads the chain view once all changes were attempted.
	Refresh func(ctx context.Context, chainID string) error
	Events  events.EventSink
	Logger  *slog.Logger
}

// Applier applies proposals against the chain service.
type Applier struct {
	api     ChainAPI
	refresh func(ctx context.Context, chainID string) error
	events  events.EventSink
	logger  *slog.Logger
}

// NewApplier creates an Applier.
func NewApplier(api ChainAPI, opts ApplierOptions) *Applier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Events
	if sink == nil {
		sink = events.Discard{}
	}
	return &Applier{
		api:     api,
		refresh: opts.Refresh,
		events:  sink,
		logger:  logger.With("component", "proposal_applier"),
	}
}

// Apply runs the changes strictly in order. A failing change is logged and
// the rest are still attempted; nothing is rolled back. The returned error
// is a *MultiError of *ActionError values, or nil.
func (a *Applier) Apply(ctx context.Context, p *Proposal, opts ApplyOptions) (*Report, error) {
	if p == nil {
		return nil, fmt.Errorf("nil proposal")
	}
	logger := a.logger.With("chain_id", p.ChainID, "changes", len(p.Changes))
	logger.Info("applying proposal")

	report := &Report{ChainID: p.ChainID}
	errs := &MultiError{}

	for i, action := range p.Changes {
		if opts.Before != nil {
			opts.Before(i, action)
		}
		res := a.applyOne(ctx, p.ChainID, action)
		res.Index = i
		res.Action = action
		if res.Err != nil {
			res.Err = &ActionError{Index: i, Action: action.Kind(), Err: res.Err}
			report.Failed++
			errs.Add(res.Err)
			logger.Error("change failed", "index", i, "action", action.Kind(), "error", res.Err)
		} else {
			report.Applied++
			logger.Debug("change applied", "index", i, "action", action.Kind())
		}
		report.Results = append(report.Results, res)
		if opts.Observer != nil {
			opts.Observer(res)
		}
	}

	if a.refresh != nil {
		if err := a.refresh(ctx, p.ChainID); err != nil {
			logger.Warn("failed to refresh chain after applying proposal", "error", err)
		}
	}
	a.send(logger, &events.ChainUpdatedEvent{BaseEvent: events.NewBase(events.EventChainUpdated, opts.SessionID), ChainID: p.ChainID})
	a.send(logger, &events.ChainsListRefreshEvent{BaseEvent: events.NewBase(events.EventChainsListRefresh, opts.SessionID)})
	a.send(logger, &events.ProposalAppliedEvent{
		BaseEvent: events.NewBase(events.EventProposalApplied, opts.SessionID),
		ChainID:   p.ChainID,
		Applied:   report.Applied,
		Failed:    report.Failed,
	})

	logger.Info("proposal applied", "applied", report.Applied, "failed", report.Failed)
	return report, errs.ErrorOrNil()
}

func (a *Applier) send(logger *slog.Logger, e events.Event) {
	if err := a.events.Send(e); err != nil {
		logger.Debug("event dropped", "type", e.GetType(), "error", err)
	}
}

func (a *Applier) applyOne(ctx context.Context, chainID string, action Action) Result {
	if err := ctx.Err(); err != nil {
		return Result{Err: err}
	}
	switch act := action.(type) {
	case *UpdateChain:
		return Result{Err: a.api.UpdateChain(ctx, chainID, chainapi.ChainPatch{Name: act.Name, Description: act.Description})}

	case *CreateElement:
		id, err := a.createElement(ctx, chainID, act)
		return Result{ElementID: id, Err: err}

	case *UpdateElement:
		return Result{ElementID: act.ElementID, Err: a.updateElement(ctx, chainID, act)}

	case *DeleteElements:
		return Result{Err: a.api.DeleteElements(ctx, chainID, act.ElementIDs)}

	case *CreateConnection:
		conn, err := a.api.CreateConnection(ctx, chainID, act.From, act.To)
		if err != nil {
			return Result{Err: err}
		}
		return Result{ConnectionID: conn.ID}

	case *DeleteConnections:
		return Result{Err: a.api.DeleteConnections(ctx, chainID, act.ConnectionIDs)}

	default:
		return Result{Err: fmt.Errorf("unsupported change %T", action)}
	}
}

func (a *Applier) createElement(ctx context.Context, chainID string, act *CreateElement) (string, error) {
	change, err := a.api.CreateElement(ctx, chainID, chainapi.CreateElementRequest{
		Type:            act.ElementType,
		ParentElementID: act.ParentElementID,
	})
	if err != nil {
		return "", err
	}

	candidates := ofType(change.CreatedElements, act.ElementType)
	if act.Name == "" && len(act.Properties) == 0 {
		if len(candidates) > 0 {
			return candidates[len(candidates)-1].ID, nil
		}
		return "", nil
	}

	if len(candidates) == 0 {
		candidates, err = a.api.GetElementsByType(ctx, chainID, act.ElementType)
		if err != nil {
			return "", fmt.Errorf("failed to look up created element: %w", err)
		}
	}
	target, ok := pickCreated(candidates, act.Properties)
	if !ok {
		return "", fmt.Errorf("%w: type %s", ErrElementNotFound, act.ElementType)
	}

	patch := chainapi.ElementPatch{}
	if act.Name != "" {
		name := act.Name
		patch.Name = &name
	}
	if len(act.Properties) > 0 {
		patch.Properties = mergeProperties(target.Properties, act.Properties)
	}
	if _, err := a.api.UpdateElement(ctx, chainID, target.ID, patch); err != nil {
		return target.ID, err
	}
	return target.ID, nil
}

func (a *Applier) updateElement(ctx context.Context, chainID string, act *UpdateElement) error {
	patch := chainapi.ElementPatch{Name: act.Name}
	if len(act.Properties) > 0 {
		// The service replaces the whole map, so merge with what is there.
		current, err := a.currentProperties(ctx, chainID, act.ElementID)
		if err != nil {
			return err
		}
		patch.Properties = mergeProperties(current, act.Properties)
	}
	_, err := a.api.UpdateElement(ctx, chainID, act.ElementID, patch)
	return err
}

func (a *Applier) currentProperties(ctx context.Context, chainID, elementID string) (map[string]any, error) {
	chain, err := a.api.GetChain(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to read element %s: %w", elementID, err)
	}
	for _, el := range chain.Elements {
		if el.ID == elementID {
			return el.Properties, nil
		}
	}
	return nil, nil
}

func ofType(elements []chainapi.Element, elementType string) []chainapi.Element {
	var out []chainapi.Element
	for _, el := range elements {
		if el.Type == elementType {
			out = append(out, el)
		}
	}
	return out
}

// pickCreated chooses the element a create call just produced. Candidates are
// ordered oldest first; with several, the newest one that has none of the
// proposed property keys yet wins, falling back to the newest overall.
func pickCreated(candidates []chainapi.Element, props map[string]any) (chainapi.Element, bool) {
	if len(candidates) == 0 {
		return chainapi.Element{}, false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	for i := len(candidates) - 1; i >= 0; i-- {
		if !hasAnyKey(candidates[i].Properties, props) {
			return candidates[i], true
		}
	}
	return candidates[len(candidates)-1], true
}

func hasAnyKey(have, want map[string]any) bool {
	for k := range want {
		if _, ok := have[k]; ok {
			return true
		}
	}
	return false
}

func mergeProperties(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	maps.Copy(out, base)
	maps.Copy(out, overlay)
	return out
}
