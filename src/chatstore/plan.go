package chatstore

// UpdateChainCreationPlan replaces the plan of a session; nil clears it.
// Plan replacement is written immediately.
func (s *Store) UpdateChainCreationPlan(id string, plan *ChainCreationPlan) error {
	return s.mutateNow(id, func(sess *ChatSession) error {
		if plan == nil {
			sess.ChainCreationPlan = nil
			return nil
		}
		p := plan.Clone()
		now := s.clock.Now()
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		if p.Status == "" {
			p.Status = PlanPlanning
		}
		sess.ChainCreationPlan = p
		return nil
	})
}

// UpdatePlannedElementStatus records progress on one planned element.
// elementID and errMsg are only applied when non-empty. Debounced.
func (s *Store) UpdatePlannedElementStatus(id, plannedID string, status ElementStatus, elementID, errMsg string) error {
	return s.mutateDebounced(id, func(sess *ChatSession) error {
		plan := sess.ChainCreationPlan
		if plan == nil {
			return ErrPlanNotFound
		}
		for i := range plan.Elements {
			e := &plan.Elements[i]
			if e.ID != plannedID {
				continue
			}
			e.Status = status
			if elementID != "" {
				e.ElementID = elementID
			}
			if errMsg != "" {
				e.Error = errMsg
			}
			plan.UpdatedAt = s.clock.Now()
			return nil
		}
		return ErrPlannedItemNotFound
	})
}

// UpdatePlannedConnectionStatus records progress on one planned connection.
// Debounced.
func (s *Store) UpdatePlannedConnectionStatus(id, plannedID string, status ConnectionStatus, connectionID, errMsg string) error {
	return s.mutateDebounced(id, func(sess *ChatSession) error {
		plan := sess.ChainCreationPlan
		if plan == nil {
			return ErrPlanNotFound
		}
		for i := range plan.Connections {
			c := &plan.Connections[i]
			if c.ID != plannedID {
				continue
			}
			c.Status = status
			if connectionID != "" {
				c.ConnectionID = connectionID
			}
			if errMsg != "" {
				c.Error = errMsg
			}
			plan.UpdatedAt = s.clock.Now()
			return nil
		}
		return ErrPlannedItemNotFound
	})
}

// UpdatePlanStatus moves the plan as a whole to status. Immediate.
func (s *Store) UpdatePlanStatus(id string, status PlanStatus) error {
	return s.mutateNow(id, func(sess *ChatSession) error {
		if sess.ChainCreationPlan == nil {
			return ErrPlanNotFound
		}
		sess.ChainCreationPlan.Status = status
		sess.ChainCreationPlan.UpdatedAt = s.clock.Now()
		return nil
	})
}
