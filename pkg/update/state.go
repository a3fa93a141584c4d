/*
Copyright 2025 Paradrop Labs
*/

package update

import (
	"github.com/pkg/errors"

	"github.com/leilei1881/Paradrop/pkg/chute"
)

// generateStatePlans resolves the old chute snapshot from the store,
// enforces the presence rules per update type, and schedules the final
// store commit.
func generateStatePlans(u *Update) error {
	old, err := u.agent.Store.Get(u.Name)
	if err != nil && !errors.Is(err, chute.ErrChuteNotFound) {
		return err
	}
	u.Old = old

	switch u.Type {
	case TypeCreate:
		if u.Old != nil {
			return errors.Errorf("chute %s already exists", u.Name)
		}
	case TypeUpdate, TypeDelete, TypeStart, TypeStop, TypeRestart:
		if u.Old == nil {
			return errors.Wrap(chute.ErrChuteNotFound, u.Name)
		}
	}

	u.Plans.Add(PlanCommit, "commit chute state", commitState, nil)
	return nil
}

func commitState(u *Update) error {
	switch u.Type {
	case TypeCreate, TypeUpdate:
		return u.agent.Store.Save(u.New)
	case TypeDelete:
		return u.agent.Store.Delete(u.Name)
	}
	return nil
}
