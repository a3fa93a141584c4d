/*
Copyright 2025 Paradrop Labs
*/

package update

import (
	"regexp"

	"github.com/pkg/errors"
)

// Chute names become container names, directory names, and interface name
// prefixes, so the character set is conservative.
var chuteNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

const maxChuteNameLen = 128

// generateNamePlans validates the update's identity before any other
// module looks at it. It contributes no plan entries.
func generateNamePlans(u *Update) error {
	if u.Name == "" {
		return errors.New("chute name is required")
	}
	if len(u.Name) > maxChuteNameLen {
		return errors.Errorf("chute name %q is too long", u.Name)
	}
	if !chuteNamePattern.MatchString(u.Name) {
		return errors.Errorf("chute name %q contains invalid characters", u.Name)
	}
	if u.New != nil && u.New.Name != u.Name {
		return errors.Errorf("chute name %q does not match update target %q",
			u.New.Name, u.Name)
	}
	return nil
}
