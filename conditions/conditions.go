package conditions

import (
	"fmt"

	"github.com/reeveci/reeve-matrix/schema"
)

// Check reports whether every condition holds for the given facts.
func Check(facts map[string]schema.Fact, conditions map[string]schema.Condition, env map[string]schema.Env) (bool, error) {
	for key, condition := range conditions {
		if key != "" {
			ok, err := condition.Check(key, facts, env)
			if !ok || err != nil {
				return false, err
			}
		}
	}

	return true, nil
}

func Validate(conditions map[string]schema.Condition) error {
	for key, condition := range conditions {
		if err := condition.Validate(); err != nil {
			return fmt.Errorf("condition \"%s\" - %s", key, err)
		}
	}
	return nil
}
