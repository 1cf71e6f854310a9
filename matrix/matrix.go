package matrix

import "github.com/reeveci/reeve-matrix/schema"

// Expand produces one run configuration per channel, in input order.
// Channels listed in allowFailures are flagged as allowed to fail.
func Expand(channels []string, allowFailures []string) []schema.RunConfiguration {
	allowed := make(map[string]bool, len(allowFailures))
	for _, channel := range allowFailures {
		allowed[channel] = true
	}

	result := make([]schema.RunConfiguration, len(channels))
	for i, channel := range channels {
		result[i] = schema.RunConfiguration{
			Index:        i,
			Channel:      channel,
			AllowFailure: allowed[channel],
		}
	}
	return result
}

// Find returns the run configuration of channel.
func Find(runs []schema.RunConfiguration, channel string) (schema.RunConfiguration, bool) {
	for _, run := range runs {
		if run.Channel == channel {
			return run, true
		}
	}
	return schema.RunConfiguration{}, false
}
