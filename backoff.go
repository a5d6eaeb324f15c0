package edgemq

import "time"

// backoffTier pairs an upper bound on time since the last established
// connection with the wait applied below it.
type backoffTier struct {
	below time.Duration
	wait  time.Duration
}

var backoffTiers = []backoffTier{
	{15 * time.Minute, 11 * time.Second},
	{time.Hour, 179 * time.Second},
	{2 * time.Hour, 907 * time.Second},
}

// maxBackoff applies once the client has been offline for two hours or more.
const maxBackoff = 3607 * time.Second

// reconnectDelay returns how long WAIT sleeps given the time elapsed since
// the connection was last established. The delay grows in fixed tiers
// rather than exponentially.
func reconnectDelay(sinceEstablished time.Duration) time.Duration {
	for _, tier := range backoffTiers {
		if sinceEstablished < tier.below {
			return tier.wait
		}
	}
	return maxBackoff
}
