/*
Package resilience provides a circuit breaker for outbound service calls.

# Overview

Both remote collaborators of the daemon (the connection gateway and the
capability server) sit on links that can disappear at any time. The
breaker keeps a flapping collaborator from stalling every request.

# Usage

	breaker := resilience.New("gateway", resilience.Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("circuit state change", zap.String("breaker", name))
		},
	})

	err := breaker.Do(func() error {
		return client.Call()
	})

# States

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[successes]-> Closed
	                                             |
	                                         [failure]
	                                             v
	                                            Open

Calls rejected while Open (or while Half-Open at probe capacity) fail
fast with ErrOpen.
*/
package resilience
