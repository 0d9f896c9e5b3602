package credential

import "fmt"

// ChainBackend tries each backend in order, falling through to the next
// only on a not-found result; any other error is returned immediately so a
// transient keychain failure is never silently masked by a fallback.
type ChainBackend struct {
	backends []Backend
}

// NewChainBackend builds a backend chain, primary first.
func NewChainBackend(backends ...Backend) *ChainBackend {
	return &ChainBackend{backends: backends}
}

func (c *ChainBackend) Name() string { return "chain" }

func (c *ChainBackend) Set(service, account, secret string) error {
	if len(c.backends) == 0 {
		return fmt.Errorf("no credential backend configured")
	}
	return c.backends[0].Set(service, account, secret)
}

func (c *ChainBackend) Get(service, account string) (string, error) {
	var lastErr error
	for _, b := range c.backends {
		v, err := b.Get(service, account)
		if err == nil {
			return v, nil
		}
		if !isNotFound(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *ChainBackend) Delete(service, account string) error {
	var lastErr error
	found := false
	for _, b := range c.backends {
		err := b.Delete(service, account)
		if err == nil {
			found = true
			continue
		}
		if !isNotFound(err) {
			return err
		}
		lastErr = err
	}
	if found {
		return nil
	}
	return lastErr
}

// List unions and de-duplicates keys across every backend in the chain
// that supports enumeration.
func (c *ChainBackend) List(service string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, b := range c.backends {
		lb, ok := b.(interface {
			List(service string) ([]string, error)
		})
		if !ok {
			continue
		}
		entries, err := lb.List(service)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out, nil
}
