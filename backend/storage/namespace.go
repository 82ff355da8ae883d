package storage

import "strings"

// Namespace scopes every key of b under ns, so that several tenants can share
// one physical store without seeing each other's state. If b is a Notifier the
// result is one too, forwarding only changes inside ns with the prefix removed.
func Namespace(b Backend, ns string) Backend {
	base := &namespaced{inner: b, prefix: ns + "/"}
	if n, ok := b.(Notifier); ok {
		return &notifyingNamespace{namespaced: base, notifier: n}
	}
	return base
}

type namespaced struct {
	inner  Backend
	prefix string
}

func (n *namespaced) GetItem(key string) (string, bool, error) {
	return n.inner.GetItem(n.prefix + key)
}

func (n *namespaced) SetItem(key, value string) error {
	return n.inner.SetItem(n.prefix+key, value)
}

func (n *namespaced) RemoveItem(key string) error {
	return n.inner.RemoveItem(n.prefix + key)
}

// Keys implements Lister when the wrapped backend does.
func (n *namespaced) Keys(prefix string) ([]string, error) {
	l, ok := n.inner.(Lister)
	if !ok {
		return nil, ErrNotListable
	}
	keys, err := l.Keys(n.prefix + prefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, n.prefix)
	}
	return keys, nil
}

type notifyingNamespace struct {
	*namespaced
	notifier Notifier
}

func (n *notifyingNamespace) Subscribe(fn func(Change)) func() {
	return n.notifier.Subscribe(func(c Change) {
		if !strings.HasPrefix(c.Key, n.prefix) {
			return
		}
		c.Key = strings.TrimPrefix(c.Key, n.prefix)
		fn(c)
	})
}
