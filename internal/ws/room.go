package ws

// members is the set of connection ids joined to a single room. It is only
// ever touched while holding the Hub lock.
type members map[string]struct{}

func (m members) add(id string) {
	m[id] = struct{}{}
}

func (m members) remove(id string) {
	delete(m, id)
}

func (m members) has(id string) bool {
	_, ok := m[id]
	return ok
}
