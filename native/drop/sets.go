package drop

// addressSet keeps O(1) membership alongside an enumeration sequence.
// Removal swaps the last entry into the vacated slot and truncates, so
// enumeration order is NOT stable across removals; callers that need a
// stable listing must sort.
type addressSet struct {
	index map[[20]byte]int
	order [][20]byte
}

func newAddressSet(order [][20]byte) *addressSet {
	s := &addressSet{
		index: make(map[[20]byte]int, len(order)),
		order: make([][20]byte, 0, len(order)),
	}
	for _, addr := range order {
		if _, ok := s.index[addr]; ok {
			continue
		}
		s.index[addr] = len(s.order)
		s.order = append(s.order, addr)
	}
	return s
}

func (s *addressSet) Contains(addr [20]byte) bool {
	_, ok := s.index[addr]
	return ok
}

// Add appends the address and reports whether it was absent.
func (s *addressSet) Add(addr [20]byte) bool {
	if _, ok := s.index[addr]; ok {
		return false
	}
	s.index[addr] = len(s.order)
	s.order = append(s.order, addr)
	return true
}

// Remove swaps the last entry into the removed slot and truncates. It
// reports whether the address was present.
func (s *addressSet) Remove(addr [20]byte) bool {
	at, ok := s.index[addr]
	if !ok {
		return false
	}
	last := len(s.order) - 1
	if at != last {
		moved := s.order[last]
		s.order[at] = moved
		s.index[moved] = at
	}
	s.order = s.order[:last]
	delete(s.index, addr)
	return true
}

func (s *addressSet) Enumerate() [][20]byte {
	out := make([][20]byte, len(s.order))
	copy(out, s.order)
	return out
}

func (s *addressSet) Len() int {
	return len(s.order)
}

// setErrors binds the shared add/remove protocol to one set's error triple.
type setErrors struct {
	duplicate  error
	notPresent error
	zero       error
}

// apply runs the uniform membership protocol: zero addresses are never
// valid, adds require absence, removals require presence.
func (s *addressSet) apply(addr [20]byte, allowed bool, errs setErrors) error {
	if isZeroAddress(addr) {
		return errs.zero
	}
	if allowed {
		if !s.Add(addr) {
			return errs.duplicate
		}
		return nil
	}
	if !s.Remove(addr) {
		return errs.notPresent
	}
	return nil
}

// Stored sets are RLP byte-slice lists; these helpers convert at the
// storage boundary.

func addrsToBytes(addrs [][20]byte) [][]byte {
	out := make([][]byte, len(addrs))
	for i, addr := range addrs {
		buf := make([]byte, 20)
		copy(buf, addr[:])
		out[i] = buf
	}
	return out
}

func bytesToAddrs(raw [][]byte) [][20]byte {
	out := make([][20]byte, 0, len(raw))
	for _, b := range raw {
		if len(b) != 20 {
			continue
		}
		var addr [20]byte
		copy(addr[:], b)
		out = append(out, addr)
	}
	return out
}
