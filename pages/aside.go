package pages

// AttachAside chains an aside store onto this one. Reads for page indices
// at or above the aside bit are delegated to it (see isAsidePage in
// format.go); writes always go to the primary store, never to the aside.
func (s *Store) AttachAside(aside *Store) {
	s.aside = aside
}

// DetachAside severs the aside chain and returns the detached store
// without closing it, so the caller can merge or discard it. Since this
// store never writes to the aside, detaching only ends read delegation for
// aside-bit indices.
func (s *Store) DetachAside() *Store {
	a := s.aside
	s.aside = nil
	return a
}

// Aside returns the currently attached aside store, or nil.
func (s *Store) Aside() *Store { return s.aside }

// AsideIndex tags a local page index as belonging to the aside chain, for
// callers (fsindex block maps) that need to record a cross-store
// reference.
func AsideIndex(localIdx int) int { return asideIndex(localIdx) }

// IsAsideIndex reports whether a block's page index refers to the aside
// chain rather than this store.
func IsAsideIndex(idx int) bool { return isAsidePage(idx) }

// LocalAsideIndex strips the aside bit, yielding the index to pass to the
// aside store's own ReadPage.
func LocalAsideIndex(idx int) int { return localIndex(idx) }
