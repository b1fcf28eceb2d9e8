package disk

// SetNameFunc replaces the token generator used by GenerateUniqueName.
func (s *FileStore) SetNameFunc(f func() string) {
	s.newName = f
}
