package bind_group_provider

// BufferWrite describes a single GPU buffer write operation targeting a specific binding
// on a BindGroupProvider at a given byte offset.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}

// Empty reports whether the write has no provider, no data, or targets a released provider.
func (w BufferWrite) Empty() bool {
	return w.Provider == nil || len(w.Data) == 0 || w.Provider.Released()
}
