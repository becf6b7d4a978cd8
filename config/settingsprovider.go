package config

type SettingsProvider[T any] interface {
	// GetSettings returns the current settings of type T.
	GetSettings() T
}

// StaticSettingsProvider always returns the same settings.
type StaticSettingsProvider[T any] struct {
	settings T
}

func NewStaticSettingsProvider[T any](settings T) *StaticSettingsProvider[T] {
	return &StaticSettingsProvider[T]{settings: settings}
}

func (p *StaticSettingsProvider[T]) GetSettings() T {
	return p.settings
}

// MappedSettingsProvider derives settings of type T from another provider.
type MappedSettingsProvider[S, T any] struct {
	source SettingsProvider[S]
	mapFn  func(S) T
}

func NewMappedSettingsProvider[S, T any](source SettingsProvider[S], mapFn func(S) T) *MappedSettingsProvider[S, T] {
	return &MappedSettingsProvider[S, T]{source: source, mapFn: mapFn}
}

func (p *MappedSettingsProvider[S, T]) GetSettings() T {
	return p.mapFn(p.source.GetSettings())
}
