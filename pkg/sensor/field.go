package sensor

// field is a configuration value that is either already written to the
// sensor or waiting for the next enable.
type field[T any] struct {
	value   T
	pending bool
}

func pendingField[T any](v T) field[T] {
	return field[T]{value: v, pending: true}
}

func (f *field[T]) setPending(v T) {
	f.value = v
	f.pending = true
}

func (f *field[T]) setApplied(v T) {
	f.value = v
	f.pending = false
}

// reconcile writes a pending value and marks it applied.
func (f *field[T]) reconcile(write func(T) error) error {
	if !f.pending {
		return nil
	}
	if err := write(f.value); err != nil {
		return err
	}
	f.pending = false
	return nil
}

type integration struct {
	sampleTime  uint16
	sampleCount uint16
}

type agcConfig struct {
	enabled bool
	samples uint16
}
