package kernel

import "github.com/rs/zerolog"

type options struct {
	log     zerolog.Logger
	tracer  Tracer
	onPanic func(PanicInfo)
}

// Option configures a Kernel at construction.
type Option func(*options)

// WithLogger sets the logger for kernel warnings and the panic path. Default is zerolog.Nop().
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithTracer streams scheduler events to t. The tracer is called from kernel and
// interrupt context and must not block or call back into the kernel.
func WithTracer(t Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithPanicHandler installs a handler invoked once, on the first fatal
// inconsistency, before the kernel panics. It must not panic.
func WithPanicHandler(fn func(PanicInfo)) Option {
	return func(o *options) {
		o.onPanic = fn
	}
}
