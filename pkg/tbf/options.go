package tbf

import "log/slog"

// Option configures a Writer or Reader.
type Option func(*options)

type options struct {
	pageSize int
	logger   *slog.Logger
	sync     bool
	mmap     bool
}

func defaultOptions() options {
	return options{
		pageSize: DefaultPageSize,
		logger:   slog.New(slog.DiscardHandler),
		sync:     true,
		mmap:     true,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithPageSize sets the payload alignment used by a Writer. It must be > 0.
func WithPageSize(n int) Option {
	return func(o *options) { o.pageSize = n }
}

// WithLogger routes debug logging to l.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSync controls whether a Writer created by Create fsyncs the file on Close.
func WithSync(enabled bool) Option {
	return func(o *options) { o.sync = enabled }
}

// WithMmap controls whether Open memory-maps the file. When disabled, or when
// mapping fails, the file is read into memory instead.
func WithMmap(enabled bool) Option {
	return func(o *options) { o.mmap = enabled }
}
