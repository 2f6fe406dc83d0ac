package validator

type Options struct {
	verifier ScriptVerifier
	workers  int
	cache    *ScriptCache
	noCache  bool
}

// Option is a function that sets some option on the Options struct
type Option func(*Options)

func NewDefaultOptions() *Options {
	return &Options{}
}

func ProcessOptions(opts ...Option) *Options {
	options := NewDefaultOptions()
	for _, o := range opts {
		o(options)
	}

	return options
}

// WithScriptVerifier replaces the go-bt interpreter, mostly for tests
func WithScriptVerifier(verifier ScriptVerifier) Option {
	return func(o *Options) {
		o.verifier = verifier
	}
}

// WithWorkers overrides the configured script check pool size
func WithWorkers(workers int) Option {
	return func(o *Options) {
		o.workers = workers
	}
}

// WithScriptCache shares an existing script cache
func WithScriptCache(cache *ScriptCache) Option {
	return func(o *Options) {
		o.cache = cache
	}
}

// WithoutScriptCache disables the script cache
func WithoutScriptCache() Option {
	return func(o *Options) {
		o.noCache = true
	}
}
