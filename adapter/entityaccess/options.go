package entityaccess

import "github.com/vinicius-lino-figueiredo/gedm/domain"

// Option configures behavior through the functional options pattern.
type Option func(*EntityAccess)

// WithDecoder sets the decoder used to convert values that are not directly
// assignable to the property type.
func WithDecoder(d domain.Decoder) Option {
	return func(a *EntityAccess) {
		a.decoder = d
	}
}
