// Package timegetter contains the default [domain.TimeGetter].
package timegetter

import (
	"time"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// SystemClock implements [domain.TimeGetter] with the system clock, in UTC.
type SystemClock struct{}

// NewTimeGetter returns a [SystemClock].
func NewTimeGetter() domain.TimeGetter {
	return SystemClock{}
}

// GetTime implements [domain.TimeGetter].
func (SystemClock) GetTime() time.Time {
	return time.Now().UTC()
}
